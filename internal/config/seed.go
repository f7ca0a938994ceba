package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed declares providers and jobs applied at serve startup. It lets a
// deployment pin provider priorities and enqueue its feed jobs without an
// operator API.
type Seed struct {
	Providers []SeedProvider `yaml:"providers"`
	Jobs      []SeedJob      `yaml:"jobs"`
}

// SeedProvider declares one provider to ensure at startup.
type SeedProvider struct {
	Name          string `yaml:"name"`
	Kind          string `yaml:"kind"`
	Slug          string `yaml:"slug"`
	AgentPriority int    `yaml:"agent_priority"`
}

// SeedJob declares one job to enqueue at startup.
type SeedJob struct {
	Kind        string         `yaml:"kind"`
	Priority    int            `yaml:"priority"`
	MaxAttempts int            `yaml:"max_attempts"`
	Payload     map[string]any `yaml:"payload"`
}

// LoadSeed parses a YAML seed file.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed file: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse seed file %s: %w", path, err)
	}

	for i, p := range seed.Providers {
		if p.Slug == "" {
			return Seed{}, fmt.Errorf("seed file %s: provider %d has no slug", path, i)
		}
	}
	for i, j := range seed.Jobs {
		if j.Kind == "" {
			return Seed{}, fmt.Errorf("seed file %s: job %d has no kind", path, i)
		}
	}
	return seed, nil
}
