package httpclient

import (
	"net/url"
	"sync"
)

// validatorCache remembers the last ETag and Last-Modified seen per URL so
// later fetches can go out conditional. It stores validators only, never
// bodies: a 304 means the adapter has nothing new to do, so replaying the
// old body would only cause redundant ingestion work.
type validatorCache struct {
	mu      sync.RWMutex
	entries map[string]validators
}

type validators struct {
	etag    string
	lastMod string
}

func newValidatorCache() *validatorCache {
	return &validatorCache{entries: make(map[string]validators)}
}

func (c *validatorCache) get(url string) (etag, lastMod string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry := c.entries[url]
	return entry.etag, entry.lastMod
}

// put records validators for a URL. Responses without either validator
// clear the entry so stale conditions are not replayed.
func (c *validatorCache) put(url, etag, lastMod string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if etag == "" && lastMod == "" {
		delete(c.entries, url)
		return
	}
	c.entries[url] = validators{etag: etag, lastMod: lastMod}
}

// hostOf extracts the host key used for rate limiting. Unparseable URLs
// share one bucket; they will fail in the request path anyway.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
