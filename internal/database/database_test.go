package database_test

import (
	"context"
	"testing"

	"github.com/pricegrid/pricegrid/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestNewSQLiteInMemory(t *testing.T) {
	db, err := database.New(context.Background(), "sqlite:///:memory:")
	require.NoError(t, err)
	defer db.Close()

	assert.True(t, db.IsSQLite())
	assert.False(t, db.IsPostgres())
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := database.New(context.Background(), "mysql://root@localhost/app")
	assert.ErrorIs(t, err, database.ErrUnsupportedDriver)
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	db, err := database.New(context.Background(), "sqlite:///:memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.ConfigurePool(1, 1, 0))

	ctx := context.Background()
	require.NoError(t, db.Session(ctx).Exec("CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT)").Error)

	err = database.WithTransaction(ctx, db, func(tx *gorm.DB) error {
		if err := tx.Exec("INSERT INTO notes (body) VALUES ('doomed')").Error; err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	var count int64
	require.NoError(t, db.Session(ctx).Table("notes").Count(&count).Error)
	assert.EqualValues(t, 0, count)

	// A returned nil commits.
	require.NoError(t, database.WithTransaction(ctx, db, func(tx *gorm.DB) error {
		return tx.Exec("INSERT INTO notes (body) VALUES ('kept')").Error
	}))
	require.NoError(t, db.Session(ctx).Table("notes").Count(&count).Error)
	assert.EqualValues(t, 1, count)
}
