package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnect(t *testing.T) {
	t.Run("SQLite In-Memory", func(t *testing.T) {
		db, err := Connect(Config{
			Driver: DriverSQLite,
			Name:   ":memory:",
		})
		assert.NoError(t, err)
		assert.NotNil(t, db)
	})

	t.Run("Empty Driver Defaults To SQLite", func(t *testing.T) {
		db, err := Connect(Config{Name: ":memory:"})
		assert.NoError(t, err)
		assert.NotNil(t, db)
	})

	t.Run("Unsupported Driver", func(t *testing.T) {
		db, err := Connect(Config{Driver: "postgres"})
		assert.Error(t, err)
		assert.Nil(t, db)
	})

	t.Run("Invalid MySQL Connection", func(t *testing.T) {
		cfg := Config{
			Driver:         DriverMySQL,
			Host:           "localhost",
			Port:           9999, // Unused port
			User:           "root",
			Password:       "wrongpassword",
			Name:           "vitals",
			TimeoutSeconds: 2,
		}

		// Connect should fail (timeout or refused)
		db, err := Connect(cfg)
		assert.Error(t, err)
		assert.Nil(t, db)
	})
}
