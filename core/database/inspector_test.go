package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetTableColumns(t *testing.T) {
	// Setup In-Memory DB
	cfg := Config{
		Driver: DriverSQLite,
		Name:   ":memory:",
	}
	db, err := Connect(cfg)
	assert.NoError(t, err)
	assert.NotNil(t, db)

	// SQLite specific types: INTEGER, TEXT.
	err = db.Exec("CREATE TABLE checkpoints (source TEXT PRIMARY KEY, value TEXT, updated_at DATETIME)").Error
	assert.NoError(t, err)

	columns, err := GetTableColumns(db, "checkpoints")
	assert.NoError(t, err)
	assert.Len(t, columns, 3)

	colMap := make(map[string]string)
	for _, col := range columns {
		colMap[col.Field] = col.Type
	}

	assert.Equal(t, "text", colMap["source"])
	assert.Equal(t, "text", colMap["value"])
	assert.Equal(t, "datetime", colMap["updated_at"])

	// PRAGMA table_info returns an empty result for a non-existent table,
	// no error but no columns.
	cols, err := GetTableColumns(db, "non_existent")
	assert.NoError(t, err)
	assert.Empty(t, cols)
}

func TestMissingTables(t *testing.T) {
	db, err := Connect(Config{Driver: DriverSQLite, Name: ":memory:"})
	assert.NoError(t, err)

	err = db.Exec("CREATE TABLE records (id INTEGER PRIMARY KEY)").Error
	assert.NoError(t, err)

	missing, err := MissingTables(db, []string{"records", "checkpoints", "import_runs"})
	assert.NoError(t, err)
	assert.Equal(t, []string{"checkpoints", "import_runs"}, missing)
}
