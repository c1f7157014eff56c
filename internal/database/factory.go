package database

import (
	"fmt"
	"path/filepath"

	"webfile-go/internal/config"
	"webfile-go/internal/database/migrations"
	"webfile-go/internal/webfile"
)

// DatabaseFileName is the name of the SQLite file inside data_dir.
const DatabaseFileName = "webfile.db"

// NewDatabaseFromConfig creates a Database implementation based on the database
// config type and brings its schema up to date.
func NewDatabaseFromConfig(cfg config.DatabaseConfig) (webfile.Database, error) {
	var path string
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		path = filepath.Join(cfg.DataDir, DatabaseFileName)
	case "memory":
		path = ":memory:"
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}

	db, err := NewSQLiteDatabase(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db.DB()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
