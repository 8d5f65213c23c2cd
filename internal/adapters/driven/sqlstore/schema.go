package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

// SchemaVersion is bumped whenever a cache table changes shape. A stored
// version that differs triggers a destructive migration.
const SchemaVersion = 1

//go:embed schema_sqlite.sql
var sqliteSchema string

//go:embed schema_postgres.sql
var postgresSchema string

// cacheTables lists every table the schema creates, dependents first.
var cacheTables = []string{
	"character_episodes",
	"character_origin",
	"character_location",
	"character_remote_keys",
	"characters",
	"episode_characters",
	"episode_remote_keys",
	"episodes",
	"location_residents",
	"location_remote_keys",
	"locations",
	"warm_states",
	"schema_meta",
}

// InitSchema creates the cache tables. When the stored schema version differs
// from SchemaVersion every cache table is dropped first; the store only
// holds data that can be fetched again.
func (db *DB) InitSchema(ctx context.Context) error {
	version, err := db.storedVersion(ctx)
	if err != nil {
		return err
	}
	if version != 0 && version != SchemaVersion {
		if err := db.dropTables(ctx); err != nil {
			return err
		}
	}

	schema := sqliteSchema
	if db.Driver() == DriverPostgres {
		schema = postgresSchema
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	_, err = db.ExecContext(ctx, db.Rebind(`
		INSERT INTO schema_meta (id, version) VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET version = EXCLUDED.version
	`), SchemaVersion)
	if err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}

// storedVersion returns 0 for a fresh database.
func (db *DB) storedVersion(ctx context.Context) (int, error) {
	exists, err := db.tableExists(ctx, "schema_meta")
	if err != nil || !exists {
		return 0, err
	}
	var version int
	err = db.QueryRowContext(ctx, "SELECT version FROM schema_meta WHERE id = 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

func (db *DB) tableExists(ctx context.Context, name string) (bool, error) {
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	if db.Driver() == DriverPostgres {
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?"
	}
	var n int
	if err := db.QueryRowContext(ctx, db.Rebind(query), name).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	return n > 0, nil
}

func (db *DB) dropTables(ctx context.Context) error {
	return db.Transaction(ctx, func(tx *sql.Tx) error {
		for _, table := range cacheTables {
			if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
				return fmt.Errorf("failed to drop %s: %w", table, err)
			}
		}
		return nil
	})
}
