package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// schemaVersion is the current PRAGMA user_version.
//
// Version history:
//
//	1: captures(id, image_uri TEXT, chat_history, timestamp) - single image
//	2: image_uri replaced by image_uris TEXT JSON array
const schemaVersion = 2

// RepositoryConfig holds shared dependencies for repository implementations
type RepositoryConfig struct {
	DB     *sql.DB
	Logger *slog.Logger
}

// Open opens (creating if needed) the sqlite database, applies pragmas, and
// runs pending schema migrations.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// The state machine is the only writer; a single connection sidesteps
	// SQLITE_BUSY under concurrent handler reads.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	if version == 1 {
		if err := migrateV1ToV2(ctx, db); err != nil {
			return fmt.Errorf("migrate v1 to v2: %w", err)
		}
		version = 2
	}

	if err := createSchema(ctx, db); err != nil {
		return err
	}

	if version != schemaVersion {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}

	return nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS captures (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			image_uris TEXT NOT NULL DEFAULT '[]',
			chat_history TEXT NOT NULL,
			timestamp INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_captures_timestamp ON captures (timestamp DESC);

		CREATE TABLE IF NOT EXISTS preferences (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// migrateV1ToV2 rewrites the legacy single image_uri column into a JSON array
// of references, preserving row ids and transcripts.
func migrateV1ToV2(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	steps := []string{
		`CREATE TABLE captures_new (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			image_uris TEXT NOT NULL DEFAULT '[]',
			chat_history TEXT NOT NULL,
			timestamp INTEGER NOT NULL
		)`,
		`INSERT INTO captures_new (id, image_uris, chat_history, timestamp)
			SELECT id,
			       json_array(image_uri),
			       chat_history,
			       timestamp
			FROM captures`,
		`DROP TABLE captures`,
		`ALTER TABLE captures_new RENAME TO captures`,
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step); err != nil {
			return err
		}
	}

	return tx.Commit()
}
