package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// schemaVersion is len(migrations); versions are numbered from 1 without gaps.
const schemaVersion = 2

// migration is one schema step, applied once and recorded in schema_version.
type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "base schema: users, orders",
		SQL: `
		CREATE TABLE IF NOT EXISTS users (
			id          TEXT PRIMARY KEY,
			phone       TEXT NOT NULL,
			name        TEXT DEFAULT '',
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_users_phone ON users(phone);

		CREATE TABLE IF NOT EXISTS orders (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL REFERENCES users(id),
			status       TEXT DEFAULT '',
			total_amount REAL DEFAULT 0,
			items        TEXT,
			created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id, created_at);
		`,
	},
	{
		Version:     2,
		Description: "v2: prescriptions",
		SQL: `
		CREATE TABLE IF NOT EXISTS prescriptions (
			id          TEXT PRIMARY KEY,
			phone       TEXT NOT NULL,
			media_url   TEXT NOT NULL,
			caption     TEXT DEFAULT '',
			status      TEXT DEFAULT 'pending',
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_prescriptions_phone ON prescriptions(phone, created_at);
		`,
	},
}

// Migrate brings db up to schemaVersion. Each pending step runs in its own
// transaction together with its schema_version row.
func Migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	const ledger = `CREATE TABLE IF NOT EXISTS schema_version (
		version     INTEGER PRIMARY KEY,
		description TEXT,
		applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	)`
	if _, err := db.ExecContext(ctx, ledger); err != nil {
		return fmt.Errorf("schema ledger: %w", err)
	}
	current, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if current > schemaVersion {
		return fmt.Errorf("database schema v%d is newer than this build (v%d)", current, schemaVersion)
	}
	for _, m := range migrations[current:] {
		if err := apply(ctx, db, m); err != nil {
			return fmt.Errorf("migration v%d (%s): %w", m.Version, m.Description, err)
		}
		logger.Info("schema migrated", "version", m.Version, "description", m.Description)
	}
	return nil
}

func apply(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version, description) VALUES (?, ?)", m.Version, m.Description); err != nil {
		return err
	}
	return tx.Commit()
}

// SchemaVersion is the highest applied migration, 0 for a fresh database.
func SchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("schema version: %w", err)
	}
	return v, nil
}
