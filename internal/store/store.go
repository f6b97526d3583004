// Package store implements the account store: users, their orders and uploaded
// prescriptions. SQLite backs single-node deployments; MySQL (through GORM) backs shared ones.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"medibot/internal/domain"
)

// Stats is a row count summary for status reporting.
type Stats struct {
	Users                int64
	Orders               int64
	PendingPrescriptions int64
}

// Store is an account store that can also be seeded and inspected.
type Store interface {
	domain.AccountStore
	UpsertUser(ctx context.Context, id, phone, name string) error
	InsertOrder(ctx context.Context, userID string, o domain.OrderSummary, createdAt time.Time) error
	Stats(ctx context.Context) (Stats, error)
}

// Open picks the driver: "sqlite" (path) or "mysql" (dsn).
func Open(driver, path, dsn string, logger *slog.Logger) (Store, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLiteStore(path, logger)
	case "mysql":
		return OpenMySQL(dsn, logger)
	}
	return nil, fmt.Errorf("store: unknown driver %q: %w", driver, domain.ErrValidation)
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*GormStore)(nil)
)
