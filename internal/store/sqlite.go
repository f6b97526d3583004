package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"medibot/internal/domain"
	"medibot/internal/normalize"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.AccountStore on a local SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := Migrate(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger, now: time.Now}, nil
}

// FindByPhone matches a user row stored in any of the known phone formats.
func (s *SQLiteStore) FindByPhone(ctx context.Context, phone string) (*domain.UserAccount, error) {
	p := normalize.NormalizePhone(phone)
	variants := p.Variants()
	if len(variants) == 0 {
		return nil, nil
	}

	var u domain.UserAccount
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name FROM users WHERE phone IN (?, ?, ?, ?) ORDER BY created_at LIMIT 1`,
		variants[0], variants[1], variants[2], variants[3],
	).Scan(&u.ID, &u.DisplayName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by phone: %w", err)
	}
	u.PhoneNormalized = p.String()
	return &u, nil
}

// OrdersByUserID returns the user's newest orders first. Items are passed through as the
// stored JSON text.
func (s *SQLiteStore) OrdersByUserID(ctx context.Context, userID string, limit int) ([]domain.OrderRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, total_amount, COALESCE(items, ''), created_at
		 FROM orders WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []domain.OrderRecord
	for rows.Next() {
		var (
			rec     domain.OrderRecord
			total   float64
			items   string
			created time.Time
		)
		if err := rows.Scan(&rec.ID, &rec.Status, &total, &items, &created); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		rec.TotalAmount = domain.FlexFloat(total).Ptr()
		rec.CreatedAt = created.UTC().Format(time.RFC3339)
		rec.Items = itemsJSON(items)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SavePrescription stores a prescription and returns its id, generating one when unset.
func (s *SQLiteStore) SavePrescription(ctx context.Context, p domain.Prescription) (string, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	if p.Status == "" {
		p.Status = "pending"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prescriptions (id, phone, media_url, caption, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Phone, p.MediaURL, p.Caption, p.Status, p.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("save prescription: %w", err)
	}
	return p.ID, nil
}

// UpsertUser creates or replaces a user row. phone is stored as given.
func (s *SQLiteStore) UpsertUser(ctx context.Context, id, phone, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, phone, name, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET phone = excluded.phone, name = excluded.name`,
		id, phone, name, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// InsertOrder stores an order with its items encoded as JSON text.
func (s *SQLiteStore) InsertOrder(ctx context.Context, userID string, o domain.OrderSummary, createdAt time.Time) error {
	items, err := encodeItems(o.Items)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, status, total_amount, items, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		o.ID, userID, o.Status, o.TotalAmount, items, createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// Stats counts rows per table.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM users),
		(SELECT COUNT(*) FROM orders),
		(SELECT COUNT(*) FROM prescriptions WHERE status = 'pending')`,
	).Scan(&st.Users, &st.Orders, &st.PendingPrescriptions)
	if err != nil {
		return Stats{}, fmt.Errorf("store stats: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// itemsJSON wraps stored item text as a JSON string so malformed rows still decode as a
// record and degrade to no items downstream.
func itemsJSON(text string) json.RawMessage {
	if text == "" {
		return nil
	}
	b, _ := json.Marshal(text)
	return b
}

type storedItem struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

func encodeItems(items []domain.OrderItem) (string, error) {
	if len(items) == 0 {
		return "", nil
	}
	out := make([]storedItem, len(items))
	for i, it := range items {
		out[i] = storedItem{Name: it.Name, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode items: %w", err)
	}
	return string(b), nil
}
