package store

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"medibot/internal/domain"
	"medibot/internal/resolver"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "medibot.db"), testLogger())
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func openGorm(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	s, err := NewGormStore(db, testLogger())
	if err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return s
}

// exercise runs the same contract checks against every driver.
func exercise(t *testing.T, s Store) {
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)

	if err := s.UpsertUser(ctx, "u1", "whatsapp:+911234567890", "Asha"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertUser(ctx, "u2", "9876543210", "Ravi"); err != nil {
		t.Fatal(err)
	}
	for i, id := range []string{"o-old", "o-mid", "o-new"} {
		o := domain.OrderSummary{
			ID:          id,
			Status:      "Delivered",
			TotalAmount: float64(10 * (i + 1)),
			Items:       []domain.OrderItem{{Name: "Dolo 650", Quantity: i + 1, UnitPrice: 10}},
		}
		if err := s.InsertOrder(ctx, "u1", o, base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("find by any stored phone format", func(t *testing.T) {
		for _, in := range []string{"1234567890", "+911234567890", "whatsapp:+911234567890"} {
			u, err := s.FindByPhone(ctx, in)
			if err != nil {
				t.Fatal(err)
			}
			if u == nil || u.ID != "u1" || u.PhoneNormalized != "1234567890" || u.DisplayName != "Asha" {
				t.Errorf("%s: unexpected user %+v", in, u)
			}
		}
		u, err := s.FindByPhone(ctx, "+91 98765 43210")
		if err != nil {
			t.Fatal(err)
		}
		if u != nil && u.ID == "u1" {
			t.Errorf("wrong user matched: %+v", u)
		}
		u, err = s.FindByPhone(ctx, "919876543210")
		if err != nil || u == nil || u.ID != "u2" {
			t.Errorf("expected u2, got %+v %v", u, err)
		}
	})

	t.Run("absent user is nil without error", func(t *testing.T) {
		u, err := s.FindByPhone(ctx, "5555555555")
		if err != nil || u != nil {
			t.Fatalf("expected (nil, nil), got %+v %v", u, err)
		}
	})

	t.Run("orders newest first with limit", func(t *testing.T) {
		recs, err := s.OrdersByUserID(ctx, "u1", 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != 2 || recs[0].ID != "o-new" || recs[1].ID != "o-mid" {
			t.Fatalf("unexpected order ids: %+v", recs)
		}
		sum := resolver.Summarize(recs[0])
		if sum.TotalAmount != 30 || len(sum.Items) != 1 || sum.Items[0].Quantity != 3 {
			t.Errorf("unexpected summary %+v", sum)
		}
		if sum.CreatedAt != "2026-10-01T10:00:00Z" {
			t.Errorf("unexpected created at %q", sum.CreatedAt)
		}
	})

	t.Run("save prescription generates id", func(t *testing.T) {
		ref, err := s.SavePrescription(ctx, domain.Prescription{Phone: "1234567890", MediaURL: "https://m/1.jpg"})
		if err != nil {
			t.Fatal(err)
		}
		if len(ref) != 36 {
			t.Errorf("expected a uuid reference, got %q", ref)
		}
		st, err := s.Stats(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if st.Users != 2 || st.Orders != 3 || st.PendingPrescriptions != 1 {
			t.Errorf("unexpected stats %+v", st)
		}
	})
}

func TestSQLiteStore(t *testing.T) {
	exercise(t, openSQLite(t))
}

func TestGormStore(t *testing.T) {
	exercise(t, openGorm(t))
}

func TestSQLiteStore_MalformedItemsDegrade(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	if err := s.UpsertUser(ctx, "u1", "1234567890", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, status, total_amount, items, created_at) VALUES ('bad', 'u1', 'Packed', 5, '{not json', ?)`,
		time.Now().UTC(),
	); err != nil {
		t.Fatal(err)
	}
	recs, err := s.OrdersByUserID(ctx, "u1", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 order, got %d", len(recs))
	}
	if sum := resolver.Summarize(recs[0]); sum.ID != "bad" || len(sum.Items) != 0 {
		t.Errorf("expected the order with no items, got %+v", sum)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	for i := 0; i < 2; i++ {
		if err := Migrate(context.Background(), db, testLogger()); err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
	}
	v, err := SchemaVersion(context.Background(), db)
	if err != nil {
		t.Fatal(err)
	}
	if v != schemaVersion {
		t.Errorf("expected version %d, got %d", schemaVersion, v)
	}
}

func TestMigrate_RejectsNewerSchema(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	ctx := context.Background()
	if err := Migrate(ctx, db, testLogger()); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("INSERT INTO schema_version (version, description) VALUES (99, 'future')"); err != nil {
		t.Fatal(err)
	}
	if err := Migrate(ctx, db, testLogger()); err == nil {
		t.Fatal("expected an error for a schema newer than the build")
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open("postgres", "", "", testLogger()); err == nil {
		t.Fatal("expected an error for an unknown driver")
	}
}
