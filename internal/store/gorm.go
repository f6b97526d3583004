package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"medibot/internal/domain"
	"medibot/internal/normalize"
)

// User is a customer row.
type User struct {
	ID        string `gorm:"primaryKey;size:64"`
	Phone     string `gorm:"size:32;not null;index"`
	Name      string `gorm:"size:128"`
	CreatedAt time.Time
}

// Order is an order row. Items holds the JSON-encoded item list.
type Order struct {
	ID          string    `gorm:"primaryKey;size:64"`
	UserID      string    `gorm:"size:64;not null;index:idx_orders_user_created"`
	Status      string    `gorm:"size:32"`
	TotalAmount float64   `gorm:"default:0"`
	Items       string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"index:idx_orders_user_created"`
}

// PrescriptionRow is a stored prescription.
type PrescriptionRow struct {
	ID        string `gorm:"primaryKey;size:64"`
	Phone     string `gorm:"size:32;not null;index"`
	MediaURL  string `gorm:"size:1024;not null"`
	Caption   string `gorm:"type:text"`
	Status    string `gorm:"size:16;default:pending;index"`
	CreatedAt time.Time
}

func (PrescriptionRow) TableName() string { return "prescriptions" }

// GormStore implements domain.AccountStore on any GORM dialect; production uses MySQL.
type GormStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

// OpenMySQL connects to MySQL and migrates the schema.
func OpenMySQL(dsn string, log *slog.Logger) (*GormStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: connect mysql: %w", err)
	}
	return NewGormStore(db, log)
}

// NewGormStore wraps an open connection and migrates the schema.
func NewGormStore(db *gorm.DB, log *slog.Logger) (*GormStore, error) {
	if err := db.AutoMigrate(&User{}, &Order{}, &PrescriptionRow{}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &GormStore{db: db, logger: log}, nil
}

func (s *GormStore) FindByPhone(ctx context.Context, phone string) (*domain.UserAccount, error) {
	p := normalize.NormalizePhone(phone)
	if p == "" {
		return nil, nil
	}
	var u User
	err := s.db.WithContext(ctx).Where("phone IN ?", p.Variants()).Order("created_at").First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find user by phone: %w", err)
	}
	return &domain.UserAccount{ID: u.ID, PhoneNormalized: p.String(), DisplayName: u.Name}, nil
}

func (s *GormStore) OrdersByUserID(ctx context.Context, userID string, limit int) ([]domain.OrderRecord, error) {
	var rows []Order
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: list orders: %w", err)
	}
	out := make([]domain.OrderRecord, 0, len(rows))
	for _, o := range rows {
		out = append(out, domain.OrderRecord{
			ID:          o.ID,
			Status:      o.Status,
			CreatedAt:   o.CreatedAt.UTC().Format(time.RFC3339),
			TotalAmount: domain.FlexFloat(o.TotalAmount).Ptr(),
			Items:       itemsJSON(o.Items),
		})
	}
	return out, nil
}

func (s *GormStore) SavePrescription(ctx context.Context, p domain.Prescription) (string, error) {
	row := PrescriptionRow{
		ID:        p.ID,
		Phone:     p.Phone,
		MediaURL:  p.MediaURL,
		Caption:   p.Caption,
		Status:    p.Status,
		CreatedAt: p.CreatedAt,
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.Status == "" {
		row.Status = "pending"
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("store: save prescription: %w", err)
	}
	return row.ID, nil
}

// UpsertUser creates or replaces a user row.
func (s *GormStore) UpsertUser(ctx context.Context, id, phone, name string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"phone", "name"}),
	}).Create(&User{ID: id, Phone: phone, Name: name}).Error
	if err != nil {
		return fmt.Errorf("store: upsert user: %w", err)
	}
	return nil
}

// InsertOrder stores an order with its items encoded as JSON text.
func (s *GormStore) InsertOrder(ctx context.Context, userID string, o domain.OrderSummary, createdAt time.Time) error {
	items, err := encodeItems(o.Items)
	if err != nil {
		return err
	}
	row := Order{ID: o.ID, UserID: userID, Status: o.Status, TotalAmount: o.TotalAmount, Items: items, CreatedAt: createdAt.UTC()}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("store: insert order: %w", err)
	}
	return nil
}

func (s *GormStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	db := s.db.WithContext(ctx)
	if err := db.Model(&User{}).Count(&st.Users).Error; err != nil {
		return Stats{}, fmt.Errorf("store: count users: %w", err)
	}
	if err := db.Model(&Order{}).Count(&st.Orders).Error; err != nil {
		return Stats{}, fmt.Errorf("store: count orders: %w", err)
	}
	if err := db.Model(&PrescriptionRow{}).Where("status = ?", "pending").Count(&st.PendingPrescriptions).Error; err != nil {
		return Stats{}, fmt.Errorf("store: count prescriptions: %w", err)
	}
	return st, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
