package domain

import "context"

// SearchBackend queries the medicine and product catalogs. An empty result is not an error.
type SearchBackend interface {
	Search(ctx context.Context, kind SearchKind, query string, limit int) (SearchResult, error)
}

// OrderBackend exposes order tracking and history scoped by normalized phone.
type OrderBackend interface {
	TrackByID(ctx context.Context, id, phone string) (OrderRecord, error)
	HistoryByPhone(ctx context.Context, phone string) ([]OrderRecord, error)
}

// AccountStore is the persistent user/order store. FindByPhone returns (nil, nil) when no
// account matches.
type AccountStore interface {
	FindByPhone(ctx context.Context, phone string) (*UserAccount, error)
	OrdersByUserID(ctx context.Context, userID string, limit int) ([]OrderRecord, error)
	SavePrescription(ctx context.Context, p Prescription) (string, error)
	Close() error
}

// PrescriptionIntake is the primary prescription submission path.
type PrescriptionIntake interface {
	Submit(ctx context.Context, phone, mediaRef, caption string) (string, error)
}
