package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// OrderItem is one line of an order.
type OrderItem struct {
	Name      string
	Quantity  int
	UnitPrice float64
}

// LineTotal is quantity times unit price.
func (i OrderItem) LineTotal() float64 {
	return float64(i.Quantity) * i.UnitPrice
}

// OrderSummary is the canonical order shape every backend record is reconciled into.
type OrderSummary struct {
	ID          string
	Status      string
	CreatedAt   string
	TotalAmount float64
	Items       []OrderItem
}

// OrderRecord is an order as the backend or account store returns it. Field names vary
// between sources, so every known alias is kept and reconciled later.
type OrderRecord struct {
	ID           string          `json:"id"`
	OrderID      string          `json:"order_id"`
	Status       string          `json:"status"`
	OrderStatus  string          `json:"order_status"`
	CreatedAt    string          `json:"created_at"`
	CreatedAtAlt string          `json:"createdAt"`
	TotalAmount  *FlexFloat      `json:"total_amount"`
	TotalPrice   *FlexFloat      `json:"total_price"`
	Total        *FlexFloat      `json:"total"`
	Items        json.RawMessage `json:"items"` // JSON array, or a string holding one
}

// UnmarshalJSON decodes every field leniently: ids and statuses may be numbers,
// totals may be strings or garbage. Only a value that is not a JSON object fails.
func (r *OrderRecord) UnmarshalJSON(data []byte) error {
	var w struct {
		ID           FlexString      `json:"id"`
		OrderID      FlexString      `json:"order_id"`
		Status       FlexString      `json:"status"`
		OrderStatus  FlexString      `json:"order_status"`
		CreatedAt    FlexString      `json:"created_at"`
		CreatedAtAlt FlexString      `json:"createdAt"`
		TotalAmount  *FlexFloat      `json:"total_amount"`
		TotalPrice   *FlexFloat      `json:"total_price"`
		Total        *FlexFloat      `json:"total"`
		Items        json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("order record: %w", ErrDecode)
	}
	*r = OrderRecord{
		ID:           string(w.ID),
		OrderID:      string(w.OrderID),
		Status:       string(w.Status),
		OrderStatus:  string(w.OrderStatus),
		CreatedAt:    string(w.CreatedAt),
		CreatedAtAlt: string(w.CreatedAtAlt),
		TotalAmount:  w.TotalAmount,
		TotalPrice:   w.TotalPrice,
		Total:        w.Total,
		Items:        w.Items,
	}
	return nil
}

// UserAccount is a customer looked up by normalized phone.
type UserAccount struct {
	ID              string
	PhoneNormalized string
	DisplayName     string
}

// Prescription is an uploaded prescription awaiting pharmacist review.
type Prescription struct {
	ID        string
	Phone     string
	MediaURL  string
	Caption   string
	Status    string
	CreatedAt time.Time
}
