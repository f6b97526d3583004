package resolver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"medibot/internal/domain"
)

// rawItem carries every item field alias seen across backends.
type rawItem struct {
	Name         string            `json:"name"`
	ProductName  string            `json:"product_name"`
	MedicineName string            `json:"medicine_name"`
	Quantity     *domain.FlexFloat `json:"quantity"`
	Qty          *domain.FlexFloat `json:"qty"`
	UnitPrice    *domain.FlexFloat `json:"unit_price"`
	Price        *domain.FlexFloat `json:"price"`
}

// Summarize reconciles a backend record into the canonical OrderSummary. Malformed items
// degrade to an empty list.
func Summarize(rec domain.OrderRecord) domain.OrderSummary {
	items, err := DecodeItems(rec.Items)
	if err != nil {
		items = nil
	}
	return domain.OrderSummary{
		ID:          firstNonEmpty(rec.ID, rec.OrderID),
		Status:      firstNonEmpty(rec.Status, rec.OrderStatus),
		CreatedAt:   firstNonEmpty(rec.CreatedAt, rec.CreatedAtAlt),
		TotalAmount: firstFloat(rec.TotalAmount, rec.TotalPrice, rec.Total),
		Items:       items,
	}
}

// SummarizeAll applies Summarize to every record, preserving order.
func SummarizeAll(recs []domain.OrderRecord) []domain.OrderSummary {
	out := make([]domain.OrderSummary, 0, len(recs))
	for _, r := range recs {
		out = append(out, Summarize(r))
	}
	return out
}

// DecodeItems accepts a JSON array of items or a JSON string that itself holds such an
// array. Empty input and null decode to no items.
func DecodeItems(raw json.RawMessage) ([]domain.OrderItem, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("items string: %w", domain.ErrDecode)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		raw = json.RawMessage(s)
	}

	var rawItems []rawItem
	if err := json.Unmarshal(raw, &rawItems); err != nil {
		return nil, fmt.Errorf("items: %w", domain.ErrDecode)
	}

	items := make([]domain.OrderItem, 0, len(rawItems))
	for _, ri := range rawItems {
		qty := 1
		if n, ok := firstValue(ri.Quantity, ri.Qty); ok {
			qty = int(n)
		}
		items = append(items, domain.OrderItem{
			Name:      firstNonEmpty(ri.Name, ri.ProductName, ri.MedicineName),
			Quantity:  qty,
			UnitPrice: firstFloat(ri.UnitPrice, ri.Price),
		})
	}
	return items, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// firstFloat returns the first readable value, or 0.
func firstFloat(vals ...*domain.FlexFloat) float64 {
	n, _ := firstValue(vals...)
	return n
}

func firstValue(vals ...*domain.FlexFloat) (float64, bool) {
	for _, v := range vals {
		if n, ok := v.Value(); ok {
			return n, true
		}
	}
	return 0, false
}
