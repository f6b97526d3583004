// Package resolver locates orders, order history and prescription intake through ordered
// lookup strategies, each with its own failure boundary. Nothing here returns an error to
// the caller: every path ends in a value or an explicit not-found outcome.
package resolver

import (
	"context"
	"log/slog"

	"medibot/internal/domain"
	"medibot/internal/metrics"
	"medibot/internal/normalize"
)

// lookupStage is one attempt in the order lookup chain.
type lookupStage struct {
	name string
	id   string
}

// OrderResolver resolves a user-supplied order id against the order backend.
type OrderResolver struct {
	orders domain.OrderBackend
	logger *slog.Logger
}

func NewOrderResolver(orders domain.OrderBackend, logger *slog.Logger) *OrderResolver {
	return &OrderResolver{orders: orders, logger: logger}
}

// stages lists the ids to try: the partial form first, then the original when it differs.
func stages(c normalize.OrderCandidate) []lookupStage {
	s := []lookupStage{{name: "partial", id: c.Partial}}
	if c.IsFull() {
		s = append(s, lookupStage{name: "original", id: c.Original})
	}
	return s
}

// Resolve tries each stage in order and returns the first order found. Backend errors of
// any kind count as a failed stage; when every stage fails it reports not found.
func (r *OrderResolver) Resolve(ctx context.Context, c normalize.OrderCandidate, phone normalize.Phone) (*domain.OrderSummary, bool) {
	if c.Partial == "" {
		return nil, false
	}
	for i, st := range stages(c) {
		rec, err := r.orders.TrackByID(ctx, st.id, phone.String())
		if err == nil {
			if i > 0 {
				r.logger.Info("order resolved by fallback stage", "stage", st.name, "attempt", i+1)
			}
			metrics.OrderLookups.Inc()
			summary := Summarize(rec)
			return &summary, true
		}
		r.logger.Warn("order lookup stage failed",
			"stage", st.name,
			"attempt", i+1,
			"error", err,
		)
	}
	metrics.OrderLookupMisses.Inc()
	return nil, false
}
