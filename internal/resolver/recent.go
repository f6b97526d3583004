package resolver

import (
	"context"
	"log/slog"

	"medibot/internal/domain"
	"medibot/internal/metrics"
	"medibot/internal/normalize"
)

// historyLimit bounds the direct store query; the formatter shows at most three.
const historyLimit = 5

// RecentOutcome describes how a recent-orders lookup ended.
type RecentOutcome int

const (
	RecentFound RecentOutcome = iota
	RecentEmpty
	RecentNoAccount
	RecentUnavailable
)

func (o RecentOutcome) String() string {
	switch o {
	case RecentFound:
		return "found"
	case RecentEmpty:
		return "empty"
	case RecentNoAccount:
		return "no_account"
	default:
		return "unavailable"
	}
}

// RecentOrders is the result of FetchRecent. Orders are newest first.
type RecentOrders struct {
	Outcome RecentOutcome
	Orders  []domain.OrderSummary
}

// historyTier is one strategy in the recent-orders chain. A tier returns done=false to
// hand over to the next one.
type historyTier struct {
	name  string
	fetch func(ctx context.Context, phone normalize.Phone) (RecentOrders, bool)
}

// RecentResolver fetches a sender's recent orders: the history endpoint first, then the
// account store scoped by user id.
type RecentResolver struct {
	orders   domain.OrderBackend
	accounts domain.AccountStore
	logger   *slog.Logger
}

func NewRecentResolver(orders domain.OrderBackend, accounts domain.AccountStore, logger *slog.Logger) *RecentResolver {
	return &RecentResolver{orders: orders, accounts: accounts, logger: logger}
}

func (r *RecentResolver) tiers() []historyTier {
	return []historyTier{
		{name: "history_endpoint", fetch: r.fromHistory},
		{name: "account_store", fetch: r.fromAccountStore},
	}
}

// FetchRecent walks the tiers in order and returns the first conclusive outcome.
func (r *RecentResolver) FetchRecent(ctx context.Context, phone normalize.Phone) RecentOrders {
	for i, tier := range r.tiers() {
		res, done := tier.fetch(ctx, phone)
		if done {
			if i > 0 {
				metrics.RecentFallbacks.Inc()
			}
			r.logger.Debug("recent orders resolved", "tier", tier.name, "outcome", res.Outcome.String(), "orders", len(res.Orders))
			return res
		}
	}
	return RecentOrders{Outcome: RecentUnavailable}
}

func (r *RecentResolver) fromHistory(ctx context.Context, phone normalize.Phone) (RecentOrders, bool) {
	if r.orders == nil {
		return RecentOrders{}, false
	}
	recs, err := r.orders.HistoryByPhone(ctx, phone.String())
	if err != nil {
		r.logger.Warn("order history endpoint failed, trying account store", "error", err)
		return RecentOrders{}, false
	}
	return ordersOutcome(recs), true
}

func (r *RecentResolver) fromAccountStore(ctx context.Context, phone normalize.Phone) (RecentOrders, bool) {
	if r.accounts == nil {
		return RecentOrders{Outcome: RecentUnavailable}, true
	}
	user, err := r.accounts.FindByPhone(ctx, phone.String())
	if err != nil {
		r.logger.Error("account lookup failed", "error", err)
		return RecentOrders{Outcome: RecentUnavailable}, true
	}
	if user == nil {
		return RecentOrders{Outcome: RecentNoAccount}, true
	}
	recs, err := r.accounts.OrdersByUserID(ctx, user.ID, historyLimit)
	if err != nil {
		r.logger.Error("account orders lookup failed", "user_id", user.ID, "error", err)
		return RecentOrders{Outcome: RecentUnavailable}, true
	}
	return ordersOutcome(recs), true
}

func ordersOutcome(recs []domain.OrderRecord) RecentOrders {
	if len(recs) > historyLimit {
		recs = recs[:historyLimit]
	}
	if len(recs) == 0 {
		return RecentOrders{Outcome: RecentEmpty}
	}
	return RecentOrders{Outcome: RecentFound, Orders: SummarizeAll(recs)}
}
