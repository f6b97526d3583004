// Package router turns one inbound message into one reply string. It classifies the
// message, calls the resolver or search backend the intent needs, and renders the result.
package router

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"medibot/internal/domain"
	"medibot/internal/format"
	"medibot/internal/intent"
	"medibot/internal/metrics"
	"medibot/internal/normalize"
	"medibot/internal/resolver"
)

const defaultSearchLimit = 10

// searchOrder is the catalog fallback chain for free-text queries.
var searchOrder = []domain.SearchKind{domain.SearchMedicines, domain.SearchProducts}

// Router is stateless between messages; Handle is safe for concurrent use.
type Router struct {
	search        domain.SearchBackend
	orders        *resolver.OrderResolver
	recent        *resolver.RecentResolver
	prescriptions *resolver.PrescriptionSubmitter
	contexts      domain.ContextStore
	support       string
	searchLimit   int
	logger        *slog.Logger
	now           func() time.Time
}

// Config holds the collaborators and tuning for a Router.
type Config struct {
	Search         domain.SearchBackend
	Orders         domain.OrderBackend
	Accounts       domain.AccountStore
	Intake         domain.PrescriptionIntake
	Contexts       domain.ContextStore // optional, write-only
	SupportContact string
	SearchLimit    int // hits requested per catalog (default 10)
	Logger         *slog.Logger
	Now            func() time.Time
}

// New builds a Router. Search and Orders are required.
func New(cfg Config) *Router {
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = defaultSearchLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Router{
		search:        cfg.Search,
		orders:        resolver.NewOrderResolver(cfg.Orders, cfg.Logger),
		recent:        resolver.NewRecentResolver(cfg.Orders, cfg.Accounts, cfg.Logger),
		prescriptions: resolver.NewPrescriptionSubmitter(cfg.Intake, cfg.Accounts, cfg.Logger),
		contexts:      cfg.Contexts,
		support:       cfg.SupportContact,
		searchLimit:   cfg.SearchLimit,
		logger:        cfg.Logger,
		now:           cfg.Now,
	}
}

// Handle returns the reply for msg. It never returns an empty string and never panics:
// any failure becomes the fixed apology.
func (r *Router) Handle(ctx context.Context, msg domain.IncomingMessage) (reply string) {
	start := r.now()
	defer func() {
		if p := recover(); p != nil {
			metrics.HandlerPanics.Inc()
			r.logger.Error("message handler panic",
				"channel", msg.Channel,
				"sender", msg.SenderID,
				"panic", p,
				"stack", string(debug.Stack()),
			)
			reply = format.Apology
		}
	}()

	metrics.MessagesTotal.Inc()
	phone, _ := normalize.SenderPhone(msg.SenderID)
	in := intent.ClassifyMessage(msg)
	metrics.IntentCounter(in.Kind.String()).Inc()

	reply = r.dispatch(ctx, phone, in)
	if strings.TrimSpace(reply) == "" {
		reply = format.Apology
	}

	r.logger.Info("message handled",
		"channel", msg.Channel,
		"sender", msg.SenderID,
		"intent", in.String(),
		"duration", r.now().Sub(start),
	)
	r.remember(ctx, msg.SenderID, in)
	return reply
}

// dispatch routes one classified message. phone is empty for senders that are not phone
// numbers; order and prescription paths answer those with the link-your-number notice.
func (r *Router) dispatch(ctx context.Context, phone normalize.Phone, in intent.Intent) string {
	switch in.Kind {
	case intent.Greeting:
		return format.Menu()
	case intent.MenuOption:
		return r.menuOption(ctx, phone, in.Option)
	case intent.TrackOrderPrompt:
		return format.TrackPrompt
	case intent.RecentOrdersRequest:
		return r.recentOrders(ctx, phone)
	case intent.OrderIdentifier:
		return r.trackOrder(ctx, phone, in)
	case intent.SearchQuery:
		if in.Text == "" {
			return format.SearchPrompt
		}
		return r.searchReply(ctx, in.Text)
	case intent.PrescriptionUpload:
		return r.prescription(ctx, phone, in)
	case intent.Unrecognized:
		return format.UnsupportedMedia
	}
	return format.Apology
}

func (r *Router) menuOption(ctx context.Context, phone normalize.Phone, n int) string {
	switch n {
	case 1:
		return format.SearchMedicinesPrompt
	case 2:
		return format.SearchProductsPrompt
	case 3:
		return format.TrackPrompt
	case 4:
		return r.recentOrders(ctx, phone)
	case 5:
		return format.PrescriptionInstructions
	case 6:
		return format.Support(r.support)
	}
	return format.Menu()
}

// trackOrder resolves an order id. A bare short id that matches no order is retried as a
// search, since single words like "paracetamol" also fit the short id pattern.
func (r *Router) trackOrder(ctx context.Context, phone normalize.Phone, in intent.Intent) string {
	c := normalize.NormalizeOrderID(in.Text)
	if phone != "" {
		if order, ok := r.orders.Resolve(ctx, c, phone); ok {
			return format.OrderDetails(c.Partial, *order)
		}
	}

	if in.ID == intent.Partial && !strings.HasPrefix(in.Text, "#") {
		next := intent.ClassifyFrom("search_prompt", in.Text)
		if next.Text == "" {
			return format.SearchPrompt
		}
		if reply, ok := r.searchHits(ctx, next.Text); ok {
			return reply
		}
	}
	if phone == "" {
		return format.PhoneRequired
	}
	return format.OrderNotFound(c.Partial)
}

func (r *Router) searchReply(ctx context.Context, query string) string {
	if format.QueryTooShort(query) {
		return format.SearchTooShort
	}
	if reply, ok := r.searchHits(ctx, query); ok {
		return reply
	}
	return format.NoResults(query)
}

// searchHits walks the catalogs in order and renders the first non-empty result. Backend
// errors count as no hits for that catalog.
func (r *Router) searchHits(ctx context.Context, query string) (string, bool) {
	if r.search == nil {
		return "", false
	}
	for _, kind := range searchOrder {
		metrics.SearchRequests.Inc()
		res, err := r.search.Search(ctx, kind, query, r.searchLimit)
		if err != nil {
			r.logger.Warn("search failed", "kind", string(kind), "query", query, "error", err)
			continue
		}
		if len(res.Hits) > 0 {
			return format.SearchResults(query, res.Hits, res.Count), true
		}
	}
	return "", false
}

func (r *Router) recentOrders(ctx context.Context, phone normalize.Phone) string {
	if phone == "" {
		return format.PhoneRequired
	}
	res := r.recent.FetchRecent(ctx, phone)
	switch res.Outcome {
	case resolver.RecentFound:
		return format.RecentOrders(res.Orders)
	case resolver.RecentEmpty:
		return format.NoRecentOrders
	case resolver.RecentNoAccount:
		return format.NoAccount
	}
	return format.OrdersUnavailable
}

func (r *Router) prescription(ctx context.Context, phone normalize.Phone, in intent.Intent) string {
	if phone == "" {
		return format.PhoneRequired
	}
	ref, ok := r.prescriptions.Submit(ctx, phone, in.MediaRef, in.Text)
	if !ok {
		return format.PrescriptionFailed
	}
	return format.PrescriptionReceived(ref)
}

// remember records the sender's last intent. Failures never affect the reply.
func (r *Router) remember(ctx context.Context, sender string, in intent.Intent) {
	if r.contexts == nil || sender == "" {
		return
	}
	err := r.contexts.Touch(ctx, domain.SenderContext{
		Sender:     sender,
		LastIntent: in.Kind.String(),
		LastSeen:   r.now(),
	})
	if err != nil {
		r.logger.Warn("sender context update failed", "sender", sender, "error", err)
	}
}
