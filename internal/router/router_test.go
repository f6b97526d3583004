package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"medibot/internal/domain"
	"medibot/internal/format"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type mockSearch struct {
	results map[domain.SearchKind]domain.SearchResult
	err     error
	panics  bool
	calls   []domain.SearchKind
}

func (m *mockSearch) Search(ctx context.Context, kind domain.SearchKind, query string, limit int) (domain.SearchResult, error) {
	if m.panics {
		panic("search exploded")
	}
	m.calls = append(m.calls, kind)
	if m.err != nil {
		return domain.SearchResult{}, m.err
	}
	return m.results[kind], nil
}

type mockOrders struct {
	byID       map[string]domain.OrderRecord
	history    []domain.OrderRecord
	historyErr error
	calls      []string
	phones     []string
}

func (m *mockOrders) TrackByID(ctx context.Context, id, phone string) (domain.OrderRecord, error) {
	m.calls = append(m.calls, id)
	m.phones = append(m.phones, phone)
	if rec, ok := m.byID[id]; ok {
		return rec, nil
	}
	return domain.OrderRecord{}, fmt.Errorf("track %s: %w", id, domain.ErrNotFound)
}

func (m *mockOrders) HistoryByPhone(ctx context.Context, phone string) ([]domain.OrderRecord, error) {
	return m.history, m.historyErr
}

type mockAccounts struct {
	user   *domain.UserAccount
	orders []domain.OrderRecord
}

func (m *mockAccounts) FindByPhone(ctx context.Context, phone string) (*domain.UserAccount, error) {
	return m.user, nil
}

func (m *mockAccounts) OrdersByUserID(ctx context.Context, userID string, limit int) ([]domain.OrderRecord, error) {
	return m.orders, nil
}

func (m *mockAccounts) SavePrescription(ctx context.Context, p domain.Prescription) (string, error) {
	return "", errors.New("read only")
}

func (m *mockAccounts) Close() error { return nil }

type mockIntake struct {
	mediaRef, caption string
}

func (m *mockIntake) Submit(ctx context.Context, phone, mediaRef, caption string) (string, error) {
	m.mediaRef, m.caption = mediaRef, caption
	return "RX-42", nil
}

type mockContexts struct {
	mu      sync.Mutex
	touched []domain.SenderContext
	err     error
}

func (m *mockContexts) Touch(ctx context.Context, sc domain.SenderContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched = append(m.touched, sc)
	return m.err
}

func (m *mockContexts) Get(ctx context.Context, sender string) (*domain.SenderContext, error) {
	return nil, nil
}

func (m *mockContexts) Sweep(ctx context.Context) (int, error) { return 0, nil }

func (m *mockContexts) Len(ctx context.Context) (int, error) { return len(m.touched), nil }

type fixture struct {
	search   *mockSearch
	orders   *mockOrders
	accounts *mockAccounts
	intake   *mockIntake
	contexts *mockContexts
	router   *Router
}

func newFixture() *fixture {
	f := &fixture{
		search:   &mockSearch{results: map[domain.SearchKind]domain.SearchResult{}},
		orders:   &mockOrders{byID: map[string]domain.OrderRecord{}},
		accounts: &mockAccounts{},
		intake:   &mockIntake{},
		contexts: &mockContexts{},
	}
	f.router = New(Config{
		Search:         f.search,
		Orders:         f.orders,
		Accounts:       f.accounts,
		Intake:         f.intake,
		Contexts:       f.contexts,
		SupportContact: "support@example.com",
		Logger:         testLogger(),
		Now:            func() time.Time { return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC) },
	})
	return f
}

func (f *fixture) send(text string, attachments ...domain.Attachment) string {
	return f.router.Handle(context.Background(), domain.IncomingMessage{
		Channel:     "twilio",
		SenderID:    "whatsapp:+911234567890",
		Text:        text,
		Attachments: attachments,
	})
}

func (f *fixture) sendAs(channel, sender, text string, attachments ...domain.Attachment) string {
	return f.router.Handle(context.Background(), domain.IncomingMessage{
		Channel:     channel,
		SenderID:    sender,
		Text:        text,
		Attachments: attachments,
	})
}

func searchHits(n int) domain.SearchResult {
	res := domain.SearchResult{Count: n}
	for i := 0; i < n; i++ {
		res.Hits = append(res.Hits, domain.SearchHit{Name: fmt.Sprintf("Paracetamol %d", i+1), Price: 25})
	}
	return res
}

func TestHandle_EmptyTextShowsMenu(t *testing.T) {
	f := newFixture()
	first := f.send("")
	if first != format.Menu() {
		t.Fatalf("expected menu, got %q", first)
	}
	if again := f.send("   "); again != first {
		t.Fatal("menu differs between calls")
	}
	if f.send("Hello") != first {
		t.Fatal("greeting should render the menu")
	}
}

func TestHandle_ParacetamolSearchShowsTopFive(t *testing.T) {
	f := newFixture()
	f.search.results[domain.SearchMedicines] = searchHits(7)

	reply := f.send("paracetamol")
	for n := 1; n <= 5; n++ {
		if !strings.Contains(reply, fmt.Sprintf("\n%d. *", n)) {
			t.Errorf("missing entry %d in %q", n, reply)
		}
	}
	if strings.Contains(reply, "\n6. *") {
		t.Error("more than five entries")
	}
	if !strings.HasSuffix(reply, "Found 7 results. Showing top 5 only.") {
		t.Errorf("missing footer: %q", reply)
	}
	if len(f.orders.calls) != 1 || f.orders.calls[0] != "paracetamol" {
		t.Errorf("expected one order lookup before searching, got %v", f.orders.calls)
	}
}

func TestHandle_MultiWordQuerySkipsOrderLookup(t *testing.T) {
	f := newFixture()
	f.search.results[domain.SearchMedicines] = searchHits(1)

	reply := f.send("dolo 650")
	if !strings.Contains(reply, "Paracetamol 1") {
		t.Fatalf("expected results, got %q", reply)
	}
	if len(f.orders.calls) != 0 {
		t.Errorf("free text must not hit the order backend, got %v", f.orders.calls)
	}
}

func TestHandle_SearchFallsBackToProducts(t *testing.T) {
	f := newFixture()
	f.search.results[domain.SearchProducts] = domain.SearchResult{
		Hits:  []domain.SearchHit{{Name: "Hand sanitizer", Price: 99}},
		Count: 1,
	}
	reply := f.send("hand sanitizer")
	if !strings.Contains(reply, "Hand sanitizer") {
		t.Fatalf("expected product hit, got %q", reply)
	}
	want := []domain.SearchKind{domain.SearchMedicines, domain.SearchProducts}
	if len(f.search.calls) != 2 || f.search.calls[0] != want[0] || f.search.calls[1] != want[1] {
		t.Errorf("expected %v, got %v", want, f.search.calls)
	}
}

func TestHandle_SearchNoResultsAndErrors(t *testing.T) {
	f := newFixture()
	if got := f.send("unobtainium pills"); got != format.NoResults("unobtainium pills") {
		t.Errorf("expected no results, got %q", got)
	}

	f.search.err = fmt.Errorf("search: %w", domain.ErrBackendUnavailable)
	if got := f.send("crocin advance"); got != format.NoResults("crocin advance") {
		t.Errorf("backend failure should read as no results, got %q", got)
	}
}

func TestHandle_ShortQueryRejectedBeforeBackend(t *testing.T) {
	f := newFixture()
	if got := f.send("a"); got != format.SearchTooShort {
		t.Fatalf("expected too-short prompt, got %q", got)
	}
	if len(f.search.calls) != 0 {
		t.Errorf("search backend must not be called, got %v", f.search.calls)
	}
}

func TestHandle_FullIDDisplaysPartial(t *testing.T) {
	f := newFixture()
	full := "65c53a12-4c6d-4569-a756-7a16a902c2e5"
	f.orders.byID[full] = domain.OrderRecord{ID: full, Status: "Shipped", TotalAmount: domain.FlexFloat(120).Ptr()}

	reply := f.send("#" + full)
	if !strings.Contains(reply, "#65c53a12*") {
		t.Errorf("expected partial id in header, got %q", reply)
	}
	if strings.Contains(reply, full) {
		t.Errorf("full id must not be displayed, got %q", reply)
	}
	if !strings.Contains(reply, "Status: Shipped") {
		t.Errorf("expected status, got %q", reply)
	}
	if len(f.orders.calls) != 2 {
		t.Errorf("expected partial then full lookup, got %v", f.orders.calls)
	}
	if f.orders.phones[0] != "1234567890" {
		t.Errorf("expected normalized phone, got %q", f.orders.phones[0])
	}
}

func TestHandle_HashPrefixedIDNotFound(t *testing.T) {
	f := newFixture()
	if got := f.send("#ZZZ99999"); got != format.OrderNotFound("ZZZ99999") {
		t.Fatalf("expected not found, got %q", got)
	}
	if len(f.search.calls) != 0 {
		t.Error("explicit ids must not fall back to search")
	}
}

func TestHandle_SearchKeywordPrompts(t *testing.T) {
	f := newFixture()
	for _, w := range []string{"search", "Medicines", "products"} {
		if got := f.send(w); got != format.SearchPrompt {
			t.Errorf("%q: expected search prompt, got %q", w, got)
		}
	}
}

func TestHandle_MenuOptions(t *testing.T) {
	f := newFixture()
	f.orders.history = []domain.OrderRecord{{ID: "ORD12345", Status: "Delivered"}}
	cases := map[string]string{
		"1": format.SearchMedicinesPrompt,
		"2": format.SearchProductsPrompt,
		"3": format.TrackPrompt,
		"5": format.PrescriptionInstructions,
		"6": format.Support("support@example.com"),
	}
	for in, want := range cases {
		if got := f.send(in); got != want {
			t.Errorf("option %s: got %q, want %q", in, got, want)
		}
	}
	if got := f.send("4"); !strings.Contains(got, "#ORD12345") {
		t.Errorf("option 4 should list recent orders, got %q", got)
	}
}

func TestHandle_TrackPrompt(t *testing.T) {
	f := newFixture()
	if got := f.send("I want to track order"); got != format.TrackPrompt {
		t.Errorf("got %q", got)
	}
}

func TestHandle_RecentOrdersFallbackZeroOrders(t *testing.T) {
	f := newFixture()
	f.orders.historyErr = fmt.Errorf("history: %w", domain.ErrBackendUnavailable)
	f.accounts.user = &domain.UserAccount{ID: "u1"}

	if got := f.send("recent orders"); got != format.NoRecentOrders {
		t.Fatalf("expected no recent orders text, got %q", got)
	}
}

func TestHandle_RecentOrdersNoAccount(t *testing.T) {
	f := newFixture()
	f.orders.historyErr = errors.New("down")
	if got := f.send("where is my order"); got != format.NoAccount {
		t.Fatalf("expected no account text, got %q", got)
	}
}

func TestHandle_PrescriptionUpload(t *testing.T) {
	f := newFixture()
	got := f.send("for my mother", domain.Attachment{URL: "https://media/rx.jpg", MimeType: "image/jpeg"})
	if got != format.PrescriptionReceived("RX-42") {
		t.Fatalf("got %q", got)
	}
	if f.intake.mediaRef != "https://media/rx.jpg" || f.intake.caption != "for my mother" {
		t.Errorf("unexpected intake call: %+v", f.intake)
	}
}

func TestHandle_UnsupportedMedia(t *testing.T) {
	f := newFixture()
	if got := f.send("", domain.Attachment{URL: "https://media/a.ogg", MimeType: "audio/ogg"}); got != format.UnsupportedMedia {
		t.Fatalf("got %q", got)
	}
}

func TestHandle_PanicBecomesApology(t *testing.T) {
	f := newFixture()
	f.search.panics = true
	if got := f.send("crocin advance"); got != format.Apology {
		t.Fatalf("expected apology, got %q", got)
	}
}

func TestHandle_RecordsSenderContext(t *testing.T) {
	f := newFixture()
	f.send("hi")
	f.contexts.err = errors.New("redis down")
	if got := f.send("3"); got != format.TrackPrompt {
		t.Fatalf("context store failure must not change the reply, got %q", got)
	}

	if len(f.contexts.touched) != 2 {
		t.Fatalf("expected 2 context writes, got %d", len(f.contexts.touched))
	}
	sc := f.contexts.touched[0]
	if sc.Sender != "whatsapp:+911234567890" || sc.LastIntent != "greeting" {
		t.Errorf("unexpected context: %+v", sc)
	}
	if !sc.LastSeen.Equal(time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected timestamp: %v", sc.LastSeen)
	}
}

func TestHandle_NonPhoneSenderSkipsOrderLookups(t *testing.T) {
	f := newFixture()
	f.orders.byID["ORD12345"] = domain.OrderRecord{ID: "ORD12345", Status: "Shipped"}
	f.orders.history = []domain.OrderRecord{{ID: "ORD12345"}}

	for _, sender := range []string{"telegram:123456789", "telegram:12345"} {
		for _, text := range []string{"#ORD12345", "recent orders", "4"} {
			if got := f.sendAs("telegram", sender, text); got != format.PhoneRequired {
				t.Errorf("%s %q: got %q", sender, text, got)
			}
		}
		rx := domain.Attachment{URL: "telegram-file:abc", MimeType: "image/jpeg"}
		if got := f.sendAs("telegram", sender, "", rx); got != format.PhoneRequired {
			t.Errorf("%s prescription: got %q", sender, got)
		}
	}
	if len(f.orders.calls) != 0 {
		t.Errorf("non-phone senders must not reach order tracking, got %v with phones %q", f.orders.calls, f.orders.phones)
	}
	if f.intake.mediaRef != "" {
		t.Errorf("non-phone senders must not submit prescriptions, got %+v", f.intake)
	}
}

func TestHandle_NonPhoneSenderCanSearch(t *testing.T) {
	f := newFixture()
	f.search.results[domain.SearchMedicines] = searchHits(2)
	if got := f.sendAs("telegram", "telegram:42", "paracetamol"); !strings.Contains(got, "Paracetamol 1") {
		t.Fatalf("search should work without a phone, got %q", got)
	}
	if len(f.orders.calls) != 0 {
		t.Errorf("a bare word must not reach order tracking, got %v", f.orders.calls)
	}
}

func TestHandle_NeverEmpty(t *testing.T) {
	f := newFixture()
	for _, in := range []string{"", "?", "1", "7", "track", "recent", "ABCDEF", "#", "search", "x y z", strings.Repeat("a", 500)} {
		if got := f.send(in); strings.TrimSpace(got) == "" {
			t.Errorf("%q produced an empty reply", in)
		}
	}
}
