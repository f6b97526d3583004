package session

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"medibot/internal/domain"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMemoryStore_TouchAndGet(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(10*time.Minute, clock.Now)
	ctx := context.Background()

	if err := s.Touch(ctx, domain.SenderContext{Sender: "whatsapp:+911234567890", LastIntent: "greeting"}); err != nil {
		t.Fatal(err)
	}
	sc, err := s.Get(ctx, "whatsapp:+911234567890")
	if err != nil || sc == nil {
		t.Fatalf("expected entry, got %v %v", sc, err)
	}
	if sc.LastIntent != "greeting" || !sc.LastSeen.Equal(clock.Now()) {
		t.Errorf("unexpected entry %+v", sc)
	}
	if sc, _ := s.Get(ctx, "nobody"); sc != nil {
		t.Errorf("expected nil for unknown sender, got %+v", sc)
	}
}

func TestMemoryStore_ExpiryAndSweep(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(10*time.Minute, clock.Now)
	ctx := context.Background()

	s.Touch(ctx, domain.SenderContext{Sender: "a"})
	clock.Advance(6 * time.Minute)
	s.Touch(ctx, domain.SenderContext{Sender: "b"})
	clock.Advance(5 * time.Minute)

	if sc, _ := s.Get(ctx, "a"); sc != nil {
		t.Error("a should have expired")
	}
	if sc, _ := s.Get(ctx, "b"); sc == nil {
		t.Error("b should still be live")
	}
	if n, _ := s.Len(ctx); n != 2 {
		t.Errorf("expired entries stay until swept, got %d", n)
	}

	removed, err := s.Sweep(ctx)
	if err != nil || removed != 1 {
		t.Fatalf("expected 1 removed, got %d %v", removed, err)
	}
	if n, _ := s.Len(ctx); n != 1 {
		t.Errorf("expected 1 entry left, got %d", n)
	}
}

func TestMemoryStore_TouchRefreshes(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(10*time.Minute, clock.Now)
	ctx := context.Background()

	s.Touch(ctx, domain.SenderContext{Sender: "a", LastIntent: "greeting"})
	clock.Advance(8 * time.Minute)
	s.Touch(ctx, domain.SenderContext{Sender: "a", LastIntent: "search_query"})
	clock.Advance(8 * time.Minute)

	sc, _ := s.Get(ctx, "a")
	if sc == nil || sc.LastIntent != "search_query" {
		t.Fatalf("expected refreshed entry, got %+v", sc)
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	s := NewMemoryStore(time.Minute, nil)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Touch(ctx, domain.SenderContext{Sender: string(rune('a' + i%5))})
			s.Get(ctx, "a")
			s.Sweep(ctx)
		}(i)
	}
	wg.Wait()
	if n, _ := s.Len(ctx); n != 5 {
		t.Errorf("expected 5 senders, got %d", n)
	}
}

func TestJanitor_RunOnce(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(time.Minute, clock.Now)
	ctx := context.Background()
	s.Touch(ctx, domain.SenderContext{Sender: "a"})
	s.Touch(ctx, domain.SenderContext{Sender: "b"})
	clock.Advance(2 * time.Minute)

	j, err := NewJanitor(s, "@every 1h", testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if removed := j.RunOnce(ctx); removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	j.Start()
	j.Stop()
}

func TestValidateSchedule(t *testing.T) {
	for _, expr := range []string{DefaultSweepSchedule, "@every 30s", "0 * * * *"} {
		if err := ValidateSchedule(expr); err != nil {
			t.Errorf("%q: %v", expr, err)
		}
	}
	if err := ValidateSchedule("every minute"); err == nil {
		t.Error("expected an error for a bad schedule")
	}
	if _, err := NewJanitor(NewMemoryStore(0, nil), "nope", testLogger()); err == nil {
		t.Error("expected NewJanitor to reject a bad schedule")
	}
}

// TestRedisStore runs against a live server when MEDIBOT_TEST_REDIS is set (host:port).
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("MEDIBOT_TEST_REDIS")
	if addr == "" {
		t.Skip("MEDIBOT_TEST_REDIS not set")
	}
	ctx := context.Background()
	s, err := NewRedisStore(ctx, addr, "", 0, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	sender := "test:" + time.Now().Format("150405.000000")
	if err := s.Touch(ctx, domain.SenderContext{Sender: sender, LastIntent: "greeting"}); err != nil {
		t.Fatal(err)
	}
	sc, err := s.Get(ctx, sender)
	if err != nil || sc == nil || sc.LastIntent != "greeting" {
		t.Fatalf("unexpected entry %+v %v", sc, err)
	}
	if sc, err := s.Get(ctx, sender+":missing"); err != nil || sc != nil {
		t.Fatalf("expected (nil, nil) for a missing key, got %+v %v", sc, err)
	}
	if n, err := s.Len(ctx); err != nil || n < 1 {
		t.Errorf("expected at least one key, got %d %v", n, err)
	}
	s.rdb.Del(ctx, keyPrefix+sender)
}
