package bus

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"medibot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishSubscribeOrder(t *testing.T) {
	b := New(10, testLogger())
	for _, text := range []string{"hi", "1", "track"} {
		b.Publish(domain.IncomingMessage{Channel: "cli", SenderID: "a", Text: text})
	}
	in := b.Subscribe()
	for _, want := range []string{"hi", "1", "track"} {
		if got := (<-in).Text; got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
}

func TestOutboundRoutesByChannel(t *testing.T) {
	b := New(1, testLogger())
	var twilio, cli []string
	b.OnOutbound("twilio", func(m domain.OutboundMessage) { twilio = append(twilio, m.Content) })
	b.OnOutbound("cli", func(m domain.OutboundMessage) { cli = append(cli, m.Content) })

	b.SendOutbound(domain.OutboundMessage{Channel: "twilio", ChatID: "x", Content: "one"})
	b.SendOutbound(domain.OutboundMessage{Channel: "cli", ChatID: "y", Content: "two"})
	b.SendOutbound(domain.OutboundMessage{Channel: "telegram", ChatID: "z", Content: "dropped"})

	if len(twilio) != 1 || twilio[0] != "one" {
		t.Errorf("unexpected twilio deliveries %v", twilio)
	}
	if len(cli) != 1 || cli[0] != "two" {
		t.Errorf("unexpected cli deliveries %v", cli)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	b := New(1, testLogger())
	b.Close()
	b.Close()
	b.Publish(domain.IncomingMessage{Text: "late"})
	if _, ok := <-b.Subscribe(); ok {
		t.Fatal("expected closed inbound channel")
	}
}

func TestFullQueueDropsWithoutWait(t *testing.T) {
	q := New(1, testLogger()).WithWait(0)
	q.Publish(domain.IncomingMessage{Channel: "cli", SenderID: "a", Text: "kept"})
	q.Publish(domain.IncomingMessage{Channel: "cli", SenderID: "a", Text: "dropped"})

	if q.Depth() != 1 {
		t.Fatalf("depth = %d, want 1", q.Depth())
	}
	if got := (<-q.Subscribe()).Text; got != "kept" {
		t.Errorf("got %q", got)
	}
}

func TestFullQueueWaitsForRoom(t *testing.T) {
	q := New(1, testLogger()).WithWait(time.Second)
	q.Publish(domain.IncomingMessage{Text: "first"})
	go func() {
		time.Sleep(20 * time.Millisecond)
		<-q.Subscribe()
	}()
	q.Publish(domain.IncomingMessage{Text: "second"})
	if got := (<-q.Subscribe()).Text; got != "second" {
		t.Errorf("got %q", got)
	}
}
