// Package bus is the in-process queue between channels and the dispatcher.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"medibot/internal/domain"
	"medibot/internal/metrics"
)

// DefaultWait is how long Publish blocks on a full queue before dropping.
const DefaultWait = 10 * time.Second

var dropped = metrics.Collector.Counter("medibot_bus_dropped_total", "Inbound messages dropped on a full queue", "")

// Queue buffers inbound messages for the dispatcher and fans replies out to
// the handler each channel registered under its name.
type Queue struct {
	logger *slog.Logger
	wait   time.Duration

	mu       sync.RWMutex
	inbound  chan domain.IncomingMessage
	replies  map[string]func(domain.OutboundMessage)
	shutdown bool
}

// New returns a queue holding up to size pending messages.
func New(size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = 100
	}
	return &Queue{
		logger:  logger,
		wait:    DefaultWait,
		inbound: make(chan domain.IncomingMessage, size),
		replies: make(map[string]func(domain.OutboundMessage)),
	}
}

// WithWait overrides the full-queue wait. Zero drops immediately.
func (q *Queue) WithWait(d time.Duration) *Queue {
	q.wait = d
	return q
}

// Publish enqueues msg. A full queue blocks up to the wait budget, then the
// message is dropped and counted. Publishing after Close is a no-op.
func (q *Queue) Publish(msg domain.IncomingMessage) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.shutdown {
		q.logger.Warn("publish after close", "channel", msg.Channel, "sender", msg.SenderID)
		return
	}

	select {
	case q.inbound <- msg:
		return
	default:
	}
	if q.wait <= 0 {
		q.drop(msg)
		return
	}

	q.logger.Warn("inbound queue full", "channel", msg.Channel, "sender", msg.SenderID, "depth", len(q.inbound))
	timer := time.NewTimer(q.wait)
	defer timer.Stop()
	select {
	case q.inbound <- msg:
	case <-timer.C:
		q.drop(msg)
	}
}

func (q *Queue) drop(msg domain.IncomingMessage) {
	dropped.Inc()
	q.logger.Error("message dropped", "channel", msg.Channel, "sender", msg.SenderID, "waited", q.wait)
}

// Subscribe returns the inbound stream. It is closed by Close.
func (q *Queue) Subscribe() <-chan domain.IncomingMessage {
	return q.inbound
}

// Depth is the number of messages waiting for the dispatcher.
func (q *Queue) Depth() int {
	return len(q.inbound)
}

func (q *Queue) OnOutbound(channelName string, handler func(domain.OutboundMessage)) {
	q.mu.Lock()
	q.replies[channelName] = handler
	q.mu.Unlock()
}

// SendOutbound delivers msg to its channel's handler on the caller's
// goroutine. Replies for unregistered channels are logged and discarded.
func (q *Queue) SendOutbound(msg domain.OutboundMessage) {
	q.mu.RLock()
	deliver := q.replies[msg.Channel]
	q.mu.RUnlock()
	if deliver == nil {
		q.logger.Warn("reply for unregistered channel", "channel", msg.Channel, "chat", msg.ChatID)
		return
	}
	deliver(msg)
}

// Close stops intake and closes the inbound stream. Safe to call twice.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.shutdown {
		return
	}
	q.shutdown = true
	close(q.inbound)
}

var _ domain.MessageBus = (*Queue)(nil)
