// Package dispatch runs inbound messages from the bus through the router and sends each
// reply back through the channel the message came from.
package dispatch

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"medibot/internal/domain"
)

const (
	defaultLanes      = 4
	defaultLaneBuffer = 32
)

// Handler produces the reply for one message.
type Handler interface {
	Handle(ctx context.Context, msg domain.IncomingMessage) string
}

// Config holds the dependencies and tuning for a Dispatcher.
type Config struct {
	Bus        domain.MessageBus
	Handler    Handler
	Lanes      int // parallel workers (default 4)
	LaneBuffer int // queued messages per lane (default 32)
	Logger     *slog.Logger
}

// Dispatcher assigns every message to a lane by sender, so one sender's messages are
// handled and answered in arrival order while different senders run in parallel.
type Dispatcher struct {
	bus        domain.MessageBus
	handler    Handler
	lanes      int
	laneBuffer int
	logger     *slog.Logger
}

func New(cfg Config) *Dispatcher {
	if cfg.Lanes <= 0 {
		cfg.Lanes = defaultLanes
	}
	if cfg.LaneBuffer <= 0 {
		cfg.LaneBuffer = defaultLaneBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		bus:        cfg.Bus,
		handler:    cfg.Handler,
		lanes:      cfg.Lanes,
		laneBuffer: cfg.LaneBuffer,
		logger:     cfg.Logger,
	}
}

// Run consumes the bus until it is closed, then waits for every queued message to be
// answered. Cancelling ctx does not stop intake: messages already on the bus are still
// read and answered, and Run returns once the bus closes. Handlers run on a context
// detached from ctx's cancellation.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("dispatcher started", "lanes", d.lanes)

	work := context.WithoutCancel(ctx)
	lanes := make([]chan domain.IncomingMessage, d.lanes)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan domain.IncomingMessage, d.laneBuffer)
		wg.Add(1)
		go func(in <-chan domain.IncomingMessage) {
			defer wg.Done()
			for msg := range in {
				d.process(work, msg)
			}
		}(lanes[i])
	}

	inbound := d.bus.Subscribe()
	defer func() {
		for _, l := range lanes {
			close(l)
		}
		wg.Wait()
		d.logger.Info("dispatcher stopped")
	}()

	stopping := ctx.Done()
	for {
		select {
		case <-stopping:
			d.logger.Info("dispatcher stopping, draining queued messages", "queued", len(inbound))
			stopping = nil
		case msg, ok := <-inbound:
			if !ok {
				d.logger.Info("inbound channel closed, dispatcher stopping")
				return
			}
			lanes[laneFor(msg.SenderID, d.lanes)] <- msg
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, msg domain.IncomingMessage) {
	start := time.Now()
	reply := d.handler.Handle(ctx, msg)
	d.bus.SendOutbound(domain.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ReplyTo(),
		Content: reply,
	})
	d.logger.Debug("message dispatched",
		"channel", msg.Channel,
		"sender", msg.SenderID,
		"duration", time.Since(start),
	)
}

// laneFor maps a sender to a lane index.
func laneFor(sender string, lanes int) int {
	h := fnv.New32a()
	h.Write([]byte(sender))
	return int(h.Sum32() % uint32(lanes))
}
