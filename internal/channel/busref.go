package channel

import (
	"sync/atomic"

	"medibot/internal/domain"
)

// busRef holds the bus a webhook channel publishes to. Start stores it while the
// HTTP server may already be delivering requests on other goroutines.
type busRef struct {
	p atomic.Pointer[domain.MessageBus]
}

func (r *busRef) set(b domain.MessageBus) {
	r.p.Store(&b)
}

// publish forwards msg and reports false when no bus is attached yet.
func (r *busRef) publish(msg domain.IncomingMessage) bool {
	b := r.p.Load()
	if b == nil {
		return false
	}
	(*b).Publish(msg)
	return true
}
