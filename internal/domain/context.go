package domain

import (
	"context"
	"time"
)

// SenderContext is the best-effort record of a sender's last interaction. It is never
// authoritative and never consulted when classifying a message.
type SenderContext struct {
	Sender     string    `json:"sender"`
	LastIntent string    `json:"last_intent"`
	LastSeen   time.Time `json:"last_seen"`
}

// ContextStore keeps SenderContext entries with time-based eviction.
type ContextStore interface {
	Touch(ctx context.Context, sc SenderContext) error
	Get(ctx context.Context, sender string) (*SenderContext, error)
	Sweep(ctx context.Context) (int, error)
	Len(ctx context.Context) (int, error)
}
