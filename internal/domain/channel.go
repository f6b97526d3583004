package domain

import "context"

// Channel is the interface for user-facing I/O (WhatsApp, Telegram, CLI).
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
	ReplyChannel
}

// ReplyChannel pushes one outbound reply to a channel address.
type ReplyChannel interface {
	Send(ctx context.Context, to string, body string) error
}
