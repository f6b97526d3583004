package domain

import "time"

// Attachment is a media reference carried by an inbound message.
type Attachment struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}

// IncomingMessage is one inbound message as delivered by a channel. It is built once per
// request and never mutated afterwards.
type IncomingMessage struct {
	Channel     string       // channel that delivered the message (twilio, whatsapp, cli, ...)
	SenderID    string       // channel-qualified sender address, e.g. "whatsapp:+911234567890"
	ChatID      string       // reply address; defaults to SenderID when empty
	Text        string       // message body or media caption
	Attachments []Attachment // ordered as received
	ReceivedAt  time.Time
}

// ReplyTo returns the address a reply to this message should be sent to.
func (m IncomingMessage) ReplyTo() string {
	if m.ChatID != "" {
		return m.ChatID
	}
	return m.SenderID
}

type OutboundMessage struct {
	Channel string
	ChatID  string
	Content string
}
