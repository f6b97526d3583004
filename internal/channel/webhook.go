package channel

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"medibot/internal/domain"
)

// Responder produces the reply for one inbound message.
type Responder interface {
	Handle(ctx context.Context, msg domain.IncomingMessage) string
}

// WebhookConfig configures the generic JSON webhook.
type WebhookConfig struct {
	Secret    string // HMAC secret for X-Signature-256; empty disables verification
	Responder Responder
	Logger    *slog.Logger
}

// Webhook answers POSTed messages synchronously with the bot's reply.
type Webhook struct {
	secret    string
	responder Responder
	logger    *slog.Logger
}

// WebhookPayload is the expected JSON body for webhook requests.
type WebhookPayload struct {
	Sender      string              `json:"sender"`
	Text        string              `json:"text"`
	Attachments []domain.Attachment `json:"attachments"`
}

// WebhookReply is the response body.
type WebhookReply struct {
	Reply string `json:"reply"`
}

func NewWebhook(cfg WebhookConfig) *Webhook {
	return &Webhook{
		secret:    cfg.Secret,
		responder: cfg.Responder,
		logger:    cfg.Logger,
	}
}

func (w *Webhook) Name() string { return "webhook" }

// HandleMessage validates one request and writes the reply as JSON. Errors are
// returned as {"error": "..."} with the matching status code.
func (w *Webhook) HandleMessage(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.Header().Set("Allow", http.MethodPost)
		writeJSON(rw, http.StatusMethodNotAllowed, webhookError{"POST only"})
		return
	}
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(rw, http.StatusBadRequest, webhookError{"unreadable body"})
		return
	}

	if w.secret != "" {
		sig := r.Header.Get("X-Signature-256")
		switch {
		case sig == "":
			writeJSON(rw, http.StatusUnauthorized, webhookError{"missing X-Signature-256"})
			return
		case !validHubSignature(w.secret, body, sig):
			w.logger.Warn("webhook signature mismatch", "remote", r.RemoteAddr)
			writeJSON(rw, http.StatusForbidden, webhookError{"invalid signature"})
			return
		}
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSON(rw, http.StatusBadRequest, webhookError{"invalid JSON: " + err.Error()})
		return
	}
	sender := strings.TrimSpace(payload.Sender)
	if sender == "" {
		writeJSON(rw, http.StatusBadRequest, webhookError{"sender is required"})
		return
	}

	w.logger.Info("webhook inbound", "sender", sender, "attachments", len(payload.Attachments))
	reply := w.responder.Handle(r.Context(), domain.IncomingMessage{
		Channel:     "webhook",
		SenderID:    sender,
		ChatID:      sender,
		Text:        payload.Text,
		Attachments: payload.Attachments,
		ReceivedAt:  time.Now(),
	})
	writeJSON(rw, http.StatusOK, WebhookReply{Reply: reply})
}

type webhookError struct {
	Error string `json:"error"`
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(v)
}
