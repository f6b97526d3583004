package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"time"

	"medibot/internal/domain"
	"medibot/internal/metrics"
)

const (
	whatsappAPIBase   = "https://graph.facebook.com/v21.0"
	whatsappMaxMsgLen = 4096
	// whatsappMediaScheme prefixes Cloud API media ids, which are not URLs.
	whatsappMediaScheme = "whatsapp-media:"
)

// WhatsAppConfig configures the WhatsApp Business Cloud API channel.
type WhatsAppConfig struct {
	AccessToken   string
	PhoneNumberID string
	VerifyToken   string
	AppSecret     string // empty disables signature checks
	APIBase       string
	HTTPClient    *http.Client
	Bus           domain.MessageBus // optional; Start attaches one otherwise
	Logger        *slog.Logger
}

// WhatsApp implements domain.Channel for WhatsApp Business Cloud API.
type WhatsApp struct {
	cfg    WhatsAppConfig
	bus    busRef
	logger *slog.Logger
	client *http.Client
}

func NewWhatsApp(cfg WhatsAppConfig) *WhatsApp {
	if cfg.APIBase == "" {
		cfg.APIBase = whatsappAPIBase
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	w := &WhatsApp{cfg: cfg, logger: cfg.Logger, client: cfg.HTTPClient}
	if cfg.Bus != nil {
		w.bus.set(cfg.Bus)
	}
	return w
}

func (w *WhatsApp) Name() string { return "whatsapp" }

func (w *WhatsApp) Start(ctx context.Context, bus domain.MessageBus) error {
	w.bus.set(bus)
	sendCtx := context.WithoutCancel(ctx)
	bus.OnOutbound("whatsapp", func(msg domain.OutboundMessage) {
		if err := w.Send(sendCtx, msg.ChatID, msg.Content); err != nil {
			metrics.ReplyFailures.Inc()
			w.logger.Error("whatsapp send failed", "err", err, "chat", msg.ChatID)
		}
	})
	w.logger.Info("whatsapp channel ready", "phone_number_id", w.cfg.PhoneNumberID)
	return nil
}

func (w *WhatsApp) Stop() error { return nil }

func (w *WhatsApp) Send(ctx context.Context, to string, content string) error {
	for _, chunk := range splitMessage(content, whatsappMaxMsgLen) {
		if err := w.sendMessage(ctx, to, chunk); err != nil {
			return err
		}
	}
	return nil
}

// HandleVerification answers the subscription handshake Meta sends when the
// webhook URL is registered.
func (w *WhatsApp) HandleVerification(rw http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || w.cfg.VerifyToken == "" || q.Get("hub.verify_token") != w.cfg.VerifyToken {
		w.logger.Warn("whatsapp verification rejected", "mode", q.Get("hub.mode"))
		http.Error(rw, "verification failed", http.StatusForbidden)
		return
	}
	w.logger.Info("whatsapp webhook subscribed")
	rw.Header().Set("Content-Type", "text/plain")
	io.WriteString(rw, html.EscapeString(q.Get("hub.challenge")))
}

// HandleIncoming publishes text, image and document messages from a webhook
// delivery. Status callbacks and other message types are acknowledged and dropped.
func (w *WhatsApp) HandleIncoming(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(rw, "unreadable body", http.StatusBadRequest)
		return
	}
	if w.cfg.AppSecret != "" && !validHubSignature(w.cfg.AppSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		w.logger.Warn("whatsapp signature mismatch", "remote", r.RemoteAddr)
		http.Error(rw, "invalid signature", http.StatusForbidden)
		return
	}

	var delivery waDelivery
	if err := json.Unmarshal(body, &delivery); err != nil {
		w.logger.Warn("whatsapp payload undecodable", "err", err)
		http.Error(rw, "invalid payload", http.StatusBadRequest)
		return
	}

	for _, m := range delivery.messages() {
		msg, ok := m.incoming()
		if !ok {
			w.logger.Debug("whatsapp message ignored", "type", m.Type)
			continue
		}
		w.logger.Info("whatsapp inbound", "from", m.From, "type", m.Type, "attachments", len(msg.Attachments))
		if !w.bus.publish(msg) {
			w.logger.Warn("whatsapp message before start, dropped", "from", m.From)
		}
	}
	rw.WriteHeader(http.StatusOK)
}

type waOutbound struct {
	Product string `json:"messaging_product"`
	To      string `json:"to"`
	Type    string `json:"type"`
	Text    waText `json:"text"`
}

func (w *WhatsApp) sendMessage(ctx context.Context, to string, text string) error {
	payload, err := json.Marshal(waOutbound{Product: "whatsapp", To: to, Type: "text", Text: waText{Body: text}})
	if err != nil {
		return err
	}
	endpoint := w.cfg.APIBase + "/" + w.cfg.PhoneNumberID + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("whatsapp request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp send to %s: %w", to, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("whatsapp send to %s: status %d: %s", to, resp.StatusCode, bytes.TrimSpace(detail))
	}
	return nil
}

// waDelivery is the webhook envelope: entries hold changes, changes hold messages.
type waDelivery struct {
	Entry []struct {
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Messages []waMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

func (d waDelivery) messages() []waMessage {
	var out []waMessage
	for _, e := range d.Entry {
		for _, c := range e.Changes {
			out = append(out, c.Value.Messages...)
		}
	}
	return out
}

type waMessage struct {
	From     string   `json:"from"`
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Text     *waText  `json:"text,omitempty"`
	Image    *waMedia `json:"image,omitempty"`
	Document *waMedia `json:"document,omitempty"`
}

type waText struct {
	Body string `json:"body"`
}

type waMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
}

// incoming converts a webhook message; unsupported types report false.
func (m waMessage) incoming() (domain.IncomingMessage, bool) {
	msg := domain.IncomingMessage{
		Channel:    "whatsapp",
		SenderID:   m.From,
		ChatID:     m.From,
		ReceivedAt: time.Now(),
	}
	var media *waMedia
	switch m.Type {
	case "text":
		if m.Text == nil {
			return msg, false
		}
		msg.Text = m.Text.Body
		return msg, true
	case "image":
		media = m.Image
	case "document":
		media = m.Document
	default:
		return msg, false
	}
	if media == nil || media.ID == "" {
		return msg, false
	}
	msg.Text = media.Caption
	msg.Attachments = []domain.Attachment{{URL: whatsappMediaScheme + media.ID, MimeType: media.MimeType}}
	return msg, true
}
