package channel

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"medibot/internal/domain"
	"medibot/internal/metrics"
)

const (
	twilioAPIBase   = "https://api.twilio.com/2010-04-01"
	twilioMaxMsgLen = 1600
	emptyTwiML      = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`
)

// TwilioConfig configures the Twilio WhatsApp channel.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string // also the signature key; empty disables signature checks
	From       string // sender number, e.g. "whatsapp:+14155238886"
	PublicURL  string // externally visible base URL used for signature checks
	APIBase    string
	HTTPClient *http.Client
	Bus        domain.MessageBus // optional; Start attaches one otherwise
	Logger     *slog.Logger
}

// Twilio implements domain.Channel for WhatsApp through Twilio's messaging API. Inbound
// messages arrive as form-encoded webhooks; replies go out through the REST API.
type Twilio struct {
	cfg    TwilioConfig
	bus    busRef
	client *http.Client
	logger *slog.Logger
}

func NewTwilio(cfg TwilioConfig) *Twilio {
	if cfg.APIBase == "" {
		cfg.APIBase = twilioAPIBase
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	t := &Twilio{cfg: cfg, client: cfg.HTTPClient, logger: cfg.Logger}
	if cfg.Bus != nil {
		t.bus.set(cfg.Bus)
	}
	return t
}

func (t *Twilio) Name() string { return "twilio" }

func (t *Twilio) Start(ctx context.Context, bus domain.MessageBus) error {
	t.bus.set(bus)
	// Replies for messages queued before shutdown are still sent.
	sendCtx := context.WithoutCancel(ctx)
	bus.OnOutbound("twilio", func(msg domain.OutboundMessage) {
		if err := t.Send(sendCtx, msg.ChatID, msg.Content); err != nil {
			metrics.ReplyFailures.Inc()
			t.logger.Error("twilio send failed", "err", err, "to", msg.ChatID)
		}
	})
	t.logger.Info("twilio channel ready", "from", t.cfg.From)
	return nil
}

func (t *Twilio) Stop() error { return nil }

// Send delivers body to a WhatsApp address, split into Twilio-sized chunks.
func (t *Twilio) Send(ctx context.Context, to string, body string) error {
	if !strings.HasPrefix(to, "whatsapp:") {
		to = "whatsapp:" + to
	}
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", t.cfg.APIBase, url.PathEscape(t.cfg.AccountSID))
	for _, chunk := range splitMessage(body, twilioMaxMsgLen) {
		form := url.Values{"To": {to}, "From": {t.cfg.From}, "Body": {chunk}}
		req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken)

		resp, err := t.client.Do(req)
		if err != nil {
			return fmt.Errorf("send: %w", err)
		}
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("twilio API %d: %s", resp.StatusCode, string(respBody))
		}
	}
	return nil
}

// HandleIncoming is the inbound webhook. It acknowledges with empty TwiML; the reply is sent
// asynchronously once the dispatcher has handled the message.
func (t *Twilio) HandleIncoming(rw http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(rw, r.Body, 1<<20)
	if err := r.ParseForm(); err != nil {
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}

	if t.cfg.AuthToken != "" {
		sig := r.Header.Get("X-Twilio-Signature")
		if !verifyTwilioSignature(t.cfg.AuthToken, t.requestURL(r), r.PostForm, sig) {
			t.logger.Warn("twilio invalid signature")
			http.Error(rw, "Forbidden", http.StatusForbidden)
			return
		}
	}

	msg, ok := twilioMessage(r.PostForm)
	if !ok {
		http.Error(rw, "Missing sender", http.StatusBadRequest)
		return
	}
	t.logger.Info("twilio message received",
		"from", msg.SenderID,
		"text_len", len(msg.Text),
		"media", len(msg.Attachments),
	)
	if !t.bus.publish(msg) {
		t.logger.Warn("twilio message before start, dropped", "from", msg.SenderID)
	}

	rw.Header().Set("Content-Type", "text/xml")
	rw.WriteHeader(http.StatusOK)
	io.WriteString(rw, emptyTwiML)
}

// requestURL is the URL Twilio signed: the configured public base plus the request URI.
func (t *Twilio) requestURL(r *http.Request) string {
	if t.cfg.PublicURL != "" {
		return strings.TrimRight(t.cfg.PublicURL, "/") + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func twilioMessage(form url.Values) (domain.IncomingMessage, bool) {
	from := strings.TrimSpace(form.Get("From"))
	if from == "" {
		return domain.IncomingMessage{}, false
	}
	msg := domain.IncomingMessage{
		Channel:    "twilio",
		SenderID:   from,
		ChatID:     from,
		Text:       form.Get("Body"),
		ReceivedAt: time.Now(),
	}
	n, _ := strconv.Atoi(form.Get("NumMedia"))
	for i := 0; i < n; i++ {
		u := form.Get(fmt.Sprintf("MediaUrl%d", i))
		if u == "" {
			continue
		}
		msg.Attachments = append(msg.Attachments, domain.Attachment{
			URL:      u,
			MimeType: form.Get(fmt.Sprintf("MediaContentType%d", i)),
		})
	}
	return msg, true
}

// twilioSignature computes Twilio's request signature: HMAC-SHA1 over the full URL followed
// by every POST parameter name and value in sorted name order, base64 encoded.
func twilioSignature(authToken, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(fullURL)
	for _, k := range keys {
		for _, v := range params[k] {
			sb.WriteString(k)
			sb.WriteString(v)
		}
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(sb.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func verifyTwilioSignature(authToken, fullURL string, params url.Values, signature string) bool {
	if signature == "" {
		return false
	}
	expected := twilioSignature(authToken, fullURL, params)
	return hmac.Equal([]byte(expected), []byte(signature))
}
