package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"medibot/internal/domain"
	"medibot/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
	// telegramFileScheme prefixes Telegram file ids carried as attachment references.
	telegramFileScheme = "telegram-file:"
)

// Telegram implements domain.Channel for a Telegram bot using long polling.
type Telegram struct {
	token     string
	allowFrom []int64 // empty allows everyone

	bot    *tgbotapi.BotAPI
	bus    domain.MessageBus
	logger *slog.Logger
}

type TelegramConfig struct {
	Token     string
	AllowFrom []string // user ids as strings
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	return &Telegram{
		token:     cfg.Token,
		allowFrom: allowed,
		logger:    cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and polls for updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	t.bus = bus

	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)

	sendCtx := context.WithoutCancel(ctx)
	bus.OnOutbound("telegram", func(msg domain.OutboundMessage) {
		if err := t.Send(sendCtx, msg.ChatID, msg.Content); err != nil {
			metrics.ReplyFailures.Inc()
			t.logger.Error("telegram send failed", "chat", msg.ChatID, "err", err)
		}
	})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if msg, ok := t.incoming(update); ok {
				t.bus.Publish(msg)
			}
		}
	}
}

// Stop is a no-op: polling ends when Start's context is cancelled and
// StopReceivingUpdates panics when called twice.
func (t *Telegram) Stop() error { return nil }

func (t *Telegram) Send(ctx context.Context, chatID string, content string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", chatID, err)
	}
	if t.bot == nil {
		return fmt.Errorf("telegram bot not started")
	}
	for _, chunk := range splitMessage(content, telegramMaxMsgLen) {
		if err := t.sendChunk(ctx, id, chunk); err != nil {
			return err
		}
	}
	return nil
}

// incoming converts an update into a message. Commands map onto bot keywords:
// /start and /help open the menu.
func (t *Telegram) incoming(update tgbotapi.Update) (domain.IncomingMessage, bool) {
	m := update.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return domain.IncomingMessage{}, false
	}
	if !t.isAllowed(m.From.ID) {
		t.logger.Warn("unauthorized telegram user", "user_id", m.From.ID)
		return domain.IncomingMessage{}, false
	}

	chatID := strconv.FormatInt(m.Chat.ID, 10)
	msg := domain.IncomingMessage{
		Channel:    "telegram",
		SenderID:   "telegram:" + chatID,
		ChatID:     chatID,
		Text:       strings.TrimSpace(m.Text),
		ReceivedAt: time.Unix(int64(m.Date), 0),
	}

	if m.IsCommand() {
		switch m.Command() {
		case "start", "help", "menu":
			msg.Text = "menu"
		default:
			msg.Text = m.CommandArguments()
		}
	}

	switch {
	case len(m.Photo) > 0:
		// Photo sizes are ordered smallest first.
		largest := m.Photo[len(m.Photo)-1]
		msg.Text = strings.TrimSpace(m.Caption)
		msg.Attachments = []domain.Attachment{{URL: telegramFileScheme + largest.FileID, MimeType: "image/jpeg"}}
	case m.Document != nil:
		msg.Text = strings.TrimSpace(m.Caption)
		msg.Attachments = []domain.Attachment{{URL: telegramFileScheme + m.Document.FileID, MimeType: m.Document.MimeType}}
	}

	if msg.Text == "" && len(msg.Attachments) == 0 {
		return msg, false
	}
	t.logger.Info("telegram message received", "chat_id", chatID, "text_len", len(msg.Text))
	return msg, true
}

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

// sendChunk sends one chunk, backing off on rate limits and transient errors.
func (t *Telegram) sendChunk(ctx context.Context, chatID int64, text string) error {
	var lastErr error
	for attempt := 0; attempt <= telegramMaxSendRetries; attempt++ {
		_, err := t.bot.Send(tgbotapi.NewMessage(chatID, text))
		if err == nil {
			return nil
		}
		lastErr = err

		backoff := time.Duration(attempt+1) * time.Second
		if strings.Contains(err.Error(), "Too Many Requests") || strings.Contains(err.Error(), "429") {
			backoff *= 3
		}
		if attempt == telegramMaxSendRetries {
			break
		}
		t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("telegram send after %d attempts: %w", telegramMaxSendRetries+1, lastErr)
}
