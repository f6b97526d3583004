package channel

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func tgUpdate(m *tgbotapi.Message) tgbotapi.Update {
	if m.From == nil {
		m.From = &tgbotapi.User{ID: 7}
	}
	if m.Chat == nil {
		m.Chat = &tgbotapi.Chat{ID: 4242}
	}
	return tgbotapi.Update{Message: m}
}

func TestTelegram_Incoming(t *testing.T) {
	tg := NewTelegram(TelegramConfig{Logger: testLogger()})

	msg, ok := tg.incoming(tgUpdate(&tgbotapi.Message{Text: " paracetamol "}))
	if !ok || msg.Text != "paracetamol" || msg.SenderID != "telegram:4242" || msg.ReplyTo() != "4242" {
		t.Errorf("text message = %+v, ok %v", msg, ok)
	}

	start := &tgbotapi.Message{
		Text:     "/start",
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}},
	}
	if msg, ok := tg.incoming(tgUpdate(start)); !ok || msg.Text != "menu" {
		t.Errorf("/start = %+v, ok %v", msg, ok)
	}

	photo := &tgbotapi.Message{
		Caption: "rx",
		Photo:   []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}},
	}
	msg, ok = tg.incoming(tgUpdate(photo))
	if !ok || len(msg.Attachments) != 1 || msg.Attachments[0].URL != "telegram-file:large" || msg.Text != "rx" {
		t.Errorf("photo = %+v, ok %v", msg, ok)
	}

	if _, ok := tg.incoming(tgbotapi.Update{}); ok {
		t.Error("update without message must be ignored")
	}
	if _, ok := tg.incoming(tgUpdate(&tgbotapi.Message{})); ok {
		t.Error("empty message must be ignored")
	}
}

func TestTelegram_AllowList(t *testing.T) {
	tg := NewTelegram(TelegramConfig{AllowFrom: []string{"1", " 2 ", "x"}, Logger: testLogger()})
	if len(tg.allowFrom) != 2 {
		t.Errorf("allowFrom = %v", tg.allowFrom)
	}
	if _, ok := tg.incoming(tgUpdate(&tgbotapi.Message{Text: "hi", From: &tgbotapi.User{ID: 7}})); ok {
		t.Error("user outside the allow list must be ignored")
	}
	if _, ok := tg.incoming(tgUpdate(&tgbotapi.Message{Text: "hi", From: &tgbotapi.User{ID: 2}})); !ok {
		t.Error("allowed user must pass")
	}
}
