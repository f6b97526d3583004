package channel

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const waSampleDelivery = `{
  "object": "whatsapp_business_account",
  "entry": [{"id": "1", "changes": [{"field": "messages", "value": {
    "messaging_product": "whatsapp",
    "messages": [
      {"from": "919876543210", "id": "m1", "type": "text", "text": {"body": "track"}},
      {"from": "919876543210", "id": "m2", "type": "image", "image": {"id": "IMG1", "mime_type": "image/jpeg", "caption": "rx"}},
      {"from": "919876543210", "id": "m3", "type": "document", "document": {"id": "DOC1", "mime_type": "application/pdf"}},
      {"from": "919876543210", "id": "m4", "type": "sticker"}
    ]
  }}]}]
}`

func TestWhatsApp_Verification(t *testing.T) {
	w := NewWhatsApp(WhatsAppConfig{VerifyToken: "vt", Logger: testLogger()})

	rr := httptest.NewRecorder()
	w.HandleVerification(rr, httptest.NewRequest("GET", "/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=vt&hub.challenge=42", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "42" {
		t.Errorf("status = %d, body %q", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	w.HandleVerification(rr, httptest.NewRequest("GET", "/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=42", nil))
	if rr.Code != http.StatusForbidden {
		t.Errorf("wrong token status = %d", rr.Code)
	}
}

func TestWhatsApp_HandleIncoming(t *testing.T) {
	bus := newRecordingBus()
	w := NewWhatsApp(WhatsAppConfig{AppSecret: "app", Logger: testLogger()})
	_ = w.Start(context.Background(), bus)

	body := []byte(waSampleDelivery)
	req := httptest.NewRequest("POST", "/webhook/whatsapp", strings.NewReader(waSampleDelivery))
	req.Header.Set("X-Hub-Signature-256", sign("app", body))
	rr := httptest.NewRecorder()
	w.HandleIncoming(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	msgs := bus.messages()
	if len(msgs) != 3 {
		t.Fatalf("published %d messages, want 3 (sticker ignored)", len(msgs))
	}
	if msgs[0].Text != "track" || msgs[0].SenderID != "919876543210" || msgs[0].Channel != "whatsapp" {
		t.Errorf("text message = %+v", msgs[0])
	}
	if msgs[1].Text != "rx" || len(msgs[1].Attachments) != 1 ||
		msgs[1].Attachments[0].URL != "whatsapp-media:IMG1" {
		t.Errorf("image message = %+v", msgs[1])
	}
	if msgs[2].Attachments[0].MimeType != "application/pdf" {
		t.Errorf("document message = %+v", msgs[2])
	}
}

func TestWhatsApp_HandleIncoming_BeforeStart(t *testing.T) {
	w := NewWhatsApp(WhatsAppConfig{Logger: testLogger()})
	rr := httptest.NewRecorder()
	w.HandleIncoming(rr, httptest.NewRequest("POST", "/webhook/whatsapp", strings.NewReader(waSampleDelivery)))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	bus := newRecordingBus()
	_ = w.Start(context.Background(), bus)
	rr = httptest.NewRecorder()
	w.HandleIncoming(rr, httptest.NewRequest("POST", "/webhook/whatsapp", strings.NewReader(waSampleDelivery)))
	if len(bus.messages()) != 3 {
		t.Errorf("published %d messages after start, want 3", len(bus.messages()))
	}
}

func TestWhatsApp_HandleIncoming_BadSignature(t *testing.T) {
	bus := newRecordingBus()
	w := NewWhatsApp(WhatsAppConfig{AppSecret: "app", Logger: testLogger()})
	_ = w.Start(context.Background(), bus)

	req := httptest.NewRequest("POST", "/webhook/whatsapp", strings.NewReader(waSampleDelivery))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	rr := httptest.NewRecorder()
	w.HandleIncoming(rr, req)
	if rr.Code != http.StatusForbidden || len(bus.messages()) != 0 {
		t.Errorf("status = %d, published %d", rr.Code, len(bus.messages()))
	}
}

func TestWhatsApp_Send(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/PN1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("auth = %q", r.Header.Get("Authorization"))
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		rw.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWhatsApp(WhatsAppConfig{AccessToken: "tok", PhoneNumberID: "PN1", APIBase: srv.URL, Logger: testLogger()})
	if err := w.Send(context.Background(), "919876543210", "hello"); err != nil {
		t.Fatal(err)
	}
	if got["to"] != "919876543210" || got["type"] != "text" {
		t.Errorf("payload = %v", got)
	}
	text, _ := got["text"].(map[string]any)
	if text["body"] != "hello" {
		t.Errorf("text = %v", got["text"])
	}
}
