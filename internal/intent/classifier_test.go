package intent

import (
	"strings"
	"testing"

	"medibot/internal/domain"
	"medibot/internal/normalize"
)

func TestClassify_GreetingVocabulary(t *testing.T) {
	for _, w := range []string{"hi", "hey", "hello", "hola", "hy", "start", "menu", "help"} {
		for _, variant := range []string{w, strings.ToUpper(w), strings.ToUpper(w[:1]) + w[1:], "  " + w + " "} {
			if got := Classify(variant); got.Kind != Greeting {
				t.Errorf("Classify(%q) = %s, want greeting", variant, got)
			}
		}
	}
}

func TestClassify_Blank(t *testing.T) {
	for _, s := range []string{"", "   ", "\n\t"} {
		if got := Classify(s); got.Kind != Greeting {
			t.Errorf("Classify(%q) = %s, want greeting", s, got)
		}
	}
}

func TestClassify_MenuOptions(t *testing.T) {
	for n := 1; n <= 6; n++ {
		s := string(rune('0' + n))
		got := Classify(s)
		if got.Kind != MenuOption || got.Option != n {
			t.Errorf("Classify(%q) = %s, want menu_option(%d)", s, got, n)
		}
	}
	for _, s := range []string{"0", "7", "12"} {
		if got := Classify(s); got.Kind == MenuOption {
			t.Errorf("Classify(%q) should not be a menu option", s)
		}
	}
}

func TestClassify_Track(t *testing.T) {
	for _, s := range []string{"track", "TRACK", "I want to track order", "Track Order please"} {
		if got := Classify(s); got.Kind != TrackOrderPrompt {
			t.Errorf("Classify(%q) = %s, want track_order_prompt", s, got)
		}
	}
}

func TestClassify_Recent(t *testing.T) {
	for _, s := range []string{"recent", "Recent Orders", "show my orders", "where is my order"} {
		if got := Classify(s); got.Kind != RecentOrdersRequest {
			t.Errorf("Classify(%q) = %s, want recent_orders", s, got)
		}
	}
}

func TestClassify_FullOrderID(t *testing.T) {
	raw := "#65c53a12-4c6d-4569-a756-7a16a902c2e5"
	got := Classify(raw)
	if got.Kind != OrderIdentifier || got.ID != Full {
		t.Fatalf("Classify(%q) = %s, want full order identifier", raw, got)
	}
	if got.Text != raw {
		t.Errorf("expected raw text preserved, got %q", got.Text)
	}
	if c := normalize.NormalizeOrderID(got.Text); c.Partial != "65c53a12" {
		t.Errorf("expected partial 65c53a12, got %q", c.Partial)
	}

	upper := "65C53A12-4C6D-4569-A756-7A16A902C2E5"
	if got := Classify(upper); got.Kind != OrderIdentifier || got.ID != Full {
		t.Errorf("uppercase uuid should be a full identifier, got %s", got)
	}
}

func TestClassify_ShortOrderID(t *testing.T) {
	got := Classify("A12C1234")
	if got.Kind != OrderIdentifier || got.ID != Partial {
		t.Fatalf("Classify(A12C1234) = %s, want partial order identifier", got)
	}
	c := normalize.NormalizeOrderID(got.Text)
	if c.Original != "A12C1234" || c.Partial != "A12C1234" {
		t.Errorf("expected original == partial == A12C1234, got %+v", c)
	}
	if got := Classify("#ABC123"); got.Kind != OrderIdentifier || got.ID != Partial {
		t.Errorf("hash-prefixed short id should classify, got %s", got)
	}
}

func TestClassify_Search(t *testing.T) {
	for _, s := range []string{"paracetamol 500", "cough syrup", "vitamin-c", "abc"} {
		got := Classify(s)
		if got.Kind != SearchQuery || got.Text != s {
			t.Errorf("Classify(%q) = %s, want search_query(%q)", s, got, s)
		}
	}
}

// Ordering: earlier rules win over later ones that would also match.
func TestClassify_TieBreaks(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"recent", RecentOrdersRequest}, // also 6 alphanumerics
		{"hello", Greeting},
		{"menu", Greeting},
		{"paracetamol", OrderIdentifier}, // 11 alphanumerics: short-id rule shadows search
		{"search", OrderIdentifier},      // short-id rule precedes the search keyword rule
		{"medicine", OrderIdentifier},
		{"track order 65c53a12", TrackOrderPrompt},
	}
	for _, tt := range tests {
		if got := Classify(tt.in); got.Kind != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestClassifyFrom_SkipsEarlierRules(t *testing.T) {
	got := ClassifyFrom("search_prompt", "paracetamol")
	if got.Kind != SearchQuery || got.Text != "paracetamol" {
		t.Errorf("expected search_query(paracetamol), got %s", got)
	}
	got = ClassifyFrom("search_prompt", "Medicines")
	if got.Kind != SearchQuery || got.Text != "" {
		t.Errorf("expected search prompt, got %s", got)
	}
	got = ClassifyFrom("no_such_rule", "hello")
	if got.Kind != SearchQuery || got.Text != "hello" {
		t.Errorf("unknown rule name should fall through to search, got %s", got)
	}
}

func TestRules_Order(t *testing.T) {
	want := []string{"blank", "greeting", "menu_option", "track", "recent",
		"full_order_id", "short_order_id", "search_prompt", "search"}
	got := rules
	if len(got) != len(want) {
		t.Fatalf("expected %d rules, got %d", len(want), len(got))
	}
	for i, r := range got {
		if r.name != want[i] {
			t.Errorf("rule %d = %q, want %q", i, r.name, want[i])
		}
	}
}

func TestRule_SearchPromptInIsolation(t *testing.T) {
	var prompt rule
	for _, r := range rules {
		if r.name == "search_prompt" {
			prompt = r
		}
	}
	for _, w := range []string{"search", "Medicines", "medicine", "PRODUCTS"} {
		got, ok := prompt.match(w)
		if !ok {
			t.Fatalf("search_prompt should match %q", w)
		}
		if got.Kind != SearchQuery || got.Text != "" {
			t.Errorf("search_prompt(%q) = %s, want empty search query", w, got)
		}
	}
	if _, ok := prompt.match("aspirin"); ok {
		t.Error("search_prompt should not match arbitrary words")
	}
}

func TestClassifyMessage_Attachments(t *testing.T) {
	img := domain.IncomingMessage{
		Text:        " my prescription ",
		Attachments: []domain.Attachment{{URL: "https://media/1", MimeType: "image/jpeg"}},
	}
	got := ClassifyMessage(img)
	if got.Kind != PrescriptionUpload || got.MediaRef != "https://media/1" || got.Text != "my prescription" {
		t.Errorf("expected prescription upload, got %+v", got)
	}

	pdf := domain.IncomingMessage{Attachments: []domain.Attachment{{URL: "u", MimeType: "application/PDF"}}}
	if got := ClassifyMessage(pdf); got.Kind != PrescriptionUpload {
		t.Errorf("pdf should be a prescription upload, got %s", got)
	}

	audio := domain.IncomingMessage{Attachments: []domain.Attachment{{URL: "u", MimeType: "audio/ogg"}}}
	if got := ClassifyMessage(audio); got.Kind != Unrecognized {
		t.Errorf("audio without text should be unrecognized, got %s", got)
	}

	audioWithText := domain.IncomingMessage{Text: "hi", Attachments: []domain.Attachment{{URL: "u", MimeType: "audio/ogg"}}}
	if got := ClassifyMessage(audioWithText); got.Kind != Greeting {
		t.Errorf("text should be classified when media is unsupported, got %s", got)
	}

	plain := domain.IncomingMessage{Text: "3"}
	if got := ClassifyMessage(plain); got.Kind != MenuOption || got.Option != 3 {
		t.Errorf("plain text should defer to Classify, got %s", got)
	}
}

func TestClassify_Total(t *testing.T) {
	inputs := []string{"", "x", "!!!", "1", "हिन्दी", strings.Repeat("a", 500)}
	for _, s := range inputs {
		got := Classify(s)
		if got.Kind == Unrecognized {
			t.Errorf("Classify(%q) must never be unrecognized", s)
		}
	}
}
