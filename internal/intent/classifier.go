package intent

import (
	"regexp"
	"strings"

	"medibot/internal/domain"
)

var (
	menuOptionPattern = regexp.MustCompile(`^[1-6]$`)
	fullIDPattern     = regexp.MustCompile(`(?i)^#?[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	shortIDPattern    = regexp.MustCompile(`^#?[A-Za-z0-9]{6,12}$`)
)

var greetingWords = wordSet("hi", "hey", "hello", "hola", "hy", "start", "menu", "help")

var searchPromptWords = wordSet("search", "medicines", "medicine", "products")

// input is the text as seen by every rule.
type input struct {
	text  string // trimmed
	lower string // trimmed, lower-cased
}

// rule pairs a predicate with the intent it produces. Rules are evaluated in table order and
// the first match wins.
type rule struct {
	name    string
	matches func(in input) bool
	build   func(in input) Intent
}

// match applies the rule to text in isolation from the rest of the table.
func (r rule) match(text string) (Intent, bool) {
	in := newInput(text)
	if !r.matches(in) {
		return Intent{}, false
	}
	return r.build(in), true
}

// rules is the dispatch table. Order is a tie-break: the short-id rule precedes the search
// keyword rule, so those keywords classify as identifiers.
var rules = []rule{
	{
		name:    "blank",
		matches: func(in input) bool { return in.text == "" },
		build:   func(input) Intent { return Intent{Kind: Greeting} },
	},
	{
		name:    "greeting",
		matches: func(in input) bool { return greetingWords[in.lower] },
		build:   func(input) Intent { return Intent{Kind: Greeting} },
	},
	{
		name:    "menu_option",
		matches: func(in input) bool { return menuOptionPattern.MatchString(in.text) },
		build: func(in input) Intent {
			return Intent{Kind: MenuOption, Option: int(in.text[0] - '0')}
		},
	},
	{
		name: "track",
		matches: func(in input) bool {
			return in.lower == "track" || strings.Contains(in.lower, "track order")
		},
		build: func(input) Intent { return Intent{Kind: TrackOrderPrompt} },
	},
	{
		name: "recent",
		matches: func(in input) bool {
			return in.lower == "recent" || in.lower == "recent orders" || strings.Contains(in.lower, "my order")
		},
		build: func(input) Intent { return Intent{Kind: RecentOrdersRequest} },
	},
	{
		name:    "full_order_id",
		matches: func(in input) bool { return fullIDPattern.MatchString(in.text) },
		build: func(in input) Intent {
			return Intent{Kind: OrderIdentifier, Text: in.text, ID: Full}
		},
	},
	{
		name:    "short_order_id",
		matches: func(in input) bool { return shortIDPattern.MatchString(in.text) },
		build: func(in input) Intent {
			return Intent{Kind: OrderIdentifier, Text: in.text, ID: Partial}
		},
	},
	{
		name:    "search_prompt",
		matches: func(in input) bool { return searchPromptWords[in.lower] },
		build:   func(input) Intent { return Intent{Kind: SearchQuery} },
	},
	{
		name:    "search",
		matches: func(input) bool { return true },
		build:   func(in input) Intent { return Intent{Kind: SearchQuery, Text: in.text} },
	},
}

// Classify maps text to exactly one intent. It is pure and total: anything no earlier rule
// claims becomes a SearchQuery.
func Classify(text string) Intent {
	in := newInput(text)
	for _, r := range rules {
		if r.matches(in) {
			return r.build(in)
		}
	}
	return Intent{Kind: SearchQuery, Text: in.text}
}

// ClassifyFrom evaluates the table starting at the named rule, skipping every earlier one.
// Unknown names fall through to a plain search.
func ClassifyFrom(name, text string) Intent {
	in := newInput(text)
	for i, r := range rules {
		if r.name != name {
			continue
		}
		for _, rest := range rules[i:] {
			if rest.matches(in) {
				return rest.build(in)
			}
		}
	}
	return Intent{Kind: SearchQuery, Text: in.text}
}

// ClassifyMessage extends Classify with attachment handling: an image or PDF attachment is a
// prescription upload captioned by the text; any other attachment with no text is
// unrecognized.
func ClassifyMessage(msg domain.IncomingMessage) Intent {
	for _, a := range msg.Attachments {
		if isPrescriptionMedia(a.MimeType) {
			return Intent{
				Kind:     PrescriptionUpload,
				Text:     strings.TrimSpace(msg.Text),
				MediaRef: a.URL,
			}
		}
	}
	if len(msg.Attachments) > 0 && strings.TrimSpace(msg.Text) == "" {
		return Intent{Kind: Unrecognized}
	}
	return Classify(msg.Text)
}

func isPrescriptionMedia(mime string) bool {
	mime = strings.ToLower(strings.TrimSpace(mime))
	return strings.HasPrefix(mime, "image/") || mime == "application/pdf"
}

func newInput(text string) input {
	t := strings.TrimSpace(text)
	return input{text: t, lower: strings.ToLower(t)}
}

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
