// Package intent maps raw message text to one of a closed set of intents.
package intent

import "fmt"

// Kind tags the variant of an Intent.
type Kind int

const (
	Unrecognized Kind = iota
	Greeting
	MenuOption
	TrackOrderPrompt
	RecentOrdersRequest
	OrderIdentifier
	SearchQuery
	PrescriptionUpload
)

var kindNames = map[Kind]string{
	Unrecognized:        "unrecognized",
	Greeting:            "greeting",
	MenuOption:          "menu_option",
	TrackOrderPrompt:    "track_order_prompt",
	RecentOrdersRequest: "recent_orders",
	OrderIdentifier:     "order_identifier",
	SearchQuery:         "search_query",
	PrescriptionUpload:  "prescription_upload",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IDKind distinguishes a full dash-delimited order id from a short one.
type IDKind int

const (
	Partial IDKind = iota
	Full
)

func (k IDKind) String() string {
	if k == Full {
		return "full"
	}
	return "partial"
}

// Intent is the classified purpose of one message. Only the fields relevant to Kind are set:
// Option for MenuOption, Text and ID for OrderIdentifier, Text for SearchQuery (empty means
// "ask for a search term"), Text and MediaRef for PrescriptionUpload.
type Intent struct {
	Kind     Kind
	Option   int
	Text     string
	ID       IDKind
	MediaRef string
}

func (i Intent) String() string {
	switch i.Kind {
	case MenuOption:
		return fmt.Sprintf("%s(%d)", i.Kind, i.Option)
	case OrderIdentifier:
		return fmt.Sprintf("%s(%s,%s)", i.Kind, i.Text, i.ID)
	case SearchQuery:
		return fmt.Sprintf("%s(%q)", i.Kind, i.Text)
	}
	return i.Kind.String()
}
