// Package format renders domain results into WhatsApp-ready reply text. Every function is
// pure: the same input always renders the same bytes.
package format

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"medibot/internal/domain"
	"medibot/internal/normalize"
)

const (
	currency = "₹"

	maxSearchHits   = 5
	maxRecentOrders = 3
	maxRecentItems  = 5

	// MinQueryLen is the shortest search query, in runes, sent to the backend.
	MinQueryLen = 2

	separator  = "━━━━━━━━━━━━━━━"
	dateLayout = "02 Jan 2006"
)

// dateInputs are the timestamp layouts seen in backend records.
var dateInputs = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Money renders an amount with the fixed currency symbol and two decimals.
func Money(v float64) string {
	return fmt.Sprintf("%s%.2f", currency, v)
}

// Date renders a backend timestamp as "02 Jan 2006". Unparseable values are returned as
// given; empty values render as N/A.
func Date(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "N/A"
	}
	for _, layout := range dateInputs {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(dateLayout)
		}
	}
	return raw
}

// QueryTooShort reports whether a search query must be rejected before any backend call.
func QueryTooShort(q string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(q)) < MinQueryLen
}

// Menu is the static welcome menu.
func Menu() string {
	return menuText
}

const menuText = `👋 Welcome to MediBot!

Reply with a number to get started:

1. Search medicines
2. Search products
3. Track an order
4. My recent orders
5. Upload a prescription
6. Contact support

You can also type a medicine name or send your order ID.`

// SearchResults renders up to five hits. total is the backend's match count; when it is
// smaller than the number of hits the hit count is used instead.
func SearchResults(query string, hits []domain.SearchHit, total int) string {
	if len(hits) == 0 {
		return NoResults(query)
	}
	if total < len(hits) {
		total = len(hits)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🔍 Results for \"%s\":\n", strings.TrimSpace(query))
	for i, h := range hits {
		if i == maxSearchHits {
			break
		}
		fmt.Fprintf(&sb, "\n%d. *%s*\n", i+1, h.Name)
		if h.Manufacturer != "" {
			fmt.Fprintf(&sb, "   %s\n", h.Manufacturer)
		}
		fmt.Fprintf(&sb, "   %s\n", Money(h.Price))
		if h.PrescriptionRequired {
			sb.WriteString("   ⚠️ Prescription required\n")
		}
	}
	if total > maxSearchHits {
		fmt.Fprintf(&sb, "\nFound %d results. Showing top %d only.", total, maxSearchHits)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// OrderDetails renders a single tracked order under displayID, which is always the partial
// form of the id the user asked for.
func OrderDetails(displayID string, o domain.OrderSummary) string {
	status := o.Status
	if strings.TrimSpace(status) == "" {
		status = "Processing"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📦 *Order #%s*\n\n", displayID)
	fmt.Fprintf(&sb, "Status: %s\n", status)
	fmt.Fprintf(&sb, "Date: %s\n", Date(o.CreatedAt))
	if len(o.Items) > 0 {
		sb.WriteString("\nItems:\n")
		for _, it := range o.Items {
			fmt.Fprintf(&sb, "• %s x%d = %s\n", it.Name, it.Quantity, Money(it.LineTotal()))
		}
	}
	fmt.Fprintf(&sb, "\n💰 Total paid: %s", Money(o.TotalAmount))
	return sb.String()
}

// RecentOrders renders at most three orders, newest first as given.
func RecentOrders(orders []domain.OrderSummary) string {
	if len(orders) == 0 {
		return NoRecentOrders
	}
	if len(orders) > maxRecentOrders {
		orders = orders[:maxRecentOrders]
	}

	var sb strings.Builder
	sb.WriteString("🧾 *Your recent orders*\n\n")
	for i, o := range orders {
		id := normalize.DisplayID(o.ID)
		status := o.Status
		if strings.TrimSpace(status) == "" {
			status = "Processing"
		}
		fmt.Fprintf(&sb, "*Order #%s*\n", id)
		fmt.Fprintf(&sb, "Date: %s\n", Date(o.CreatedAt))
		fmt.Fprintf(&sb, "Status: %s\n", status)
		fmt.Fprintf(&sb, "Total: %s\n", Money(o.TotalAmount))
		if len(o.Items) > 0 {
			sb.WriteString("Items:\n")
			for j, it := range o.Items {
				if j == maxRecentItems {
					fmt.Fprintf(&sb, "...and %d more items\n", len(o.Items)-maxRecentItems)
					break
				}
				fmt.Fprintf(&sb, "• %s x%d\n", it.Name, it.Quantity)
			}
		}
		fmt.Fprintf(&sb, "Track it: send #%s", id)
		if i < len(orders)-1 {
			sb.WriteString("\n" + separator + "\n")
		}
	}
	return sb.String()
}
