// Package normalize canonicalizes phone numbers and order identifiers into the forms used
// as lookup keys.
package normalize

import "strings"

const (
	channelPrefix = "whatsapp:"
	countryCode   = "91"
	subscriberLen = 10
)

// Phone is a 10-digit subscriber number with channel prefix and country code removed.
type Phone string

// NormalizePhone strips the channel prefix, a leading '+', and the country code, then keeps
// the last 10 digits if the remainder is still longer. It never fails: malformed input
// yields the best-effort stripped string. Normalizing a normalized number is a no-op.
func NormalizePhone(raw string) Phone {
	s := stripAddress(raw)
	if len(s) > subscriberLen && strings.HasPrefix(s, countryCode) {
		s = s[len(countryCode):]
	}
	if len(s) > subscriberLen {
		s = s[len(s)-subscriberLen:]
	}
	return Phone(s)
}

// SenderPhone normalizes a sender id that is a phone number: a "whatsapp:" address or
// digits with an optional '+'. Other ids, such as "telegram:42", report false.
func SenderPhone(raw string) (Phone, bool) {
	s := stripAddress(raw)
	if s == "" || strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return "", false
	}
	return NormalizePhone(s), true
}

func stripAddress(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) >= len(channelPrefix) && strings.EqualFold(s[:len(channelPrefix)], channelPrefix) {
		s = s[len(channelPrefix):]
	}
	return strings.TrimPrefix(s, "+")
}

// Variants lists the stored formats a user row may carry for this number, normalized form
// first.
func (p Phone) Variants() []string {
	s := string(p)
	if s == "" {
		return nil
	}
	return []string{
		s,
		"+" + countryCode + s,
		countryCode + s,
		channelPrefix + "+" + countryCode + s,
	}
}

func (p Phone) String() string { return string(p) }
