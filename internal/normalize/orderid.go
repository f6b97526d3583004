package normalize

import "strings"

// OrderCandidate holds both forms of a user-supplied order identifier. Partial is the
// segment before the first dash; for identifiers without a dash it equals Original.
type OrderCandidate struct {
	Original string
	Partial  string
}

// IsFull reports whether the identifier carried a dash, i.e. a second lookup form exists.
func (c OrderCandidate) IsFull() bool { return c.Original != c.Partial }

// NormalizeOrderID trims whitespace and a leading '#', then derives the partial form.
func NormalizeOrderID(raw string) OrderCandidate {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "#")
	s = strings.TrimSpace(s)
	partial := s
	if i := strings.IndexByte(s, '-'); i >= 0 {
		partial = s[:i]
	}
	return OrderCandidate{Original: s, Partial: partial}
}

// DisplayID is the short form of a stored order id shown to users.
func DisplayID(id string) string {
	return NormalizeOrderID(id).Partial
}
