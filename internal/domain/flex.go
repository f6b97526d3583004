package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// FlexFloat is a float64 that unmarshals from JSON numbers and numeric strings
// ("120.50", "₹1,200", "Rs. 120"). Decoding never fails: a value that cannot be
// read as a number is kept as NaN and reported as unset by Value.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	*f = FlexFloat(math.NaN())
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	if n, ok := parseAmount(s); ok {
		*f = FlexFloat(n)
	}
	return nil
}

// Value reports the number and whether one was present and readable.
func (f *FlexFloat) Value() (float64, bool) {
	if f == nil || math.IsNaN(float64(*f)) {
		return 0, false
	}
	return float64(*f), true
}

var currencyPrefixes = []string{"₹", "inr", "rs.", "rs"}

// parseAmount reads a number with an optional rupee prefix and thousands separators.
func parseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, p := range currencyPrefixes {
		if strings.HasPrefix(lower, p) {
			s = strings.TrimSpace(s[len(p):])
			break
		}
	}
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// FlexString is a string that also accepts JSON numbers and booleans, which some
// backends send for ids and status codes. Objects and arrays decode to "".
type FlexString string

func (fs *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*fs = FlexString(s)
		return nil
	}
	if len(data) > 0 && (data[0] == '-' || (data[0] >= '0' && data[0] <= '9') || data[0] == 't' || data[0] == 'f') {
		var v any
		if json.Unmarshal(data, &v) == nil {
			*fs = FlexString(data)
			return nil
		}
	}
	*fs = ""
	return nil
}

// Ptr is a convenience for building records in code and tests.
func (f FlexFloat) Ptr() *FlexFloat { return &f }

// FlexBool is a bool that unmarshals from JSON booleans, 0/1 and "true"/"yes" strings.
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = FlexBool(v)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*b = n != 0
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes", "y", "1":
			*b = true
		default:
			*b = false
		}
		return nil
	}
	*b = false
	return nil
}
