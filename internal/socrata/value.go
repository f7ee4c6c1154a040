package socrata

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Value is one field of a Socrata row. Socrata serialises most columns as
// strings but some datasets send bare numbers or booleans; Value accepts
// any of them and keeps the raw text. A missing or null field is the zero
// Value, and every accessor on it returns nil.
type Value struct {
	raw   string
	valid bool
}

// NewValue wraps s as a present field.
func NewValue(s string) Value {
	return Value{raw: s, valid: true}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = NewValue(s)
		return nil
	}
	*v = NewValue(string(data))
	return nil
}

// Present reports whether the field carried a non-blank value.
func (v Value) Present() bool {
	return v.valid && strings.TrimSpace(v.raw) != ""
}

// Raw returns the trimmed text, or "" when absent.
func (v Value) Raw() string {
	if !v.valid {
		return ""
	}
	return strings.TrimSpace(v.raw)
}

// Text returns the trimmed text, or nil when blank.
func (v Value) Text() *string {
	if !v.Present() {
		return nil
	}
	s := v.Raw()
	return &s
}

// Float parses a number, tolerating thousands separators and a leading $.
func (v Value) Float() *float64 {
	if !v.Present() {
		return nil
	}
	s := strings.NewReplacer(",", "", "$", "").Replace(v.Raw())
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// Largest magnitude a float64 holds without losing whole-number precision.
const maxExactInt = 1 << 53

// Int parses a whole number. Values such as "4.00" are truncated and
// values outside the exactly representable range are treated as missing.
func (v Value) Int() *int {
	f := v.Float()
	if f == nil || math.Abs(*f) > maxExactInt {
		return nil
	}
	n := int(*f)
	return &n
}

// Bool parses Y/N, true/false and 1/0.
func (v Value) Bool() *bool {
	if !v.Present() {
		return nil
	}
	var b bool
	switch strings.ToUpper(v.Raw()) {
	case "Y", "YES", "TRUE", "1":
		b = true
	case "N", "NO", "FALSE", "0":
		b = false
	default:
		return nil
	}
	return &b
}

var timeLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
	"01/02/2006",
	"20060102",
}

// Time parses the floating timestamps Socrata emits. Results are UTC.
func (v Value) Time() *time.Time {
	if !v.Present() {
		return nil
	}
	s := v.Raw()
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// MarshalJSON writes the raw text, or null when absent.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.raw)
}
