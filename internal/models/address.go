package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// MailingAddress is the structured address recorded for a transaction party.
// It is persisted as a jsonb column.
type MailingAddress struct {
	Line1   string `json:"line1,omitempty"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`
	Country string `json:"country,omitempty"`
}

// IsEmpty reports whether no address component is present.
func (a MailingAddress) IsEmpty() bool {
	return strings.TrimSpace(a.Line1+a.Line2+a.City+a.State+a.Zip) == ""
}

// String renders the address on one line, skipping empty parts.
func (a MailingAddress) String() string {
	parts := make([]string, 0, 5)
	for _, p := range []string{a.Line1, a.Line2, a.City, strings.TrimSpace(a.State + " " + a.Zip)} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Scan implements sql.Scanner for reading the jsonb column.
func (a *MailingAddress) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*a = MailingAddress{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("failed to scan MailingAddress: expected []byte or string, got %T", value)
	}

	if len(raw) == 0 {
		*a = MailingAddress{}
		return nil
	}

	var decoded MailingAddress
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("failed to unmarshal mailing address: %w", err)
	}
	*a = decoded
	return nil
}

// Value implements driver.Valuer. Empty addresses are stored as NULL.
func (a MailingAddress) Value() (driver.Value, error) {
	if a.IsEmpty() {
		return nil, nil
	}

	encoded, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal mailing address: %w", err)
	}
	return string(encoded), nil
}
