package state

import (
	"encoding/json"
	"strings"
)

// SiteCode is the site assignment read from the endpoint. It is either
// unset (never assigned, or the store is unreadable) or a normalized
// uppercase value. The zero value is unset.
type SiteCode struct {
	value string
	set   bool
}

// NewSiteCode normalizes a raw value into a SiteCode. Whitespace-only
// input yields the unset code.
func NewSiteCode(raw string) SiteCode {
	v := strings.ToUpper(strings.TrimSpace(raw))
	if v == "" {
		return SiteCode{}
	}
	return SiteCode{value: v, set: true}
}

// IsSet reports whether a site code value is present.
func (c SiteCode) IsSet() bool {
	return c.set
}

// Value returns the normalized code, or "" when unset.
func (c SiteCode) Value() string {
	return c.value
}

// Equal compares two site codes; two unset codes are not equal.
func (c SiteCode) Equal(other SiteCode) bool {
	return c.set && other.set && c.value == other.value
}

// String renders the code for journal lines.
func (c SiteCode) String() string {
	if !c.set {
		return "<unset>"
	}
	return c.value
}

// MarshalJSON emits the code as a string, or null when unset.
func (c SiteCode) MarshalJSON() ([]byte, error) {
	if !c.set {
		return []byte("null"), nil
	}
	return json.Marshal(c.value)
}

// UnmarshalJSON accepts a string or null.
func (c *SiteCode) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*c = SiteCode{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*c = NewSiteCode(s)
	return nil
}
