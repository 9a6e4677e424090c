package models

import (
	"bytes"
	"time"
)

// Date is a timestamp as the library service serializes it. Endpoints are
// inconsistent about precision, so parsing tolerates full RFC 3339, a
// space-separated datetime, and a bare date. Null, empty, and unparseable
// values decode to the zero time rather than failing the whole payload.
type Date struct {
	time.Time
}

// NewDate wraps a time.Time.
func NewDate(t time.Time) Date {
	return Date{Time: t}
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	d.Time = time.Time{}
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	s := string(bytes.Trim(data, `"`))
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t.UTC()
			return nil
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler. The zero value serializes as null.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(time.RFC3339) + `"`), nil
}
