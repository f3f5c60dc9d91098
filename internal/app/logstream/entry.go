package logstream

import (
	"encoding/json"
	"fmt"
	"time"

	"logview/internal/app/errors"
)

// Metadata is a name/value annotation attached to a log entry
type Metadata struct {
	Name  string
	Value string
}

// Entry is a single converted log line
type Entry struct {
	ID         string
	Date       time.Time
	Message    string
	InstanceID string
	Metadata   []Metadata
}

// WithMetadata returns a copy of the entry carrying the extra annotations
func (e Entry) WithMetadata(md ...Metadata) Entry {
	merged := make([]Metadata, 0, len(e.Metadata)+len(md))
	merged = append(merged, e.Metadata...)
	merged = append(merged, md...)
	e.Metadata = merged

	return e
}

// Meta returns the value of the named annotation
func (e Entry) Meta(name string) (string, bool) {
	for _, m := range e.Metadata {
		if m.Name == name {
			return m.Value, true
		}
	}

	return "", false
}

type payload struct {
	ID         string `json:"id"`
	Date       string `json:"date"`
	Message    string `json:"message"`
	InstanceID string `json:"instanceId"`
}

// ParseEntry converts an APPLICATION_LOG payload
func ParseEntry(data string) (Entry, error) {
	var p payload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return Entry{}, fmt.Errorf("%w: %w", errors.ErrMalformedLog, err)
	}

	date, err := time.Parse(time.RFC3339Nano, p.Date)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: date %q: %w", errors.ErrMalformedLog, p.Date, err)
	}

	return Entry{
		ID:         p.ID,
		Date:       date,
		Message:    p.Message,
		InstanceID: p.InstanceID,
	}, nil
}
