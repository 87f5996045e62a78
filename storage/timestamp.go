package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Zone-less layouts written by older records. They are read as local time.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// parseTime accepts an RFC 3339 string, a zone-less ISO 8601 string or a
// number of seconds since the epoch. null and absent values give the zero time.
func parseTime(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}

	if raw[0] != '"' {
		secs, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %s", raw)
		}
		whole, frac := math.Modf(secs)
		micros := int64(math.Round(frac * 1e6))
		return time.Unix(int64(whole), micros*int64(time.Microsecond)), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, err
	}
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// UnmarshalJSON accepts every timestamp encoding parseTime does.
func (m *Message) UnmarshalJSON(data []byte) error {
	// Use an alias to avoid infinite recursion
	type MessageAlias Message
	aux := &struct {
		Timestamp json.RawMessage `json:"timestamp"`
		*MessageAlias
	}{
		MessageAlias: (*MessageAlias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	ts, err := parseTime(aux.Timestamp)
	if err != nil {
		return fmt.Errorf("message: %w", err)
	}
	m.Timestamp = ts
	return nil
}

// UnmarshalJSON accepts every timestamp encoding parseTime does.
func (c *Conversation) UnmarshalJSON(data []byte) error {
	type ConversationAlias Conversation
	aux := &struct {
		CreatedAt json.RawMessage `json:"created_at"`
		UpdatedAt json.RawMessage `json:"updated_at"`
		*ConversationAlias
	}{
		ConversationAlias: (*ConversationAlias)(c),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	var err error
	if c.CreatedAt, err = parseTime(aux.CreatedAt); err != nil {
		return fmt.Errorf("created_at: %w", err)
	}
	if c.UpdatedAt, err = parseTime(aux.UpdatedAt); err != nil {
		return fmt.Errorf("updated_at: %w", err)
	}
	return nil
}
