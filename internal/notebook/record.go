// Package notebook defines the ingested record and its derived text views.
package notebook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultName is used when a payload carries no usable name.
const DefaultName = "Untitled Notebook"

// ErrInvalidPayload is returned when a payload is not a JSON object.
var ErrInvalidPayload = errors.New("invalid notebook payload")

// Record is one ingested notebook. Payload is schema-free; ID and CreatedAt are
// assigned by the record store on first commit and never change afterwards.
type Record struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	CreatedAt time.Time      `json:"created_at,omitzero"`
	Indexed   bool           `json:"indexed"`
	Payload   map[string]any `json:"payload"`
}

// New builds a record from a decoded payload, inferring its name.
func New(payload map[string]any) Record {
	if payload == nil {
		payload = map[string]any{}
	}
	return Record{Name: NameOf(payload), Payload: payload}
}

// Parse decodes a JSON object into a record.
func Parse(data []byte) (Record, error) {
	var payload map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&payload); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if payload == nil {
		return Record{}, fmt.Errorf("%w: expected a JSON object", ErrInvalidPayload)
	}
	return New(payload), nil
}

// NameOf returns notebook_name, then name, then DefaultName.
func NameOf(payload map[string]any) string {
	for _, key := range []string{"notebook_name", "name"} {
		if s, ok := payload[key].(string); ok && s != "" {
			return s
		}
	}
	return DefaultName
}

// Clone returns a deep copy of the record. Payloads are copied through JSON so
// the result only holds map[string]any, []any and scalar values.
func (r Record) Clone() Record {
	out := r
	out.Payload = ClonePayload(r.Payload)
	return out
}

// ClonePayload deep-copies a payload. It returns an empty map for nil input.
func ClonePayload(p map[string]any) map[string]any {
	if p == nil {
		return map[string]any{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		// Payloads originate from JSON, so this only trips on programmer error.
		panic(fmt.Sprintf("notebook: payload not serializable: %v", err))
	}
	var out map[string]any
	_ = json.Unmarshal(data, &out)
	return out
}

// EncodePayload serializes a payload for stores that keep it as text.
func EncodePayload(p map[string]any) (string, error) {
	if p == nil {
		p = map[string]any{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(data), nil
}

// DecodePayload is the inverse of EncodePayload.
func DecodePayload(s string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
