package store

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// IndexedField is the only record field whose text is tokenized.
const IndexedField = "message"

// Record is one item from the remote source. Its JSON is kept verbatim and
// re-emitted unchanged; only the message text is extracted for indexing.
type Record struct {
	raw  json.RawMessage
	text string
}

// DecodeRecord wraps a raw JSON item. A string message is indexed as its
// value, a missing or null message as empty text, and any other JSON value
// by its raw JSON text. Non-object items are kept with empty text.
func DecodeRecord(raw json.RawMessage) (Record, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Record{}, fmt.Errorf("decoding record: empty item")
	}
	if !json.Valid(trimmed) {
		return Record{}, fmt.Errorf("decoding record: invalid JSON")
	}
	r := Record{raw: append(json.RawMessage(nil), trimmed...)}
	if trimmed[0] != '{' {
		return r, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Record{}, fmt.Errorf("decoding record fields: %w", err)
	}
	msg, ok := fields[IndexedField]
	if !ok || bytes.Equal(msg, []byte("null")) {
		return r, nil
	}
	var s string
	if err := json.Unmarshal(msg, &s); err == nil {
		r.text = s
	} else {
		r.text = string(msg)
	}
	return r, nil
}

// MustRecord builds a record from an object literal. It panics on invalid
// input and is meant for tests and fixtures.
func MustRecord(fields map[string]any) Record {
	data, err := json.Marshal(fields)
	if err != nil {
		panic(err)
	}
	r, err := DecodeRecord(data)
	if err != nil {
		panic(err)
	}
	return r
}

// Text returns the indexed message text.
func (r Record) Text() string {
	return r.text
}

// Raw returns the record's original JSON.
func (r Record) Raw() json.RawMessage {
	return r.raw
}

// MarshalJSON emits the record exactly as it was received.
func (r Record) MarshalJSON() ([]byte, error) {
	if len(r.raw) == 0 {
		return []byte("null"), nil
	}
	return r.raw, nil
}

// UnmarshalJSON decodes a record from its source JSON.
func (r *Record) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeRecord(data)
	if err != nil {
		return err
	}
	*r = decoded
	return nil
}
