// Package row implements the row codec: a named-column tuple encoded to
// and from the opaque byte blob stored as a B-tree leaf value.
package row

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind discriminates the scalar types a Value may hold. Plain JSON
// conflates integers and floats (and loses int64 precision past 2^53),
// so each value is tagged explicitly on the wire (spec.md §9(a)).
type Kind string

const (
	KindInt   Kind = "int"
	KindFloat Kind = "float"
	KindText  Kind = "text"
)

// Value is a single tagged column value.
type Value struct {
	Kind  Kind    `json:"kind"`
	Int   int64   `json:"int,omitempty"`
	Float float64 `json:"float,omitempty"`
	Text  string  `json:"text,omitempty"`
}

// NewInt returns an integer Value.
func NewInt(v int64) Value { return Value{Kind: KindInt, Int: v} }

// NewFloat returns a floating-point Value.
func NewFloat(v float64) Value { return Value{Kind: KindFloat, Float: v} }

// NewText returns a text Value.
func NewText(v string) Value { return Value{Kind: KindText, Text: v} }

// String renders a Value as text for display.
func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindText:
		return v.Text
	default:
		return ""
	}
}

// Row is a mapping from column name to value. An implicit "rowid" column
// carries the B-tree key once a row is materialized by the VM, but Row
// itself stores only the named, schema-declared columns.
type Row map[string]Value

// Encode serializes a row to its on-disk byte blob (a textual, JSON
// dictionary encoding per spec.md §4.4).
func Encode(r Row) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("row: encode: %w", err)
	}
	return data, nil
}

// Decode parses a row's byte blob. Empty or whitespace-only input is
// rejected, matching spec.md §4.4's round-trip contract.
func Decode(blob []byte) (Row, error) {
	if len(strings.TrimSpace(string(blob))) == 0 {
		return nil, fmt.Errorf("row: decode: empty blob")
	}

	var r Row
	if err := json.Unmarshal(blob, &r); err != nil {
		return nil, fmt.Errorf("row: decode: %w", err)
	}
	return r, nil
}
