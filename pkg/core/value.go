package core

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the scalar type held by a metadata Value.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
)

// Value is a tagged scalar: string, number or bool. The zero Value is
// the empty string.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
}

// String wraps a string value.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Number wraps a numeric value.
func Number(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// Bool wraps a boolean value.
func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// Kind returns the tag of the value.
func (v Value) Kind() Kind {
	return v.kind
}

// Str returns the string content; zero unless Kind is KindString.
func (v Value) Str() string {
	return v.str
}

// Num returns the numeric content; zero unless Kind is KindNumber.
func (v Value) Num() float64 {
	return v.num
}

// Boolean returns the bool content; false unless Kind is KindBool.
func (v Value) Boolean() bool {
	return v.b
}

// Equal reports whether two values hold the same kind and content.
func (v Value) Equal(o Value) bool {
	return v == o
}

func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return fmt.Sprintf("%g", v.num)
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	default:
		return v.str
	}
}

// MarshalJSON encodes the value as its bare JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return json.Marshal(v.str)
	}
}

// UnmarshalJSON decodes a JSON scalar into the matching kind.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case string:
		*v = String(t)
	case float64:
		*v = Number(t)
	case bool:
		*v = Bool(t)
	default:
		return fmt.Errorf("metadata value must be a string, number or bool, got %T", raw)
	}
	return nil
}

// Metadata is a mapping from string keys to scalar values, attached to
// collections and records.
type Metadata map[string]Value

// Clone returns a copy of the metadata, nil for nil input.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// EncodeMetadata serializes metadata to a JSON string, "" for nil.
func EncodeMetadata(m Metadata) (string, error) {
	if m == nil {
		return "", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(data), nil
}

// DecodeMetadata reverses EncodeMetadata.
func DecodeMetadata(s string) (Metadata, error) {
	if s == "" {
		return nil, nil
	}
	var m Metadata
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return m, nil
}
