// replicate - checksum-verified object replication over key-value transport
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replicate

// Package wire defines the payload grammar exchanged between a Producer
// endpoint and a Consumer engine: the closed Scalar value domain, item
// snapshots, and the added/removed/changed/comment event envelopes.
package wire

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// ErrInvalidArgument is returned when a Scalar is constructed from, or a
// property is assigned, a value outside the closed Scalar domain.
var ErrInvalidArgument = errors.New("wire: invalid argument")

// Kind discriminates the five legal Scalar value shapes.
type Kind uint8

const (
	KindNull Kind = iota
	KindAbsent
	KindString
	KindNumber
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindAbsent:
		return "absent"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Scalar is the tagged-variant value type legal for observed properties and
// named-value values: string, finite number, boolean, null, or absent.
// It replaces the original's dynamic setter-trapping with an explicit,
// closed representation (see the "Polymorphic managed class" design note).
type Scalar struct {
	kind Kind
	str  string
	num  float64
	b    bool
}

// Null is the JSON-null Scalar.
var Null = Scalar{kind: KindNull}

// Absent represents "no value" — distinct from Null. A declared-observed
// property that has never been assigned holds Absent.
var Absent = Scalar{kind: KindAbsent}

// String constructs a string Scalar.
func String(s string) Scalar { return Scalar{kind: KindString, str: s} }

// Number constructs a number Scalar. NaN and ±Inf are rejected by From.
func Number(f float64) Scalar { return Scalar{kind: KindNumber, num: f} }

// Bool constructs a boolean Scalar.
func Bool(b bool) Scalar { return Scalar{kind: KindBool, b: b} }

// From converts an arbitrary Go value into a Scalar, rejecting anything
// outside the closed domain with ErrInvalidArgument. This is the stricter
// of the two behaviors the original leaves ambiguous for non-scalar
// property values (see SPEC_FULL.md §4 decision 1): a port may reject at
// the wire or fall back to generic serialization; this one rejects.
func From(v any) (Scalar, error) {
	switch t := v.(type) {
	case nil:
		return Null, nil
	case Scalar:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		if err := checkFinite(t); err != nil {
			return Scalar{}, err
		}
		return Number(t), nil
	case float32:
		if err := checkFinite(float64(t)); err != nil {
			return Scalar{}, err
		}
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	default:
		return Scalar{}, fmt.Errorf("%w: value of type %T is not a scalar", ErrInvalidArgument, v)
	}
}

func checkFinite(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("%w: non-finite number", ErrInvalidArgument)
	}
	return nil
}

// Kind reports which of the five shapes this Scalar holds.
func (s Scalar) Kind() Kind { return s.kind }

// IsAbsent reports whether s is the Absent sentinel.
func (s Scalar) IsAbsent() bool { return s.kind == KindAbsent }

// IsNull reports whether s is JSON null.
func (s Scalar) IsNull() bool { return s.kind == KindNull }

// StringValue returns the underlying string and whether s is a string.
func (s Scalar) StringValue() (string, bool) { return s.str, s.kind == KindString }

// NumberValue returns the underlying number and whether s is a number.
func (s Scalar) NumberValue() (float64, bool) { return s.num, s.kind == KindNumber }

// BoolValue returns the underlying bool and whether s is a boolean.
func (s Scalar) BoolValue() (bool, bool) { return s.b, s.kind == KindBool }

// Equal reports value equality by Scalar identity: same kind and same
// underlying payload. Two Absent (or two Null) values are always equal.
func (s Scalar) Equal(other Scalar) bool {
	if s.kind != other.kind {
		return false
	}
	switch s.kind {
	case KindString:
		return s.str == other.str
	case KindNumber:
		return s.num == other.num
	case KindBool:
		return s.b == other.b
	default:
		return true
	}
}

// Encode renders the deterministic, checksum-oriented textual form used by
// Item.Checksum: "null", "absent", a quoted string, a decimal number, or a
// boolean literal. It is distinct from MarshalJSON, which targets wire
// interoperability rather than a stable checksum input.
func (s Scalar) Encode() string {
	switch s.kind {
	case KindNull:
		return "null"
	case KindAbsent:
		return "absent"
	case KindString:
		b, _ := json.Marshal(s.str)
		return string(b)
	case KindNumber:
		return strconv.FormatFloat(s.num, 'g', -1, 64)
	case KindBool:
		if s.b {
			return "true"
		}
		return "false"
	default:
		return "absent"
	}
}

// scalarWire is the JSON envelope used to distinguish Absent from null on
// the wire: Absent marshals as {"$absent":true}; every other kind marshals
// as its natural JSON literal.
type scalarWire struct {
	Absent bool `json:"$absent"`
}

// MarshalJSON implements json.Marshaler.
func (s Scalar) MarshalJSON() ([]byte, error) {
	switch s.kind {
	case KindAbsent:
		return json.Marshal(scalarWire{Absent: true})
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(s.str)
	case KindNumber:
		return json.Marshal(s.num)
	case KindBool:
		return json.Marshal(s.b)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = Null
		return nil
	}
	var probe scalarWire
	if err := json.Unmarshal(data, &probe); err == nil && probe.Absent {
		*s = Absent
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = String(str)
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*s = Bool(b)
		return nil
	}
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*s = Number(num)
		return nil
	}
	return fmt.Errorf("%w: %q is not a scalar", ErrInvalidArgument, string(data))
}

// ParseTimestamp accepts either a time.Time-valued instant or an
// RFC3339/ISO-8601 string and returns an instant, per NamedValue.Set's
// "timestamp must be an instant or a parseable instant string" contract.
func ParseTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q is not a parseable instant: %v", ErrInvalidArgument, t, err)
		}
		return parsed, nil
	default:
		return time.Time{}, fmt.Errorf("%w: timestamp must be time.Time or string, got %T", ErrInvalidArgument, v)
	}
}

// IsoInstant renders t in the ISO-8601 form used by Item.Checksum and the
// wire envelopes.
func IsoInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
