// replicate - checksum-verified object replication over key-value transport
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replicate

package wire

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// EventName is the closed set of event names legal on the wire.
type EventName string

const (
	EventAdded   EventName = "added"
	EventRemoved EventName = "removed"
	EventChanged EventName = "changed"
	EventComment EventName = "comment"
)

// ErrMalformed is returned when a payload is not a structurally valid
// framed event.
var ErrMalformed = errors.New("wire: malformed payload")

// ErrUnknownEvent is returned for an event_name outside the accepted set.
var ErrUnknownEvent = errors.New("wire: unknown event name")

// NamedValueSnapshot is the wire form of a NamedValue.
type NamedValueSnapshot struct {
	Name      string `json:"name"`
	Value     Scalar `json:"value"`
	Timestamp string `json:"timestamp"`
}

// Instant parses the snapshot's ISO-8601 timestamp.
func (n NamedValueSnapshot) Instant() (time.Time, error) {
	return ParseTimestamp(n.Timestamp)
}

// ItemSnapshot is the wire form of an Item, matching §6.1's ItemSnapshot
// grammar exactly: id, type (class name), notions (named values), and
// properties.
type ItemSnapshot struct {
	ID         string                        `json:"id"`
	Type       string                        `json:"type"`
	Notions    map[string]NamedValueSnapshot `json:"notions"`
	Properties map[string]Scalar             `json:"properties"`
}

// ItemRef is the minimal {"id": ...} reference used by removed events and
// property-only changed events.
type ItemRef struct {
	ID string `json:"id"`
}

// Change is the wire form of a property or named-value mutation.
type Change struct {
	Property     string  `json:"property"`
	OldValue     *Scalar `json:"old_value,omitempty"`
	NewValue     Scalar  `json:"new_value"`
	NewTimestamp *string `json:"new_timestamp,omitempty"`
}

// IsNamed reports whether this Change carries a NewTimestamp, i.e. is a
// named-value change rather than a plain property change (§4.3 Set.Receive
// dispatch rule).
func (c Change) IsNamed() bool { return c.NewTimestamp != nil }

// Envelope is the outer shape every payload shares before event-specific
// fields are interpreted.
type Envelope struct {
	EventName EventName `json:"event_name"`

	// added
	Item *ItemSnapshot `json:"item,omitempty"`

	// removed / changed reference an existing item by id only; Item above
	// is reused for added (full snapshot) so removed/changed decode the id
	// via ItemID instead.
	ItemID string `json:"-"`

	// changed
	Change *Change `json:"change,omitempty"`

	// comment framing record
	Metadata       bool    `json:"_metadata,omitempty"`
	StartChecksum  *string `json:"start_checksum,omitempty"`
	EndChecksum    string  `json:"end_checksum,omitempty"`
}

// envelopeWire mirrors Envelope's JSON shape; the "item" field of a
// removed/changed event is a bare {"id": ...}, not a full snapshot, so
// decoding is staged through json.RawMessage.
type envelopeWire struct {
	EventName     EventName       `json:"event_name"`
	Item          json.RawMessage `json:"item,omitempty"`
	Change        *Change         `json:"change,omitempty"`
	Metadata      bool            `json:"_metadata,omitempty"`
	StartChecksum *string         `json:"start_checksum,omitempty"`
	EndChecksum   string          `json:"end_checksum,omitempty"`
}

// Parse decodes one wire payload. Structural failures return ErrMalformed;
// an event_name outside {added, removed, changed, comment} returns
// ErrUnknownEvent — a tolerant caller may choose to ignore that error
// instead of treating it as fatal (§6.1: "must be ignored by a tolerant
// receiver or rejected ... by a strict one"; Set.Receive is strict).
func Parse(payload []byte) (Envelope, error) {
	var raw envelopeWire
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw.EventName == "" {
		return Envelope{}, fmt.Errorf("%w: missing event_name", ErrMalformed)
	}

	env := Envelope{
		EventName:     raw.EventName,
		Change:        raw.Change,
		Metadata:      raw.Metadata,
		StartChecksum: raw.StartChecksum,
		EndChecksum:   raw.EndChecksum,
	}

	switch raw.EventName {
	case EventAdded:
		var snap ItemSnapshot
		if len(raw.Item) == 0 {
			return Envelope{}, fmt.Errorf("%w: added event missing item snapshot", ErrMalformed)
		}
		if err := json.Unmarshal(raw.Item, &snap); err != nil {
			return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if snap.ID == "" {
			return Envelope{}, fmt.Errorf("%w: added event item missing id", ErrMalformed)
		}
		env.Item = &snap
		env.ItemID = snap.ID
	case EventRemoved:
		var ref ItemRef
		if len(raw.Item) == 0 {
			return Envelope{}, fmt.Errorf("%w: removed event missing item id", ErrMalformed)
		}
		if err := json.Unmarshal(raw.Item, &ref); err != nil || ref.ID == "" {
			return Envelope{}, fmt.Errorf("%w: removed event missing item id", ErrMalformed)
		}
		env.ItemID = ref.ID
	case EventChanged:
		var ref ItemRef
		if len(raw.Item) == 0 {
			return Envelope{}, fmt.Errorf("%w: changed event missing item id", ErrMalformed)
		}
		if err := json.Unmarshal(raw.Item, &ref); err != nil || ref.ID == "" {
			return Envelope{}, fmt.Errorf("%w: changed event missing item id", ErrMalformed)
		}
		if env.Change == nil {
			return Envelope{}, fmt.Errorf("%w: changed event missing change", ErrMalformed)
		}
		env.ItemID = ref.ID
	case EventComment:
		// framing record: no item, just checksums.
	default:
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownEvent, raw.EventName)
	}

	return env, nil
}

// Marshal encodes an Envelope back to its wire JSON form.
func Marshal(env Envelope) ([]byte, error) {
	switch env.EventName {
	case EventAdded:
		return json.Marshal(struct {
			EventName EventName    `json:"event_name"`
			Item      ItemSnapshot `json:"item"`
		}{env.EventName, *env.Item})
	case EventRemoved:
		return json.Marshal(struct {
			EventName EventName `json:"event_name"`
			Item      ItemRef   `json:"item"`
		}{env.EventName, ItemRef{ID: env.ItemID}})
	case EventChanged:
		return json.Marshal(struct {
			EventName EventName `json:"event_name"`
			Item      ItemRef   `json:"item"`
			Change    *Change   `json:"change"`
		}{env.EventName, ItemRef{ID: env.ItemID}, env.Change})
	case EventComment:
		return json.Marshal(struct {
			EventName     EventName `json:"event_name"`
			Metadata      bool      `json:"_metadata"`
			StartChecksum *string   `json:"start_checksum,omitempty"`
			EndChecksum   string    `json:"end_checksum"`
		}{env.EventName, true, env.StartChecksum, env.EndChecksum})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.EventName)
	}
}

// ParseFraming inspects the first bundle entry for a comment/_metadata
// framing record, per §4.6.1. It returns ok=false (not an error) when the
// entry is not a framing record, so callers can fall through to treating
// it as an ordinary event.
func ParseFraming(firstEntry []byte) (env Envelope, ok bool) {
	e, err := Parse(firstEntry)
	if err != nil {
		return Envelope{}, false
	}
	if e.EventName != EventComment || !e.Metadata {
		return Envelope{}, false
	}
	return e, true
}
