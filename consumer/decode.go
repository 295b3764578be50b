// replicate - checksum-verified object replication over key-value transport
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replicate

package consumer

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/replicate/wire"
)

// decodeClassName normalizes a Datastore.Get result for "{prefix}.classname"
// into a plain string. A Datastore may hand back either the native Go
// value a same-process Producer stored (memstore) or a JSON-encoded byte
// slice a remote transport decoded generically (e.g. badgerstore).
func decodeClassName(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case []byte:
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", fmt.Errorf("%w: classname: %v", ErrTransport, err)
		}
		return s, nil
	default:
		return "", fmt.Errorf("%w: classname: unexpected type %T", ErrTransport, raw)
	}
}

// pulsarsHasTag reports whether the "{prefix}.pulsars" value advertises
// tag, tolerating the map[string][]string shape a same-process Producer
// writes natively and the generic map[string]any / []byte shapes a
// remote transport's JSON round trip produces.
func pulsarsHasTag(raw any, tag string) (bool, error) {
	switch v := raw.(type) {
	case map[string][]string:
		_, ok := v[tag]
		return ok, nil
	case map[string]any:
		_, ok := v[tag]
		return ok, nil
	case []byte:
		var m map[string]json.RawMessage
		if err := json.Unmarshal(v, &m); err != nil {
			return false, fmt.Errorf("%w: pulsars: %v", ErrTransport, err)
		}
		_, ok := m[tag]
		return ok, nil
	default:
		return false, fmt.Errorf("%w: pulsars: unexpected type %T", ErrTransport, raw)
	}
}

// decodeSnapshots normalizes a "{prefix}.all" Datastore.Get result into
// ItemSnapshots, again tolerating either the native []wire.ItemSnapshot a
// same-process Producer hands back or a JSON round trip's bytes/generic
// shape.
func decodeSnapshots(raw any) ([]wire.ItemSnapshot, error) {
	if snaps, ok := raw.([]wire.ItemSnapshot); ok {
		return snaps, nil
	}
	data, ok := raw.([]byte)
	if !ok {
		var err error
		data, err = json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: all: %v", ErrTransport, err)
		}
	}
	var snaps []wire.ItemSnapshot
	if err := json.Unmarshal(data, &snaps); err != nil {
		return nil, fmt.Errorf("%w: all: %v", ErrTransport, err)
	}
	return snaps, nil
}

// decodeBundle normalizes a "{prefix}.pulsars.{tag}" Datastore.Get result
// into the ordered slice of wire-payload strings a Pulse's transmit
// writes, each element itself a JSON-encoded event or framing record.
func decodeBundle(raw any) ([]string, error) {
	if bundle, ok := raw.([]string); ok {
		return bundle, nil
	}
	data, ok := raw.([]byte)
	if !ok {
		var err error
		data, err = json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: bundle: %v", ErrTransport, err)
		}
	}
	var bundle []string
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("%w: bundle: %v", ErrTransport, err)
	}
	return bundle, nil
}
