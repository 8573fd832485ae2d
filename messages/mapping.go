package messages

import (
	"bytes"
	"encoding/json"
	"math"
)

// Mapping keys, in the order ToMapping emits them.
const (
	KeyID          = "id"
	KeyType        = "type"
	KeyRoute       = "route"
	KeyData        = "data"
	KeyTraceback   = "traceback"
	KeyUUID        = "uuid"
	KeyDestination = "destination"
)

var mappingKeys = [...]string{KeyID, KeyType, KeyRoute, KeyData, KeyTraceback, KeyUUID, KeyDestination}

// Entry is one key/value pair of a Mapping.
type Entry struct {
	Key   string
	Value any
}

// Mapping is an ordered key/value view of an envelope. Unset fields hold nil.
type Mapping []Entry

// Get returns the value bound to key.
func (mp Mapping) Get(key string) (any, bool) {
	for _, e := range mp {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Keys returns the keys in order.
func (mp Mapping) Keys() []string {
	keys := make([]string, len(mp))
	for i, e := range mp {
		keys[i] = e.Key
	}
	return keys
}

// Map converts the mapping to a plain map, dropping the order.
func (mp Mapping) Map() map[string]any {
	out := make(map[string]any, len(mp))
	for _, e := range mp {
		out[e.Key] = e.Value
	}
	return out
}

// MarshalJSON writes a JSON object with keys in mapping order.
func (mp Mapping) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range mp {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// FromMapping rebuilds an envelope from a mapping through NewMessagePayload.
//
// Identifier fields take strings or json.Number. The type takes a
// PayloadKind, any Go integer, an integral float64 or json.Number. Values of
// any other shape, and missing keys, leave the field unset.
func FromMapping(mp Mapping) *MessagePayload {
	var opts []Option
	for _, e := range mp {
		switch e.Key {
		case KeyID:
			if s, ok := identifier(e.Value); ok {
				opts = append(opts, WithID(s))
			}
		case KeyType:
			if k, ok := kindOf(e.Value); ok {
				opts = append(opts, WithType(k))
			}
		case KeyRoute:
			if s, ok := e.Value.(string); ok {
				opts = append(opts, WithRoute(s))
			}
		case KeyData:
			if d, ok := e.Value.(map[string]any); ok {
				opts = append(opts, WithData(d))
			}
		case KeyTraceback:
			if s, ok := e.Value.(string); ok {
				opts = append(opts, WithTraceback(s))
			}
		case KeyUUID:
			if s, ok := identifier(e.Value); ok {
				opts = append(opts, WithUUID(s))
			}
		case KeyDestination:
			if s, ok := identifier(e.Value); ok {
				opts = append(opts, WithDestination(s))
			}
		}
	}
	return NewMessagePayload(opts...)
}

func identifier(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	}
	return "", false
}

func kindOf(v any) (PayloadKind, bool) {
	switch t := v.(type) {
	case PayloadKind:
		return t, true
	case int:
		return PayloadKind(t), true
	case int8:
		return PayloadKind(t), true
	case int16:
		return PayloadKind(t), true
	case int32:
		return PayloadKind(t), true
	case int64:
		return PayloadKind(t), true
	case uint8:
		return PayloadKind(t), true
	case uint16:
		return PayloadKind(t), true
	case uint32:
		return PayloadKind(t), true
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return PayloadKind(t), true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return PayloadKind(n), true
		}
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return kindOf(f)
	}
	return 0, false
}
