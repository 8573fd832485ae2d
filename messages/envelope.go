package messages

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Envelope is anything shaped like a MessagePayload. CloneFrom accepts any
// implementation, so forwarding layers can clone from their own types.
type Envelope interface {
	GetID() *string
	GetType() *PayloadKind
	GetRoute() *string
	GetTraceback() *string
	GetData() map[string]any
	GetUUID() *string
	GetDestination() *string
}

// MessagePayload is the envelope carried across every process boundary.
//
// A nil pointer field means unset, which is distinct from a set empty value.
// Data is never nil on envelopes built by this package.
//
// A MessagePayload is not safe for concurrent mutation. Hand it to one owner
// at a time, or Clone it before passing it to another goroutine.
type MessagePayload struct {
	ID          *string
	Type        *PayloadKind
	Route       *string
	Traceback   *string
	Data        map[string]any
	UUID        *string
	Destination *string
}

// Option sets one field of a MessagePayload under construction.
type Option func(*MessagePayload)

// WithID sets the id correlating a request with its response.
func WithID(id string) Option { return func(m *MessagePayload) { m.ID = ptr(id) } }

// WithType sets the payload kind. Codes outside the known set are accepted.
func WithType(kind PayloadKind) Option { return func(m *MessagePayload) { m.Type = ptr(kind) } }

// WithRoute sets the handler name a request targets.
func WithRoute(route string) Option { return func(m *MessagePayload) { m.Route = ptr(route) } }

// WithTraceback attaches diagnostic detail, normally to an error payload.
func WithTraceback(tb string) Option { return func(m *MessagePayload) { m.Traceback = ptr(tb) } }

// WithData sets the payload body. The map is stored as given; nil keeps the
// empty body.
func WithData(data map[string]any) Option {
	return func(m *MessagePayload) {
		if data == nil {
			data = map[string]any{}
		}
		m.Data = data
	}
}

// WithUUID sets the unique id of this message instance.
func WithUUID(id string) Option { return func(m *MessagePayload) { m.UUID = ptr(id) } }

// WithDestination sets the target process or peer id.
func WithDestination(dst string) Option {
	return func(m *MessagePayload) { m.Destination = ptr(dst) }
}

// NewMessagePayload builds an envelope from opts. Fields without an option
// stay unset and Data defaults to an empty map.
func NewMessagePayload(opts ...Option) *MessagePayload {
	m := &MessagePayload{Data: map[string]any{}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MessagePayload) GetID() *string          { return m.ID }
func (m *MessagePayload) GetType() *PayloadKind   { return m.Type }
func (m *MessagePayload) GetRoute() *string       { return m.Route }
func (m *MessagePayload) GetTraceback() *string   { return m.Traceback }
func (m *MessagePayload) GetData() map[string]any { return m.Data }
func (m *MessagePayload) GetUUID() *string        { return m.UUID }
func (m *MessagePayload) GetDestination() *string { return m.Destination }

// CloneFrom overwrites every field of m with the corresponding field of src
// and returns m. Unset fields on src become unset on m, and a nil src resets
// m to an empty envelope.
//
// Scalars are copied into fresh pointers. Data is deep-copied through nested
// maps and slices; other leaf values are shared.
func (m *MessagePayload) CloneFrom(src Envelope) *MessagePayload {
	if src == nil {
		*m = MessagePayload{Data: map[string]any{}}
		return m
	}
	m.ID = copyPtr(src.GetID())
	m.Type = copyPtr(src.GetType())
	m.Route = copyPtr(src.GetRoute())
	m.Data = cloneData(src.GetData())
	m.Traceback = copyPtr(src.GetTraceback())
	m.UUID = copyPtr(src.GetUUID())
	m.Destination = copyPtr(src.GetDestination())
	return m
}

// Clone returns an independent copy of m.
func (m *MessagePayload) Clone() *MessagePayload {
	return NewMessagePayload().CloneFrom(m)
}

// Classify wraps the envelope's kind in a TypeClassifier.
func (m *MessagePayload) Classify() TypeClassifier {
	return ClassifierFor(m.Type)
}

// ToMapping snapshots the envelope as an ordered key/value mapping for the
// encoding layer. Later changes to m do not affect the result.
func (m *MessagePayload) ToMapping() Mapping {
	var kind any
	if m.Type != nil {
		kind = *m.Type
	}
	return Mapping{
		{Key: KeyID, Value: strOrNil(m.ID)},
		{Key: KeyType, Value: kind},
		{Key: KeyRoute, Value: strOrNil(m.Route)},
		{Key: KeyData, Value: cloneData(m.Data)},
		{Key: KeyTraceback, Value: strOrNil(m.Traceback)},
		{Key: KeyUUID, Value: strOrNil(m.UUID)},
		{Key: KeyDestination, Value: strOrNil(m.Destination)},
	}
}

// MarshalJSON encodes the envelope's mapping with keys in mapping order.
// Unset fields are written as null.
func (m *MessagePayload) MarshalJSON() ([]byte, error) {
	return m.ToMapping().MarshalJSON()
}

// UnmarshalJSON decodes an envelope object. Missing or null fields are unset
// and a missing data object becomes empty. Numbers are accepted for id and
// uuid.
func (m *MessagePayload) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("decode payload: envelope is null")
	}
	mp := make(Mapping, 0, len(mappingKeys))
	for _, k := range mappingKeys {
		mp = append(mp, Entry{Key: k, Value: raw[k]})
	}
	*m = *FromMapping(mp)
	return nil
}

// IDString returns the id, or "" when unset.
func (m *MessagePayload) IDString() string { return deref(m.ID) }

// RouteName returns the route, or "" when unset.
func (m *MessagePayload) RouteName() string { return deref(m.Route) }

// DestinationID returns the destination, or "" when unset.
func (m *MessagePayload) DestinationID() string { return deref(m.Destination) }

// UUIDString returns the uuid, or "" when unset.
func (m *MessagePayload) UUIDString() string { return deref(m.UUID) }

func ptr[T any](v T) *T { return &v }

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func strOrNil(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

// cloneData deep-copies JSON-shaped containers. A nil map becomes empty.
func cloneData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return t
		}
		return cloneData(t)
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
