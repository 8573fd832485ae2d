package messages

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sethfduke/ipclink/auth"
)

// MessageType is the decoded request body handed to a route handler.
type MessageType any

// Factory creates a new, empty request body for a route.
type Factory func() MessageType

// Handler processes a decoded request body and returns the response body.
type Handler func(ctx context.Context, msg MessageType) (any, error)

// RegEntry holds the factory function and handler for a registered route.
type RegEntry struct {
	New     Factory
	Handler Handler
	Auth    *auth.AuthSpec

	// raw handlers receive the request payload itself.
	raw bool
}

// RouteSpec describes one route registration.
type RouteSpec struct {
	Name string
	Reg  RegEntry
}

// RouteOption is a function type used to configure route registration.
type RouteOption func(*RegEntry)

// WithAuth requires a verified token for the route, checked with the
// server's default validator.
func WithAuth() RouteOption {
	return func(entry *RegEntry) {
		entry.Auth = &auth.AuthSpec{Require: true}
	}
}

// WithCustomValidator requires a token for the route, checked with validator
// instead of the server's default.
func WithCustomValidator(validator auth.JWTValidator) RouteOption {
	return func(entry *RegEntry) {
		entry.Auth = &auth.AuthSpec{
			Require:   true,
			Validator: validator,
		}
	}
}

// Route registers a typed handler under name. The request data is decoded
// into a new *T before h runs.
func Route[T any](name string, h func(context.Context, *T) (any, error), opts ...RouteOption) RouteSpec {
	entry := RegEntry{
		New: func() MessageType { return new(T) },
		Handler: func(ctx context.Context, msg MessageType) (any, error) {
			return h(ctx, msg.(*T))
		},
	}

	for _, opt := range opts {
		opt(&entry)
	}

	return RouteSpec{
		Name: name,
		Reg:  entry,
	}
}

// RawRoute registers a handler that receives the request payload as is.
func RawRoute(name string, h func(context.Context, *MessagePayload) (any, error), opts ...RouteOption) RouteSpec {
	entry := RegEntry{
		raw: true,
		Handler: func(ctx context.Context, msg MessageType) (any, error) {
			return h(ctx, msg.(*MessagePayload))
		},
	}

	for _, opt := range opts {
		opt(&entry)
	}

	return RouteSpec{
		Name: name,
		Reg:  entry,
	}
}

// Call decodes req for the handler, runs it and normalises the result into
// a response body.
func (e RegEntry) Call(ctx context.Context, req *MessagePayload) (map[string]any, error) {
	var msg MessageType = req
	if !e.raw {
		msg = e.New()
		if err := DecodeData(req.Data, msg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", req.RouteName(), err)
		}
	}
	out, err := e.Handler(ctx, msg)
	if err != nil {
		return nil, err
	}
	return EncodeData(out)
}

// DecodeData fills into from a payload body.
func DecodeData(data map[string]any, into any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, into)
}

// EncodeData turns a handler result into a payload body. Maps are used as
// they are, nil becomes an empty body, values that encode to a JSON object
// are decoded into a map and anything else is wrapped as {"result": v}.
func EncodeData(v any) (map[string]any, error) {
	switch t := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		if t == nil {
			return map[string]any{}, nil
		}
		return t, nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	var obj map[string]any
	if len(b) > 0 && b[0] == '{' {
		if err := json.Unmarshal(b, &obj); err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		return obj, nil
	}
	return map[string]any{"result": v}, nil
}
