package client

import (
	"log/slog"
	"time"

	"github.com/sethfduke/ipclink/messages"

	"github.com/gorilla/websocket"
)

type options struct {
	token    string
	secret   []byte
	name     string
	tokenTTL time.Duration
	log      *slog.Logger
	dialer   *websocket.Dialer
	routes   []messages.RouteSpec
}

// Option configures Dial.
type Option func(*options)

// WithToken presents token as a bearer token when connecting.
func WithToken(token string) Option {
	return func(o *options) { o.token = token }
}

// WithSecret answers verification challenges with tokens signed by secret
// for the given peer name.
func WithSecret(secret []byte, name string) Option {
	return func(o *options) {
		o.secret = secret
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithDialer replaces the websocket dialer, e.g. to configure TLS.
func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) {
		if d != nil {
			o.dialer = d
		}
	}
}

// WithHandlers registers routes the client serves from the moment it connects.
func WithHandlers(specs ...messages.RouteSpec) Option {
	return func(o *options) { o.routes = append(o.routes, specs...) }
}

// RequestOption adjusts a request before it is sent.
type RequestOption func(*messages.MessagePayload)

// ToDestination addresses the request to another peer instead of the server.
func ToDestination(peerID string) RequestOption {
	return func(p *messages.MessagePayload) { p.Destination = &peerID }
}
