package server

import (
	"context"
	"time"

	"github.com/sethfduke/ipclink/messages"
)

// RequestContext is the context handed to route handlers. Besides the usual
// context.Context behaviour it identifies the calling peer and lets the
// handler push payloads to other peers.
type RequestContext interface {
	context.Context
	PeerID() string
	Request() *messages.MessagePayload
	SendTo(peerID, route string, data map[string]any, opts ...SendOpt) error
	Broadcast(route string, data map[string]any, opts ...SendOpt) int
}

// RequestContextFrom returns the RequestContext behind ctx, if any.
func RequestContextFrom(ctx context.Context) (RequestContext, bool) {
	rc, ok := ctx.(RequestContext)
	return rc, ok
}

// SendOpt is a function type used to configure payloads pushed from a handler.
type SendOpt func(*sendOpts)

// sendOpts holds the envelope fields a handler may override when pushing.
type sendOpts struct {
	kind messages.PayloadKind
	id   string
}

// WithKind sets the payload kind. Pushed payloads are requests by default.
func WithKind(k messages.PayloadKind) SendOpt { return func(o *sendOpts) { o.kind = k } }

// WithCorrelation sets the payload id, which otherwise defaults to the id of
// the request being handled.
func WithCorrelation(id string) SendOpt { return func(o *sendOpts) { o.id = id } }

// rctx is the concrete implementation of RequestContext.
type rctx struct {
	base   context.Context
	s      *IPCServer
	peerID string
	req    *messages.MessagePayload
}

func newRctx(base context.Context, s *IPCServer, peerID string, req *messages.MessagePayload) *rctx {
	return &rctx{base: base, s: s, peerID: peerID, req: req}
}

func (r *rctx) Deadline() (time.Time, bool) { return r.base.Deadline() }
func (r *rctx) Done() <-chan struct{}       { return r.base.Done() }
func (r *rctx) Err() error                  { return r.base.Err() }
func (r *rctx) Value(key any) any           { return r.base.Value(key) }

// PeerID returns the id of the peer that sent the request.
func (r *rctx) PeerID() string { return r.peerID }

// Request returns a copy of the request being handled.
func (r *rctx) Request() *messages.MessagePayload { return r.req.Clone() }

func (r *rctx) build(route string, data map[string]any, opts []SendOpt) *messages.MessagePayload {
	o := &sendOpts{kind: messages.KindRequest, id: r.req.IDString()}
	for _, fn := range opts {
		fn(o)
	}
	p := messages.NewRequest(route, data)
	p.Type = &o.kind
	if o.id != "" {
		p.ID = &o.id
	}
	return p
}

// SendTo pushes a payload for route to a single peer.
func (r *rctx) SendTo(peerID, route string, data map[string]any, opts ...SendOpt) error {
	p := r.build(route, data, opts)
	p.Destination = &peerID
	return r.s.Send(peerID, p)
}

// Broadcast pushes a payload for route to every connected peer and returns
// how many peers it was queued for.
func (r *rctx) Broadcast(route string, data map[string]any, opts ...SendOpt) int {
	return r.s.Broadcast(r.build(route, data, opts))
}
