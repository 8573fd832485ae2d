// Package client connects a Go process to an ipclink server. A Client sends
// requests and waits for their replies, and can serve routes that other peers
// address to it through the server.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethfduke/ipclink/auth"
	"github.com/sethfduke/ipclink/messages"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	// ErrClosed is returned by calls on a closed Client.
	ErrClosed = errors.New("client closed")
	// ErrNoSecret is returned when the server challenges a client that has
	// no secret to sign the answer with.
	ErrNoSecret = errors.New("server requested verification but no secret is configured")
)

const defaultHandshakeTimeout = 10 * time.Second

// Client is a single connection to the server.
type Client struct {
	conn *websocket.Conn
	log  *slog.Logger
	opts options

	id       string
	verified atomic.Bool

	writeMu sync.Mutex

	pendMu  sync.Mutex
	pending map[string]chan *messages.MessagePayload

	routesMu sync.RWMutex
	routes   map[string]messages.RegEntry

	closed    chan struct{}
	closeOnce sync.Once
}

// Dial connects to the server at url and completes the verification
// handshake before returning.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	o := options{
		dialer:   websocket.DefaultDialer,
		name:     "client",
		tokenTTL: time.Minute,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	header := http.Header{}
	if o.token != "" {
		header.Set("Authorization", "Bearer "+o.token)
	}

	conn, _, err := o.dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Client{
		conn:    conn,
		log:     o.log,
		opts:    o,
		pending: make(map[string]chan *messages.MessagePayload),
		routes:  make(map[string]messages.RegEntry),
		closed:  make(chan struct{}),
	}
	c.Handle(o.routes...)

	if err := c.handshake(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	c.log.Debug("session open", "id", c.id, "verified", c.verified.Load())

	go c.readLoop()
	return c, nil
}

// ID returns the peer id the server assigned to this client.
func (c *Client) ID() string { return c.id }

// Verified reports whether the server verified this client's token.
func (c *Client) Verified() bool { return c.verified.Load() }

func (c *Client) handshake(ctx context.Context) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultHandshakeTimeout)
	}
	_ = c.conn.SetReadDeadline(deadline)
	defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()

	for {
		p, err := c.read()
		if err != nil {
			return fmt.Errorf("handshake: %w", err)
		}

		kind := p.Classify()
		switch {
		case kind.IsVerification():
			if len(c.opts.secret) == 0 {
				return ErrNoSecret
			}
			nonce, _ := messages.StringData(p, messages.ChallengeKey)
			tok, err := auth.SignChallenge(c.opts.secret, c.opts.name, nonce, c.opts.tokenTTL)
			if err != nil {
				return fmt.Errorf("sign challenge: %w", err)
			}
			if err := c.write(messages.NewVerificationAnswer(p, tok)); err != nil {
				return fmt.Errorf("answer challenge: %w", err)
			}
		case kind.IsSuccess():
			c.id, _ = messages.StringData(p, messages.PeerIDKey)
			verified, _ := p.Data[messages.VerifiedKey].(bool)
			c.verified.Store(verified)
			return nil
		case kind.IsError():
			return messages.AsRemoteError(p)
		default:
			return fmt.Errorf("handshake: unexpected %s payload", kind.Label())
		}
	}
}

// Handle registers routes this client serves when another peer targets it.
func (c *Client) Handle(specs ...messages.RouteSpec) {
	c.routesMu.Lock()
	defer c.routesMu.Unlock()
	for _, sp := range specs {
		c.routes[sp.Name] = sp.Reg
	}
}

// Request sends a request for route and waits for the reply. An error
// payload is returned as a *messages.RemoteError.
func (c *Client) Request(ctx context.Context, route string, data map[string]any, opts ...RequestOption) (*messages.MessagePayload, error) {
	req := messages.NewRequest(route, data)
	for _, opt := range opts {
		opt(req)
	}
	res, err := c.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}
	if rerr := messages.AsRemoteError(res); rerr != nil {
		return nil, rerr
	}
	return res, nil
}

// Reverify presents a new token for the live session.
func (c *Client) Reverify(ctx context.Context, token string) error {
	p := messages.NewMessagePayload(
		messages.WithID(uuid.NewString()),
		messages.WithType(messages.KindVerification),
		messages.WithUUID(uuid.NewString()),
		messages.WithData(map[string]any{messages.TokenKey: token}),
	)
	res, err := c.roundTrip(ctx, p)
	if err != nil {
		return err
	}
	if rerr := messages.AsRemoteError(res); rerr != nil {
		return rerr
	}
	c.verified.Store(true)
	return nil
}

func (c *Client) roundTrip(ctx context.Context, p *messages.MessagePayload) (*messages.MessagePayload, error) {
	uid := p.UUIDString()
	ch := make(chan *messages.MessagePayload, 1)

	c.pendMu.Lock()
	c.pending[uid] = ch
	c.pendMu.Unlock()
	defer func() {
		c.pendMu.Lock()
		delete(c.pending, uid)
		c.pendMu.Unlock()
	}()

	select {
	case <-c.closed:
		return nil, ErrClosed
	default:
	}

	if err := c.write(p); err != nil {
		return nil, err
	}

	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, ErrClosed
	}
}

func (c *Client) readLoop() {
	defer c.Close()
	for {
		p, err := c.read()
		if err != nil {
			select {
			case <-c.closed:
			default:
				c.log.Debug("read loop stopped", "id", c.id, "err", err)
			}
			return
		}

		kind := p.Classify()
		switch {
		case kind.IsRequest():
			go c.serve(p)
		case kind.IsRecognized():
			if !c.deliver(p) {
				c.log.Debug("unmatched payload", "kind", kind.Label(), "uuid", p.UUIDString())
			}
		default:
			c.log.Warn("unrecognized payload", "kind", kind.Describe())
		}
	}
}

func (c *Client) deliver(p *messages.MessagePayload) bool {
	c.pendMu.Lock()
	ch, ok := c.pending[p.UUIDString()]
	c.pendMu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- p:
	default:
	}
	return true
}

// serve runs a route addressed to this client and sends the reply back
// through the server.
func (c *Client) serve(req *messages.MessagePayload) {
	route := req.RouteName()
	c.routesMu.RLock()
	entry, ok := c.routes[route]
	c.routesMu.RUnlock()

	var res *messages.MessagePayload
	if !ok {
		res = messages.Fail(req, fmt.Errorf("unknown route %q", route))
	} else if out, err := entry.Call(context.Background(), req); err != nil {
		res = messages.Fail(req, err)
	} else {
		res = messages.Reply(req, out)
	}

	if err := c.write(res); err != nil {
		c.log.Warn("reply failed", "route", route, "uuid", req.UUIDString(), "err", err)
	}
}

func (c *Client) read() (*messages.MessagePayload, error) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt != websocket.TextMessage {
			continue
		}
		var p messages.MessagePayload
		if err := json.Unmarshal(data, &p); err != nil {
			c.log.Warn("bad envelope", "err", err)
			continue
		}
		return &p, nil
	}
}

func (c *Client) write(p *messages.MessagePayload) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Close ends the session. Pending requests fail with ErrClosed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		close(c.closed)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
