package server

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sethfduke/ipclink/messages"

	"github.com/gorilla/websocket"
)

var (
	// ErrSendBufferFull is returned when a peer's send buffer is at capacity.
	ErrSendBufferFull = errors.New("peer send buffer full")
	// ErrPeerClosed is returned when sending to a peer that has been closed.
	ErrPeerClosed = errors.New("peer closed")
)

// Peer is one connected process. Outbound payloads are queued and written by
// a single write pump, which also owns keep-alive pings.
type Peer struct {
	ID   string `json:"id"`
	Conn *websocket.Conn

	sendCh chan []byte
	mu     sync.Mutex
	closed bool
	done   chan struct{}

	writeWait    time.Duration
	pingInterval time.Duration
	pingTimeout  time.Duration
	pingHandler  func(appData string) error
	pongHandler  func(appData string) error
}

// NewPeer creates a Peer with the specified ID, WebSocket connection, and send buffer size.
// Uses default ping settings (30 second interval, 5 second timeout).
func NewPeer(id string, conn *websocket.Conn, buf int) *Peer {
	return NewPeerWithPing(id, conn, buf, 30*time.Second, 5*time.Second, nil, nil)
}

// NewPeerWithPing creates a Peer with custom ping/pong configuration.
func NewPeerWithPing(id string, conn *websocket.Conn, buf int, pingInterval, pingTimeout time.Duration, pingHandler, pongHandler func(string) error) *Peer {
	return &Peer{
		ID:           id,
		Conn:         conn,
		sendCh:       make(chan []byte, buf),
		done:         make(chan struct{}),
		writeWait:    10 * time.Second,
		pingInterval: pingInterval,
		pingTimeout:  pingTimeout,
		pingHandler:  pingHandler,
		pongHandler:  pongHandler,
	}
}

// SendPayload queues p for the peer. It returns ErrSendBufferFull if the
// send buffer is at capacity and ErrPeerClosed after Close.
func (p *Peer) SendPayload(m *messages.MessagePayload) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPeerClosed
	}
	select {
	case p.sendCh <- b:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// writePump writes queued payloads to the connection until the send channel
// is closed, sending periodic pings when an interval is configured. The
// connection is closed when it returns.
func (p *Peer) writePump() {
	defer close(p.done)
	defer p.Conn.Close()

	if p.pingHandler != nil {
		p.Conn.SetPingHandler(p.pingHandler)
	}

	var tick <-chan time.Time
	if p.pingInterval > 0 {
		t := time.NewTicker(p.pingInterval)
		defer t.Stop()
		tick = t.C
	}
	pingTimeout := p.pingTimeout
	if pingTimeout == 0 {
		pingTimeout = 5 * time.Second
	}

	for {
		select {
		case msg, ok := <-p.sendCh:
			_ = p.Conn.SetWriteDeadline(time.Now().Add(p.writeWait))
			if !ok {
				_ = p.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := p.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-tick:
			if err := p.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pingTimeout)); err != nil {
				return
			}
		}
	}
}

// Done is closed once the write pump has exited.
func (p *Peer) Done() <-chan struct{} { return p.done }

// Close stops accepting payloads. Queued payloads are still flushed by the
// write pump before it closes the connection.
func (p *Peer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.sendCh)
	}
}
