package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sethfduke/ipclink/auth"
	"github.com/sethfduke/ipclink/messages"
	"github.com/sethfduke/ipclink/metrics"
	"github.com/sethfduke/ipclink/store"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ErrPeerNotFound is returned when a destination is not connected.
	ErrPeerNotFound = errors.New("peer not found")
	// ErrDuplicateRequest is reported for a request uuid that was already dispatched.
	ErrDuplicateRequest = errors.New("duplicate request")
	// ErrRateLimited is reported when a peer exceeds its message rate.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrRelayPending is reported for a relayed request whose uuid is still
	// awaiting a reply.
	ErrRelayPending = errors.New("relay already pending")
)

// ctxKey is a custom type for context keys to avoid collisions.
type ctxKey string

const (
	// ctxKeyPeerID is the context key used to store peer IDs.
	ctxKeyPeerID ctxKey = "peerID"
	// ctxKeyClaims is the context key used to store JWT claims.
	ctxKeyClaims ctxKey = "claims"
	// ctxKeyToken is the context key for storing the JWT token
	ctxKeyToken ctxKey = "jwtToken"
)

const (
	// DefaultName is the destination that addresses the server itself.
	DefaultName = "server"

	maxPayloadBytes = 1 << 20
	relayTTL        = 5 * time.Minute
)

// rateLimiter tracks message rate for a peer
type rateLimiter struct {
	count     int
	resetTime time.Time
	mu        sync.Mutex
}

// relay remembers which peer is waiting for the reply to a relayed request
// and which peer owes it.
type relay struct {
	peer   string
	target string
	at     time.Time
}

// session is the per-connection state of the read loop.
type session struct {
	ctx  context.Context
	peer *Peer
}

// IPCServer accepts peer processes over WebSocket and exchanges
// MessagePayload envelopes with them. Requests addressed to the server are
// dispatched to registered routes; requests addressed to another peer are
// relayed, and the reply is relayed back to the caller.
type IPCServer struct {
	Upgrader websocket.Upgrader
	Log      Logger

	// customLog is set when the logger was supplied through an option.
	customLog bool

	RouteRegistry map[string]messages.RegEntry
	regMu         sync.RWMutex

	peers   map[string]*Peer
	peersMu sync.RWMutex

	relays  map[string]relay
	relayMu sync.Mutex

	Name     string
	Port     int
	Host     string
	LogLevel int

	jwtValidator auth.JWTValidator
	requireJWT   bool

	tlsEnabled bool
	tlsDev     bool
	tlsCert    string
	tlsKey     string
	tlsConfig  *tls.Config

	pingInterval time.Duration
	pingTimeout  time.Duration
	pingHandler  func(appData string) error
	pongHandler  func(appData string) error

	healthEndpoint  string
	metricsEndpoint string
	metrics         *metrics.Metrics
	gatherer        prometheus.Gatherer

	maxConnections   int
	handshakeTimeout time.Duration
	messageRateLimit int // messages per minute per peer

	clientRateMap map[string]*rateLimiter
	rateMu        sync.RWMutex

	store        store.Store
	processedTTL time.Duration

	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration

	startedAt time.Time
	httpSrv   *http.Server
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewIPCServer creates a new IPCServer instance with the provided options.
// It initializes default logging, WebSocket upgrader, and applies all given options.
func NewIPCServer(opts ...Option) *IPCServer {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.Level(0),
	})
	logger := slog.New(handler)

	s := &IPCServer{
		Upgrader:         websocket.Upgrader{EnableCompression: true},
		RouteRegistry:    make(map[string]messages.RegEntry),
		peers:            make(map[string]*Peer),
		relays:           make(map[string]relay),
		clientRateMap:    make(map[string]*rateLimiter),
		Log:              &slogLogger{l: logger},
		Name:             DefaultName,
		handshakeTimeout: 10 * time.Second,
		processedTTL:     24 * time.Hour,
		readTimeout:      15 * time.Second,
		writeTimeout:     15 * time.Second,
		idleTimeout:      60 * time.Second,
		startedAt:        time.Now(),
		stop:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		s.store = store.NewMemoryStore(store.DefaultMemorySize, s.processedTTL)
	}

	return s
}

// NewDefaultServer creates an IPCServer with a sensible default configuration.
// It sets localhost:9999, enables compression, and uses Info log level.
func NewDefaultServer() *IPCServer {
	return NewIPCServer(
		Host("localhost"),
		WithPort(9999),
		WithCompression(true),
		WithLogLevel(int(slog.LevelInfo)),
	)
}

// Handler returns the HTTP routes served by the server: the WebSocket
// endpoint at /ws plus the optional health and metrics endpoints.
func (s *IPCServer) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.wsHandler)

	if s.healthEndpoint != "" {
		r.HandleFunc(s.healthEndpoint, s.healthHandler).Methods(http.MethodGet)
	}
	if s.metricsEndpoint != "" {
		g := s.gatherer
		if g == nil {
			g = prometheus.DefaultGatherer
		}
		r.Handle(s.metricsEndpoint, promhttp.HandlerFor(g, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return r
}

// Serve starts the HTTP server and begins accepting peers. It blocks until
// the server fails or Shutdown is called.
func (s *IPCServer) Serve() error {
	s.setupLogging(s.LogLevel)
	go s.maintain(5 * time.Minute)

	addr := s.Host + ":" + strconv.Itoa(s.Port)
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  s.idleTimeout,
	}
	s.httpSrv = httpSrv

	err := s.listen(httpSrv, addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *IPCServer) listen(httpSrv *http.Server, addr string) error {
	if !s.tlsEnabled {
		s.Log.Info("http listen", "addr", addr)
		return httpSrv.ListenAndServe()
	}

	if s.tlsDev {
		cert, err := GenerateDevCert(365 * 24 * time.Hour)
		if err != nil {
			s.Log.Error("dev tls cert generation failed", "err", err)
			return err
		}
		s.tlsConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
		s.Log.Info("https (dev) listen", "addr", addr)
		return s.serveTLS(httpSrv, addr)
	}

	if s.tlsConfig != nil {
		s.Log.Info("https (cfg) listen", "addr", addr)
		return s.serveTLS(httpSrv, addr)
	}

	s.Log.Info("https listen", "addr", addr, "cert", s.tlsCert, "key", s.tlsKey)
	return httpSrv.ListenAndServeTLS(s.tlsCert, s.tlsKey)
}

func (s *IPCServer) serveTLS(httpSrv *http.Server, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.Log.Error("listen failed", "addr", addr, "err", err)
		return err
	}
	return httpSrv.Serve(tls.NewListener(ln, s.tlsConfig))
}

// Shutdown stops accepting peers, closes every connected peer and releases
// the processed-message store.
func (s *IPCServer) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })

	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}

	s.peersMu.RLock()
	for _, p := range s.peers {
		p.Close()
	}
	s.peersMu.RUnlock()

	if cerr := s.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// setupLogging configures the server's logging system with the specified log
// level. A logger supplied through WithLogger or WithSlog is left alone.
func (s *IPCServer) setupLogging(level int) {
	if s.customLog {
		return
	}
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.Level(level)})
	l := slog.New(h)
	slog.SetDefault(l)
	s.Log = &slogLogger{l: l}
}

// maintain periodically drops stale rate limiters and relays until Shutdown.
func (s *IPCServer) maintain(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.cleanupRateLimiters()
			s.cleanupRelays()
		}
	}
}

// healthHandler handles health check requests
func (s *IPCServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.peersMu.RLock()
	peerCount := len(s.peers)
	s.peersMu.RUnlock()

	s.regMu.RLock()
	routeCount := len(s.RouteRegistry)
	s.regMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := map[string]interface{}{
		"status":    "ok",
		"name":      s.Name,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"peers":     peerCount,
		"routes":    routeCount,
		"uptime":    time.Since(s.startedAt).String(),
	}

	if maxConn := s.maxConnections; maxConn > 0 {
		response["max_connections"] = maxConn
	}

	_ = json.NewEncoder(w).Encode(response)
}

// checkRateLimit checks if a peer has exceeded its message rate limit
func (s *IPCServer) checkRateLimit(peerID string) bool {
	if s.messageRateLimit <= 0 {
		return true
	}

	s.rateMu.Lock()
	defer s.rateMu.Unlock()

	now := time.Now()
	limiter, exists := s.clientRateMap[peerID]
	if !exists {
		limiter = &rateLimiter{
			count:     1,
			resetTime: now.Add(time.Minute),
		}
		s.clientRateMap[peerID] = limiter
		return true
	}

	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	if now.After(limiter.resetTime) {
		limiter.count = 1
		limiter.resetTime = now.Add(time.Minute)
		return true
	}

	if limiter.count >= s.messageRateLimit {
		return false
	}

	limiter.count++
	return true
}

// cleanupRateLimiters removes old rate limiters to prevent memory leaks
func (s *IPCServer) cleanupRateLimiters() {
	s.rateMu.Lock()
	defer s.rateMu.Unlock()

	now := time.Now()
	for peerID, limiter := range s.clientRateMap {
		limiter.mu.Lock()
		if now.After(limiter.resetTime.Add(5 * time.Minute)) {
			delete(s.clientRateMap, peerID)
		}
		limiter.mu.Unlock()
	}
}

// cleanupRelays forgets relayed requests whose reply never arrived.
func (s *IPCServer) cleanupRelays() {
	s.relayMu.Lock()
	defer s.relayMu.Unlock()

	cutoff := time.Now().Add(-relayTTL)
	for id, r := range s.relays {
		if r.at.Before(cutoff) {
			delete(s.relays, id)
		}
	}
}

// wsHandler handles incoming WebSocket connection requests.
// It upgrades the connection, runs the verification handshake and then
// processes payloads until the peer disconnects.
func (s *IPCServer) wsHandler(w http.ResponseWriter, r *http.Request) {
	s.Log.Debug("received request", "method", r.Method, "path", r.URL.Path)

	if s.maxConnections > 0 {
		s.peersMu.RLock()
		currentConnections := len(s.peers)
		s.peersMu.RUnlock()

		if currentConnections >= s.maxConnections {
			s.Log.Warn("connection limit reached", "current", currentConnections, "max", s.maxConnections)
			http.Error(w, "Service Unavailable: Connection limit reached", http.StatusServiceUnavailable)
			return
		}
	}

	rawToken, _ := auth.BearerFromRequest(r)

	c, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Error("upgrade failed", "error", err)
		return
	}
	c.SetReadLimit(maxPayloadBytes)

	id := uuid.NewString()
	s.Log.Debug("verifying peer", "id", id)

	claims, token, err := s.verify(c, id, rawToken)
	if err != nil {
		s.Log.Warn("verification failed", "id", id, "err", err)
		s.rejectPeer(c, id, err)
		return
	}

	s.keepAlive(c)

	peer := NewPeerWithPing(id, c, 128, s.pingInterval, s.pingTimeout, s.pingHandler, s.pongHandler)
	peer.writeWait = s.writeTimeout
	s.addPeer(id, peer)

	go peer.writePump()

	defer func() {
		s.Log.Debug("unregistering peer", "id", id)
		s.removePeer(id)
		peer.Close()
		select {
		case <-peer.Done():
		case <-time.After(s.writeTimeout):
			_ = c.Close()
		}
	}()

	s.send(peer, messages.NewSuccess(id, map[string]any{
		messages.PeerIDKey:   id,
		messages.VerifiedKey: claims != nil,
	}))

	ctx := WithPeerID(r.Context(), id)
	if token != "" {
		ctx = WithToken(ctx, token)
	}
	if claims != nil {
		ctx = WithClaims(ctx, claims)
	}
	sess := &session{ctx: ctx, peer: peer}

	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			if !isNormalDisconnect(err) {
				s.Log.Error("ws read error", "id", id, "err", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			s.Log.Debug("ws message not text message", "id", id)
			continue
		}

		var p messages.MessagePayload
		if err := json.Unmarshal(data, &p); err != nil {
			s.Log.Error("bad envelope", "id", id, "err", err)
			s.send(peer, messages.Fail(messages.NewMessagePayload(messages.WithDestination(id)),
				errors.New("invalid envelope")))
			return
		}
		s.metrics.Received(&p)

		if !s.checkRateLimit(id) {
			s.Log.Warn("rate limit exceeded", "peer", id, "limit", s.messageRateLimit)
			s.send(peer, messages.Fail(&p, ErrRateLimited))
			continue
		}

		s.handlePayload(sess, &p)
	}
}

// keepAlive arms read deadlines that are pushed back by every pong.
func (s *IPCServer) keepAlive(c *websocket.Conn) {
	if s.pingInterval <= 0 {
		return
	}
	pongWait := s.pingTimeout
	if pongWait <= 0 {
		pongWait = 5 * time.Second
	}

	// time until next ping plus pong timeout
	pongReadDeadline := s.pingInterval + pongWait

	c.SetPongHandler(func(appData string) error {
		if s.pongHandler != nil {
			if err := s.pongHandler(appData); err != nil {
				return err
			}
		}
		return c.SetReadDeadline(time.Now().Add(pongReadDeadline))
	})
	_ = c.SetReadDeadline(time.Now().Add(pongReadDeadline))
}

// handlePayload branches on the payload kind.
func (s *IPCServer) handlePayload(sess *session, p *messages.MessagePayload) {
	kind := p.Classify()
	peer := sess.peer

	switch {
	case kind.IsRequest():
		if dst := p.DestinationID(); dst != "" && dst != s.Name {
			if err := s.relay(peer.ID, p); err != nil {
				s.Log.Warn("relay failed", "from", peer.ID, "to", dst, "err", err)
				s.send(peer, messages.Fail(p, err))
			}
			return
		}
		s.send(peer, s.dispatch(sess.ctx, p))

	case kind.IsResponse(), kind.IsError():
		s.relayBack(peer.ID, p)

	case kind.IsVerification():
		s.reverify(sess, p)

	case kind.IsSuccess():
		s.Log.Debug("ignoring success payload", "peer", peer.ID, "uuid", p.UUIDString())

	default:
		s.Log.Warn("unrecognized payload", "peer", peer.ID, "kind", kind.Describe())
		s.send(peer, messages.Fail(p, fmt.Errorf("unrecognized payload type %s", kind.Describe())))
	}
}

// dispatch runs the route a request names and returns the response or error
// payload for it.
func (s *IPCServer) dispatch(ctx context.Context, req *messages.MessagePayload) (res *messages.MessagePayload) {
	route := req.RouteName()
	peerID, ok := PeerIDFrom(ctx)
	if !ok {
		peerID = "unknown"
	}
	s.Log.Debug("dispatching request", "route", route, "uuid", req.UUIDString(), "peer", peerID)

	s.regMu.RLock()
	entry, ok := s.RouteRegistry[route]
	s.regMu.RUnlock()
	if !ok {
		return messages.Fail(req, fmt.Errorf("unknown route %q", route))
	}

	if entry.Auth != nil && entry.Auth.Require {
		claims, err := s.authorize(ctx, entry.Auth)
		if err != nil {
			return messages.Fail(req, err)
		}
		if !claims.AllowsRoute(route) {
			return messages.Fail(req, fmt.Errorf("unauthorized: route %q not granted", route))
		}
		ctx = WithClaims(ctx, claims)
	}

	// Claimed before the handler runs. A concurrent redelivery loses the claim.
	if uid := req.UUIDString(); uid != "" {
		won, err := s.store.Claim(ctx, uid, s.processedTTL)
		if err != nil {
			s.Log.Error("processed claim failed", "uuid", uid, "err", err)
		} else if !won {
			return messages.Fail(req, fmt.Errorf("%w: %s", ErrDuplicateRequest, uid))
		}
	}

	defer func() {
		if r := recover(); r != nil {
			s.Log.Error("route panicked", "route", route, "panic", r)
			s.metrics.RouteFailed(route)
			res = messages.Fail(req, fmt.Errorf("panic: %v\n%s", r, debug.Stack()))
		}
	}()

	out, err := entry.Call(newRctx(ctx, s, peerID, req), req)

	if err != nil {
		s.Log.Debug("route failed", "route", route, "err", err)
		s.metrics.RouteFailed(route)
		return messages.Fail(req, err)
	}
	return messages.Reply(req, out)
}

// authorize resolves the claims a route requires. Claims established during
// the handshake are reused when the route uses the server's validator.
func (s *IPCServer) authorize(ctx context.Context, spec *auth.AuthSpec) (*auth.JWTClaims, error) {
	if spec.Validator == nil {
		return nil, errors.New("auth required but no validator configured")
	}
	if claims, ok := ClaimsFrom(ctx); ok && spec.Validator == s.jwtValidator {
		return claims, nil
	}
	tok, ok := TokenFrom(ctx)
	if !ok || tok == "" {
		return nil, errors.New("unauthorized: token required")
	}
	claims, err := spec.Validator.ParseAndValidate(tok)
	if err != nil {
		return nil, fmt.Errorf("unauthorized: %w", err)
	}
	return claims, nil
}

// relay forwards a request to the peer it names and remembers the caller.
func (s *IPCServer) relay(fromID string, req *messages.MessagePayload) error {
	dst := req.DestinationID()
	s.peersMu.RLock()
	target := s.peers[dst]
	s.peersMu.RUnlock()

	if target == nil {
		return fmt.Errorf("%w: %s", ErrPeerNotFound, dst)
	}

	uid := req.UUIDString()
	if uid != "" {
		s.relayMu.Lock()
		if _, pending := s.relays[uid]; pending {
			s.relayMu.Unlock()
			return fmt.Errorf("%w: %s", ErrRelayPending, uid)
		}
		s.relays[uid] = relay{peer: fromID, target: dst, at: time.Now()}
		s.relayMu.Unlock()
	}

	if err := s.sendErr(target, req); err != nil {
		if uid != "" {
			s.relayMu.Lock()
			delete(s.relays, uid)
			s.relayMu.Unlock()
		}
		return err
	}
	return nil
}

// relayBack returns a response or error to the peer awaiting it. Only the
// peer the request was relayed to may answer it.
func (s *IPCServer) relayBack(fromID string, p *messages.MessagePayload) {
	uid := p.UUIDString()
	s.relayMu.Lock()
	r, ok := s.relays[uid]
	if ok && r.target == fromID {
		delete(s.relays, uid)
	}
	s.relayMu.Unlock()

	if !ok {
		s.Log.Warn("dropping unsolicited reply", "from", fromID, "uuid", uid, "kind", p.Classify().Label())
		return
	}
	if r.target != fromID {
		s.Log.Warn("dropping reply from wrong peer", "from", fromID, "expected", r.target, "uuid", uid)
		return
	}
	p.Destination = &r.peer
	if err := s.Send(r.peer, p); err != nil {
		s.Log.Warn("reply relay failed", "from", fromID, "to", r.peer, "err", err)
	}
}

// Send queues p for the peer with the given id.
func (s *IPCServer) Send(peerID string, p *messages.MessagePayload) error {
	s.peersMu.RLock()
	peer, ok := s.peers[peerID]
	s.peersMu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrPeerNotFound, peerID)
	}
	return s.sendErr(peer, p)
}

// Broadcast sends a copy of p, addressed to each peer, to every connected
// peer. It returns the number of peers the payload was queued for.
func (s *IPCServer) Broadcast(p *messages.MessagePayload) int {
	s.peersMu.RLock()
	targets := make([]*Peer, 0, len(s.peers))
	for _, peer := range s.peers {
		targets = append(targets, peer)
	}
	s.peersMu.RUnlock()

	count := 0
	for _, peer := range targets {
		cp := p.Clone()
		cp.Destination = &peer.ID
		if err := s.sendErr(peer, cp); err == nil {
			count++
		}
	}
	return count
}

func (s *IPCServer) sendErr(peer *Peer, p *messages.MessagePayload) error {
	if err := peer.SendPayload(p); err != nil {
		return err
	}
	s.metrics.Sent(p)
	return nil
}

func (s *IPCServer) send(peer *Peer, p *messages.MessagePayload) {
	if err := s.sendErr(peer, p); err != nil {
		s.Log.Error("send failed", "peer", peer.ID, "kind", p.Classify().Label(), "err", err)
	}
}

// addPeer registers a new peer connection with the server.
func (s *IPCServer) addPeer(id string, peer *Peer) {
	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	if s.peers == nil {
		s.peers = make(map[string]*Peer)
	}
	s.peers[id] = peer
	s.metrics.SetPeers(len(s.peers))
	s.Log.Info("peer connected", "id", id, "peers", len(s.peers))
}

// removePeer unregisters a peer connection from the server.
func (s *IPCServer) removePeer(id string) {
	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	delete(s.peers, id)
	s.metrics.SetPeers(len(s.peers))

	s.rateMu.Lock()
	delete(s.clientRateMap, id)
	s.rateMu.Unlock()

	s.Log.Info("peer disconnected", "id", id, "peers", len(s.peers))
}

// Peers returns the ids of the connected peers.
func (s *IPCServer) Peers() []string {
	s.peersMu.RLock()
	defer s.peersMu.RUnlock()
	ids := make([]string, 0, len(s.peers))
	for id := range s.peers {
		ids = append(ids, id)
	}
	return ids
}

// Register adds one or more route specifications to the server's route registry.
func (s *IPCServer) Register(specs ...messages.RouteSpec) {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	if s.RouteRegistry == nil {
		s.RouteRegistry = make(map[string]messages.RegEntry)
	}
	for _, sp := range specs {
		entry := sp.Reg
		if entry.Auth != nil && entry.Auth.Require && entry.Auth.Validator == nil {
			entry.Auth.Validator = s.jwtValidator
			if entry.Auth.Validator == nil {
				s.Log.Error("auth-required route registered but no default JWT validator set",
					"route", sp.Name)
			}
		}
		s.RouteRegistry[sp.Name] = entry
	}
}

// isNormalDisconnect checks if an error represents a normal WebSocket disconnection
// that doesn't require error logging.
func isNormalDisconnect(err error) bool {
	if err == nil {
		return false
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure,
	) {
		return true
	}

	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}

	var ne *net.OpError
	if errors.As(err, &ne) {
		return true
	}

	if errors.Is(err, syscall.EPIPE) {
		return true
	}

	msg := err.Error()
	if strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "unexpected EOF") {
		return true
	}

	return false
}

// WithPeerID returns a child context that carries the peer id.
func WithPeerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyPeerID, id)
}

// PeerIDFrom extracts the peer id from context.
func PeerIDFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyPeerID).(string)
	return v, ok
}

// WithClaims returns a child context that carries the JWT claims.
func WithClaims(ctx context.Context, c *auth.JWTClaims) context.Context {
	return context.WithValue(ctx, ctxKeyClaims, c)
}

// ClaimsFrom extracts the JWT claims from context.
func ClaimsFrom(ctx context.Context) (*auth.JWTClaims, bool) {
	v, ok := ctx.Value(ctxKeyClaims).(*auth.JWTClaims)
	return v, ok
}

// WithToken returns a child context that carries the JWT token.
func WithToken(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, ctxKeyToken, t)
}

// TokenFrom extracts the JWT token from the context.
func TokenFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyToken).(string)
	return v, ok
}
