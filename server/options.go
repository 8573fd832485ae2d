package server

import (
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethfduke/ipclink/auth"
	"github.com/sethfduke/ipclink/metrics"
	"github.com/sethfduke/ipclink/store"

	"github.com/prometheus/client_golang/prometheus"
)

// Option is a function type used to configure IPCServer instances.
type Option func(*IPCServer)

// WithCheckOrigin sets a function to check the origin of WebSocket upgrade requests.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(s *IPCServer) {
		s.Upgrader.CheckOrigin = fn
	}
}

// WithCompression enables or disables WebSocket compression.
func WithCompression(enabled bool) Option {
	return func(s *IPCServer) {
		s.Upgrader.EnableCompression = enabled
	}
}

// Host sets the host address for the server to bind to.
func Host(host string) Option {
	return func(s *IPCServer) {
		s.Host = host
	}
}

// WithPort sets the port number for the server to listen on.
func WithPort(port int) Option {
	return func(s *IPCServer) {
		s.Port = port
	}
}

// WithLogLevel sets the logging level for the server.
func WithLogLevel(logLevel int) Option {
	return func(s *IPCServer) {
		s.LogLevel = logLevel
	}
}

// WithHS256JWT enables JWT authentication using HS256 signing algorithm with the provided secret.
// If require is true, peers without a bearer token are challenged and must
// answer with a token signed for the challenge.
func WithHS256JWT(secret []byte, require bool) Option {
	return func(s *IPCServer) {
		s.jwtValidator = &auth.JwtHS256{Secret: secret}
		s.requireJWT = require
	}
}

// WithJWTValidator enables JWT authentication using a custom JWTValidator implementation.
// If require is true, every peer must be verified before it may send requests.
func WithJWTValidator(v auth.JWTValidator, require bool) Option {
	return func(s *IPCServer) {
		s.jwtValidator = v
		s.requireJWT = require
	}
}

// WithTLS enables TLS. If dev==true, a self-signed cert is generated at runtime.
// If dev==false, certFile/keyFile must point to valid PEM files.
func WithTLS(certFile, keyFile string, dev bool) Option {
	return func(s *IPCServer) {
		s.tlsEnabled = true
		s.tlsDev = dev
		s.tlsCert = certFile
		s.tlsKey = keyFile
	}
}

// WithTLSConfig is to allow injecting a ready tls.Config (e.g., for mTLS/custom ciphers)
func WithTLSConfig(cfg *tls.Config) Option {
	return func(s *IPCServer) {
		s.tlsEnabled = true
		s.tlsDev = false
		s.tlsConfig = cfg
	}
}

// WithLogger sets a custom logger implementation for the server.
func WithLogger(l Logger) Option {
	return func(s *IPCServer) {
		s.Log = l
		s.customLog = true
	}
}

// WithSlog sets an slog.Logger instance as the server's logger.
func WithSlog(l *slog.Logger) Option {
	return func(s *IPCServer) {
		s.Log = &slogLogger{l: l}
		s.customLog = true
	}
}

// WithDefaultPing enables default ping/pong behavior with standard intervals.
// Uses 30 second ping interval and 5 second timeout to keep connections alive.
func WithDefaultPing() Option {
	return func(s *IPCServer) {
		s.pingInterval = 30 * time.Second
		s.pingTimeout = 5 * time.Second
	}
}

// WithPing enables ping/pong behavior with the specified interval and timeout.
// Custom ping messages are sent automatically to keep connections alive.
func WithPing(interval, timeout time.Duration) Option {
	return func(s *IPCServer) {
		s.pingInterval = interval
		s.pingTimeout = timeout
	}
}

// WithPingHandler sets a handler for ping frames received from peers.
func WithPingHandler(h func(appData string) error) Option {
	return func(s *IPCServer) { s.pingHandler = h }
}

// WithPongHandler sets a handler called for every pong frame before the read
// deadline is extended.
func WithPongHandler(h func(appData string) error) Option {
	return func(s *IPCServer) { s.pongHandler = h }
}

// WithName sets the destination that addresses the server itself.
// Requests for any other destination are relayed to the peer of that id.
func WithName(name string) Option {
	return func(s *IPCServer) { s.Name = name }
}

// WithStore sets where dispatched request uuids are recorded. The default is
// an in-memory LRU store.
func WithStore(st store.Store) Option {
	return func(s *IPCServer) { s.store = st }
}

// WithProcessedTTL sets how long a dispatched request uuid is remembered.
func WithProcessedTTL(ttl time.Duration) Option {
	return func(s *IPCServer) { s.processedTTL = ttl }
}

// WithMetrics records payload counters in reg and, when path is not empty,
// exposes them at path. A nil reg uses the default Prometheus registry.
func WithMetrics(reg *prometheus.Registry, path string) Option {
	return func(s *IPCServer) {
		if reg == nil {
			s.metrics = metrics.New(prometheus.DefaultRegisterer)
			s.gatherer = prometheus.DefaultGatherer
		} else {
			s.metrics = metrics.New(reg)
			s.gatherer = reg
		}
		s.metricsEndpoint = path
	}
}

// WithHealthEndpoint enables a health check endpoint at the specified path.
// The endpoint returns a 200 OK response with basic server status information.
func WithHealthEndpoint(path string) Option {
	return func(s *IPCServer) {
		s.healthEndpoint = path
	}
}

// WithMaxConnections sets the maximum number of concurrent WebSocket connections.
// When the limit is reached, new connections will be rejected with a 503 Service Unavailable response.
func WithMaxConnections(max int) Option {
	return func(s *IPCServer) {
		s.maxConnections = max
	}
}

// WithHandshakeTimeout sets how long a challenged peer has to answer with a
// signed token before the connection is dropped.
func WithHandshakeTimeout(timeout time.Duration) Option {
	return func(s *IPCServer) {
		s.handshakeTimeout = timeout
	}
}

// WithMessageRateLimit sets the maximum number of messages per minute per peer.
// Peers exceeding this rate will have their messages rejected.
func WithMessageRateLimit(messagesPerMinute int) Option {
	return func(s *IPCServer) {
		s.messageRateLimit = messagesPerMinute
		if s.clientRateMap == nil {
			s.clientRateMap = make(map[string]*rateLimiter)
		}
	}
}

// WithReadTimeout sets the read timeout for the HTTP server.
// This is the maximum duration for reading the entire request, including the body.
func WithReadTimeout(timeout time.Duration) Option {
	return func(s *IPCServer) {
		s.readTimeout = timeout
	}
}

// WithWriteTimeout sets the write timeout for the HTTP server.
// This is the maximum duration before timing out writes of the response.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(s *IPCServer) {
		s.writeTimeout = timeout
	}
}

// WithIdleTimeout sets the idle timeout for the HTTP server.
// This is the maximum amount of time to wait for the next request when keep-alives are enabled.
func WithIdleTimeout(timeout time.Duration) Option {
	return func(s *IPCServer) {
		s.idleTimeout = timeout
	}
}
