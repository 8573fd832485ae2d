package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sethfduke/ipclink/config"
	"github.com/sethfduke/ipclink/messages"
	"github.com/sethfduke/ipclink/server"
	"github.com/sethfduke/ipclink/store"

	"github.com/prometheus/client_golang/prometheus"
)

// PingRequest is the body of the built-in ping route.
type PingRequest struct {
	Echo string `json:"echo"`
}

func pingRoute(started time.Time) messages.RouteSpec {
	return messages.Route("ping", func(ctx context.Context, req *PingRequest) (any, error) {
		peer, _ := server.PeerIDFrom(ctx)
		return map[string]any{
			"pong":   true,
			"echo":   req.Echo,
			"peer":   peer,
			"uptime": time.Since(started).String(),
		}, nil
	})
}

// openStore builds the processed-message store the config selects.
func openStore(ctx context.Context, cfg config.Store) (store.Store, error) {
	switch cfg.Backend {
	case "redis":
		rs := store.NewRedisStore(cfg.RedisAddr)
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		return rs, nil
	default:
		return store.NewMemoryStore(cfg.Size, cfg.TTL.Std()), nil
	}
}

// serverOptions translates cfg into server options.
func serverOptions(cfg config.Config, st store.Store, logger *slog.Logger, reg *prometheus.Registry) []server.Option {
	opts := []server.Option{
		server.WithName(cfg.Name),
		server.Host(cfg.Host),
		server.WithPort(cfg.Port),
		server.WithCompression(true),
		server.WithLogLevel(int(cfg.SlogLevel())),
		server.WithSlog(logger),
		server.WithStore(st),
		server.WithProcessedTTL(cfg.Store.TTL.Std()),
		server.WithHandshakeTimeout(cfg.HandshakeTimeout.Std()),
		server.WithMaxConnections(cfg.MaxConnections),
		server.WithMessageRateLimit(cfg.MessageRateLimit),
	}
	if cfg.Secret != "" {
		opts = append(opts, server.WithHS256JWT([]byte(cfg.Secret), cfg.RequireAuth))
	}
	if cfg.Ping.Interval > 0 {
		opts = append(opts, server.WithPing(cfg.Ping.Interval.Std(), cfg.Ping.Timeout.Std()))
	}
	if cfg.HealthPath != "" {
		opts = append(opts, server.WithHealthEndpoint(cfg.HealthPath))
	}
	if cfg.MetricsPath != "" {
		opts = append(opts, server.WithMetrics(reg, cfg.MetricsPath))
	}
	if cfg.TLS.Enabled {
		opts = append(opts, server.WithTLS(cfg.TLS.Cert, cfg.TLS.Key, cfg.TLS.Dev))
	}
	return opts
}

func runServe(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}

	srv := server.NewIPCServer(serverOptions(cfg, st, logger, prometheus.NewRegistry())...)
	srv.Register(pingRoute(time.Now()))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return <-errCh
	}
}
