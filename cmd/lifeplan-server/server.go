package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/lifeplan-navigator/authcore"
	"github.com/lifeplan-navigator/authcore/internal/redisconn"
	"github.com/lifeplan-navigator/authcore/internal/serverconfig"
	"github.com/lifeplan-navigator/authcore/internal/storage"
	"github.com/lifeplan-navigator/authcore/metrics/export/prometheus"
	"github.com/lifeplan-navigator/authcore/middleware"
	"github.com/lifeplan-navigator/authcore/store/s3archive"
)

// server owns the engine and everything it was built from.
type server struct {
	cfg      serverconfig.Config
	logger   *slog.Logger
	engine   *authcore.Engine
	gate     *middleware.Gate
	proxies  *middleware.TrustedProxies
	limiter  *middleware.RateLimiter
	exporter *prometheus.PrometheusExporter
	archive  *s3archive.Sink

	closers []func() error
}

func newServer(ctx context.Context, cfg serverconfig.Config, logger *slog.Logger) (_ *server, err error) {
	s := &server{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, err
	}

	if s.proxies, err = middleware.ParseTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, err
	}

	rdb, err := s.openRedis(ctx)
	if err != nil {
		return nil, err
	}

	store, err := s.openUsers(ctx)
	if err != nil {
		return nil, err
	}

	sinks := authcore.MultiSink{authcore.NewSlogSink(logger)}
	if store.Audit != nil {
		sinks = append(sinks, store.Audit)
	}
	if cfg.Archive.Enabled {
		if s.archive, err = s.openArchive(ctx); err != nil {
			return nil, err
		}
		sinks = append(sinks, s.archive)
	}

	s.engine, err = authcore.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithUserStore(store.Users).
		WithAuditSink(sinks).
		WithLogger(logger).
		WithMetricsEnabled(cfg.Server.Metrics).
		WithLatencyHistograms(cfg.Server.Metrics).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	// Closed first, so the dispatcher drains into sinks that are still open.
	s.closers = append(s.closers, func() error { s.engine.Close(); return nil })

	s.gate = middleware.NewGate(s.engine)
	s.limiter = middleware.NewRateLimiter(engineCfg.RateLimit.RequestsPerSecond, engineCfg.RateLimit.Burst, 10*time.Minute)
	go s.limiter.Run(ctx, time.Minute)
	if cfg.Server.Metrics {
		s.exporter = prometheus.NewPrometheusExporter(s.engine).
			Gauge("lifeplan_throttled_clients", "Client IPs tracked by the request limiter.", func() uint64 {
				return uint64(s.limiter.Len())
			})
		if s.archive != nil {
			s.exporter.Counter("lifeplan_audit_archive_dropped_total", "Audit events lost to failed archive uploads.", s.archive.Dropped)
		}
	}

	s.logSecurityReport()
	return s, nil
}

func (s *server) openRedis(ctx context.Context) (redis.UniversalClient, error) {
	if s.cfg.Redis.URL == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start embedded redis: %w", err)
		}
		s.logger.Warn("using embedded redis; sessions are lost on restart", "addr", mr.Addr())
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		s.closers = append(s.closers, func() error {
			err := rdb.Close()
			mr.Close()
			return err
		})
		return rdb, nil
	}

	conn, err := redisconn.New(s.cfg.Redis.URL, 3*time.Second)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, conn.Close)
	return conn.Client(ctx)
}

func (s *server) openUsers(ctx context.Context) (*storage.Handle, error) {
	h, err := storage.Open(ctx, s.cfg.Database, s.logger)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, h.Close)

	if !h.Persistent() {
		s.logger.Warn("using in-memory user store; accounts are lost on restart")
		return h, nil
	}
	if s.cfg.Database.AutoMigrate {
		applied, err := h.Migrate(ctx)
		if err != nil {
			return nil, err
		}
		if len(applied) > 0 {
			s.logger.Info("applied migrations", "driver", h.Driver, "versions", applied)
		}
	}
	return h, nil
}

func (s *server) openArchive(ctx context.Context) (*s3archive.Sink, error) {
	a := s.cfg.Archive
	client, err := s3archive.NewClient(ctx, s3archive.ClientConfig{
		Region:          a.Region,
		Endpoint:        a.Endpoint,
		AccessKeyID:     a.AccessKeyID,
		SecretAccessKey: a.SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}
	sink, err := s3archive.New(client, s3archive.Options{
		Bucket:        a.Bucket,
		Prefix:        a.Prefix,
		BatchSize:     a.BatchSize,
		FlushInterval: a.FlushInterval,
		Logger:        s.logger,
	})
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		return sink.Close(ctx)
	})
	return sink, nil
}

func (s *server) logSecurityReport() {
	r := s.engine.SecurityReport()
	s.logger.Info("security report",
		"event", "security_report",
		"production", r.ProductionMode,
		"signed_cookie", r.SessionCookieSigned,
		"signing_algorithm", r.SigningAlgorithm,
		"idle_timeout", r.IdleTimeout,
		"absolute_timeout", r.AbsoluteTimeout,
		"max_sessions", r.MaxConcurrentSessions,
		"field_encryption", r.FieldEncryption,
		"login_lockout", r.LoginLockoutActive,
		"registration_limited", r.RegistrationLimited,
		"mfa_limited", r.MFALimited,
	)
	for _, w := range r.LintWarnings {
		s.logger.Warn("config lint", "event", "config_lint", "warning", w)
	}
}

// Close releases resources in reverse order of acquisition, engine first.
func (s *server) Close() {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Warn("shutdown cleanup", "error", err)
	}
}
