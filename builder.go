package authcore

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lifeplan-navigator/authcore/csrf"
	"github.com/lifeplan-navigator/authcore/fieldcrypt"
	"github.com/lifeplan-navigator/authcore/internal/audit"
	"github.com/lifeplan-navigator/authcore/internal/logging"
	"github.com/lifeplan-navigator/authcore/internal/rate"
	"github.com/lifeplan-navigator/authcore/jwt"
	"github.com/lifeplan-navigator/authcore/mfa"
	"github.com/lifeplan-navigator/authcore/password"
	"github.com/lifeplan-navigator/authcore/session"
	"github.com/redis/go-redis/v9"
)

// Builder collects configuration and dependencies for an Engine. A Builder
// can be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	sessions  session.Store
	users     UserStore
	auditSink AuditSink
	logger    *slog.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
		now:    time.Now,
	}
}

// WithConfig replaces the configuration. cfg is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing sessions and rate-limit counters.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSessionStore overrides the Redis session store, e.g. with
// session.NewMemoryStore for single-process development. Without Redis the
// rate-limit counters are kept in memory as well.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.sessions = store
	return b
}

// WithUserStore sets the account repository.
func (b *Builder) WithUserStore(users UserStore) *Builder {
	b.users = users
	return b
}

// WithAuditSink sets the audit destination. Ignored when auditing is disabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the operational logger. The default discards records.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled toggles counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the authenticate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

func (b *Builder) withClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil && b.sessions == nil {
		return nil, errors.New("redis client or session store required")
	}
	if b.users == nil {
		return nil, errors.New("user store required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = logging.Discard()
	}

	engine := &Engine{
		config: cloneConfig(cfg),
		users:  b.users,
		logger: logger,
		now:    b.now,
	}

	// -------- SESSION STORE --------
	policy := session.Policy{
		IdleTimeout:     cfg.Session.IdleTimeout,
		AbsoluteTimeout: cfg.Session.AbsoluteTimeout,
		MaxConcurrent:   cfg.Session.MaxConcurrent,
	}
	if b.sessions != nil {
		engine.sessions = b.sessions
	} else {
		engine.sessions = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix, policy).WithClock(b.now)
	}

	// -------- RATE LIMITERS --------
	var counter rate.Counter
	if b.redis != nil {
		counter = rate.NewRedisCounter(b.redis)
	} else {
		counter = rate.NewMemoryCounter(b.now)
	}
	prefix := cfg.Session.RedisPrefix + "rl:"
	engine.loginLimiter = rate.New(counter, prefix+"login:", rate.Policy{
		MaxAttempts: cfg.RateLimit.LoginMaxAttempts,
		Window:      cfg.RateLimit.LoginLockout,
	})
	engine.registerLimiter = rate.New(counter, prefix+"register:", rate.Policy{
		MaxAttempts: cfg.RateLimit.RegistrationMaxAttempts,
		Window:      cfg.RateLimit.RegistrationWindow,
	})
	engine.mfaLimiter = rate.New(counter, prefix+"mfa:", rate.Policy{
		MaxAttempts: cfg.MFA.MaxAttempts,
		Window:      cfg.MFA.AttemptWindow,
	})

	// -------- CRYPTO --------
	ph, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxLength * 4,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph
	engine.totp = mfa.NewTOTP(cfg.MFA.Issuer)

	if cfg.Encryption.Key != "" {
		c, err := fieldcrypt.NewFromBase64(cfg.Encryption.Key)
		if err != nil {
			return nil, err
		}
		if err := c.SelfTest(); err != nil {
			return nil, fmt.Errorf("field encryption self-test: %w", err)
		}
		engine.cipher = c
	}

	if cfg.SessionToken.Enabled {
		jm, err := jwt.NewManager(jwt.Config{
			SigningMethod: jwt.SigningMethod(cfg.SessionToken.SigningMethod),
			PrivateKey:    cloneBytes(cfg.SessionToken.PrivateKey),
			PublicKey:     cloneBytes(cfg.SessionToken.PublicKey),
			Issuer:        cfg.SessionToken.Issuer,
			Audience:      cfg.SessionToken.Audience,
			Leeway:        cfg.SessionToken.Leeway,
			KeyID:         cfg.SessionToken.KeyID,
		})
		if err != nil {
			return nil, err
		}
		engine.cookieSigner = jm.WithClock(b.now)
	}

	// -------- OBSERVABILITY --------
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	engine.csrf = csrf.New(csrf.Config{
		Secure:         cfg.Production(),
		MaxAge:         cfg.CSRF.CookieMaxAge,
		ExemptPrefixes: cloneStrings(cfg.CSRF.ExemptPrefixes),
		OnReject: func(r *http.Request) {
			engine.metricInc(MetricCSRFRejected)
			engine.auditSecurity(r.Context(), audit.CodeCSRFViolation, "", map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
			})
		},
	})

	b.built = true

	return engine, nil
}
