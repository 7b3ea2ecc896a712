package goRenew

import (
	"errors"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/goRenew/internal/audit"
	"github.com/MrEthical07/goRenew/internal/flows"
	"github.com/MrEthical07/goRenew/internal/rate"
	"github.com/MrEthical07/goRenew/jwt"
	"github.com/MrEthical07/goRenew/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. A Builder can be used once.
//
// Builder instances are intended to be configured during initialization and then treated as immutable.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	logger    *zap.Logger
	auditSink AuditSink
	clock     func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. Key material is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing the credential store and the refresh throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the logger used for absorbed failures. The default discards output.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit destination. It only takes effect when Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the clock used for minting, expiry checks and record stamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the evaluate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
//
// Build returns an error when the configuration is invalid, the signing keys cannot be
// parsed, no Redis client was supplied, or the builder was already used.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	method := jwt.SigningMethod(strings.ToLower(cfg.JWT.SigningMethod))
	if method == "" {
		method = jwt.MethodEd25519
	}
	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: method,
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		KeyID:         cfg.JWT.KeyID,
		Now:           clock,
	})
	if err != nil {
		return nil, err
	}

	store := session.NewStore(
		b.redis,
		cfg.Store.RedisPrefix,
		cfg.Store.SlidingWindow,
		cfg.Store.JitterEnabled,
		cfg.Store.JitterRange,
	).WithClock(clock)

	engine := &Engine{
		config:  cfg,
		tokens:  tokens,
		store:   store,
		metrics: NewMetrics(cfg.Metrics),
		logger:  logger.Named("renew"),
		clock:   clock,
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
	}
	if cfg.Refresh.EnableThrottle {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			Prefix:                  "rl",
			EnableRefreshThrottle:   true,
			MaxRefreshAttempts:      cfg.Refresh.MaxAttempts,
			RefreshCooldownDuration: cfg.Refresh.Cooldown,
		})
	}

	engine.flows = flows.Deps{
		Evaluate: flows.EvaluateDeps{
			Codec:              tokens,
			Store:              store,
			FreshnessThreshold: cfg.Renewal.FreshnessThreshold,
			MaxExpiredGrace:    cfg.Renewal.MaxExpiredGrace,
			Renew:              engine.renewShared,
		},
		Renew: flows.RenewDeps{
			Codec:            tokens,
			Store:            store,
			ConditionalWrite: cfg.Renewal.ConditionalWrite,
		},
		Refresh: flows.RefreshDeps{
			Codec: tokens,
			Store: store,
		},
		Login: flows.LoginDeps{
			Codec: tokens,
			Store: store,
		},
	}
	if engine.rateLimiter != nil {
		engine.flows.Refresh.RateLimiter = engine.rateLimiter
	}

	b.built = true

	return engine, nil
}
