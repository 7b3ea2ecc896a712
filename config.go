package goRenew

import (
	"errors"
	"math"
	"strings"
	"time"
)

// Config defines every tunable of the renewal engine.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	JWT     JWTConfig
	Store   StoreConfig
	Renewal RenewalConfig
	Refresh RefreshConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds the signing material and credential lifetimes.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	KeyID         string
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig controls the Redis credential record layout and its sliding window.
type StoreConfig struct {
	RedisPrefix   string
	SlidingWindow time.Duration
	JitterEnabled bool
	JitterRange   time.Duration
}

/*
====================================
RENEWAL CONFIG
====================================
*/

// RenewalConfig controls when and how credentials are renewed during evaluation.
type RenewalConfig struct {
	// FreshnessThreshold is the remaining lifetime below which a valid access token is
	// renewed proactively.
	FreshnessThreshold time.Duration
	// MaxExpiredGrace bounds how long after expiry an access token may still trigger a
	// reactive renewal. Older tokens are treated as invalid. Zero disables the bound.
	MaxExpiredGrace time.Duration
	// ConditionalWrite makes renewals compare-and-put on the prior refresh token, so that
	// concurrent renewals across processes converge on one credential pair.
	ConditionalWrite bool
	// StoreTimeout bounds the store work done for one evaluation.
	StoreTimeout time.Duration
}

// RefreshConfig throttles the explicit refresh endpoint.
type RefreshConfig struct {
	EnableThrottle bool
	MaxAttempts    int
	Cooldown       time.Duration
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters and the evaluate latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the recommended configuration. Signing keys are left empty
// and must be supplied by the caller.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     time.Hour,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
		},
		Store: StoreConfig{
			RedisPrefix:   "cr",
			SlidingWindow: 7 * 24 * time.Hour,
			JitterEnabled: false,
			JitterRange:   0,
		},
		Renewal: RenewalConfig{
			FreshnessThreshold: 10 * time.Minute,
			MaxExpiredGrace:    7 * 24 * time.Hour,
			ConditionalWrite:   false,
			StoreTimeout:       500 * time.Millisecond,
		},
		Refresh: RefreshConfig{
			EnableThrottle: true,
			MaxAttempts:    20,
			Cooldown:       time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks cross-field constraints. It returns the first violation found.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	method := strings.ToLower(c.JWT.SigningMethod)
	switch method {
	case "", "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	case "hs256":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("hs256 requires PrivateKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}

	// Store
	if c.Store.SlidingWindow <= 0 {
		return errors.New("Store SlidingWindow must be > 0")
	}
	if c.Store.JitterRange < 0 {
		return errors.New("Store JitterRange must be >= 0")
	}
	if c.Store.JitterRange > time.Duration(math.MaxInt64/2) {
		return errors.New("Store JitterRange is too large")
	}
	if c.Store.JitterEnabled && c.Store.JitterRange <= 0 {
		return errors.New("Store JitterRange must be > 0 when JitterEnabled is true")
	}
	if c.Store.JitterEnabled && c.Store.JitterRange >= c.Store.SlidingWindow {
		return errors.New("Store JitterRange must be < SlidingWindow")
	}

	// Renewal
	if c.Renewal.FreshnessThreshold <= 0 {
		return errors.New("Renewal FreshnessThreshold must be > 0")
	}
	if c.Renewal.FreshnessThreshold >= c.JWT.AccessTTL {
		return errors.New("Renewal FreshnessThreshold must be < JWT AccessTTL")
	}
	if c.Renewal.MaxExpiredGrace < 0 {
		return errors.New("Renewal MaxExpiredGrace must be >= 0")
	}
	if c.Renewal.StoreTimeout < 0 {
		return errors.New("Renewal StoreTimeout must be >= 0")
	}

	// Refresh
	if c.Refresh.EnableThrottle {
		if c.Refresh.MaxAttempts <= 0 {
			return errors.New("Refresh MaxAttempts must be > 0 when throttle is enabled")
		}
		if c.Refresh.Cooldown <= 0 {
			return errors.New("Refresh Cooldown must be > 0 when throttle is enabled")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
