package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	goRenew "github.com/MrEthical07/goRenew"
	"github.com/MrEthical07/goRenew/internal/obs"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Embedded bool   `mapstructure:"embedded"`
}

// JWT selects the signing material. With ed25519, keys are read from PEM files; when
// both files are empty and EphemeralKeys is set, a throwaway pair is generated.
type JWT struct {
	SigningMethod  string        `mapstructure:"signing_method"`
	Secret         string        `mapstructure:"secret"`
	PrivateKeyFile string        `mapstructure:"private_key_file"`
	PublicKeyFile  string        `mapstructure:"public_key_file"`
	EphemeralKeys  bool          `mapstructure:"ephemeral_keys"`
	KeyID          string        `mapstructure:"key_id"`
	Issuer         string        `mapstructure:"issuer"`
	Audience       string        `mapstructure:"audience"`
	AccessTTL      time.Duration `mapstructure:"access_ttl"`
	RefreshTTL     time.Duration `mapstructure:"refresh_ttl"`
}

type Store struct {
	Prefix        string        `mapstructure:"prefix"`
	SlidingWindow time.Duration `mapstructure:"sliding_window"`
	Jitter        time.Duration `mapstructure:"jitter"`
}

type Renewal struct {
	FreshnessThreshold time.Duration `mapstructure:"freshness_threshold"`
	MaxExpiredGrace    time.Duration `mapstructure:"max_expired_grace"`
	ConditionalWrite   bool          `mapstructure:"conditional_write"`
	StoreTimeout       time.Duration `mapstructure:"store_timeout"`
}

type Throttle struct {
	Enable      bool          `mapstructure:"enable"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
	PerIP       bool          `mapstructure:"per_ip"`
}

type Audit struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
	DropIfFull bool `mapstructure:"drop_if_full"`
}

type Metrics struct {
	Enabled bool `mapstructure:"enabled"`
	Latency bool `mapstructure:"latency"`
}

type Users struct {
	DSN         string `mapstructure:"dsn"`
	DefaultRole string `mapstructure:"default_role"`
}

type Config struct {
	App     App      `mapstructure:"app"`
	Server  Server   `mapstructure:"server"`
	Log     Log      `mapstructure:"log"`
	Redis   Redis    `mapstructure:"redis"`
	JWT     JWT      `mapstructure:"jwt"`
	Store   Store    `mapstructure:"store"`
	Renewal Renewal  `mapstructure:"renewal"`
	Refresh Throttle `mapstructure:"refresh"`
	Login   Throttle `mapstructure:"login"`
	Audit   Audit    `mapstructure:"audit"`
	Metrics Metrics  `mapstructure:"metrics"`
	Users   Users    `mapstructure:"users"`
}

func (c *Config) AsLoggerConfig() obs.LogConfig {
	return obs.LogConfig{
		Level:  c.Log.Level,
		Pretty: c.Log.Pretty,
		App:    c.App.Name,
		Env:    c.App.Env,
		Ver:    c.App.Version,
	}
}

// EngineConfig converts the service configuration into a validated engine configuration,
// loading signing keys from disk where configured.
func (c *Config) EngineConfig() (goRenew.Config, error) {
	out := goRenew.DefaultConfig()

	out.JWT.SigningMethod = strings.ToLower(c.JWT.SigningMethod)
	out.JWT.Issuer = c.JWT.Issuer
	out.JWT.Audience = c.JWT.Audience
	out.JWT.KeyID = c.JWT.KeyID
	out.JWT.AccessTTL = c.JWT.AccessTTL
	out.JWT.RefreshTTL = c.JWT.RefreshTTL

	switch out.JWT.SigningMethod {
	case "hs256":
		if c.JWT.Secret == "" {
			return goRenew.Config{}, errors.New("jwt.secret is required for hs256")
		}
		out.JWT.PrivateKey = []byte(c.JWT.Secret)
	case "", "ed25519":
		priv, pub, err := c.ed25519Keys()
		if err != nil {
			return goRenew.Config{}, err
		}
		out.JWT.PrivateKey = priv
		out.JWT.PublicKey = pub
	default:
		return goRenew.Config{}, fmt.Errorf("unsupported jwt.signing_method %q", c.JWT.SigningMethod)
	}

	out.Store.RedisPrefix = c.Store.Prefix
	out.Store.SlidingWindow = c.Store.SlidingWindow
	out.Store.JitterEnabled = c.Store.Jitter > 0
	out.Store.JitterRange = c.Store.Jitter

	out.Renewal = goRenew.RenewalConfig{
		FreshnessThreshold: c.Renewal.FreshnessThreshold,
		MaxExpiredGrace:    c.Renewal.MaxExpiredGrace,
		ConditionalWrite:   c.Renewal.ConditionalWrite,
		StoreTimeout:       c.Renewal.StoreTimeout,
	}
	out.Refresh = goRenew.RefreshConfig{
		EnableThrottle: c.Refresh.Enable,
		MaxAttempts:    c.Refresh.MaxAttempts,
		Cooldown:       c.Refresh.Cooldown,
	}
	out.Audit = goRenew.AuditConfig{
		Enabled:    c.Audit.Enabled,
		BufferSize: c.Audit.BufferSize,
		DropIfFull: c.Audit.DropIfFull,
	}
	out.Metrics = goRenew.MetricsConfig{
		Enabled:                 c.Metrics.Enabled,
		EnableLatencyHistograms: c.Metrics.Latency,
	}

	if err := out.Validate(); err != nil {
		return goRenew.Config{}, err
	}
	return out, nil
}

func (c *Config) ed25519Keys() ([]byte, []byte, error) {
	if c.JWT.PrivateKeyFile == "" && c.JWT.PublicKeyFile == "" {
		if !c.JWT.EphemeralKeys {
			return nil, nil, errors.New("jwt.private_key_file and jwt.public_key_file are required for ed25519")
		}
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("generate ed25519 key: %w", err)
		}
		return priv, pub, nil
	}

	priv, err := os.ReadFile(c.JWT.PrivateKeyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("read private key: %w", err)
	}
	pub, err := os.ReadFile(c.JWT.PublicKeyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("read public key: %w", err)
	}
	return priv, pub, nil
}
