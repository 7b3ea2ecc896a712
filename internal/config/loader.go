package config

import (
	"errors"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. RENEWD_REDIS_ADDR.
const EnvPrefix = "RENEWD"

// Loader reads the YAML file at a path, then applies environment overrides.
type Loader struct {
	useDotEnv bool
	dotEnv    []string
}

// NewLoader returns a loader that also reads ./.env when present.
func NewLoader() *Loader {
	return &Loader{useDotEnv: true}
}

// WithDotEnv toggles loading variables from .env files before reading config.
// With no files given the default ./.env is used.
func (l *Loader) WithDotEnv(enabled bool, files ...string) *Loader {
	l.useDotEnv = enabled
	l.dotEnv = files
	return l
}

// Load reads configuration from path (may be empty) and the environment.
// A missing .env file is not an error.
func (l *Loader) Load(path string) (*Config, error) {
	if l.useDotEnv {
		_ = godotenv.Load(l.dotEnv...)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.HTTPAddr == "" {
		return nil, errors.New("server.http_addr is empty")
	}
	if cfg.Redis.Addr == "" && !cfg.Redis.Embedded {
		return nil, errors.New("redis.addr is required unless redis.embedded is set")
	}
	return &cfg, nil
}

// Load is shorthand for NewLoader().Load(path).
func Load(path string) (*Config, error) {
	return NewLoader().Load(path)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "renewd")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.version", "dev")

	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.read_timeout", "5s")
	v.SetDefault("server.write_timeout", "5s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.graceful_timeout", "15s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.embedded", false)

	v.SetDefault("jwt.signing_method", "ed25519")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.private_key_file", "")
	v.SetDefault("jwt.public_key_file", "")
	v.SetDefault("jwt.ephemeral_keys", false)
	v.SetDefault("jwt.key_id", "")
	v.SetDefault("jwt.issuer", "renewd")
	v.SetDefault("jwt.audience", "")
	v.SetDefault("jwt.access_ttl", "1h")
	v.SetDefault("jwt.refresh_ttl", "168h")

	v.SetDefault("store.prefix", "cr")
	v.SetDefault("store.sliding_window", "168h")
	v.SetDefault("store.jitter", "0s")

	v.SetDefault("renewal.freshness_threshold", "10m")
	v.SetDefault("renewal.max_expired_grace", "168h")
	v.SetDefault("renewal.conditional_write", false)
	v.SetDefault("renewal.store_timeout", "500ms")

	v.SetDefault("refresh.enable", true)
	v.SetDefault("refresh.max_attempts", 20)
	v.SetDefault("refresh.cooldown", "1m")

	v.SetDefault("login.enable", true)
	v.SetDefault("login.max_attempts", 5)
	v.SetDefault("login.cooldown", "15m")
	v.SetDefault("login.per_ip", false)

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.buffer_size", 1024)
	v.SetDefault("audit.drop_if_full", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.latency", true)

	v.SetDefault("users.dsn", "file:renewd.db?cache=shared")
	v.SetDefault("users.default_role", "USER")
}
