package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	Prefix                  string
	EnableIPThrottle        bool
	EnableRefreshThrottle   bool
	MaxLoginAttempts        int
	LoginCooldownDuration   time.Duration
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
}

// Limiter enforces per-identity and per-IP limits on failed logins and a per-subject
// limit on explicit refreshes, using Redis fixed-window counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckLogin reports [ErrRateLimited] when the identity (or, with IP throttling,
// the client IP) has exhausted its failed-login budget.
func (l *Limiter) CheckLogin(ctx context.Context, identity, ip string) error {
	if err := l.checkCounter(ctx, l.loginIdentityKey(identity), l.config.MaxLoginAttempts); err != nil {
		return err
	}

	if l.config.EnableIPThrottle && ip != "" {
		if err := l.checkCounter(ctx, l.loginIPKey(ip), l.config.MaxLoginAttempts); err != nil {
			return err
		}
	}

	return nil
}

// IncrementLogin records a failed login attempt for the identity+IP pair.
func (l *Limiter) IncrementLogin(ctx context.Context, identity, ip string) error {
	count, err := l.incrementWithTTL(ctx, l.loginIdentityKey(identity), l.config.LoginCooldownDuration)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, l.loginIPKey(ip), l.config.LoginCooldownDuration)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxLoginAttempts) {
			return ErrRateLimited
		}
	}

	return nil
}

// ResetLogin clears the failed-login counters after a successful login.
func (l *Limiter) ResetLogin(ctx context.Context, identity, ip string) error {
	keys := []string{l.loginIdentityKey(identity)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, l.loginIPKey(ip))
	}

	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// CheckRefresh counts one explicit refresh for the subject and reports
// [ErrRateLimited] once the window budget is exceeded.
func (l *Limiter) CheckRefresh(ctx context.Context, subjectID string) error {
	if !l.config.EnableRefreshThrottle {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.refreshKey(subjectID), l.config.RefreshCooldownDuration)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxRefreshAttempts) {
		return ErrRateLimited
	}

	return nil
}

// GetLoginAttempts returns the current failed-login counter for an identity.
// Missing keys return zero and do not reveal account existence.
func (l *Limiter) GetLoginAttempts(ctx context.Context, identity string) (int, error) {
	count, err := l.redis.Get(ctx, l.loginIdentityKey(identity)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count > int64(maxAttempts) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func (l *Limiter) loginIdentityKey(identity string) string {
	return l.config.Prefix + ":login:" + identity
}

func (l *Limiter) loginIPKey(ip string) string {
	return l.config.Prefix + ":login_ip:" + ip
}

func (l *Limiter) refreshKey(subjectID string) string {
	return l.config.Prefix + ":refresh:" + subjectID
}
