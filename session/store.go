package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable wraps every Redis transport or protocol failure.
var ErrStoreUnavailable = errors.New("credential store unavailable")

// ErrRecordNotFound is returned when a subject has no record, or the requested field is absent.
var ErrRecordNotFound = errors.New("credential record not found")

const minSlidingTTL = time.Second

const (
	fieldAccessToken  = "accessToken"
	fieldRefreshToken = "refreshToken"
	fieldAuthorities  = "authorities"
	fieldLastUpdate   = "lastUpdate"
)

const compareAndPutScript = `
local current = redis.call("HGET", KEYS[1], "refreshToken")
if not current or current ~= ARGV[1] then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("HSET", KEYS[1],
  "accessToken", ARGV[2],
  "refreshToken", ARGV[3],
  "authorities", ARGV[4],
  "lastUpdate", ARGV[5])
redis.call("PEXPIRE", KEYS[1], ARGV[6])
return 1
`

var compareAndPutLua = redis.NewScript(compareAndPutScript)

// Record is the durable per-subject pairing of the current access and refresh tokens.
type Record struct {
	SubjectID    string
	AccessToken  string
	RefreshToken string
	Authorities  string
	LastUpdate   time.Time
}

// Store is a Redis-backed credential store with a sliding expiration window.
type Store struct {
	redis         redis.UniversalClient
	prefix        string
	window        time.Duration
	jitterEnabled bool
	jitterRange   time.Duration
	now           func() time.Time
}

// NewStore creates a credential [Store] backed by the given Redis client.
// prefix sets the key namespace; window is the sliding TTL reset on every write;
// jitterEnabled and jitterRange spread expirations of records written together.
func NewStore(
	redis redis.UniversalClient,
	prefix string,
	window time.Duration,
	jitterEnabled bool,
	jitterRange time.Duration,
) *Store {
	if prefix == "" {
		prefix = "cr"
	}
	return &Store{
		redis:         redis,
		prefix:        prefix,
		window:        window,
		jitterEnabled: jitterEnabled,
		jitterRange:   jitterRange,
		now:           time.Now,
	}
}

// WithClock replaces the clock used to stamp lastUpdate. It returns s for chaining.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Store) key(subjectID string) string {
	return s.prefix + ":" + subjectID
}

// Put replaces the subject's record unconditionally, stamps a fresh lastUpdate and
// resets the sliding window.
//
//	Performance: 1 MULTI/EXEC round-trip (DEL + HSET + PEXPIRE).
func (s *Store) Put(ctx context.Context, subjectID, accessToken, refreshToken, authorities string) error {
	if subjectID == "" {
		return errors.New("subject id required")
	}
	ttl, err := s.nextTTL()
	if err != nil {
		return err
	}

	key := s.key(subjectID)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			fieldAccessToken, accessToken,
			fieldRefreshToken, refreshToken,
			fieldAuthorities, authorities,
			fieldLastUpdate, strconv.FormatInt(s.now().UnixMilli(), 10),
		)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// CompareAndPut replaces the record only when its current refresh token equals
// expectedRefresh. It reports whether the write happened. A missing record never matches.
//
//	Performance: 1 Lua EVALSHA.
func (s *Store) CompareAndPut(
	ctx context.Context,
	subjectID, expectedRefresh, accessToken, refreshToken, authorities string,
) (bool, error) {
	if subjectID == "" {
		return false, errors.New("subject id required")
	}
	ttl, err := s.nextTTL()
	if err != nil {
		return false, err
	}

	res, err := compareAndPutLua.Run(
		ctx,
		s.redis,
		[]string{s.key(subjectID)},
		expectedRefresh,
		accessToken,
		refreshToken,
		authorities,
		strconv.FormatInt(s.now().UnixMilli(), 10),
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return res == 1, nil
}

// Get returns the subject's full record.
func (s *Store) Get(ctx context.Context, subjectID string) (*Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(subjectID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrRecordNotFound
	}

	rec := &Record{
		SubjectID:    subjectID,
		AccessToken:  fields[fieldAccessToken],
		RefreshToken: fields[fieldRefreshToken],
		Authorities:  fields[fieldAuthorities],
	}
	if raw := fields[fieldLastUpdate]; raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: corrupt lastUpdate %q", ErrStoreUnavailable, raw)
		}
		rec.LastUpdate = time.UnixMilli(ms)
	}
	return rec, nil
}

// GetRefreshToken returns the subject's current refresh token.
//
//	Performance: 1 Redis HGET.
func (s *Store) GetRefreshToken(ctx context.Context, subjectID string) (string, error) {
	return s.getField(ctx, subjectID, fieldRefreshToken)
}

// GetAccessToken returns the subject's current access token.
//
//	Performance: 1 Redis HGET.
func (s *Store) GetAccessToken(ctx context.Context, subjectID string) (string, error) {
	return s.getField(ctx, subjectID, fieldAccessToken)
}

func (s *Store) getField(ctx context.Context, subjectID, field string) (string, error) {
	v, err := s.redis.HGet(ctx, s.key(subjectID), field).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrRecordNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if v == "" {
		return "", ErrRecordNotFound
	}
	return v, nil
}

// Remove deletes the subject's record. Removing an absent record is not an error.
func (s *Store) Remove(ctx context.Context, subjectID string) error {
	if err := s.redis.Del(ctx, s.key(subjectID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// EstimateActive scans record keys and counts them.
// This is an admin-only O(n) operation and must not be used in request hot paths.
func (s *Store) EstimateActive(ctx context.Context) (int, error) {
	pattern := s.prefix + ":*"
	var (
		cursor uint64
		total  int
	)

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		total += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return total, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) nextTTL() (time.Duration, error) {
	ttl := s.window
	if ttl <= 0 {
		return 0, errors.New("sliding window must be > 0")
	}

	if s.jitterEnabled && s.jitterRange > 0 {
		jitter, err := randomJitter(s.jitterRange)
		if err != nil {
			return 0, err
		}
		ttl += jitter
	}

	if ttl < minSlidingTTL {
		ttl = minSlidingTTL
	}
	return ttl, nil
}

func randomJitter(jitterRange time.Duration) (time.Duration, error) {
	if jitterRange <= 0 {
		return 0, nil
	}

	max := jitterRange.Nanoseconds()
	if max > (math.MaxInt64-1)/2 {
		return 0, errors.New("jitter range too large")
	}
	span := max*2 + 1

	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return 0, err
	}

	return time.Duration(n.Int64() - max), nil
}
