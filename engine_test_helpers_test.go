package goRenew

import (
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func testConfig(t *testing.T) Config {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.JWT.Issuer = "renewd"
	cfg.JWT.Audience = "api"
	cfg.Renewal.StoreTimeout = 2 * time.Second
	return cfg
}

type renewTest struct {
	engine *Engine
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	clock  *fakeClock
}

func newRenewEngine(t *testing.T, cfg Config, configure ...func(*Builder)) (*renewTest, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	clock := newFakeClock()

	b := New().WithConfig(cfg).WithRedis(rdb).WithClock(clock.Now)
	for _, fn := range configure {
		fn(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	return &renewTest{engine: engine, mr: mr, rdb: rdb, clock: clock}, func() {
		engine.Close()
		rdb.Close()
		mr.Close()
	}
}
