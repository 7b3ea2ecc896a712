package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	mrand "math/rand"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	goRenew "github.com/MrEthical07/goRenew"
	"github.com/MrEthical07/goRenew/metrics/export/prometheus"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type subjectState struct {
	mu    sync.Mutex
	token string
}

// clock is shared by the engine and the phases so lifetimes can be skipped instead of waited.
type clock struct {
	offset atomic.Int64
}

func (c *clock) Now() time.Time {
	return time.Now().Add(time.Duration(c.offset.Load()))
}

func (c *clock) Advance(d time.Duration) {
	c.offset.Add(int64(d))
}

func main() {
	var (
		subjects    = flag.Int("subjects", 10000, "number of subjects to log in")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "evaluations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		conditional = flag.Bool("conditional-write", false, "renew with compare-and-put")
	)
	flag.Parse()

	if *subjects <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "subjects, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate key: %v\n", err)
		os.Exit(1)
	}
	cfg := goRenew.DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.Renewal.ConditionalWrite = *conditional
	cfg.Renewal.StoreTimeout = 5 * time.Second

	clk := &clock{}
	engine, err := goRenew.New().
		WithConfig(cfg).
		WithRedis(client).
		WithClock(clk.Now).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]subjectState, *subjects)
	fmt.Printf("logging in %d subjects...\n", *subjects)
	startSeed := time.Now()
	for i := range states {
		id := strconv.Itoa(i + 1)
		pair, err := engine.Login(ctx, id, "user"+id+"@example.com", "USER")
		if err != nil {
			fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			os.Exit(1)
		}
		states[i].token = pair.AccessToken
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	freshStats := runEvaluatePhase(ctx, engine, states, *ops, *concurrency)

	// Into the freshness window: the first evaluation per subject renews, the rest
	// present the replacement.
	clk.Advance(cfg.JWT.AccessTTL - cfg.Renewal.FreshnessThreshold/2)
	proactiveStats := runEvaluatePhase(ctx, engine, states, *ops, *concurrency)

	clk.Advance(cfg.JWT.AccessTTL + time.Minute)
	reactiveStats := runEvaluatePhase(ctx, engine, states, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("evaluate_fresh", freshStats)
	printStats("evaluate_proactive", proactiveStats)
	printStats("evaluate_reactive", reactiveStats)
	fmt.Println("---- metrics ----")
	fmt.Print(prometheus.NewPrometheusExporter(engine).Render())
}

// runEvaluatePhase evaluates random subjects' current tokens, storing any replacement
// so later evaluations present it. Unauthenticated outcomes count as failures.
func runEvaluatePhase(ctx context.Context, engine *goRenew.Engine, states []subjectState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := mrand.New(mrand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]

				state.mu.Lock()
				token := state.token
				state.mu.Unlock()

				t0 := time.Now()
				d := engine.Evaluate(ctx, token)
				elapsed := time.Since(t0)

				if !d.Outcome.Authenticated() {
					atomic.AddInt64(&failures, 1)
				}
				if d.ReplacementToken != "" {
					state.mu.Lock()
					if state.token == token {
						state.token = d.ReplacementToken
					}
					state.mu.Unlock()
				}

				mu.Lock()
				latencies = append(latencies, elapsed)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
