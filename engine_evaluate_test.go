package goRenew

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goRenew/jwt"
	"github.com/MrEthical07/goRenew/session"
)

func TestEvaluateMissingAndInvalid(t *testing.T) {
	rt, done := newRenewEngine(t, testConfig(t))
	defer done()
	ctx := context.Background()

	if d := rt.engine.Evaluate(ctx, ""); d.Outcome != OutcomeMissing || d.Identity != nil {
		t.Fatalf("expected missing without identity, got %+v", d)
	}

	for _, tok := range []string{"garbage", "a.b.c", "eyJhbGciOiJub25lIn0.eyJzdWIiOiI0MiJ9."} {
		d := rt.engine.Evaluate(ctx, tok)
		if d.Outcome != OutcomeInvalid || d.Identity != nil {
			t.Fatalf("%q: expected invalid without identity, got %+v", tok, d)
		}
		if !errors.Is(d.Err, ErrTokenInvalid) || errors.Is(d.Err, ErrTokenExpired) {
			t.Fatalf("%q: expected ErrTokenInvalid only, got %v", tok, d.Err)
		}
	}

	pair, err := rt.engine.Login(ctx, "42", "alice@example.com", "USER")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if d := rt.engine.Evaluate(ctx, pair.RefreshToken); d.Outcome != OutcomeInvalid {
		t.Fatalf("refresh token presented as access must be invalid, got %v", d.Outcome)
	}
}

func TestEvaluateFreshTouchesNoStore(t *testing.T) {
	rt, done := newRenewEngine(t, testConfig(t))
	defer done()
	ctx := context.Background()

	pair, err := rt.engine.Login(ctx, "42", "alice@example.com", "USER,ADMIN")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	before, err := rt.engine.store.Get(ctx, "42")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}

	rt.clock.Advance(30 * time.Minute)
	rt.mr.SetError("LOADING Redis is loading the dataset in memory")

	d := rt.engine.Evaluate(ctx, pair.AccessToken)
	if d.Outcome != OutcomeFresh {
		t.Fatalf("expected fresh with store down, got %v (%v)", d.Outcome, d.Err)
	}
	if d.ReplacementToken != "" {
		t.Fatal("fresh token must not produce a replacement")
	}
	if d.Identity == nil || d.Identity.SubjectID != "42" || d.Identity.IdentityClaim != "alice@example.com" {
		t.Fatalf("unexpected identity %+v", d.Identity)
	}
	if !d.Identity.HasAuthority("ADMIN") || len(d.Identity.Authorities) != 2 {
		t.Fatalf("expected authorities USER,ADMIN, got %v", d.Identity.Authorities)
	}

	rt.mr.SetError("")
	after, err := rt.engine.store.Get(ctx, "42")
	if err != nil {
		t.Fatalf("get record after: %v", err)
	}
	if !after.LastUpdate.Equal(before.LastUpdate) || after.AccessToken != pair.AccessToken {
		t.Fatalf("fresh evaluation wrote to the store: before=%+v after=%+v", before, after)
	}
}

// Subject 42 logs in at T0, presents A1 at T0+55m and again after the renewal.
func TestEvaluateProactiveRenewalThenSuperseded(t *testing.T) {
	rt, done := newRenewEngine(t, testConfig(t))
	defer done()
	ctx := context.Background()

	a1, err := rt.engine.Login(ctx, "42", "alice@example.com", "USER")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	rt.clock.Advance(55 * time.Minute)

	d := rt.engine.Evaluate(ctx, a1.AccessToken)
	if d.Outcome != OutcomeRenewedProactive {
		t.Fatalf("expected proactive renewal, got %v (%v)", d.Outcome, d.Err)
	}
	if d.ReplacementToken == "" || d.ReplacementToken == a1.AccessToken {
		t.Fatalf("expected a new access token, got %q", d.ReplacementToken)
	}
	if d.Identity == nil || d.Identity.SubjectID != "42" {
		t.Fatalf("expected identity for subject 42, got %+v", d.Identity)
	}

	rec, err := rt.engine.store.Get(ctx, "42")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.AccessToken != d.ReplacementToken {
		t.Fatal("record must hold the replacement access token")
	}
	if rec.RefreshToken == a1.RefreshToken {
		t.Fatal("record must hold a new refresh token")
	}
	claims, err := rt.engine.Tokens().Verify(d.ReplacementToken, jwt.KindAccess)
	if err != nil {
		t.Fatalf("verify replacement: %v", err)
	}
	if remaining := rt.engine.Tokens().RemainingLifetime(claims); remaining != time.Hour {
		t.Fatalf("replacement must carry a full lifetime, got %v", remaining)
	}

	again := rt.engine.Evaluate(ctx, a1.AccessToken)
	if again.Outcome != OutcomeSuperseded {
		t.Fatalf("expected superseded on reuse of A1, got %v", again.Outcome)
	}
	if again.ReplacementToken != "" {
		t.Fatal("superseded token must not produce a replacement")
	}
	if again.Identity == nil || again.Identity.SubjectID != "42" {
		t.Fatalf("superseded token keeps its identity, got %+v", again.Identity)
	}
	if n := rt.engine.MetricsSnapshot().Counters[MetricRenewSuccess]; n != 1 {
		t.Fatalf("expected exactly one renewal write, got %d", n)
	}
	current, err := rt.engine.store.GetAccessToken(ctx, "42")
	if err != nil || current != d.ReplacementToken {
		t.Fatalf("record changed after superseded evaluation: %q %v", current, err)
	}

	if fresh := rt.engine.Evaluate(ctx, d.ReplacementToken); fresh.Outcome != OutcomeFresh {
		t.Fatalf("replacement should evaluate fresh, got %v", fresh.Outcome)
	}
}

func TestEvaluateProactiveWithoutRecordFallsBack(t *testing.T) {
	rt, done := newRenewEngine(t, testConfig(t))
	defer done()
	ctx := context.Background()

	pair, err := rt.engine.Login(ctx, "42", "alice@example.com", "USER")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := rt.engine.Logout(ctx, "42"); err != nil {
		t.Fatalf("logout: %v", err)
	}

	rt.clock.Advance(55 * time.Minute)

	d := rt.engine.Evaluate(ctx, pair.AccessToken)
	if d.Outcome != OutcomeFallback {
		t.Fatalf("expected fallback, got %v", d.Outcome)
	}
	if d.ReplacementToken != "" {
		t.Fatal("fallback must not produce a replacement")
	}
	if d.Identity == nil || d.Identity.SubjectID != "42" {
		t.Fatalf("fallback keeps the original identity, got %+v", d.Identity)
	}
	if !errors.Is(d.Err, ErrNoRefreshToken) || !errors.Is(d.Err, ErrTokenExpired) {
		t.Fatalf("expected ErrNoRefreshToken and ErrTokenExpired, got %v", d.Err)
	}
}

func TestEvaluateProactiveWithBrokenRefreshFallsBack(t *testing.T) {
	rt, done := newRenewEngine(t, testConfig(t))
	defer done()
	ctx := context.Background()

	pair, err := rt.engine.Login(ctx, "42", "alice@example.com", "USER")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := rt.engine.store.Put(ctx, "42", pair.AccessToken, "not-a-token", "USER"); err != nil {
		t.Fatalf("put: %v", err)
	}

	rt.clock.Advance(55 * time.Minute)

	d := rt.engine.Evaluate(ctx, pair.AccessToken)
	if d.Outcome != OutcomeFallback || !errors.Is(d.Err, ErrRefreshInvalid) {
		t.Fatalf("expected fallback with ErrRefreshInvalid, got %v (%v)", d.Outcome, d.Err)
	}
	if _, err := rt.engine.store.Get(ctx, "42"); err != nil {
		t.Fatalf("proactive failure must not delete the record: %v", err)
	}
}

func TestEvaluateProactiveStoreDownFallsBack(t *testing.T) {
	rt, done := newRenewEngine(t, testConfig(t))
	defer done()
	ctx := context.Background()

	pair, err := rt.engine.Login(ctx, "42", "alice@example.com", "USER")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	rt.clock.Advance(55 * time.Minute)
	rt.mr.SetError("LOADING Redis is loading the dataset in memory")

	d := rt.engine.Evaluate(ctx, pair.AccessToken)
	if d.Outcome != OutcomeFallback || d.Identity == nil {
		t.Fatalf("expected fallback with identity, got %+v", d)
	}
	if !errors.Is(d.Err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", d.Err)
	}
}

func TestEvaluateExpiredRenewsReactively(t *testing.T) {
	rt, done := newRenewEngine(t, testConfig(t))
	defer done()
	ctx := context.Background()

	pair, err := rt.engine.Login(ctx, "42", "alice@example.com", "USER")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	rt.clock.Advance(3 * time.Hour)

	d := rt.engine.Evaluate(ctx, pair.AccessToken)
	if d.Outcome != OutcomeRenewedReactive {
		t.Fatalf("expected reactive renewal, got %v (%v)", d.Outcome, d.Err)
	}
	if d.ReplacementToken == "" || d.Identity == nil || d.Identity.SubjectID != "42" {
		t.Fatalf("expected replacement and identity, got %+v", d)
	}
	current, err := rt.engine.store.GetAccessToken(ctx, "42")
	if err != nil || current != d.ReplacementToken {
		t.Fatalf("record must hold the replacement: %q %v", current, err)
	}
}

// Subject 7 presents a token 2h past expiry; the stored refresh token expired a day ago.
func TestEvaluateExpiredWithExpiredRefreshEndsSession(t *testing.T) {
	rt, done := newRenewEngine(t, testConfig(t))
	defer done()
	ctx := context.Background()

	t0 := rt.clock.Now()
	refresh, err := rt.engine.Tokens().Mint(jwt.KindRefresh, "7", "bob@example.com", "USER")
	if err != nil {
		t.Fatalf("mint refresh: %v", err)
	}
	rt.clock.Set(t0.Add(8*24*time.Hour - 3*time.Hour))
	access, err := rt.engine.Tokens().Mint(jwt.KindAccess, "7", "bob@example.com", "USER")
	if err != nil {
		t.Fatalf("mint access: %v", err)
	}
	if err := rt.engine.store.Put(ctx, "7", access, refresh, "USER"); err != nil {
		t.Fatalf("put: %v", err)
	}
	rt.clock.Set(t0.Add(8 * 24 * time.Hour))

	d := rt.engine.Evaluate(ctx, access)
	if d.Outcome != OutcomeSessionEnded {
		t.Fatalf("expected session ended, got %v (%v)", d.Outcome, d.Err)
	}
	if d.Identity != nil || d.ReplacementToken != "" {
		t.Fatalf("ended session must carry no identity or replacement, got %+v", d)
	}
	if !errors.Is(d.Err, ErrRefreshTokenExpired) || !errors.Is(d.Err, ErrTokenExpired) {
		t.Fatalf("expected ErrRefreshTokenExpired and ErrTokenExpired, got %v", d.Err)
	}
	if _, err := rt.engine.store.Get(ctx, "7"); !errors.Is(err, session.ErrRecordNotFound) {
		t.Fatalf("expected record deleted, got %v", err)
	}
}

func TestEvaluateExpiredWithoutRecordEndsSession(t *testing.T) {
	rt, done := newRenewEngine(t, testConfig(t))
	defer done()
	ctx := context.Background()

	pair, err := rt.engine.Login(ctx, "42", "alice@example.com", "USER")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := rt.engine.Logout(ctx, "42"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	rt.clock.Advance(2 * time.Hour)

	d := rt.engine.Evaluate(ctx, pair.AccessToken)
	if d.Outcome != OutcomeSessionEnded || d.Identity != nil {
		t.Fatalf("expected session ended without identity, got %+v", d)
	}
	if !errors.Is(d.Err, ErrNoRefreshToken) || !errors.Is(d.Err, ErrTokenExpired) {
		t.Fatalf("expected ErrNoRefreshToken and ErrTokenExpired, got %v", d.Err)
	}
}

func TestEvaluateExpiredWithInvalidRefreshEndsSession(t *testing.T) {
	rt, done := newRenewEngine(t, testConfig(t))
	defer done()
	ctx := context.Background()

	pair, err := rt.engine.Login(ctx, "42", "alice@example.com", "USER")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	other, err := rt.engine.Tokens().Mint(jwt.KindRefresh, "99", "mallory", "ADMIN")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := rt.engine.store.Put(ctx, "42", pair.AccessToken, other, "ADMIN"); err != nil {
		t.Fatalf("put: %v", err)
	}
	rt.clock.Advance(2 * time.Hour)

	d := rt.engine.Evaluate(ctx, pair.AccessToken)
	if d.Outcome != OutcomeSessionEnded || !errors.Is(d.Err, ErrRefreshInvalid) {
		t.Fatalf("expected session ended with ErrRefreshInvalid, got %v (%v)", d.Outcome, d.Err)
	}
	if _, err := rt.engine.store.Get(ctx, "42"); !errors.Is(err, session.ErrRecordNotFound) {
		t.Fatalf("expected record deleted, got %v", err)
	}
}

func TestEvaluateExpiredStoreDownLeavesRecord(t *testing.T) {
	rt, done := newRenewEngine(t, testConfig(t))
	defer done()
	ctx := context.Background()

	pair, err := rt.engine.Login(ctx, "42", "alice@example.com", "USER")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	rt.clock.Advance(2 * time.Hour)
	rt.mr.SetError("LOADING Redis is loading the dataset in memory")

	d := rt.engine.Evaluate(ctx, pair.AccessToken)
	if d.Outcome != OutcomeStoreUnavailable || d.Identity != nil {
		t.Fatalf("expected store unavailable without identity, got %+v", d)
	}
	if !errors.Is(d.Err, ErrStoreUnavailable) || !errors.Is(d.Err, ErrTokenExpired) {
		t.Fatalf("expected ErrStoreUnavailable and ErrTokenExpired, got %v", d.Err)
	}

	rt.mr.SetError("")
	rec, err := rt.engine.store.Get(ctx, "42")
	if err != nil {
		t.Fatalf("record must survive a store outage: %v", err)
	}
	if rec.AccessToken != pair.AccessToken || rec.RefreshToken != pair.RefreshToken {
		t.Fatalf("record changed during outage: %+v", rec)
	}
}

func TestEvaluateExpiredBeyondGraceIsInvalid(t *testing.T) {
	cfg := testConfig(t)
	cfg.Renewal.MaxExpiredGrace = time.Hour
	rt, done := newRenewEngine(t, cfg)
	defer done()
	ctx := context.Background()

	pair, err := rt.engine.Login(ctx, "42", "alice@example.com", "USER")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	rt.clock.Advance(3 * time.Hour)

	d := rt.engine.Evaluate(ctx, pair.AccessToken)
	if d.Outcome != OutcomeInvalid || d.Identity != nil {
		t.Fatalf("expected invalid beyond grace, got %+v", d)
	}
	if !errors.Is(d.Err, ErrTokenInvalid) || !errors.Is(d.Err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenInvalid and ErrTokenExpired, got %v", d.Err)
	}
	if _, err := rt.engine.store.Get(ctx, "42"); err != nil {
		t.Fatalf("invalid token must not touch the record: %v", err)
	}
}

func TestEvaluateConcurrentNearExpiryStaysAuthenticated(t *testing.T) {
	rt, done := newRenewEngine(t, testConfig(t))
	defer done()
	ctx := context.Background()

	pair, err := rt.engine.Login(ctx, "42", "alice@example.com", "USER")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	rt.clock.Advance(55 * time.Minute)

	const n = 16
	var wg sync.WaitGroup
	decisions := make([]Decision, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			decisions[i] = rt.engine.Evaluate(ctx, pair.AccessToken)
		}(i)
	}
	wg.Wait()

	renewed := 0
	for i, d := range decisions {
		switch d.Outcome {
		case OutcomeRenewedProactive:
			renewed++
		case OutcomeSuperseded:
		default:
			t.Fatalf("request %d: unexpected outcome %v (%v)", i, d.Outcome, d.Err)
		}
		if d.Identity == nil || d.Identity.SubjectID != "42" {
			t.Fatalf("request %d: lost identity", i)
		}
	}
	if renewed == 0 {
		t.Fatal("expected at least one proactive renewal")
	}

	rec, err := rt.engine.store.Get(ctx, "42")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if _, err := rt.engine.Tokens().Verify(rec.AccessToken, jwt.KindAccess); err != nil {
		t.Fatalf("final access token must verify: %v", err)
	}
	if _, err := rt.engine.Tokens().Verify(rec.RefreshToken, jwt.KindRefresh); err != nil {
		t.Fatalf("final refresh token must verify: %v", err)
	}
}

func TestEvaluateNilEngine(t *testing.T) {
	var e *Engine
	d := e.Evaluate(context.Background(), "x")
	if d.Outcome != OutcomeInvalid || !errors.Is(d.Err, ErrEngineNotReady) {
		t.Fatalf("expected not-ready invalid decision, got %+v", d)
	}
}
