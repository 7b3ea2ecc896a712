package middleware

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	goRenew "github.com/MrEthical07/goRenew"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type fakeEvaluator struct {
	mu       sync.Mutex
	decision goRenew.Decision
	tokens   []string
}

func (f *fakeEvaluator) Evaluate(_ context.Context, token string) goRenew.Decision {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	d := f.decision
	d.Token = token
	return d
}

func (f *fakeEvaluator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tokens)
}

func identityEcho(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := goRenew.IdentityFromContext(r.Context()); ok {
			_, _ = w.Write([]byte(id.SubjectID))
			return
		}
		_, _ = w.Write([]byte("anonymous"))
	})
}

func TestHandlerInstallsIdentityAndReplacement(t *testing.T) {
	eval := &fakeEvaluator{decision: goRenew.Decision{
		Outcome:          goRenew.OutcomeRenewedProactive,
		Identity:         &goRenew.Identity{SubjectID: "42", Authorities: []string{"USER"}},
		ReplacementToken: "new-token",
	}}
	h := New(eval, Options{}).Handler(identityEcho(t))

	req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
	req.Header.Set("Authorization", "Bearer old-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Body.String() != "42" {
		t.Fatalf("expected identity 42 downstream, got %q", rec.Body.String())
	}
	if got := rec.Header().Get(DefaultHeader); got != "new-token" {
		t.Fatalf("expected replacement header, got %q", got)
	}
	if eval.tokens[0] != "old-token" {
		t.Fatalf("expected bearer token passed through, got %q", eval.tokens[0])
	}
}

func TestHandlerNeverRejects(t *testing.T) {
	for _, outcome := range []goRenew.Outcome{
		goRenew.OutcomeMissing,
		goRenew.OutcomeInvalid,
		goRenew.OutcomeSessionEnded,
		goRenew.OutcomeStoreUnavailable,
	} {
		eval := &fakeEvaluator{decision: goRenew.Decision{Outcome: outcome}}
		h := New(eval, Options{}).Handler(identityEcho(t))

		req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
		req.Header.Set("Authorization", "Bearer whatever")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK || rec.Body.String() != "anonymous" {
			t.Fatalf("%s: expected anonymous pass-through, got %d %q", outcome, rec.Code, rec.Body.String())
		}
		if rec.Header().Get(DefaultHeader) != "" {
			t.Fatalf("%s: unexpected replacement header", outcome)
		}
	}
}

func TestBearerPrefixIsCaseSensitive(t *testing.T) {
	eval := &fakeEvaluator{decision: goRenew.Decision{Outcome: goRenew.OutcomeMissing}}
	i := New(eval, Options{})

	for header, want := range map[string]string{
		"Bearer abc":  "abc",
		"bearer abc":  "",
		"Basic abc":   "",
		"Bearer ":     "",
		"BearerToken": "",
	} {
		req := httptest.NewRequest(http.MethodGet, "/api", nil)
		req.Header.Set("Authorization", header)
		d, evaluated := i.Decide(req)
		if !evaluated {
			t.Fatalf("%q: expected evaluation", header)
		}
		if d.Token != want {
			t.Fatalf("%q: expected token %q, got %q", header, want, d.Token)
		}
	}
}

func TestBypassPrefixesSkipEvaluation(t *testing.T) {
	eval := &fakeEvaluator{decision: goRenew.Decision{
		Outcome:  goRenew.OutcomeFresh,
		Identity: &goRenew.Identity{SubjectID: "42"},
	}}
	h := New(eval, Options{}).Handler(identityEcho(t))

	for _, path := range []string{"/auth/login", "/auth/refresh", "/swagger/index.html", "/healthz"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Header.Set("Authorization", "Bearer abc")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Body.String() != "anonymous" {
			t.Fatalf("%s: bypassed route must not see an identity", path)
		}
	}
	if eval.calls() != 0 {
		t.Fatalf("expected no evaluations on bypassed routes, got %d", eval.calls())
	}

	custom := New(eval, Options{BypassPrefixes: []string{}, Header: "X-Token"})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	if _, evaluated := custom.Decide(req); !evaluated {
		t.Fatal("empty bypass list must evaluate every path")
	}
}

func TestBypassMatchesWholeSegments(t *testing.T) {
	eval := &fakeEvaluator{decision: goRenew.Decision{Outcome: goRenew.OutcomeMissing}}
	i := New(eval, Options{})

	for path, wantBypass := range map[string]bool{
		"/healthz":             true,
		"/healthz/live":        true,
		"/swagger/index.html":  true,
		"/auth/login":          true,
		"/healthzX":            false,
		"/auth/login-anything": false,
		"/auth/refreshed":      false,
		"/swagger":             false,
		"/api/healthz":         false,
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if _, evaluated := i.Decide(req); evaluated == wantBypass {
			t.Fatalf("%s: expected bypass=%v", path, wantBypass)
		}
	}
}

func TestGuards(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	cases := []struct {
		name     string
		identity *goRenew.Identity
		handler  http.Handler
		want     int
	}{
		{"identity required, absent", nil, RequireIdentity(ok), http.StatusUnauthorized},
		{"identity required, present", &goRenew.Identity{SubjectID: "42"}, RequireIdentity(ok), http.StatusNoContent},
		{"authority required, absent", nil, RequireAuthority("ADMIN")(ok), http.StatusUnauthorized},
		{"authority required, lacking", &goRenew.Identity{SubjectID: "42", Authorities: []string{"USER"}}, RequireAuthority("ADMIN")(ok), http.StatusForbidden},
		{"authority required, held", &goRenew.Identity{SubjectID: "42", Authorities: []string{"USER", "ADMIN"}}, RequireAuthority("ADMIN")(ok), http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		if tc.identity != nil {
			req = req.WithContext(goRenew.WithIdentity(req.Context(), tc.identity))
		}
		rec := httptest.NewRecorder()
		tc.handler.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, rec.Code)
		}
	}
}

func TestGinAdapter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	eval := &fakeEvaluator{decision: goRenew.Decision{
		Outcome:          goRenew.OutcomeRenewedReactive,
		Identity:         &goRenew.Identity{SubjectID: "7", Authorities: []string{"USER"}},
		ReplacementToken: "replacement",
	}}

	r := gin.New()
	r.Use(New(eval, Options{}).Gin())
	r.GET("/me", GinRequireIdentity(), func(c *gin.Context) {
		id, _ := goRenew.IdentityFromContext(c.Request.Context())
		c.String(http.StatusOK, id.SubjectID)
	})
	r.GET("/admin", GinRequireAuthority("ADMIN"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer expired")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "7" {
		t.Fatalf("expected 200 for subject 7, got %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(DefaultHeader) != "replacement" {
		t.Fatal("expected replacement header from gin adapter")
	}

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer expired")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without ADMIN, got %d", rec.Code)
	}
}

func TestInterceptorWithEngine(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	cfg := goRenew.DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.Renewal.StoreTimeout = 2 * time.Second

	now := time.Unix(1_700_000_000, 0)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	engine, err := goRenew.New().WithConfig(cfg).WithRedis(rdb).WithClock(clock).Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	defer engine.Close()

	pair, err := engine.Login(context.Background(), "42", "alice@example.com", "USER")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	mu.Lock()
	now = now.Add(55 * time.Minute)
	mu.Unlock()

	h := New(engine, Options{}).Handler(RequireIdentity(identityEcho(t)))

	serve := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := serve(pair.AccessToken)
	replacement := first.Header().Get(DefaultHeader)
	if first.Code != http.StatusOK || replacement == "" {
		t.Fatalf("expected 200 with replacement, got %d %q", first.Code, replacement)
	}

	second := serve(pair.AccessToken)
	if second.Code != http.StatusOK || second.Header().Get(DefaultHeader) != "" {
		t.Fatalf("superseded token must pass without a new replacement, got %d", second.Code)
	}

	third := serve(replacement)
	if third.Code != http.StatusOK || third.Body.String() != "42" || third.Header().Get(DefaultHeader) != "" {
		t.Fatalf("replacement must be fresh, got %d %q", third.Code, third.Body.String())
	}

	if rec := serve("garbage"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("guard must reject an invalid token, got %d", rec.Code)
	}
}
