package middleware

import (
	"context"
	"net/http"
	"strings"

	goRenew "github.com/MrEthical07/goRenew"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DefaultHeader carries a replacement access token back to the client.
const DefaultHeader = "X-New-Access-Token"

// DefaultBypassPrefixes are the credential-issuing and operational routes that never
// carry an access token worth evaluating.
var DefaultBypassPrefixes = []string{
	"/auth/signup",
	"/auth/login",
	"/auth/refresh",
	"/swagger/",
	"/healthz",
}

// Evaluator classifies a presented access token. [goRenew.Engine] implements it.
type Evaluator interface {
	Evaluate(ctx context.Context, token string) goRenew.Decision
}

// Options configures an [Interceptor].
type Options struct {
	// Logger receives per-request outcome logs. Nil discards them.
	Logger *zap.Logger
	// BypassPrefixes are path prefixes skipped entirely, matched on segment boundaries.
	// Nil means [DefaultBypassPrefixes];
	// an empty non-nil slice disables bypassing.
	BypassPrefixes []string
	// Header names the response header carrying a replacement token.
	Header string
}

// Interceptor evaluates the bearer token of every request, installs the resulting
// identity into the request context and returns replacement tokens as a response header.
//
// Interceptor never rejects a request. Pair it with [RequireIdentity] or
// [RequireAuthority] on routes that need an authenticated caller.
type Interceptor struct {
	evaluator Evaluator
	logger    *zap.Logger
	bypass    []string
	header    string
}

// New returns an Interceptor backed by evaluator.
func New(evaluator Evaluator, opts Options) *Interceptor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bypass := opts.BypassPrefixes
	if bypass == nil {
		bypass = DefaultBypassPrefixes
	}
	header := opts.Header
	if header == "" {
		header = DefaultHeader
	}
	return &Interceptor{
		evaluator: evaluator,
		logger:    logger.Named("interceptor"),
		bypass:    append([]string(nil), bypass...),
		header:    header,
	}
}

// Decide evaluates r. The second result is false when r is on a bypassed path and was
// not evaluated.
func (i *Interceptor) Decide(r *http.Request) (goRenew.Decision, bool) {
	if i.bypassed(r.URL.Path) {
		return goRenew.Decision{}, false
	}
	token, _ := bearerToken(r.Header.Get("Authorization"))
	if i.evaluator == nil {
		return goRenew.Decision{Outcome: goRenew.OutcomeInvalid, Token: token, Err: goRenew.ErrEngineNotReady}, true
	}
	d := i.evaluator.Evaluate(r.Context(), token)
	i.log(r, d)
	return d, true
}

// Handler wraps next as net/http middleware.
func (i *Interceptor) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, evaluated := i.Decide(r)
		if !evaluated {
			next.ServeHTTP(w, r)
			return
		}
		if d.ReplacementToken != "" {
			w.Header().Set(i.header, d.ReplacementToken)
		}
		if d.Identity != nil {
			r = r.WithContext(goRenew.WithIdentity(r.Context(), d.Identity))
		}
		next.ServeHTTP(w, r)
	})
}

// Gin returns the interceptor as gin middleware. The identity is installed into
// c.Request's context, where [goRenew.IdentityFromContext] finds it.
func (i *Interceptor) Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		d, evaluated := i.Decide(c.Request)
		if !evaluated {
			c.Next()
			return
		}
		if d.ReplacementToken != "" {
			c.Header(i.header, d.ReplacementToken)
		}
		if d.Identity != nil {
			c.Request = c.Request.WithContext(goRenew.WithIdentity(c.Request.Context(), d.Identity))
		}
		c.Next()
	}
}

// bypassed matches whole path segments: "/healthz" covers "/healthz" and
// "/healthz/live" but not "/healthzX". A prefix ending in "/" covers everything below it.
func (i *Interceptor) bypassed(path string) bool {
	for _, prefix := range i.bypass {
		if prefix == "" {
			continue
		}
		if path == prefix {
			return true
		}
		if strings.HasSuffix(prefix, "/") {
			if strings.HasPrefix(path, prefix) {
				return true
			}
			continue
		}
		if strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

func (i *Interceptor) log(r *http.Request, d goRenew.Decision) {
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Stringer("outcome", d.Outcome),
	}
	if d.Identity != nil {
		fields = append(fields, zap.String("subject", d.Identity.SubjectID))
	}
	if d.Err != nil {
		fields = append(fields, zap.Error(d.Err))
	}

	switch d.Outcome {
	case goRenew.OutcomeFallback, goRenew.OutcomeStoreUnavailable:
		i.logger.Warn("request continues without renewal", fields...)
	case goRenew.OutcomeSessionEnded:
		i.logger.Info("request continues unauthenticated", fields...)
	default:
		i.logger.Debug("request evaluated", fields...)
	}
}
