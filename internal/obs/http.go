package obs

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// RequestIDHeader is read from inbound requests and echoed on responses.
const RequestIDHeader = "X-Request-ID"

type ctxKey struct{}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the request-scoped logger, or fallback when none is set.
func FromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	if fallback == nil {
		return zap.NewNop()
	}
	return fallback
}

// HTTPMiddleware assigns every request an id, installs a request-scoped logger into
// the context and logs one "http_request" line when the handler returns.
func HTTPMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(RequestIDHeader)
			if reqID == "" {
				reqID = NewRequestID()
			}
			w.Header().Set(RequestIDHeader, reqID)

			reqLogger := logger.With(
				zap.String("request_id", reqID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)
			ctx := WithLogger(r.Context(), reqLogger)

			start := time.Now()
			rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.Int("status", rw.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.wroteHeader = true
	}
	return w.ResponseWriter.Write(b)
}
