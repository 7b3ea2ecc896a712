package server

import (
	"errors"
	"net/http"
	"time"

	goRenew "github.com/MrEthical07/goRenew"
	"github.com/MrEthical07/goRenew/internal/obs"
	"github.com/MrEthical07/goRenew/internal/rate"
	_ "github.com/MrEthical07/goRenew/internal/server/docs"
	"github.com/MrEthical07/goRenew/internal/users"
	"github.com/MrEthical07/goRenew/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// AdminAuthority guards the administrative routes.
const AdminAuthority = "ADMIN"

// Deps are the collaborators of the HTTP surface.
type Deps struct {
	Engine *goRenew.Engine
	Users  *users.Store
	// LoginLimiter throttles failed logins. Nil disables throttling.
	LoginLimiter *rate.Limiter
	// Metrics serves GET /metrics. Nil leaves the route unregistered.
	Metrics http.Handler
	Logger  *zap.Logger
	// AllowRoleSelection lets signup requests pick their own role.
	AllowRoleSelection bool
	// HealthTimeout bounds the store ping behind /healthz.
	HealthTimeout time.Duration
}

// Server is renewd's HTTP surface.
type Server struct {
	deps        Deps
	logger      *zap.Logger
	interceptor *middleware.Interceptor
	mux         *http.ServeMux
}

// New wires the routes.
//
//	@title			renewd
//	@version		1.0
//	@description	Credential issuance with transparent access token renewal.
//	@BasePath		/
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
func New(deps Deps) (*Server, error) {
	if deps.Engine == nil {
		return nil, errors.New("server: engine is required")
	}
	if deps.Users == nil {
		return nil, errors.New("server: user store is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.HealthTimeout <= 0 {
		deps.HealthTimeout = 500 * time.Millisecond
	}

	s := &Server{
		deps:   deps,
		logger: deps.Logger,
		interceptor: middleware.New(deps.Engine, middleware.Options{
			Logger: deps.Logger,
		}),
		mux: http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /auth/signup", s.handleSignup)
	s.mux.HandleFunc("POST /auth/login", s.handleLogin)
	s.mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	s.mux.Handle("POST /auth/logout", middleware.RequireIdentity(http.HandlerFunc(s.handleLogout)))

	s.mux.Handle("GET /api/me", middleware.RequireIdentity(http.HandlerFunc(s.handleMe)))
	s.mux.Handle("GET /api/admin/ping", middleware.RequireAuthority(AdminAuthority)(http.HandlerFunc(s.handleAdminPing)))

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		s.mux.Handle("GET /metrics", s.deps.Metrics)
	}
	s.mux.Handle("/swagger/", httpSwagger.Handler())
}

// Handler returns the full middleware chain: request logging, then the renewal
// interceptor, then the routes.
func (s *Server) Handler() http.Handler {
	return obs.HTTPMiddleware(s.logger)(s.interceptor.Handler(s.mux))
}

// HTTPServer wraps Handler in an *http.Server with the given timeouts.
func (s *Server) HTTPServer(addr string, read, write, idle time.Duration) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
	}
}
