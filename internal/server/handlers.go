package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	goRenew "github.com/MrEthical07/goRenew"
	"github.com/MrEthical07/goRenew/internal/obs"
	"github.com/MrEthical07/goRenew/internal/rate"
	"github.com/MrEthical07/goRenew/internal/users"
	"github.com/MrEthical07/goRenew/password"
	"go.uber.org/zap"
)

// handleSignup handles POST /auth/signup
//
//	@Summary		Register a user
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SignupRequest	true	"Identity and password"
//	@Success		201		{object}	SignupResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse	"Identity already registered"
//	@Router			/auth/signup [post]
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	role := ""
	if s.deps.AllowRoleSelection {
		role = req.Role
	}

	u, err := s.deps.Users.Create(r.Context(), req.Identity, req.Password, role)
	switch {
	case err == nil:
	case errors.Is(err, users.ErrDuplicateIdentity):
		writeError(w, http.StatusConflict, "identity_taken", err.Error())
		return
	case errors.Is(err, users.ErrInvalidIdentity),
		errors.Is(err, password.ErrPasswordTooShort),
		errors.Is(err, password.ErrPasswordTooLong):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	default:
		s.log(r).Error("signup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	writeJSON(w, http.StatusCreated, SignupResponse{SubjectID: u.ID, Identity: u.Identity, Role: u.Role})
}

// handleLogin handles POST /auth/login
//
//	@Summary		Exchange a password for a credential pair
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		LoginRequest	true	"Credentials"
//	@Success		200		{object}	TokenResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		401		{object}	ErrorResponse	"Invalid credentials"
//	@Failure		429		{object}	ErrorResponse	"Too many failed attempts"
//	@Failure		503		{object}	ErrorResponse	"Credential store unavailable"
//	@Router			/auth/login [post]
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	ip := clientIP(r)
	identity := users.NormalizeIdentity(req.Identity)

	if lim := s.deps.LoginLimiter; lim != nil {
		if err := lim.CheckLogin(ctx, identity, ip); err != nil {
			s.writeLimiterError(w, r, err)
			return
		}
	}

	u, err := s.deps.Users.Authenticate(ctx, identity, req.Password)
	if err != nil {
		if !errors.Is(err, users.ErrInvalidCredentials) {
			s.log(r).Error("authenticate failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "server_error", "")
			return
		}
		if lim := s.deps.LoginLimiter; lim != nil {
			if lerr := lim.IncrementLogin(ctx, identity, ip); lerr != nil {
				s.writeLimiterError(w, r, lerr)
				return
			}
		}
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "")
		return
	}

	if lim := s.deps.LoginLimiter; lim != nil {
		if err := lim.ResetLogin(ctx, identity, ip); err != nil {
			s.log(r).Warn("reset login throttle", zap.Error(err))
		}
	}

	pair, err := s.deps.Engine.Login(ctx, u.ID, u.Identity, u.Role)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse(pair))
}

// handleRefresh handles POST /auth/refresh
//
//	@Summary		Exchange the current refresh token for a new pair
//	@Description	Only the most recently issued refresh token of a session is accepted.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	TokenResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		401		{object}	ErrorResponse	"Refresh token invalid, expired or superseded"
//	@Failure		429		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/auth/refresh [post]
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	pair, err := s.deps.Engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse(pair))
}

// handleLogout handles POST /auth/logout
//
//	@Summary	End the caller's session
//	@Tags		Auth
//	@Success	204
//	@Failure	401	{object}	ErrorResponse
//	@Failure	503	{object}	ErrorResponse
//	@Security	BearerAuth
//	@Router		/auth/logout [post]
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, _ := goRenew.IdentityFromContext(r.Context())
	if err := s.deps.Engine.Logout(r.Context(), id.SubjectID); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMe handles GET /api/me
//
//	@Summary	Describe the authenticated caller
//	@Tags		API
//	@Produce	json
//	@Success	200	{object}	MeResponse
//	@Failure	401	{object}	ErrorResponse	"Missing credentials or unknown subject"
//	@Security	BearerAuth
//	@Router		/api/me [get]
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := goRenew.IdentityFromContext(r.Context())
	u, err := s.deps.Users.ByID(r.Context(), id.SubjectID)
	switch {
	case err == nil:
	case errors.Is(err, users.ErrNotFound):
		writeError(w, http.StatusUnauthorized, "unknown_subject", "")
		return
	default:
		s.log(r).Error("user lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	authorities := id.Authorities
	if authorities == nil {
		authorities = []string{}
	}
	writeJSON(w, http.StatusOK, MeResponse{
		SubjectID:   u.ID,
		Identity:    u.Identity,
		Role:        u.Role,
		Authorities: authorities,
	})
}

// handleAdminPing handles GET /api/admin/ping
//
//	@Summary	Administrative liveness check
//	@Tags		Admin
//	@Produce	json
//	@Success	200	{object}	AdminPingResponse
//	@Failure	401	{object}	ErrorResponse
//	@Failure	403	{object}	ErrorResponse	"Requires the ADMIN authority"
//	@Security	BearerAuth
//	@Router		/api/admin/ping [get]
func (s *Server) handleAdminPing(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Engine.ActiveRecords(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	registered, err := s.deps.Users.Count(r.Context())
	if err != nil {
		s.log(r).Error("count users failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error", "")
		return
	}
	writeJSON(w, http.StatusOK, AdminPingResponse{Status: "ok", ActiveRecords: n, RegisteredUsers: registered})
}

// handleHealth handles GET /healthz
//
//	@Summary	Credential store health
//	@Tags		Ops
//	@Produce	json
//	@Success	200	{object}	HealthResponse
//	@Failure	503	{object}	HealthResponse
//	@Router		/healthz [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.deps.HealthTimeout)
	defer cancel()

	rtt, err := s.deps.Engine.Ping(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Description: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", RedisRTTMs: rtt.Milliseconds()})
}

func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, goRenew.ErrRefreshRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate_limited", "")
	case errors.Is(err, goRenew.ErrRefreshInvalid),
		errors.Is(err, goRenew.ErrRefreshTokenExpired),
		errors.Is(err, goRenew.ErrNoRefreshToken),
		errors.Is(err, goRenew.ErrTokenInvalid):
		writeError(w, http.StatusUnauthorized, "invalid_grant", err.Error())
	case errors.Is(err, goRenew.ErrStoreUnavailable):
		s.log(r).Warn("credential store unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "")
	default:
		s.log(r).Error("engine call failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error", "")
	}
}

func (s *Server) writeLimiterError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, rate.ErrRateLimited) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "Too many failed attempts")
		return
	}
	s.log(r).Warn("login throttle unavailable", zap.Error(err))
	writeError(w, http.StatusServiceUnavailable, "store_unavailable", "")
}

func (s *Server) log(r *http.Request) *zap.Logger {
	return obs.FromContext(r.Context(), s.logger)
}

func tokenResponse(p goRenew.TokenPair) TokenResponse {
	return TokenResponse{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken, TokenType: "Bearer"}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
