package goRenew

import "errors"

var (
	// ErrTokenInvalid reports a credential that is malformed, foreign, of the wrong kind,
	// or expired beyond the configured grace window.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired reports a well-signed access token whose validity window has passed.
	// Evaluate joins it into Decision.Err next to the renewal failure on reactive outcomes
	// and next to ErrTokenInvalid beyond the grace window.
	ErrTokenExpired = errors.New("token expired")
	// ErrNoRefreshToken is returned when the subject has no stored refresh token.
	ErrNoRefreshToken = errors.New("no refresh token")
	// ErrRefreshTokenExpired is returned when the stored refresh token has expired.
	// The subject's record is deleted before this error is returned.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	// ErrRefreshInvalid is returned when a refresh token fails verification, belongs to a
	// different subject, or is no longer the subject's current refresh token.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshRateLimited is returned by [Engine.Refresh] when the per-subject throttle trips.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrStoreUnavailable wraps every credential store failure.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrEngineNotReady is returned by methods called on a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
