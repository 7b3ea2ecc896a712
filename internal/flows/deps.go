package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goRenew/jwt"
)

// TokenCodec is the subset of [jwt.Manager] used by flows.
type TokenCodec interface {
	Mint(kind jwt.Kind, subjectID, identity, authority string) (string, error)
	Parse(token string, kind jwt.Kind) (*jwt.Claims, error)
	Verify(token string, kind jwt.Kind) (*jwt.Claims, error)
	RemainingLifetime(claims *jwt.Claims) time.Duration
}

// CredentialStore is the subset of the session store used by flows.
type CredentialStore interface {
	Put(ctx context.Context, subjectID, accessToken, refreshToken, authorities string) error
	CompareAndPut(ctx context.Context, subjectID, expectedRefresh, accessToken, refreshToken, authorities string) (bool, error)
	GetAccessToken(ctx context.Context, subjectID string) (string, error)
	GetRefreshToken(ctx context.Context, subjectID string) (string, error)
	Remove(ctx context.Context, subjectID string) error
}

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Evaluate EvaluateDeps
	Renew    RenewDeps
	Refresh  RefreshDeps
	Login    LoginDeps
}
