package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goRenew/jwt"
	"github.com/MrEthical07/goRenew/session"
)

// EvaluateStage names the branch a presented access token took.
type EvaluateStage int

const (
	StageMissing EvaluateStage = iota
	StageInvalid
	StageFresh
	StageRenewedProactive
	StageSuperseded
	StageFallback
	StageRenewedReactive
	StageSessionEnded
	StageStoreUnavailable
)

// ErrBeyondGrace marks an access token that expired longer ago than the grace window.
var ErrBeyondGrace = errors.New("token expired beyond grace window")

// EvaluateResult is the classified evaluation of one access token.
type EvaluateResult struct {
	Stage EvaluateStage
	Err   error

	// Claims is the identity source: the presented token, or the replacement when renewed.
	Claims      *jwt.Claims
	Replacement string
	Remaining   time.Duration

	// Renewal is set whenever a renewal was attempted.
	Renewal *RenewResult
	// RemoveErr reports a failed record deletion on the session-ended branch.
	RemoveErr error
}

// EvaluateStore is the store subset read during evaluation.
type EvaluateStore interface {
	GetAccessToken(ctx context.Context, subjectID string) (string, error)
	Remove(ctx context.Context, subjectID string) error
}

// EvaluateDeps captures evaluation dependencies.
type EvaluateDeps struct {
	Codec              TokenCodec
	Store              EvaluateStore
	FreshnessThreshold time.Duration
	MaxExpiredGrace    time.Duration
	// Renew performs (or joins) a renewal for the subject.
	Renew func(ctx context.Context, subjectID string) RenewResult
}

// RunEvaluate classifies token and performs proactive or reactive renewal as needed.
//
// Only the subject's current access token may trigger a proactive renewal; an older
// token that is still valid is reported as superseded and causes no write.
func RunEvaluate(ctx context.Context, token string, deps EvaluateDeps) EvaluateResult {
	if token == "" {
		return EvaluateResult{Stage: StageMissing}
	}

	claims, err := deps.Codec.Parse(token, jwt.KindAccess)
	if err != nil {
		return EvaluateResult{Stage: StageInvalid, Err: err}
	}

	remaining := deps.Codec.RemainingLifetime(claims)
	subjectID := claims.SubjectID()

	switch {
	case remaining >= deps.FreshnessThreshold:
		return EvaluateResult{Stage: StageFresh, Claims: claims, Remaining: remaining}

	case remaining > 0:
		return runProactive(ctx, token, claims, remaining, deps)

	case deps.MaxExpiredGrace > 0 && -remaining > deps.MaxExpiredGrace:
		return EvaluateResult{
			Stage:     StageInvalid,
			Err:       fmt.Errorf("%w: expired %s ago", ErrBeyondGrace, (-remaining).Truncate(time.Second)),
			Remaining: remaining,
		}
	}

	renewal := deps.Renew(ctx, subjectID)
	out := EvaluateResult{Remaining: remaining, Renewal: &renewal, Err: renewal.Err}

	switch renewal.Failure {
	case RenewFailureNone:
		out.Stage = StageRenewedReactive
		out.Claims = renewal.Claims
		out.Replacement = renewal.AccessToken
	case RenewFailureNoRefreshToken, RenewFailureRefreshInvalid:
		out.Stage = StageSessionEnded
		out.RemoveErr = deps.Store.Remove(ctx, subjectID)
	case RenewFailureRefreshExpired:
		out.Stage = StageSessionEnded
		out.RemoveErr = renewal.RemoveErr
	default:
		out.Stage = StageStoreUnavailable
	}
	return out
}

func runProactive(ctx context.Context, token string, claims *jwt.Claims, remaining time.Duration, deps EvaluateDeps) EvaluateResult {
	fallback := func(err error) EvaluateResult {
		return EvaluateResult{Stage: StageFallback, Err: err, Claims: claims, Remaining: remaining}
	}

	current, err := deps.Store.GetAccessToken(ctx, claims.SubjectID())
	if err != nil {
		if errors.Is(err, session.ErrRecordNotFound) {
			return fallback(fmt.Errorf("%w: no credential record", err))
		}
		return fallback(err)
	}
	if current != token {
		return EvaluateResult{Stage: StageSuperseded, Claims: claims, Remaining: remaining}
	}

	renewal := deps.Renew(ctx, claims.SubjectID())
	if renewal.Failure != RenewFailureNone {
		out := fallback(renewal.Err)
		out.Renewal = &renewal
		return out
	}
	return EvaluateResult{
		Stage:       StageRenewedProactive,
		Claims:      renewal.Claims,
		Replacement: renewal.AccessToken,
		Remaining:   remaining,
		Renewal:     &renewal,
	}
}
