package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goRenew/jwt"
	"github.com/MrEthical07/goRenew/session"
)

// RefreshFailureKind classifies explicit refresh failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureInvalid
	RefreshFailureExpired
	RefreshFailureNotCurrent
	RefreshFailureRateLimited
	RefreshFailureStore
	RefreshFailureMint
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure      RefreshFailureKind
	Err          error
	SubjectID    string
	AccessToken  string
	RefreshToken string
	// RemoveErr reports a failed deletion of an expired session's record. It does not
	// change Failure.
	RemoveErr error
}

// RefreshRateLimiter throttles explicit refreshes per subject.
type RefreshRateLimiter interface {
	CheckRefresh(ctx context.Context, subjectID string) error
}

// RefreshDeps captures explicit refresh dependencies.
type RefreshDeps struct {
	Codec       TokenCodec
	Store       CredentialStore
	RateLimiter RefreshRateLimiter
}

// RunRefresh exchanges the subject's current refresh token for a new pair.
//
// The exchange is a compare-and-put keyed on the presented token, so each refresh token
// is accepted at most once even under concurrent use.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	claims, err := deps.Codec.Verify(refreshToken, jwt.KindRefresh)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			subjectID := claims.SubjectID()
			return RefreshResult{
				Failure:   RefreshFailureExpired,
				Err:       err,
				SubjectID: subjectID,
				RemoveErr: removeExpiredSession(ctx, subjectID, refreshToken, deps),
			}
		}
		return RefreshResult{Failure: RefreshFailureInvalid, Err: err}
	}
	subjectID := claims.SubjectID()

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckRefresh(ctx, subjectID); err != nil {
			return RefreshResult{Failure: RefreshFailureRateLimited, Err: err, SubjectID: subjectID}
		}
	}

	current, err := deps.Store.GetRefreshToken(ctx, subjectID)
	if err != nil {
		if errors.Is(err, session.ErrRecordNotFound) {
			return RefreshResult{Failure: RefreshFailureNotCurrent, Err: err, SubjectID: subjectID}
		}
		return RefreshResult{Failure: RefreshFailureStore, Err: err, SubjectID: subjectID}
	}
	if current != refreshToken {
		return RefreshResult{
			Failure:   RefreshFailureNotCurrent,
			Err:       errors.New("refresh token is not current"),
			SubjectID: subjectID,
		}
	}

	pair, err := mintPair(deps.Codec, claims)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureMint, Err: err, SubjectID: subjectID}
	}

	won, err := deps.Store.CompareAndPut(ctx, subjectID, refreshToken, pair.access, pair.refresh, claims.Authority)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: err, SubjectID: subjectID}
	}
	if !won {
		return RefreshResult{
			Failure:   RefreshFailureNotCurrent,
			Err:       errors.New("refresh token replaced concurrently"),
			SubjectID: subjectID,
		}
	}

	return RefreshResult{
		SubjectID:    subjectID,
		AccessToken:  pair.access,
		RefreshToken: pair.refresh,
	}
}

// removeExpiredSession deletes the subject's record when the stored refresh token is the
// presented expired one, or has itself expired. A record holding a newer, live refresh
// token belongs to a later login and is left alone.
func removeExpiredSession(ctx context.Context, subjectID, presented string, deps RefreshDeps) error {
	if subjectID == "" {
		return nil
	}
	stored, err := deps.Store.GetRefreshToken(ctx, subjectID)
	if err != nil {
		if errors.Is(err, session.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if stored != presented {
		if _, err := deps.Codec.Verify(stored, jwt.KindRefresh); !errors.Is(err, jwt.ErrExpired) {
			return nil
		}
	}
	return deps.Store.Remove(ctx, subjectID)
}
