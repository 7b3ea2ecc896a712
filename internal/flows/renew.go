package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goRenew/jwt"
	"github.com/MrEthical07/goRenew/session"
)

// RenewFailureKind classifies renewal failures for root-level mapping.
type RenewFailureKind int

const (
	RenewFailureNone RenewFailureKind = iota
	RenewFailureNoRefreshToken
	RenewFailureRefreshExpired
	RenewFailureRefreshInvalid
	RenewFailureStoreUnavailable
	RenewFailureMint
)

// RenewResult carries either the new credential pair or failure metadata.
type RenewResult struct {
	Failure   RenewFailureKind
	Err       error
	SubjectID string

	// Claims describes the identity carried by AccessToken.
	Claims       *jwt.Claims
	AccessToken  string
	RefreshToken string

	// Adopted is set when a conditional write lost and AccessToken is the winner's.
	Adopted bool
	// RecordRemoved is set when the record was deleted because its refresh token expired.
	RecordRemoved bool
	// RemoveErr is the failure of that deletion, if any. It does not change Failure.
	RemoveErr error
}

// RenewDeps captures renewal dependencies.
type RenewDeps struct {
	Codec            TokenCodec
	Store            CredentialStore
	ConditionalWrite bool
}

// RunRenew mints and persists a new credential pair for subjectID from the subject's
// stored refresh token. Identity and authority are taken from the refresh token claims.
func RunRenew(ctx context.Context, subjectID string, deps RenewDeps) RenewResult {
	res := RenewResult{SubjectID: subjectID}

	stored, err := deps.Store.GetRefreshToken(ctx, subjectID)
	if err != nil {
		if errors.Is(err, session.ErrRecordNotFound) {
			res.Failure = RenewFailureNoRefreshToken
		} else {
			res.Failure = RenewFailureStoreUnavailable
		}
		res.Err = err
		return res
	}

	claims, err := deps.Codec.Verify(stored, jwt.KindRefresh)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			res.Failure = RenewFailureRefreshExpired
			res.Err = err
			res.RemoveErr = deps.Store.Remove(ctx, subjectID)
			res.RecordRemoved = res.RemoveErr == nil
			return res
		}
		res.Failure = RenewFailureRefreshInvalid
		res.Err = err
		return res
	}
	if claims.SubjectID() != subjectID {
		res.Failure = RenewFailureRefreshInvalid
		res.Err = fmt.Errorf("%w: refresh token subject mismatch", jwt.ErrInvalid)
		return res
	}

	pair, err := mintPair(deps.Codec, claims)
	if err != nil {
		res.Failure = RenewFailureMint
		res.Err = err
		return res
	}

	if !deps.ConditionalWrite {
		if err := deps.Store.Put(ctx, subjectID, pair.access, pair.refresh, claims.Authority); err != nil {
			res.Failure = RenewFailureStoreUnavailable
			res.Err = err
			return res
		}
		res.Claims = pair.claims
		res.AccessToken = pair.access
		res.RefreshToken = pair.refresh
		return res
	}

	won, err := deps.Store.CompareAndPut(ctx, subjectID, stored, pair.access, pair.refresh, claims.Authority)
	if err != nil {
		res.Failure = RenewFailureStoreUnavailable
		res.Err = err
		return res
	}
	if won {
		res.Claims = pair.claims
		res.AccessToken = pair.access
		res.RefreshToken = pair.refresh
		return res
	}

	// Another writer replaced the record first; converge on its access token.
	winner, err := deps.Store.GetAccessToken(ctx, subjectID)
	if err != nil {
		if errors.Is(err, session.ErrRecordNotFound) {
			res.Failure = RenewFailureNoRefreshToken
		} else {
			res.Failure = RenewFailureStoreUnavailable
		}
		res.Err = err
		return res
	}
	winnerClaims, err := deps.Codec.Verify(winner, jwt.KindAccess)
	if err != nil || winnerClaims.SubjectID() != subjectID {
		res.Failure = RenewFailureRefreshInvalid
		res.Err = fmt.Errorf("%w: adopted access token unusable", jwt.ErrInvalid)
		return res
	}
	res.Claims = winnerClaims
	res.AccessToken = winner
	res.Adopted = true
	return res
}

type mintedPair struct {
	access  string
	refresh string
	claims  *jwt.Claims
}

// mintPair issues a new access and refresh token carrying the same identity and
// authority as source.
func mintPair(codec TokenCodec, source *jwt.Claims) (mintedPair, error) {
	access, err := codec.Mint(jwt.KindAccess, source.SubjectID(), source.Identity, source.Authority)
	if err != nil {
		return mintedPair{}, err
	}
	refresh, err := codec.Mint(jwt.KindRefresh, source.SubjectID(), source.Identity, source.Authority)
	if err != nil {
		return mintedPair{}, err
	}
	accessClaims, err := codec.Parse(access, jwt.KindAccess)
	if err != nil {
		return mintedPair{}, err
	}
	return mintedPair{access: access, refresh: refresh, claims: accessClaims}, nil
}
