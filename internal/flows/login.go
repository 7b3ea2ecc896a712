package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goRenew/jwt"
)

// LoginFailureKind classifies login issuance failures.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureInput
	LoginFailureMint
	LoginFailureStore
)

// LoginResult carries the issued pair or failure metadata.
type LoginResult struct {
	Failure      LoginFailureKind
	Err          error
	SubjectID    string
	AccessToken  string
	RefreshToken string
}

// LoginDeps captures login issuance dependencies.
type LoginDeps struct {
	Codec TokenCodec
	Store CredentialStore
}

// RunLogin mints a credential pair for an already authenticated subject and replaces
// the subject's record with it.
func RunLogin(ctx context.Context, subjectID, identity, authority string, deps LoginDeps) LoginResult {
	if subjectID == "" {
		return LoginResult{Failure: LoginFailureInput, Err: errors.New("subject id required")}
	}

	source := &jwt.Claims{Identity: identity, Authority: authority}
	source.Subject = subjectID
	pair, err := mintPair(deps.Codec, source)
	if err != nil {
		return LoginResult{Failure: LoginFailureMint, Err: err, SubjectID: subjectID}
	}

	if err := deps.Store.Put(ctx, subjectID, pair.access, pair.refresh, authority); err != nil {
		return LoginResult{Failure: LoginFailureStore, Err: err, SubjectID: subjectID}
	}

	return LoginResult{
		SubjectID:    subjectID,
		AccessToken:  pair.access,
		RefreshToken: pair.refresh,
	}
}

// RunLogout removes the subject's record. Removing an absent record succeeds.
func RunLogout(ctx context.Context, subjectID string, store CredentialStore) error {
	if subjectID == "" {
		return errors.New("subject id required")
	}
	return store.Remove(ctx, subjectID)
}
