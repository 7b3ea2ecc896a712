package goRenew

import (
	"context"
	"slices"
	"strings"
)

type identityContextKey struct{}

// Identity is the authenticated caller attached to a request. It only lives for the
// duration of one request and is never persisted.
type Identity struct {
	SubjectID     string
	IdentityClaim string
	Authorities   []string
}

// HasAuthority reports whether the identity carries any of the given authorities.
func (i *Identity) HasAuthority(authorities ...string) bool {
	if i == nil {
		return false
	}
	for _, a := range authorities {
		if slices.Contains(i.Authorities, a) {
			return true
		}
	}
	return false
}

// WithIdentity returns a copy of ctx carrying id. Downstream handlers read it back with
// [IdentityFromContext].
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext returns the identity installed by the request interceptor.
// The second result is false when the request is unauthenticated.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	if id == nil || id.SubjectID == "" {
		return nil, false
	}
	return id, true
}

// SplitAuthorities turns the comma-separated authority claim into a slice, dropping
// blanks and surrounding whitespace.
func SplitAuthorities(claim string) []string {
	if claim == "" {
		return nil
	}
	parts := strings.Split(claim, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
