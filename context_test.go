package goRenew

import (
	"context"
	"reflect"
	"testing"
)

func TestIdentityContextRoundTrip(t *testing.T) {
	id := &Identity{SubjectID: "42", IdentityClaim: "alice@example.com", Authorities: []string{"USER"}}
	ctx := WithIdentity(context.Background(), id)

	got, ok := IdentityFromContext(ctx)
	if !ok || got != id {
		t.Fatalf("expected identity back, got %+v %v", got, ok)
	}

	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Fatal("empty context must be unauthenticated")
	}
	if _, ok := IdentityFromContext(WithIdentity(context.Background(), &Identity{})); ok {
		t.Fatal("identity without subject must be unauthenticated")
	}
	if _, ok := IdentityFromContext(WithIdentity(context.Background(), nil)); ok {
		t.Fatal("nil identity must be unauthenticated")
	}
}

func TestSplitAuthorities(t *testing.T) {
	cases := map[string][]string{
		"":                   nil,
		"USER":               {"USER"},
		"USER,ADMIN":         {"USER", "ADMIN"},
		" USER , ,ADMIN ,  ": {"USER", "ADMIN"},
	}
	for in, want := range cases {
		if got := SplitAuthorities(in); !reflect.DeepEqual(got, want) {
			t.Fatalf("SplitAuthorities(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestHasAuthority(t *testing.T) {
	id := &Identity{SubjectID: "42", Authorities: []string{"USER", "AUDITOR"}}
	if !id.HasAuthority("ADMIN", "AUDITOR") {
		t.Fatal("expected match on any listed authority")
	}
	if id.HasAuthority("ADMIN") {
		t.Fatal("unexpected authority match")
	}
	var none *Identity
	if none.HasAuthority("USER") {
		t.Fatal("nil identity has no authorities")
	}
}

func TestOutcomeClassification(t *testing.T) {
	authenticated := map[Outcome]bool{
		OutcomeMissing:          false,
		OutcomeInvalid:          false,
		OutcomeFresh:            true,
		OutcomeRenewedProactive: true,
		OutcomeSuperseded:       true,
		OutcomeFallback:         true,
		OutcomeRenewedReactive:  true,
		OutcomeSessionEnded:     false,
		OutcomeStoreUnavailable: false,
	}
	for o, want := range authenticated {
		if o.Authenticated() != want {
			t.Fatalf("%s: Authenticated() = %v, want %v", o, !want, want)
		}
		if o.String() == "" || o.String() == "unknown" {
			t.Fatalf("outcome %d has no name", o)
		}
	}
	if !OutcomeRenewedReactive.Renewed() || OutcomeSuperseded.Renewed() {
		t.Fatal("unexpected Renewed classification")
	}
}
