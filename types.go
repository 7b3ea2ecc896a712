package goRenew

// Outcome is the explicit result of evaluating one presented access token.
type Outcome uint8

const (
	// OutcomeUnknown is the zero value and never returned by Evaluate.
	OutcomeUnknown Outcome = iota
	// OutcomeMissing: no token was presented. No identity.
	OutcomeMissing
	// OutcomeInvalid: the token failed verification or expired beyond the grace window.
	// No identity, no renewal.
	OutcomeInvalid
	// OutcomeFresh: the token is valid with enough lifetime left. Identity from the token.
	OutcomeFresh
	// OutcomeRenewedProactive: the token was near expiry and has been replaced.
	// Identity from the replacement.
	OutcomeRenewedProactive
	// OutcomeSuperseded: the token was near expiry but is no longer the subject's current
	// access token. Identity from the presented token; nothing written.
	OutcomeSuperseded
	// OutcomeFallback: the token was near expiry and renewal failed. Identity from the
	// presented token, no replacement.
	OutcomeFallback
	// OutcomeRenewedReactive: the token had expired and has been replaced.
	// Identity from the replacement.
	OutcomeRenewedReactive
	// OutcomeSessionEnded: the token had expired and the refresh token was missing,
	// expired or invalid. The record is deleted. No identity.
	OutcomeSessionEnded
	// OutcomeStoreUnavailable: the token had expired and renewal could not reach a
	// usable store. The record is untouched. No identity.
	OutcomeStoreUnavailable
)

var outcomeNames = [...]string{
	OutcomeUnknown:          "unknown",
	OutcomeMissing:          "missing",
	OutcomeInvalid:          "invalid",
	OutcomeFresh:            "fresh",
	OutcomeRenewedProactive: "renewed_proactive",
	OutcomeSuperseded:       "superseded",
	OutcomeFallback:         "fallback",
	OutcomeRenewedReactive:  "renewed_reactive",
	OutcomeSessionEnded:     "session_ended",
	OutcomeStoreUnavailable: "store_unavailable",
}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "unknown"
}

// Authenticated reports whether the outcome carries a usable identity.
func (o Outcome) Authenticated() bool {
	switch o {
	case OutcomeFresh, OutcomeRenewedProactive, OutcomeSuperseded, OutcomeFallback, OutcomeRenewedReactive:
		return true
	default:
		return false
	}
}

// Renewed reports whether the outcome produced a replacement access token.
func (o Outcome) Renewed() bool {
	return o == OutcomeRenewedProactive || o == OutcomeRenewedReactive
}

// Decision is what the request pipeline must do with one request.
//
// Identity is nil unless Outcome.Authenticated(). ReplacementToken is non-empty only
// when Outcome.Renewed(). Err carries the absorbed failure, if any, for logging.
type Decision struct {
	Outcome          Outcome
	Identity         *Identity
	Token            string
	ReplacementToken string
	Err              error
}

// TokenPair is a freshly minted access and refresh credential.
//
// RefreshToken may be empty when a conditional renewal lost to a concurrent writer and
// the winner's access token was adopted.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
