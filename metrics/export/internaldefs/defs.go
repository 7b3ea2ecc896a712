package internaldefs

import (
	goRenew "github.com/MrEthical07/goRenew"
)

// CounterDef names one engine counter for export. Prometheus uses Name; OTel folds the
// counter into Family, told apart from its siblings by Label.
type CounterDef struct {
	ID     goRenew.MetricID
	Name   string
	Help   string
	Family string
	Label  string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID     goRenew.MetricID
	Name   string
	Help   string
	Family string
}

// CounterFamily is one attribute-keyed instrument covering several counters.
type CounterFamily struct {
	Name string
	Help string
	// Attr is the attribute key carrying each member's Label.
	Attr string
}

// AuditDroppedName is the counter for audit events lost to dispatcher backpressure.
const AuditDroppedName = "renew_audit_dropped_total"

// AuditDroppedFamily is the OTel instrument for the same counter, keyed by event type.
const AuditDroppedFamily = "renew.audit.dropped"

const (
	familyEvaluate = "renew.evaluate.outcomes"
	familyRenew    = "renew.renewals"
	familySession  = "renew.sessions"
	familyRefresh  = "renew.refreshes"
)

// CounterFamilies lists the OTel counter families in a stable order.
var CounterFamilies = []CounterFamily{
	{Name: familyEvaluate, Help: "Evaluate calls by outcome.", Attr: "outcome"},
	{Name: familyRenew, Help: "Renewal attempts by result.", Attr: "result"},
	{Name: familySession, Help: "Credential records issued or removed.", Attr: "op"},
	{Name: familyRefresh, Help: "Explicit refreshes by result.", Attr: "result"},
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goRenew.MetricEvaluateMissing, Name: "renew_evaluate_missing_total", Help: "Requests without a bearer token.", Family: familyEvaluate, Label: goRenew.OutcomeMissing.String()},
	{ID: goRenew.MetricEvaluateInvalid, Name: "renew_evaluate_invalid_total", Help: "Rejected access tokens.", Family: familyEvaluate, Label: goRenew.OutcomeInvalid.String()},
	{ID: goRenew.MetricEvaluateFresh, Name: "renew_evaluate_fresh_total", Help: "Valid access tokens that needed no renewal.", Family: familyEvaluate, Label: goRenew.OutcomeFresh.String()},
	{ID: goRenew.MetricEvaluateRenewedProactive, Name: "renew_evaluate_renewed_proactive_total", Help: "Near-expiry access tokens replaced.", Family: familyEvaluate, Label: goRenew.OutcomeRenewedProactive.String()},
	{ID: goRenew.MetricEvaluateSuperseded, Name: "renew_evaluate_superseded_total", Help: "Near-expiry access tokens already replaced by an earlier renewal.", Family: familyEvaluate, Label: goRenew.OutcomeSuperseded.String()},
	{ID: goRenew.MetricEvaluateFallback, Name: "renew_evaluate_fallback_total", Help: "Failed proactive renewals that kept the original token.", Family: familyEvaluate, Label: goRenew.OutcomeFallback.String()},
	{ID: goRenew.MetricEvaluateRenewedReactive, Name: "renew_evaluate_renewed_reactive_total", Help: "Expired access tokens replaced.", Family: familyEvaluate, Label: goRenew.OutcomeRenewedReactive.String()},
	{ID: goRenew.MetricEvaluateSessionEnded, Name: "renew_evaluate_session_ended_total", Help: "Expired access tokens whose credential record was deleted.", Family: familyEvaluate, Label: goRenew.OutcomeSessionEnded.String()},
	{ID: goRenew.MetricEvaluateStoreUnavailable, Name: "renew_evaluate_store_unavailable_total", Help: "Expired access tokens left unrenewed by store failures.", Family: familyEvaluate, Label: goRenew.OutcomeStoreUnavailable.String()},
	{ID: goRenew.MetricRenewSuccess, Name: "renew_renew_success_total", Help: "Credential pairs written by renewal.", Family: familyRenew, Label: "success"},
	{ID: goRenew.MetricRenewFailure, Name: "renew_renew_failure_total", Help: "Renewals that produced no pair.", Family: familyRenew, Label: "failure"},
	{ID: goRenew.MetricRenewCollapsed, Name: "renew_renew_collapsed_total", Help: "Renewals joined to one already in flight.", Family: familyRenew, Label: "collapsed"},
	{ID: goRenew.MetricRenewConditionalLost, Name: "renew_renew_conditional_lost_total", Help: "Conditional renewal writes lost to another writer.", Family: familyRenew, Label: "conditional_lost"},
	{ID: goRenew.MetricLogin, Name: "renew_login_total", Help: "Credential pairs issued at login.", Family: familySession, Label: "login"},
	{ID: goRenew.MetricLogout, Name: "renew_logout_total", Help: "Credential records removed by logout.", Family: familySession, Label: "logout"},
	{ID: goRenew.MetricRefreshSuccess, Name: "renew_refresh_success_total", Help: "Successful explicit refreshes.", Family: familyRefresh, Label: "success"},
	{ID: goRenew.MetricRefreshFailure, Name: "renew_refresh_failure_total", Help: "Failed explicit refreshes.", Family: familyRefresh, Label: "failure"},
	{ID: goRenew.MetricRefreshRateLimited, Name: "renew_refresh_rate_limited_total", Help: "Explicit refreshes rejected by the throttle.", Family: familyRefresh, Label: "rate_limited"},
}

// FamilyMembers returns the counters belonging to family, in CounterDefs order.
func FamilyMembers(family string) []CounterDef {
	var out []CounterDef
	for _, def := range CounterDefs {
		if def.Family == family {
			out = append(out, def)
		}
	}
	return out
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goRenew.MetricEvaluateLatency, Name: "renew_evaluate_latency_seconds", Help: "Evaluate latency histogram.", Family: "renew.evaluate.latency"},
}

// HistogramUpperBounds are the bucket upper bounds in seconds, excluding +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBounds are the le labels of every bucket, including +Inf.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets copies raw into a fixed eight-bucket array, zero-filling or
// truncating as needed.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
