package goRenew

import (
	"context"
	"errors"
	"fmt"
	"time"

	internalaudit "github.com/MrEthical07/goRenew/internal/audit"
	"github.com/MrEthical07/goRenew/internal/flows"
	"github.com/MrEthical07/goRenew/internal/rate"
	"github.com/MrEthical07/goRenew/jwt"
	"github.com/MrEthical07/goRenew/session"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Engine is the renewal engine: it evaluates presented access tokens, renews credential
// pairs and issues them at login.
//
// Engine is safe for concurrent use. Concurrent renewals for one subject within a
// process are collapsed into a single store write.
type Engine struct {
	config      Config
	tokens      *jwt.Manager
	store       *session.Store
	rateLimiter *rate.Limiter
	audit       *internalaudit.Dispatcher
	metrics     *Metrics
	logger      *zap.Logger
	clock       func() time.Time
	renewals    singleflight.Group
	flows       flows.Deps
}

// Close flushes the audit dispatcher. It does not close the Redis client.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped returns the number of audit events that never reached the sink.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDroppedByType breaks [Engine.AuditDropped] down by event type name.
func (e *Engine) AuditDroppedByType() map[string]uint64 {
	out := map[string]uint64{}
	if e == nil {
		return out
	}
	for typ, n := range e.audit.DroppedByType() {
		out[typ.String()] = n
	}
	return out
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Tokens exposes the token codec, for callers that need to inspect claims.
func (e *Engine) Tokens() *jwt.Manager {
	if e == nil {
		return nil
	}
	return e.tokens
}

// Ping checks credential store reachability.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil || e.store == nil {
		return 0, ErrEngineNotReady
	}
	d, err := e.store.Ping(ctx)
	if err != nil {
		return d, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return d, nil
}

// ActiveRecords scans the store and counts credential records.
// It is O(n) in the number of records and meant for admin endpoints only.
func (e *Engine) ActiveRecords(ctx context.Context) (int, error) {
	if e == nil || e.store == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.store.EstimateActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Evaluate classifies the presented access token and renews it when it is near expiry
// or expired. It never returns an error: every failure is folded into the returned
// [Decision], whose Outcome tells the caller how to continue.
//
// Store work is bounded by Renewal.StoreTimeout.
//
//	Performance: a fresh token costs one signature check and no store access.
//	A renewal costs 2-3 Redis round-trips.
func (e *Engine) Evaluate(ctx context.Context, token string) Decision {
	if e == nil || e.tokens == nil || e.store == nil {
		return Decision{Outcome: OutcomeInvalid, Token: token, Err: ErrEngineNotReady}
	}
	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricEvaluateLatency, time.Since(start))
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	if timeout := e.config.Renewal.StoreTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res := flows.RunEvaluate(ctx, token, e.flows.Evaluate)
	d := e.decisionFromEvaluate(token, res)
	e.observeDecision(ctx, d, res)
	return d
}

func (e *Engine) decisionFromEvaluate(token string, res flows.EvaluateResult) Decision {
	d := Decision{Token: token}

	switch res.Stage {
	case flows.StageMissing:
		d.Outcome = OutcomeMissing
	case flows.StageInvalid:
		d.Outcome = OutcomeInvalid
		d.Err = fmt.Errorf("%w: %v", ErrTokenInvalid, res.Err)
		if errors.Is(res.Err, flows.ErrBeyondGrace) {
			d.Err = errors.Join(d.Err, ErrTokenExpired)
		}
	case flows.StageFresh:
		d.Outcome = OutcomeFresh
	case flows.StageSuperseded:
		d.Outcome = OutcomeSuperseded
	case flows.StageRenewedProactive:
		d.Outcome = OutcomeRenewedProactive
		d.ReplacementToken = res.Replacement
	case flows.StageRenewedReactive:
		d.Outcome = OutcomeRenewedReactive
		d.ReplacementToken = res.Replacement
	case flows.StageFallback:
		d.Outcome = OutcomeFallback
		if res.Renewal != nil {
			d.Err = renewError(*res.Renewal)
		} else {
			d.Err = storeReadError(res.Err)
		}
	case flows.StageSessionEnded:
		d.Outcome = OutcomeSessionEnded
		d.Err = errors.Join(ErrTokenExpired, renewError(*res.Renewal))
	case flows.StageStoreUnavailable:
		d.Outcome = OutcomeStoreUnavailable
		d.Err = errors.Join(ErrTokenExpired, renewError(*res.Renewal))
	default:
		d.Outcome = OutcomeInvalid
		d.Err = ErrTokenInvalid
	}

	if d.Outcome.Authenticated() && res.Claims != nil {
		d.Identity = identityFromClaims(res.Claims)
	}
	return d
}

func (e *Engine) observeDecision(ctx context.Context, d Decision, res flows.EvaluateResult) {
	e.metricInc(outcomeMetric(d.Outcome))

	subjectID := ""
	if d.Identity != nil {
		subjectID = d.Identity.SubjectID
	} else if res.Renewal != nil {
		subjectID = res.Renewal.SubjectID
	}

	switch d.Outcome {
	case OutcomeInvalid:
		e.logger.Debug("access token rejected", zap.Error(d.Err))
	case OutcomeRenewedProactive, OutcomeRenewedReactive:
		e.logger.Debug("access token renewed",
			zap.String("subject", subjectID),
			zap.Stringer("outcome", d.Outcome),
			zap.Duration("remaining", res.Remaining),
		)
		typ := AuditRenewalProactive
		if d.Outcome == OutcomeRenewedReactive {
			typ = AuditRenewalReactive
		}
		e.emitAudit(ctx, typ, true, subjectID, d.Outcome, nil, auditRenewal(res))
	case OutcomeFallback:
		e.logger.Warn("proactive renewal failed, continuing with original token",
			zap.String("subject", subjectID),
			zap.Stringer("outcome", d.Outcome),
			zap.Error(d.Err),
		)
		e.emitAudit(ctx, AuditRenewalProactive, false, subjectID, d.Outcome, d.Err, auditRenewal(res))
	case OutcomeSessionEnded:
		fields := []zap.Field{
			zap.String("subject", subjectID),
			zap.Stringer("outcome", d.Outcome),
			zap.Error(d.Err),
		}
		if res.RemoveErr != nil {
			fields = append(fields, zap.NamedError("remove_error", res.RemoveErr))
		}
		e.logger.Info("session ended during reactive renewal", fields...)
		e.emitAudit(ctx, AuditSessionEnded, false, subjectID, d.Outcome, d.Err, auditRenewal(res))
	case OutcomeStoreUnavailable:
		e.logger.Warn("reactive renewal unavailable",
			zap.String("subject", subjectID),
			zap.Stringer("outcome", d.Outcome),
			zap.Error(d.Err),
		)
		e.emitAudit(ctx, AuditRenewalReactive, false, subjectID, d.Outcome, d.Err, auditRenewal(res))
	}
}

// Renew mints and stores a new credential pair for subjectID from the subject's stored
// refresh token, re-deriving identity and authority from that token's claims.
//
// Renew returns [ErrNoRefreshToken], [ErrRefreshTokenExpired] (after deleting the record),
// [ErrRefreshInvalid] or [ErrStoreUnavailable] on failure.
func (e *Engine) Renew(ctx context.Context, subjectID string) (TokenPair, error) {
	if e == nil || e.tokens == nil || e.store == nil {
		return TokenPair{}, ErrEngineNotReady
	}
	if subjectID == "" {
		return TokenPair{}, ErrNoRefreshToken
	}

	r := e.renewShared(ctx, subjectID)
	if r.Failure != flows.RenewFailureNone {
		return TokenPair{}, renewError(r)
	}
	return TokenPair{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}, nil
}

// renewShared runs one renewal per subject at a time; concurrent callers share the
// in-flight result. The shared work is detached from any single caller's cancellation
// and bounded by Renewal.StoreTimeout instead; each caller still returns as soon as its
// own ctx is done.
func (e *Engine) renewShared(ctx context.Context, subjectID string) flows.RenewResult {
	ch := e.renewals.DoChan(subjectID, func() (any, error) {
		work := context.WithoutCancel(ctx)
		if timeout := e.config.Renewal.StoreTimeout; timeout > 0 {
			var cancel context.CancelFunc
			work, cancel = context.WithTimeout(work, timeout)
			defer cancel()
		}

		r := flows.RunRenew(work, subjectID, e.flows.Renew)
		if r.Failure == flows.RenewFailureNone {
			e.metricInc(MetricRenewSuccess)
			if r.Adopted {
				e.metricInc(MetricRenewConditionalLost)
			}
		} else {
			e.metricInc(MetricRenewFailure)
			if r.RemoveErr != nil {
				e.logger.Warn("failed to delete record with expired refresh token",
					zap.String("subject", subjectID),
					zap.Error(r.RemoveErr),
				)
			}
		}
		return r, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			e.metricInc(MetricRenewCollapsed)
		}
		return res.Val.(flows.RenewResult)
	case <-ctx.Done():
		return flows.RenewResult{
			Failure:   flows.RenewFailureStoreUnavailable,
			Err:       ctx.Err(),
			SubjectID: subjectID,
		}
	}
}

// Login issues a credential pair for a subject the caller has already authenticated,
// replacing any existing record for that subject.
func (e *Engine) Login(ctx context.Context, subjectID, identity, authority string) (TokenPair, error) {
	if e == nil || e.tokens == nil || e.store == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	r := flows.RunLogin(ctx, subjectID, identity, authority, e.flows.Login)
	switch r.Failure {
	case flows.LoginFailureNone:
	case flows.LoginFailureStore:
		err := fmt.Errorf("%w: %v", ErrStoreUnavailable, r.Err)
		e.emitAudit(ctx, AuditLogin, false, subjectID, OutcomeUnknown, err, nil)
		return TokenPair{}, err
	default:
		e.emitAudit(ctx, AuditLogin, false, subjectID, OutcomeUnknown, r.Err, nil)
		return TokenPair{}, r.Err
	}

	e.metricInc(MetricLogin)
	e.emitAudit(ctx, AuditLogin, true, subjectID, OutcomeUnknown, nil, nil)
	return TokenPair{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}, nil
}

// Refresh exchanges the subject's current refresh token for a new pair. A refresh token
// that has already been exchanged, or that belongs to an ended session, is rejected
// with [ErrRefreshInvalid]. An expired refresh token ends the session: the record is
// deleted and [ErrRefreshTokenExpired] returned.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if e == nil || e.tokens == nil || e.store == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	r := flows.RunRefresh(ctx, refreshToken, e.flows.Refresh)
	if r.Failure == flows.RefreshFailureNone {
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, AuditRefresh, true, r.SubjectID, OutcomeUnknown, nil, nil)
		return TokenPair{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}, nil
	}

	var err error
	switch r.Failure {
	case flows.RefreshFailureExpired:
		err = ErrRefreshTokenExpired
		if r.RemoveErr != nil {
			e.logger.Warn("failed to delete record with expired refresh token",
				zap.String("subject", r.SubjectID),
				zap.Error(r.RemoveErr),
			)
			err = errors.Join(ErrRefreshTokenExpired, fmt.Errorf("%w: %v", ErrStoreUnavailable, r.RemoveErr))
		}
	case flows.RefreshFailureInvalid, flows.RefreshFailureNotCurrent:
		err = fmt.Errorf("%w: %v", ErrRefreshInvalid, r.Err)
	case flows.RefreshFailureRateLimited:
		if errors.Is(r.Err, rate.ErrRedisUnavailable) {
			err = fmt.Errorf("%w: %v", ErrStoreUnavailable, r.Err)
		} else {
			err = ErrRefreshRateLimited
			e.metricInc(MetricRefreshRateLimited)
			e.emitAudit(ctx, AuditRefreshRateLimited, false, r.SubjectID, OutcomeUnknown, err, nil)
			return TokenPair{}, err
		}
	case flows.RefreshFailureStore:
		err = fmt.Errorf("%w: %v", ErrStoreUnavailable, r.Err)
	default:
		err = fmt.Errorf("refresh: %w", r.Err)
	}

	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, AuditRefresh, false, r.SubjectID, OutcomeUnknown, err, nil)
	return TokenPair{}, err
}

// Logout deletes the subject's record. Logging out an absent subject succeeds.
func (e *Engine) Logout(ctx context.Context, subjectID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if err := flows.RunLogout(ctx, subjectID, e.store); err != nil {
		if errors.Is(err, session.ErrStoreUnavailable) {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return err
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, AuditLogout, true, subjectID, OutcomeUnknown, nil, nil)
	return nil
}

func identityFromClaims(c *jwt.Claims) *Identity {
	return &Identity{
		SubjectID:     c.SubjectID(),
		IdentityClaim: c.Identity,
		Authorities:   SplitAuthorities(c.Authority),
	}
}

func auditRenewal(res flows.EvaluateResult) *AuditRenewal {
	r := &AuditRenewal{RemainingMs: res.Remaining.Milliseconds()}
	if res.Renewal != nil {
		r.Adopted = res.Renewal.Adopted
	}
	if res.Stage == flows.StageSessionEnded {
		r.RecordRemoved = res.RemoveErr == nil
	}
	return r
}

func renewError(r flows.RenewResult) error {
	switch r.Failure {
	case flows.RenewFailureNone:
		return nil
	case flows.RenewFailureNoRefreshToken:
		return ErrNoRefreshToken
	case flows.RenewFailureRefreshExpired:
		return ErrRefreshTokenExpired
	case flows.RenewFailureRefreshInvalid:
		return fmt.Errorf("%w: %v", ErrRefreshInvalid, r.Err)
	case flows.RenewFailureStoreUnavailable:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, r.Err)
	default:
		return fmt.Errorf("renew: %w", r.Err)
	}
}

func storeReadError(err error) error {
	if errors.Is(err, session.ErrRecordNotFound) {
		return ErrNoRefreshToken
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func outcomeMetric(o Outcome) MetricID {
	switch o {
	case OutcomeMissing:
		return MetricEvaluateMissing
	case OutcomeInvalid:
		return MetricEvaluateInvalid
	case OutcomeFresh:
		return MetricEvaluateFresh
	case OutcomeRenewedProactive:
		return MetricEvaluateRenewedProactive
	case OutcomeSuperseded:
		return MetricEvaluateSuperseded
	case OutcomeFallback:
		return MetricEvaluateFallback
	case OutcomeRenewedReactive:
		return MetricEvaluateRenewedReactive
	case OutcomeSessionEnded:
		return MetricEvaluateSessionEnded
	case OutcomeStoreUnavailable:
		return MetricEvaluateStoreUnavailable
	default:
		return metricIDCount
	}
}
