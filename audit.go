package goRenew

import (
	"context"
	"errors"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/goRenew/internal/audit"
)

// AuditEvent is one credential lifecycle record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditEventType identifies what an [AuditEvent] records.
type AuditEventType = internalaudit.Type

// AuditRenewal details the rotation behind a renewal or ended-session event.
type AuditRenewal = internalaudit.Renewal

// Audit event types.
const (
	AuditLogin              = internalaudit.TypeLogin
	AuditLogout             = internalaudit.TypeLogout
	AuditRefresh            = internalaudit.TypeRefresh
	AuditRefreshRateLimited = internalaudit.TypeRefreshRateLimited
	AuditRenewalProactive   = internalaudit.TypeRenewalProactive
	AuditRenewalReactive    = internalaudit.TypeRenewalReactive
	AuditSessionEnded       = internalaudit.TypeSessionEnded
)

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// AuditErrorCode is the stable, non-sensitive error label carried by audit events.
type AuditErrorCode string

const (
	auditErrTokenInvalid     AuditErrorCode = "invalid_token"
	auditErrNoRefreshToken   AuditErrorCode = "no_refresh_token"
	auditErrRefreshExpired   AuditErrorCode = "refresh_expired"
	auditErrRefreshInvalid   AuditErrorCode = "refresh_invalid"
	auditErrRateLimited      AuditErrorCode = "rate_limited"
	auditErrStoreUnavailable AuditErrorCode = "store_unavailable"
	auditErrInternal         AuditErrorCode = "internal_error"
)

func auditErrorCode(err error) AuditErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTokenInvalid):
		return auditErrTokenInvalid
	case errors.Is(err, ErrNoRefreshToken):
		return auditErrNoRefreshToken
	case errors.Is(err, ErrRefreshTokenExpired):
		return auditErrRefreshExpired
	case errors.Is(err, ErrRefreshInvalid):
		return auditErrRefreshInvalid
	case errors.Is(err, ErrRefreshRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrStoreUnavailable
	default:
		return auditErrInternal
	}
}

func (e *Engine) emitAudit(
	ctx context.Context,
	typ AuditEventType,
	success bool,
	subjectID string,
	outcome Outcome,
	err error,
	renewal *AuditRenewal,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		Type:      typ,
		SubjectID: subjectID,
		Success:   success,
		Renewal:   renewal,
	}
	if outcome != OutcomeUnknown {
		event.Outcome = outcome.String()
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) now() time.Time {
	if e != nil && e.clock != nil {
		return e.clock()
	}
	return time.Now()
}
