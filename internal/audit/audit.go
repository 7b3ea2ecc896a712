package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// Type identifies what happened to a subject's credentials.
type Type uint8

const (
	TypeUnknown Type = iota
	TypeLogin
	TypeLogout
	TypeRefresh
	TypeRefreshRateLimited
	TypeRenewalProactive
	TypeRenewalReactive
	TypeSessionEnded
	typeCount
)

var typeNames = [...]string{
	TypeUnknown:            "unknown",
	TypeLogin:              "login",
	TypeLogout:             "logout",
	TypeRefresh:            "refresh",
	TypeRefreshRateLimited: "refresh_rate_limited",
	TypeRenewalProactive:   "renewal_proactive",
	TypeRenewalReactive:    "renewal_reactive",
	TypeSessionEnded:       "session_ended",
}

func (t Type) String() string {
	if t < typeCount {
		return typeNames[t]
	}
	return typeNames[TypeUnknown]
}

// MarshalText encodes the type by name.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a type name written by MarshalText.
func (t *Type) UnmarshalText(b []byte) error {
	for i, name := range typeNames {
		if name == string(b) {
			*t = Type(i)
			return nil
		}
	}
	return fmt.Errorf("audit: unknown event type %q", b)
}

// Types lists every known event type except TypeUnknown.
func Types() []Type {
	out := make([]Type, 0, typeCount-1)
	for t := TypeLogin; t < typeCount; t++ {
		out = append(out, t)
	}
	return out
}

// Renewal details the rotation behind a renewal or ended-session event.
type Renewal struct {
	// RemainingMs is the presented access token's lifetime when it was evaluated.
	// It is negative once the token has expired.
	RemainingMs int64 `json:"remaining_ms"`
	// Adopted marks a conditional write that lost to a concurrent renewal and reused
	// the winner's pair.
	Adopted bool `json:"adopted,omitempty"`
	// RecordRemoved reports that an ended session's record was deleted.
	RecordRemoved bool `json:"record_removed,omitempty"`
}

// Event is one credential lifecycle record for one subject.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      Type      `json:"event_type"`
	SubjectID string    `json:"subject_id,omitempty"`
	// Outcome is the evaluation outcome for events raised while evaluating a token.
	Outcome string `json:"outcome,omitempty"`
	Success bool   `json:"success"`
	// Error is a stable, non-sensitive error code.
	Error   string   `json:"error,omitempty"`
	Renewal *Renewal `json:"renewal,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink hands events to a consumer goroutine. Emit blocks while the channel is
// full, until ctx is done.
type ChannelSink struct {
	events chan Event
}

// NewChannelSink returns a ChannelSink with the given capacity (minimum 1).
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{events: make(chan Event, max(buffer, 1))}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events exposes the receive side for consumers.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	if w == nil {
		return &JSONWriterSink{}
	}
	return &JSONWriterSink{enc: json.NewEncoder(w)}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.enc == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(event)
}
