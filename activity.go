package moemail

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventUserStatusChanged ActivityEventType = "user.status.changed"
	ActivityEventUserExpirySet     ActivityEventType = "user.expiry.set"
	ActivityEventUserCreated       ActivityEventType = "user.created"
	ActivityEventLoginSuccess      ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure      ActivityEventType = "auth.login.failure"
	ActivityEventLinkIssued        ActivityEventType = "auth.link.issued"
	ActivityEventTokenConsumed     ActivityEventType = "auth.token.consumed"
	ActivityEventBatchApplied      ActivityEventType = "admin.batch.applied"
)

// ActorRef identifies who/what triggered an action.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	FromStatus UserStatus
	ToStatus   UserStatus
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
