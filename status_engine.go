package moemail

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// StatusResult is the outcome of a validity check. When IsValid is false the
// Reason carries one of the fixed rejection strings.
type StatusResult struct {
	IsValid       bool       `json:"isValid"`
	Reason        string     `json:"reason,omitempty"`
	Status        UserStatus `json:"status,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	DaysRemaining *int       `json:"daysRemaining,omitempty"`
}

// StatusEngine decides whether an account may sign in. It is the single
// gate every login flow funnels through, and it owns the lazy expired
// transition: an active account found past its ExpiresAt is reconciled to
// expired during the check rather than by a background job.
type StatusEngine struct {
	users        Users
	now          func() time.Time
	logger       Logger
	activitySink ActivitySink
}

// StatusEngineOption customizes engine construction.
type StatusEngineOption func(*StatusEngine)

// WithStatusEngineClock injects a custom clock (useful for tests).
func WithStatusEngineClock(clock func() time.Time) StatusEngineOption {
	return func(e *StatusEngine) {
		if clock != nil {
			e.now = clock
		}
	}
}

// WithStatusEngineLogger overrides the logger used for reconcile failures.
func WithStatusEngineLogger(logger Logger) StatusEngineOption {
	return func(e *StatusEngine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithStatusEngineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStatusEngineActivitySink(sink ActivitySink) StatusEngineOption {
	return func(e *StatusEngine) {
		e.activitySink = normalizeActivitySink(sink)
	}
}

func NewStatusEngine(users Users, opts ...StatusEngineOption) *StatusEngine {
	e := &StatusEngine{
		users:        users,
		now:          time.Now,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	return e
}

// Check loads the user and computes validity. Explicit disabled, suspended,
// and expired statuses are honored before any recomputation from ExpiresAt,
// so an administrator-forced state overrides the timestamp-derived one (a
// forced expired sticks even if expires_at was later cleared).
//
// Check performs two best-effort writes: the expired reconciliation and the
// last_login_at touch. Neither failure surfaces to the caller; both are
// logged and the check result stands.
func (e *StatusEngine) Check(ctx context.Context, userID uuid.UUID) StatusResult {
	user, err := e.users.GetByIdentifier(ctx, userID.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return StatusResult{IsValid: false, Reason: ReasonUserNotFound}
		}
		e.logger.Error("status check failed to load user", "user_id", userID, "error", err)
		return StatusResult{IsValid: false, Reason: ReasonSystemError}
	}

	user.EnsureStatus()
	now := e.now()

	switch user.Status {
	case UserStatusDisabled:
		return StatusResult{
			IsValid: false,
			Reason:  ReasonDisabled,
			Status:  UserStatusDisabled,
		}
	case UserStatusSuspended:
		return StatusResult{
			IsValid: false,
			Reason:  ReasonSuspended,
			Status:  UserStatusSuspended,
		}
	case UserStatusExpired:
		return StatusResult{
			IsValid:   false,
			Reason:    ReasonExpired,
			Status:    UserStatusExpired,
			ExpiresAt: user.ExpiresAt,
		}
	}

	if user.ExpiresAt != nil && now.After(*user.ExpiresAt) {
		e.reconcileExpired(ctx, user, now)
		return StatusResult{
			IsValid:   false,
			Reason:    ReasonExpired,
			Status:    UserStatusExpired,
			ExpiresAt: user.ExpiresAt,
		}
	}

	var daysRemaining *int
	if user.ExpiresAt != nil {
		days := daysUntil(now, *user.ExpiresAt)
		daysRemaining = &days
	}

	if err := e.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		// schema may predate the last_login_at column
		e.logger.Debug("status check could not touch last_login_at", "user_id", userID, "error", err)
	}

	return StatusResult{
		IsValid:       true,
		Status:        UserStatusActive,
		ExpiresAt:     user.ExpiresAt,
		DaysRemaining: daysRemaining,
	}
}

// reconcileExpired persists the lazy active->expired transition. It first
// attempts to stamp last_login_at alongside the status and falls back to a
// status-only update when that fails.
func (e *StatusEngine) reconcileExpired(ctx context.Context, user *User, now time.Time) {
	_, err := e.users.UpdateStatus(ctx, user.ID, UserStatusExpired, WithLastLoginAt(&now))
	if err != nil {
		if _, err = e.users.UpdateStatus(ctx, user.ID, UserStatusExpired); err != nil {
			e.logger.Error("failed to persist expired transition", "user_id", user.ID, "error", err)
			return
		}
	}

	e.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventUserStatusChanged,
		Actor:      ActorRef{Type: "system"},
		UserID:     user.ID.String(),
		FromStatus: UserStatusActive,
		ToStatus:   UserStatusExpired,
		Metadata:   map[string]any{"reason": "auto-expire"},
		OccurredAt: now,
	})
}

func (e *StatusEngine) recordActivity(ctx context.Context, event ActivityEvent) {
	sink := normalizeActivitySink(e.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		e.logger.Warn("status engine activity sink error: %v", err)
	}
}

// daysUntil returns the remaining whole days from now until then, rounding
// partially elapsed days up.
func daysUntil(now, then time.Time) int {
	remaining := then.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int((remaining + day - 1) / day)
}
