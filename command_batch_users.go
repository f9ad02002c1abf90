package moemail

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	BatchActionExtend    = "extend"
	BatchActionSetExpiry = "setExpiry"
	BatchActionDisable   = "disable"
	BatchActionEnable    = "enable"
	BatchActionSuspend   = "suspend"
)

const maxBatchReasonLength = 200

// BatchUsersMessage applies one lifecycle action to a set of users. Each user
// is updated independently; there is no rollback when some of them fail.
type BatchUsersMessage struct {
	UserIDs    []string `json:"userIds"`
	Action     string   `json:"action"`
	ExpiryTime *int64   `json:"expiryTime"`
	Reason     string   `json:"reason"`
	Actor      ActorRef `json:"-"`
	OnResponse func(*BatchUsersResponse)
}

func (e BatchUsersMessage) Type() string { return "admin.batch_users" }

func (e BatchUsersMessage) Validate() error {
	err := validation.ValidateStruct(&e,
		validation.Field(&e.UserIDs,
			validation.Required,
			validation.Each(validation.Required, is.UUID),
		),
		validation.Field(&e.Action,
			validation.Required,
			validation.In(
				BatchActionExtend,
				BatchActionSetExpiry,
				BatchActionDisable,
				BatchActionEnable,
				BatchActionSuspend,
			),
		),
		validation.Field(&e.Reason, validation.Length(0, maxBatchReasonLength)),
	)
	if err != nil {
		return err
	}

	if e.Action == BatchActionExtend || e.Action == BatchActionSetExpiry {
		if e.ExpiryTime == nil {
			return validation.Errors{
				"expiryTime": errors.New("required for action " + e.Action),
			}
		}
		if *e.ExpiryTime < 0 {
			return validation.Errors{
				"expiryTime": errors.New("must be zero or a positive duration in milliseconds"),
			}
		}
	}

	return nil
}

type BatchUsersResponse struct {
	Success      bool   `json:"success"`
	UpdatedCount int    `json:"updatedCount"`
	Message      string `json:"message"`
}

type BatchUsersHandler struct {
	repos        RepositoryManager
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time
}

func NewBatchUsersHandler(repos RepositoryManager) *BatchUsersHandler {
	return &BatchUsersHandler{
		repos:        repos,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
}

func (h *BatchUsersHandler) WithLogger(logger Logger) *BatchUsersHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *BatchUsersHandler) WithActivitySink(sink ActivitySink) *BatchUsersHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

func (h *BatchUsersHandler) WithClock(clock func() time.Time) *BatchUsersHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *BatchUsersHandler) Execute(ctx context.Context, event BatchUsersMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during batch user update",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *BatchUsersHandler) execute(ctx context.Context, event BatchUsersMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid batch request").
			WithCode(goerrors.CodeBadRequest)
	}

	now := h.now()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		updated int
		failed  []string
	)

	for _, id := range event.UserIDs {
		wg.Add(1)
		go func(rawID string) {
			defer wg.Done()
			if err := h.applyOne(ctx, rawID, event, now); err != nil {
				h.logger.Warn("batch action failed",
					"user_id", rawID,
					"action", event.Action,
					"error", err,
				)
				mu.Lock()
				failed = append(failed, rawID)
				mu.Unlock()
				return
			}
			mu.Lock()
			updated++
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	total := len(event.UserIDs)
	response := &BatchUsersResponse{
		Success:      updated > 0,
		UpdatedCount: updated,
		Message:      batchResultMessage(event.Action, updated, total),
	}

	if updated > 0 {
		h.recordActivity(ctx, event, updated, total, now)
	}

	if event.OnResponse != nil {
		event.OnResponse(response)
	}

	if updated == 0 {
		return goerrors.New(
			fmt.Sprintf("batch %s failed for all %d users", event.Action, total),
			goerrors.CategoryInternal,
		)
	}

	return nil
}

func (h *BatchUsersHandler) applyOne(ctx context.Context, rawID string, event BatchUsersMessage, now time.Time) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid user id")
	}

	switch event.Action {
	case BatchActionExtend, BatchActionSetExpiry:
		var expiresAt *time.Time
		if *event.ExpiryTime > 0 {
			t := now.Add(time.Duration(*event.ExpiryTime) * time.Millisecond)
			expiresAt = &t
		}
		_, err = h.repos.Users().SetExpiry(ctx, id, expiresAt)
		return err
	case BatchActionDisable:
		_, err = h.repos.Users().UpdateStatus(ctx, id, UserStatusDisabled)
		return err
	case BatchActionEnable:
		_, err = h.repos.Users().UpdateStatus(ctx, id, UserStatusActive)
		return err
	case BatchActionSuspend:
		_, err = h.repos.Users().UpdateStatus(ctx, id, UserStatusSuspended)
		return err
	default:
		return goerrors.New("unsupported batch action: "+event.Action, goerrors.CategoryBadInput)
	}
}

func (h *BatchUsersHandler) recordActivity(ctx context.Context, event BatchUsersMessage, updated, total int, now time.Time) {
	activity := ActivityEvent{
		EventType: ActivityEventBatchApplied,
		Actor:     event.Actor,
		Metadata: map[string]any{
			"action":    event.Action,
			"reason":    event.Reason,
			"requested": total,
			"updated":   updated,
		},
		OccurredAt: now,
	}
	if err := h.activitySink.Record(ctx, activity); err != nil {
		h.logger.Warn("failed to record batch activity", "error", err)
	}
}

func batchResultMessage(action string, updated, total int) string {
	switch {
	case updated == 0:
		return fmt.Sprintf("failed to %s any of the %d selected users", action, total)
	case updated < total:
		return fmt.Sprintf("applied %s to %d of %d users; %d failed", action, updated, total, total-updated)
	default:
		return fmt.Sprintf("applied %s to %d users", action, updated)
	}
}
