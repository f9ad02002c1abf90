package moemail

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CreateUserMessage provisions an administrator-created account. The optional
// ExpiryTime is a lifetime in milliseconds from now; zero or absent means the
// account never expires.
type CreateUserMessage struct {
	Username   string   `json:"username"`
	Email      string   `json:"email"`
	Password   string   `json:"password"`
	Role       string   `json:"role"`
	ExpiryTime *int64   `json:"expiryTime"`
	MaxEmails  int      `json:"maxEmails"`
	Actor      ActorRef `json:"-"`
	UseHashid  bool     `json:"-"`
	OnResponse func(*User)
}

func (e CreateUserMessage) Type() string { return "admin.create_user" }

func (e CreateUserMessage) Validate() error {
	err := validation.ValidateStruct(&e,
		validation.Field(&e.Username, validation.Required, validation.Length(1, 64)),
		validation.Field(&e.Email, is.Email),
		validation.Field(&e.Password, validation.Required, validation.Length(8, 72)),
		validation.Field(&e.MaxEmails, validation.Min(0)),
	)
	if err != nil {
		return err
	}

	if e.Role != "" && !IsValidRole(Role(e.Role)) {
		return validation.Errors{"role": goerrors.New("unknown role", goerrors.CategoryValidation)}
	}
	if e.ExpiryTime != nil && *e.ExpiryTime < 0 {
		return validation.Errors{"expiryTime": goerrors.New("must be zero or positive", goerrors.CategoryValidation)}
	}

	return nil
}

type CreateUserHandler struct {
	repos        RepositoryManager
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time
}

func NewCreateUserHandler(repos RepositoryManager) *CreateUserHandler {
	return &CreateUserHandler{
		repos:        repos,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
}

func (h *CreateUserHandler) WithLogger(logger Logger) *CreateUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *CreateUserHandler) WithActivitySink(sink ActivitySink) *CreateUserHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

func (h *CreateUserHandler) WithClock(clock func() time.Time) *CreateUserHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *CreateUserHandler) Execute(ctx context.Context, event CreateUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user creation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *CreateUserHandler) execute(ctx context.Context, event CreateUserMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid user payload").
			WithCode(goerrors.CodeBadRequest)
	}

	now := h.now()
	user := &User{}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.PasswordHash = hash
		user.Username = event.Username
		user.Email = event.Email
		user.Role = resolveRole(event.Role)
		user.MaxEmails = event.MaxEmails
		user.IsAdminCreated = true
		if creator, err := uuid.Parse(event.Actor.ID); err == nil {
			user.CreatedBy = &creator
		}
		if event.ExpiryTime != nil && *event.ExpiryTime > 0 {
			expiresAt := now.Add(time.Duration(*event.ExpiryTime) * time.Millisecond)
			user.ExpiresAt = &expiresAt
		}
		if event.UseHashid {
			if id, err := hashid.NewUUID(identifierSeed(event)); err == nil {
				user.ID = id
			}
		}

		if user, err = h.repos.Users().CreateTx(ctx, tx, user); err != nil {
			if isDuplicateUser(err) {
				return ErrDuplicateUser
			}
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "user creation transaction failed")
	}

	h.recordCreated(ctx, user, event, now)

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}

func (h *CreateUserHandler) recordCreated(ctx context.Context, user *User, event CreateUserMessage, now time.Time) {
	activity := ActivityEvent{
		EventType:  ActivityEventUserCreated,
		Actor:      event.Actor,
		UserID:     user.ID.String(),
		ToStatus:   user.Status,
		OccurredAt: now,
	}
	if err := h.activitySink.Record(ctx, activity); err != nil {
		h.logger.Warn("failed to record user creation", "error", err)
	}
}

func resolveRole(role string) Role {
	if role == "" {
		return RoleCivilian
	}
	return Role(role)
}

func identifierSeed(event CreateUserMessage) string {
	if event.Email != "" {
		return event.Email
	}
	return event.Username
}

func isDuplicateUser(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
