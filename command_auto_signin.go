package moemail

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// AutoSigninMessage claims the identity a direct-login redirect carried in its
// query string. The claim is only honored while the redirect is fresh; after
// RedirectClaimWindow the URL can no longer be replayed even though the
// underlying bearer token may still be valid.
type AutoSigninMessage struct {
	UserID     string `json:"userId" query:"userId"`
	Username   string `json:"username" query:"username"`
	Timestamp  int64  `json:"timestamp" query:"timestamp"`
	OnResponse func(*AutoSigninResponse)
}

func (e AutoSigninMessage) Type() string { return "auth.auto_signin" }

func (e AutoSigninMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.UserID, validation.Required, is.UUID),
		validation.Field(&e.Username, validation.Required),
		validation.Field(&e.Timestamp, validation.Required, validation.Min(1)),
	)
}

type AutoSigninResponse struct {
	Success   bool   `json:"success"`
	Username  string `json:"username"`
	UserID    string `json:"userId"`
	TempToken string `json:"tempToken"`
}

type AutoSigninHandler struct {
	repos  RepositoryManager
	engine *StatusEngine
	logger Logger
	now    func() time.Time
}

func NewAutoSigninHandler(repos RepositoryManager, engine *StatusEngine) *AutoSigninHandler {
	return &AutoSigninHandler{
		repos:  repos,
		engine: engine,
		logger: defLogger{},
		now:    time.Now,
	}
}

func (h *AutoSigninHandler) WithLogger(logger Logger) *AutoSigninHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *AutoSigninHandler) WithClock(clock func() time.Time) *AutoSigninHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *AutoSigninHandler) Execute(ctx context.Context, event AutoSigninMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during auto signin",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *AutoSigninHandler) execute(ctx context.Context, event AutoSigninMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid auto signin claim").
			WithCode(goerrors.CodeBadRequest)
	}

	user, err := h.repos.Users().GetByIdentifier(ctx, event.UserID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			h.logger.Info("auto signin for unknown user", "user_id", event.UserID)
			return ErrUserNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user")
	}

	if user.Username != event.Username {
		h.logger.Info("auto signin identity mismatch",
			"user_id", event.UserID,
			"claimed", event.Username,
		)
		return ErrIdentityMismatch
	}

	claimedAt := time.UnixMilli(event.Timestamp)
	if h.now().Sub(claimedAt) >= RedirectClaimWindow {
		h.logger.Info("auto signin redirect expired",
			"user_id", event.UserID,
			"claimed_at", claimedAt,
		)
		return ErrStaleRedirect
	}

	status := h.engine.Check(ctx, user.ID)
	if !status.IsValid {
		return &StatusRejection{Result: status}
	}

	if event.OnResponse != nil {
		event.OnResponse(&AutoSigninResponse{
			Success:   true,
			Username:  user.Username,
			UserID:    user.ID.String(),
			TempToken: BuildDirectLoginArtifact(user.ID, h.now()),
		})
	}

	return nil
}
