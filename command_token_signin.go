package moemail

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// TokenSigninMessage validates a single-use token and consumes it. A second
// attempt with the same token fails even before its natural expiry.
type TokenSigninMessage struct {
	Token      string `json:"token"`
	OnResponse func(*TokenSigninResponse)
}

func (e TokenSigninMessage) Type() string { return "auth.token_signin" }

// TokenSigninResponse carries the one-shot artifact for the immediate
// session exchange.
type TokenSigninResponse struct {
	Success      bool   `json:"success"`
	Username     string `json:"username"`
	UserID       string `json:"userId"`
	TempPassword string `json:"tempPassword"`
}

type TokenSigninHandler struct {
	store  *TokenStore
	logger Logger
	now    func() time.Time
}

func NewTokenSigninHandler(store *TokenStore) *TokenSigninHandler {
	return &TokenSigninHandler{
		store:  store,
		logger: defLogger{},
		now:    time.Now,
	}
}

func (h *TokenSigninHandler) WithLogger(logger Logger) *TokenSigninHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *TokenSigninHandler) WithClock(clock func() time.Time) *TokenSigninHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *TokenSigninHandler) Execute(ctx context.Context, event TokenSigninMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during token signin",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *TokenSigninHandler) execute(ctx context.Context, event TokenSigninMessage) error {
	validation, err := h.store.Validate(ctx, event.Token, true)
	if err != nil {
		h.logger.Info("token signin rejected", "error", err)
		return err
	}

	user := validation.User
	if event.OnResponse != nil {
		event.OnResponse(&TokenSigninResponse{
			Success:      true,
			Username:     user.Username,
			UserID:       user.ID.String(),
			TempPassword: BuildTempLoginArtifact(user.ID, h.now()),
		})
	}

	return nil
}
