package moemail

import (
	"context"
	"fmt"
	"net/url"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// DirectLoginMessage validates a reusable login-link token. The token is not
// consumed; the same link works again until it expires on its own.
type DirectLoginMessage struct {
	Token      string `json:"token"`
	OnResponse func(*DirectLoginResponse)
}

func (e DirectLoginMessage) Type() string { return "auth.direct_login" }

// DirectLoginResponse carries the identity claim the client hands to session
// issuance in place of a password.
type DirectLoginResponse struct {
	Success   bool   `json:"success"`
	Username  string `json:"username"`
	UserID    string `json:"userId"`
	TempToken string `json:"tempToken"`
}

type DirectLoginHandler struct {
	store  *TokenStore
	logger Logger
	now    func() time.Time
}

func NewDirectLoginHandler(store *TokenStore) *DirectLoginHandler {
	return &DirectLoginHandler{
		store:  store,
		logger: defLogger{},
		now:    time.Now,
	}
}

func (h *DirectLoginHandler) WithLogger(logger Logger) *DirectLoginHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *DirectLoginHandler) WithClock(clock func() time.Time) *DirectLoginHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *DirectLoginHandler) Execute(ctx context.Context, event DirectLoginMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during direct login",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *DirectLoginHandler) execute(ctx context.Context, event DirectLoginMessage) error {
	validation, err := h.store.Validate(ctx, event.Token, false)
	if err != nil {
		h.logger.Info("direct login rejected", "error", err)
		return err
	}

	user := validation.User
	if event.OnResponse != nil {
		event.OnResponse(&DirectLoginResponse{
			Success:   true,
			Username:  user.Username,
			UserID:    user.ID.String(),
			TempToken: BuildDirectLoginArtifact(user.ID, h.now()),
		})
	}

	return nil
}

// RedirectTarget builds the auto-signin URL a GET direct-login redirects to.
// The timestamp starts the 5-minute staleness window on the redirect claim,
// independent of the bearer token's own expiry.
func (h *DirectLoginHandler) RedirectTarget(user *User) string {
	return fmt.Sprintf("/auth/auto-signin?userId=%s&username=%s&timestamp=%d",
		user.ID,
		url.QueryEscape(user.Username),
		h.now().UnixMilli(),
	)
}
