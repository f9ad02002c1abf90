package moemail

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// UserTracker is a store we can use to retrieve users
type UserTracker interface {
	GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error)
	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error
}

// UserProvider verifies credentials and produces identities. Credentials come
// in two shapes: a regular password, or a short-lived credential artifact
// minted by the login orchestrators. Artifacts skip the bcrypt compare and
// the attempt throttle; they are bound to one user id and a freshness window.
type UserProvider struct {
	store     UserTracker
	Validator func(*User) error
	logger    Logger
	now       func() time.Time
}

// MaxLoginAttempts is the maximum number of attempts a user gets
// in a period
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = "24h"

// NewUserProvider will create a new UserProvider
func NewUserProvider(store UserTracker) *UserProvider {
	return &UserProvider{
		store:     store,
		logger:    defLogger{},
		now:       time.Now,
		Validator: defaultValidator,
	}
}

func (u *UserProvider) WithLogger(l Logger) *UserProvider {
	if l != nil {
		u.logger = l
	}
	return u
}

func (u *UserProvider) WithClock(clock func() time.Time) *UserProvider {
	if clock != nil {
		u.now = clock
	}
	return u
}

func (u *UserProvider) validate(user *User) error {
	if u.Validator != nil {
		return u.Validator(user)
	}
	return defaultValidator(user)
}

// VerifyIdentity will find the user, check the credential, and return identity
func (u UserProvider) VerifyIdentity(ctx context.Context, identifier, password string) (Identity, error) {
	user, err := u.store.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrMismatchedHashAndPassword
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user during verification")
	}

	if err := u.ensureAuthenticatableUser(user); err != nil {
		return nil, err
	}

	if IsArtifact(password) {
		if err := u.verifyArtifact(user, password); err != nil {
			return nil, err
		}
		return u.finishVerification(ctx, user)
	}

	if user.LoginAttemptAt != nil {
		expired, err := isOutsideThresholdPeriod(u.now(), *user.LoginAttemptAt, CoolDownPeriod)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to calculate login attempt cooldown")
		}

		if expired {
			user.LoginAttempts = 0
		}
	}

	//if we have too many attempts in the given window, cool off!
	if user.LoginAttempts > MaxLoginAttempts {
		return nil, ErrTooManyLoginAttempts
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		// We have to increment the login_attempts counter and login_attempt_at
		if err2 := u.store.TrackAttemptedLogin(ctx, user); err2 != nil {
			return nil, errors.Wrap(err2, errors.CategoryInternal, "failed to track login attempt")
		}

		return nil, ErrMismatchedHashAndPassword
	}

	return u.finishVerification(ctx, user)
}

func (u UserProvider) verifyArtifact(user *User, password string) error {
	artifact, ok := ParseArtifact(password)
	if !ok {
		u.logger.Info("malformed credential artifact", "user_id", user.ID)
		return ErrArtifactRejected
	}

	if err := artifact.Verify(user.ID, u.now()); err != nil {
		u.logger.Info("credential artifact rejected",
			"user_id", user.ID,
			"issued_at", artifact.IssuedAt,
		)
		return err
	}

	return nil
}

func (u UserProvider) finishVerification(ctx context.Context, user *User) (Identity, error) {
	// reset the login_attempts counter and login_attempt_at
	if err := u.store.TrackSuccessfulLogin(ctx, user); err != nil {
		u.logger.Error("failed to track successful login", "error", err)
	}

	if err := u.validate(user); err != nil {
		return nil, err
	}

	return identityFromUser(user), nil
}

func (u UserProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (Identity, error) {
	user, err := u.store.GetByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}

	if err := u.ensureAuthenticatableUser(user); err != nil {
		return nil, err
	}

	if err := u.validate(user); err != nil {
		return nil, err
	}

	return identityFromUser(user), nil
}

func defaultValidator(u *User) error {
	if IsValidRole(u.Role) {
		return nil
	}
	return errors.New("user has an unknown or invalid role", errors.CategoryAuth).
		WithTextCode("INVALID_ROLE").
		WithMetadata(map[string]any{"role": u.Role, "user_id": u.ID.String()})
}

func (u UserProvider) ensureAuthenticatableUser(user *User) error {
	if user == nil {
		return ErrIdentityNotFound
	}

	user.EnsureStatus()
	return statusAuthError(EffectiveStatus(user, u.now()))
}

// statusAuthError translates a non-active status into a sign-in rejection.
func statusAuthError(status UserStatus) error {
	var reason string
	switch status {
	case UserStatusDisabled:
		reason = ReasonDisabled
	case UserStatusSuspended:
		reason = ReasonSuspended
	case UserStatusExpired:
		reason = ReasonExpired
	default:
		return nil
	}

	return &StatusRejection{Result: StatusResult{
		IsValid: false,
		Reason:  reason,
		Status:  status,
	}}
}

func isOutsideThresholdPeriod(now, since time.Time, period string) (bool, error) {
	window, err := time.ParseDuration(period)
	if err != nil {
		return false, err
	}
	return now.Sub(since) > window, nil
}
