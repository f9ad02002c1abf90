package moemail

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

// ErrUserNotFound is returned when a user id or identifier resolves to nothing.
var ErrUserNotFound = goerrors.New("user does not exist", goerrors.CategoryNotFound).
	WithTextCode("USER_NOT_FOUND")

// ErrTokenGone is the single failure returned for a missing, expired, or
// already consumed bearer token. Callers get no hint which of the three it
// was, so tokens cannot be enumerated.
var ErrTokenGone = goerrors.New("login link invalid or expired", goerrors.CategoryAuth).
	WithTextCode("TOKEN_GONE")

// ErrStatusRejected wraps a status-engine rejection for an otherwise valid
// credential artifact or bearer token.
var ErrStatusRejected = goerrors.New("account status does not allow sign in", goerrors.CategoryAuth).
	WithTextCode("STATUS_REJECTED")

// StatusRejection wraps ErrStatusRejected with the status engine's result so
// callers can surface the fixed rejection reason.
type StatusRejection struct {
	Result StatusResult
}

func (e *StatusRejection) Error() string {
	if e.Result.Reason != "" {
		return e.Result.Reason
	}
	return ErrStatusRejected.Error()
}

func (e *StatusRejection) Unwrap() error { return ErrStatusRejected }

// ErrArtifactRejected is returned when a credential artifact fails the
// identity or freshness checks.
var ErrArtifactRejected = goerrors.New("login token invalid or expired", goerrors.CategoryAuth).
	WithTextCode("ARTIFACT_REJECTED")

// ErrIdentityMismatch is returned when a vetted userId/username pair no
// longer matches the stored record.
var ErrIdentityMismatch = goerrors.New("user information does not match", goerrors.CategoryValidation).
	WithTextCode("IDENTITY_MISMATCH").
	WithCode(goerrors.CodeBadRequest)

// ErrStaleRedirect is returned when an auto-signin redirect claim is older
// than the staleness window.
var ErrStaleRedirect = goerrors.New("sign-in redirect has expired, request a new link", goerrors.CategoryAuth).
	WithTextCode("STALE_REDIRECT")

// ErrDuplicateUser is returned when a username or email is already taken.
var ErrDuplicateUser = goerrors.New("username or email already exists", goerrors.CategoryConflict).
	WithTextCode("DUPLICATE_USER").
	WithCode(goerrors.CodeConflict)

// ErrPermissionDenied is returned when the caller's role lacks the required
// permission.
var ErrPermissionDenied = goerrors.New("insufficient permission", goerrors.CategoryAuth).
	WithTextCode("PERMISSION_DENIED")

// ErrUnauthenticated is returned when no session can be resolved for a
// request that requires one.
var ErrUnauthenticated = goerrors.New("not signed in", goerrors.CategoryAuth).
	WithTextCode("UNAUTHENTICATED").
	WithCode(goerrors.CodeUnauthorized)

// ErrIdentityNotFound is returned when identity verification yields nothing.
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryAuth).
	WithTextCode("IDENTITY_NOT_FOUND")

// ErrTokenExpired is returned for session JWTs past their expiry.
var ErrTokenExpired = goerrors.New("session token expired", goerrors.CategoryAuth).
	WithTextCode("SESSION_EXPIRED").
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned for session JWTs that fail to parse or verify.
var ErrTokenMalformed = goerrors.New("session token malformed", goerrors.CategoryAuth).
	WithTextCode("SESSION_MALFORMED").
	WithCode(goerrors.CodeUnauthorized)

// ErrUnableToDecodeSession is returned when JWT claims cannot be decoded.
var ErrUnableToDecodeSession = goerrors.New("unable to decode session claims", goerrors.CategoryAuth).
	WithTextCode("SESSION_DECODE")

// ErrMismatchedHashAndPassword is the error for failed password comparisons.
var ErrMismatchedHashAndPassword = errors.New("incorrect username or password")

// ErrTooManyLoginAttempts is returned during the cool down window.
var ErrTooManyLoginAttempts = errors.New("too many login attempts")

// ErrNoEmptyString guards hashing of empty passwords.
var ErrNoEmptyString = errors.New("can't use empty string")

// Fixed rejection reasons surfaced by the status engine. The wording sticks
// across callers so clients can match on it.
const (
	ReasonUserNotFound = "user does not exist"
	ReasonDisabled     = "account has been disabled by an administrator"
	ReasonSuspended    = "account has been suspended"
	ReasonExpired      = "account has expired, contact an administrator to renew"
	ReasonSystemError  = "system error, please try again later"
)

// HTTPStatus maps domain errors onto the response taxonomy: 400 validation,
// 401 unauthenticated, 403 status/permission gates, 404 missing records,
// 409 conflicts, 410 gone tokens, 500 anything unexpected.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return fiber.StatusOK
	case errors.Is(err, ErrTokenGone), errors.Is(err, ErrArtifactRejected):
		return fiber.StatusGone
	case errors.Is(err, ErrStatusRejected), errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrStaleRedirect):
		return fiber.StatusForbidden
	case errors.Is(err, ErrUserNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrUnauthenticated),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenMalformed),
		errors.Is(err, ErrMismatchedHashAndPassword):
		return fiber.StatusUnauthorized
	case errors.Is(err, ErrTooManyLoginAttempts):
		return fiber.StatusTooManyRequests
	case errors.Is(err, ErrDuplicateUser):
		return fiber.StatusConflict
	case errors.Is(err, ErrIdentityMismatch):
		return fiber.StatusBadRequest
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Category {
		case goerrors.CategoryValidation, goerrors.CategoryBadInput:
			return fiber.StatusBadRequest
		case goerrors.CategoryNotFound:
			return fiber.StatusNotFound
		case goerrors.CategoryConflict:
			return fiber.StatusConflict
		case goerrors.CategoryAuth:
			return fiber.StatusForbidden
		}
	}

	return fiber.StatusInternalServerError
}
