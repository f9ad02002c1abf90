package moemail

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// BearerTokenPrefix marks a bearer string as a temp login token.
	BearerTokenPrefix = "tlt_"

	bearerTokenLength = 32

	// DefaultReusableLifetime applies when the target user never expires.
	DefaultReusableLifetime = 365 * day

	// DefaultSingleUseLifetime applies when no TTL is given for a
	// single-use token.
	DefaultSingleUseLifetime = 24 * time.Hour
)

// ErrTargetIneligible is returned when issuing a login link for a user whose
// state forbids signing in.
var ErrTargetIneligible = goerrors.New("user is disabled, suspended, or expired and cannot receive a login link", goerrors.CategoryValidation).
	WithTextCode("TARGET_INELIGIBLE").
	WithCode(goerrors.CodeBadRequest)

// TokenValidation is the successful (or status-rejected) outcome of a bearer
// token validation. On a status-gate rejection the struct is still returned
// alongside ErrStatusRejected so callers can surface Status.Reason.
type TokenValidation struct {
	Token  *TemporaryAccessToken
	User   *User
	Status StatusResult
}

// TokenStore issues and validates temporary access tokens. Reusable tokens
// back administrator-generated login links and survive any number of
// validations; single-use tokens are consumed on first success.
type TokenStore struct {
	repos        RepositoryManager
	engine       *StatusEngine
	baseURL      string
	now          func() time.Time
	logger       Logger
	activitySink ActivitySink
}

// TokenStoreOption customizes store construction.
type TokenStoreOption func(*TokenStore)

// WithTokenStoreClock injects a custom clock (useful for tests).
func WithTokenStoreClock(clock func() time.Time) TokenStoreOption {
	return func(s *TokenStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithTokenStoreLogger overrides the default logger.
func WithTokenStoreLogger(logger Logger) TokenStoreOption {
	return func(s *TokenStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTokenStoreActivitySink sets the sink receiving issuance and
// consumption events.
func WithTokenStoreActivitySink(sink ActivitySink) TokenStoreOption {
	return func(s *TokenStore) {
		s.activitySink = normalizeActivitySink(sink)
	}
}

func NewTokenStore(repos RepositoryManager, engine *StatusEngine, baseURL string, opts ...TokenStoreOption) *TokenStore {
	s := &TokenStore{
		repos:        repos,
		engine:       engine,
		baseURL:      baseURL,
		now:          time.Now,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Now exposes the store's clock so callers share the same notion of time.
func (s *TokenStore) Now() time.Time {
	return s.now()
}

// NewBearerToken generates an opaque bearer string with the temp login
// prefix.
func NewBearerToken() (string, error) {
	body, err := gonanoid.New(bearerTokenLength)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate bearer token")
	}
	return BearerTokenPrefix + body, nil
}

// IssueReusable creates a login-link token for the target user. The token
// inherits the user's own expiry, or lives for a year when the account never
// expires. UsedAt stays null forever; the validate path never consumes it.
func (s *TokenStore) IssueReusable(ctx context.Context, userID, issuerID uuid.UUID, meta ClientMeta) (*IssuedToken, error) {
	user, err := s.loadEligibleTarget(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	expiresAt := now.Add(DefaultReusableLifetime)
	if user.ExpiresAt != nil {
		expiresAt = *user.ExpiresAt
	}

	token, err := NewBearerToken()
	if err != nil {
		return nil, err
	}

	record := &TemporaryAccessToken{
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: expiresAt,
		CreatedBy: issuerID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	}

	if _, err := s.repos.AccessTokens().Create(ctx, record); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist login link token")
	}

	s.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventLinkIssued,
		Actor:     ActorRef{ID: issuerID.String(), Type: "user"},
		UserID:    user.ID.String(),
		Metadata:  map[string]any{"reusable": true, "ip": meta.IPAddress},
	})

	return &IssuedToken{
		LoginURL:   fmt.Sprintf("%s/auth/direct-login?token=%s", s.baseURL, token),
		ExpiresAt:  expiresAt.UTC().Format(time.RFC3339),
		ExpiresIn:  humanizeLifetime(user.ExpiresAt != nil, daysUntil(now, expiresAt)),
		Username:   user.Username,
		IsReusable: true,
	}, nil
}

// IssueSingleUse creates a one-shot token consumed by the token-signin flow.
func (s *TokenStore) IssueSingleUse(ctx context.Context, userID, issuerID uuid.UUID, ttl time.Duration, meta ClientMeta) (*TemporaryAccessToken, error) {
	user, err := s.loadEligibleTarget(ctx, userID)
	if err != nil {
		return nil, err
	}

	if ttl <= 0 {
		ttl = DefaultSingleUseLifetime
	}

	token, err := NewBearerToken()
	if err != nil {
		return nil, err
	}

	record := &TemporaryAccessToken{
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: s.now().Add(ttl),
		CreatedBy: issuerID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	}

	if record, err = s.repos.AccessTokens().Create(ctx, record); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist single-use token")
	}

	s.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventLinkIssued,
		Actor:     ActorRef{ID: issuerID.String(), Type: "user"},
		UserID:    user.ID.String(),
		Metadata:  map[string]any{"reusable": false, "ip": meta.IPAddress},
	})

	return record, nil
}

// Validate resolves a bearer token and gates it through the status engine.
// Lookup misses, expired tokens, and (with consume) already-used tokens all
// collapse into ErrTokenGone so callers cannot probe which it was. The owner
// is re-checked on every call; a token never outlives its user's standing.
//
// With consume set, used_at is stamped before success is reported. The stamp
// is conditional on used_at still being null, so of two racing validations
// exactly one wins.
func (s *TokenStore) Validate(ctx context.Context, token string, consume bool) (*TokenValidation, error) {
	record, err := s.repos.AccessTokens().GetValid(ctx, token, s.now(), consume)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrTokenGone
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up token")
	}

	status := s.engine.Check(ctx, record.UserID)
	validation := &TokenValidation{
		Token:  record,
		User:   record.User,
		Status: status,
	}

	if !status.IsValid {
		return validation, &StatusRejection{Result: status}
	}

	if consume {
		consumed, err := s.repos.AccessTokens().Consume(ctx, record.ID, s.now())
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume token")
		}
		if !consumed {
			// another validation won the race
			return nil, ErrTokenGone
		}

		s.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventTokenConsumed,
			Actor:     ActorRef{ID: record.UserID.String(), Type: "user"},
			UserID:    record.UserID.String(),
		})
	}

	return validation, nil
}

// loadEligibleTarget fetches the user and refuses issuance for accounts that
// could not use the link anyway.
func (s *TokenStore) loadEligibleTarget(ctx context.Context, userID uuid.UUID) (*User, error) {
	user, err := s.repos.Users().GetByIdentifier(ctx, userID.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load token target")
	}

	user.EnsureStatus()
	if user.IsDisabled() || user.IsSuspended() {
		return nil, ErrTargetIneligible
	}

	if user.ExpiresAt != nil && s.now().After(*user.ExpiresAt) {
		return nil, ErrTargetIneligible
	}

	return user, nil
}

func (s *TokenStore) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}

	sink := normalizeActivitySink(s.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("token store activity sink error: %v", err)
	}
}

// humanizeLifetime turns a day count into the label shown next to a login
// link. Links for never-expiring users always read long-term.
func humanizeLifetime(userHasExpiry bool, days int) string {
	if !userHasExpiry {
		return "long-term"
	}

	switch {
	case days > 365:
		return "long-term"
	case days > 30:
		return fmt.Sprintf("%d months", (days+29)/30)
	case days > 0:
		return fmt.Sprintf("%d days", days)
	default:
		return "expiring soon"
	}
}
