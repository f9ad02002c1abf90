package moemail_test

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"

	moemail "github.com/skymun016/moemail"
)

// MockUsers mocks the subset of the Users repository the lifecycle code
// touches. The embedded interface covers the generic repository surface;
// calling an unmocked method panics, which is the failure we want in tests.
type MockUsers struct {
	mock.Mock
	moemail.Users
}

func (m *MockUsers) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*moemail.User, error) {
	args := m.Called(ctx, identifier)
	user, _ := args.Get(0).(*moemail.User)
	return user, args.Error(1)
}

func (m *MockUsers) Create(ctx context.Context, record *moemail.User, criteria ...repository.InsertCriteria) (*moemail.User, error) {
	args := m.Called(ctx, record)
	user, _ := args.Get(0).(*moemail.User)
	return user, args.Error(1)
}

func (m *MockUsers) CreateTx(ctx context.Context, tx bun.IDB, record *moemail.User, criteria ...repository.InsertCriteria) (*moemail.User, error) {
	args := m.Called(ctx, record)
	user, _ := args.Get(0).(*moemail.User)
	return user, args.Error(1)
}

func (m *MockUsers) UpdateStatus(ctx context.Context, id uuid.UUID, status moemail.UserStatus, opts ...moemail.StatusUpdateOption) (*moemail.User, error) {
	args := m.Called(ctx, id, status, opts)
	user, _ := args.Get(0).(*moemail.User)
	return user, args.Error(1)
}

func (m *MockUsers) SetExpiry(ctx context.Context, id uuid.UUID, expiresAt *time.Time) (*moemail.User, error) {
	args := m.Called(ctx, id, expiresAt)
	user, _ := args.Get(0).(*moemail.User)
	return user, args.Error(1)
}

func (m *MockUsers) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockUsers) TrackAttemptedLogin(ctx context.Context, user *moemail.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUsers) TrackSuccessfulLogin(ctx context.Context, user *moemail.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUsers) Stats(ctx context.Context, now time.Time) (*moemail.UserStats, error) {
	args := m.Called(ctx, now)
	stats, _ := args.Get(0).(*moemail.UserStats)
	return stats, args.Error(1)
}

// MockAccessTokens mocks the temp access token repository.
type MockAccessTokens struct {
	mock.Mock
	moemail.AccessTokens
}

func (m *MockAccessTokens) Create(ctx context.Context, record *moemail.TemporaryAccessToken, criteria ...repository.InsertCriteria) (*moemail.TemporaryAccessToken, error) {
	args := m.Called(ctx, record)
	token, _ := args.Get(0).(*moemail.TemporaryAccessToken)
	return token, args.Error(1)
}

func (m *MockAccessTokens) GetValid(ctx context.Context, token string, now time.Time, unusedOnly bool) (*moemail.TemporaryAccessToken, error) {
	args := m.Called(ctx, token, now, unusedOnly)
	record, _ := args.Get(0).(*moemail.TemporaryAccessToken)
	return record, args.Error(1)
}

func (m *MockAccessTokens) Consume(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	args := m.Called(ctx, id, at)
	return args.Bool(0), args.Error(1)
}

// MockRepositoryManager hands out the mock repositories. RunInTx invokes the
// callback with a zero transaction; repository calls inside are mocked, so
// the transaction itself is never touched.
type MockRepositoryManager struct {
	UsersRepo  *MockUsers
	TokensRepo *MockAccessTokens
}

func NewMockRepositoryManager() *MockRepositoryManager {
	return &MockRepositoryManager{
		UsersRepo:  &MockUsers{},
		TokensRepo: &MockAccessTokens{},
	}
}

func (m *MockRepositoryManager) Users() moemail.Users { return m.UsersRepo }

func (m *MockRepositoryManager) AccessTokens() moemail.AccessTokens { return m.TokensRepo }

func (m *MockRepositoryManager) Validate() error { return nil }

func (m *MockRepositoryManager) MustValidate() {}

func (m *MockRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

func (m *MockRepositoryManager) AssertExpectations(t mock.TestingT) {
	m.UsersRepo.AssertExpectations(t)
	m.TokensRepo.AssertExpectations(t)
}

// capturingSink records activity events for assertions.
type capturingSink struct {
	events []moemail.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, event moemail.ActivityEvent) error {
	c.events = append(c.events, event)
	return nil
}

// MockIdentityProvider mocks credential verification for authenticator tests.
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) VerifyIdentity(ctx context.Context, identifier, password string) (moemail.Identity, error) {
	args := m.Called(ctx, identifier, password)
	identity, _ := args.Get(0).(moemail.Identity)
	return identity, args.Error(1)
}

func (m *MockIdentityProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (moemail.Identity, error) {
	args := m.Called(ctx, identifier)
	identity, _ := args.Get(0).(moemail.Identity)
	return identity, args.Error(1)
}

// TestIdentity is a static Identity implementation.
type TestIdentity struct {
	id       string
	username string
	email    string
	role     string
}

func (i TestIdentity) ID() string       { return i.id }
func (i TestIdentity) Username() string { return i.username }
func (i TestIdentity) Email() string    { return i.email }
func (i TestIdentity) Role() string     { return i.role }

// testConfig satisfies moemail.Config for JWT issuance.
type testConfig struct{}

func (testConfig) GetSigningKey() string   { return "test-signing-key" }
func (testConfig) GetTokenExpiration() int { return 24 }
func (testConfig) GetIssuer() string       { return "moemail-test" }
func (testConfig) GetAudience() []string   { return []string{"moemail"} }
func (testConfig) GetBaseURL() string      { return "https://mail.example.com" }

func ptrInt64(v int64) *int64 { return &v }

func ptrTime(t time.Time) *time.Time { return &t }
