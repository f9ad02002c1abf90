package moemail_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	moemail "github.com/skymun016/moemail"
)

func TestLoginIssuesSessionToken(t *testing.T) {
	identity := TestIdentity{
		id:       uuid.NewString(),
		username: "alice",
		email:    "alice@example.com",
		role:     string(moemail.RoleDuke),
	}

	provider := &MockIdentityProvider{}
	provider.On("VerifyIdentity", mock.Anything, "alice", "password123").Return(identity, nil)

	sink := &capturingSink{}
	auther := moemail.NewAuthenticator(provider, testConfig{}).
		WithActivitySink(moemail.ActivitySinkFunc(sink.Record))

	raw, err := auther.Login(context.Background(), "alice", "password123")

	require.NoError(t, err)
	require.NotEmpty(t, raw)

	claims, err := auther.TokenService().Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, identity.id, claims.UserID())
	assert.Equal(t, string(moemail.RoleDuke), claims.Role())
	assert.True(t, claims.Can(moemail.PermissionManageAPIKey))
	assert.False(t, claims.Can(moemail.PermissionManageUsers))
	assert.True(t, claims.IsAtLeast(string(moemail.RoleKnight)))

	require.Len(t, sink.events, 1)
	event := sink.events[0]
	assert.Equal(t, moemail.ActivityEventLoginSuccess, event.EventType)
	assert.Equal(t, identity.id, event.UserID)
	assert.Equal(t, false, event.Metadata["artifact"])
}

func TestLoginWithArtifactFlagsActivity(t *testing.T) {
	userID := uuid.New()
	identity := TestIdentity{id: userID.String(), username: "alice", role: string(moemail.RoleCivilian)}
	credential := moemail.BuildDirectLoginArtifact(userID, time.Now())

	provider := &MockIdentityProvider{}
	provider.On("VerifyIdentity", mock.Anything, "alice", credential).Return(identity, nil)

	sink := &capturingSink{}
	auther := moemail.NewAuthenticator(provider, testConfig{}).
		WithActivitySink(moemail.ActivitySinkFunc(sink.Record))

	_, err := auther.Login(context.Background(), "alice", credential)

	require.NoError(t, err)
	require.Len(t, sink.events, 1)
	assert.Equal(t, true, sink.events[0].Metadata["artifact"])
}

func TestLoginVerificationFailure(t *testing.T) {
	provider := &MockIdentityProvider{}
	provider.On("VerifyIdentity", mock.Anything, "alice", "wrong").
		Return(nil, moemail.ErrMismatchedHashAndPassword)

	sink := &capturingSink{}
	auther := moemail.NewAuthenticator(provider, testConfig{}).
		WithActivitySink(moemail.ActivitySinkFunc(sink.Record))

	_, err := auther.Login(context.Background(), "alice", "wrong")

	assert.ErrorIs(t, err, moemail.ErrMismatchedHashAndPassword)
	require.Len(t, sink.events, 1)
	assert.Equal(t, moemail.ActivityEventLoginFailure, sink.events[0].EventType)
}

func TestLoginNilIdentity(t *testing.T) {
	provider := &MockIdentityProvider{}
	provider.On("VerifyIdentity", mock.Anything, "alice", "password123").Return(nil, nil)

	auther := moemail.NewAuthenticator(provider, testConfig{})

	_, err := auther.Login(context.Background(), "alice", "password123")

	assert.ErrorIs(t, err, moemail.ErrIdentityNotFound)
}

func TestSessionFromToken(t *testing.T) {
	identity := TestIdentity{id: uuid.NewString(), username: "alice", role: string(moemail.RoleEmperor)}

	provider := &MockIdentityProvider{}
	provider.On("VerifyIdentity", mock.Anything, "alice", "password123").Return(identity, nil)

	auther := moemail.NewAuthenticator(provider, testConfig{})

	raw, err := auther.Login(context.Background(), "alice", "password123")
	require.NoError(t, err)

	session, err := auther.SessionFromToken(raw)
	require.NoError(t, err)
	assert.Equal(t, identity.id, session.GetUserID())
	assert.Equal(t, "moemail-test", session.GetIssuer())
	assert.Contains(t, session.GetAudience(), "moemail")
	assert.Equal(t, string(moemail.RoleEmperor), session.GetData()["role"])

	id, err := session.GetUserUUID()
	require.NoError(t, err)
	assert.Equal(t, identity.id, id.String())
}

func TestSessionFromTokenRejectsGarbage(t *testing.T) {
	provider := &MockIdentityProvider{}
	auther := moemail.NewAuthenticator(provider, testConfig{})

	_, err := auther.SessionFromToken("not-a-jwt")

	require.Error(t, err)
	assert.NotErrorIs(t, err, moemail.ErrTokenExpired)
}

func TestSessionFromTokenRejectsForeignSignature(t *testing.T) {
	identity := TestIdentity{id: uuid.NewString(), role: string(moemail.RoleCivilian)}

	service := moemail.NewTokenService([]byte("some-other-key"), 24, "moemail-test", []string{"moemail"}, nil)
	raw, err := service.Generate(identity)
	require.NoError(t, err)

	provider := &MockIdentityProvider{}
	auther := moemail.NewAuthenticator(provider, testConfig{})

	_, err = auther.SessionFromToken(raw)
	assert.Error(t, err)
}

func TestIdentityFromSession(t *testing.T) {
	identity := TestIdentity{id: uuid.NewString(), username: "alice", role: string(moemail.RoleCivilian)}

	provider := &MockIdentityProvider{}
	provider.On("FindIdentityByIdentifier", mock.Anything, identity.id).Return(identity, nil)

	auther := moemail.NewAuthenticator(provider, testConfig{})

	session := &moemail.SessionObject{UserID: identity.id}
	got, err := auther.IdentityFromSession(context.Background(), session)

	require.NoError(t, err)
	assert.Equal(t, identity.id, got.ID())
}

func TestIdentityFromSessionPropagatesError(t *testing.T) {
	provider := &MockIdentityProvider{}
	provider.On("FindIdentityByIdentifier", mock.Anything, "missing").
		Return(nil, errors.New("lookup failed"))

	auther := moemail.NewAuthenticator(provider, testConfig{})

	_, err := auther.IdentityFromSession(context.Background(), &moemail.SessionObject{UserID: "missing"})
	assert.Error(t, err)
}

func TestSessionObjectPermissions(t *testing.T) {
	session := &moemail.SessionObject{Data: map[string]any{"role": string(moemail.RoleDuke)}}

	assert.True(t, session.Can(moemail.PermissionManageWebhook))
	assert.False(t, session.Can(moemail.PermissionManageUsers))
	assert.True(t, session.HasRole(string(moemail.RoleDuke)))
	assert.True(t, session.IsAtLeast(moemail.RoleKnight))
	assert.False(t, session.IsAtLeast(moemail.RoleEmperor))

	// unknown or missing role data falls back to civilian
	fallback := &moemail.SessionObject{Data: map[string]any{"role": "wizard"}}
	assert.True(t, fallback.Can(moemail.PermissionViewEmail))
	assert.False(t, fallback.Can(moemail.PermissionManageWebhook))

	empty := &moemail.SessionObject{}
	assert.True(t, empty.IsAtLeast(moemail.RoleCivilian))
	assert.False(t, empty.IsAtLeast(moemail.RoleKnight))
}
