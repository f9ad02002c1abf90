package moemail_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	moemail "github.com/skymun016/moemail"
)

func TestBuildDirectLoginArtifact(t *testing.T) {
	issuedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	userID := uuid.New()

	credential := moemail.BuildDirectLoginArtifact(userID, issuedAt)

	assert.Equal(t, fmt.Sprintf("DIRECT_LOGIN_%s_%d", userID, issuedAt.UnixMilli()), credential)
	assert.True(t, moemail.IsArtifact(credential))
}

func TestBuildTempLoginArtifact(t *testing.T) {
	issuedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	userID := uuid.New()

	credential := moemail.BuildTempLoginArtifact(userID, issuedAt)

	assert.Equal(t, fmt.Sprintf("TEMP_LOGIN_TOKEN_%s_%d", userID, issuedAt.UnixMilli()), credential)
	assert.True(t, moemail.IsArtifact(credential))
}

func TestIsArtifactRejectsOrdinaryPasswords(t *testing.T) {
	assert.False(t, moemail.IsArtifact("hunter2"))
	assert.False(t, moemail.IsArtifact(""))
	assert.False(t, moemail.IsArtifact("direct_login_user_1"))
}

func TestParseArtifactRoundTrip(t *testing.T) {
	issuedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	userID := uuid.New()

	tests := []struct {
		name       string
		credential string
		prefix     string
	}{
		{"direct login", moemail.BuildDirectLoginArtifact(userID, issuedAt), moemail.DirectLoginPrefix},
		{"temp login", moemail.BuildTempLoginArtifact(userID, issuedAt), moemail.TempLoginPrefix},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			artifact, ok := moemail.ParseArtifact(tc.credential)
			require.True(t, ok)
			assert.Equal(t, tc.prefix, artifact.Prefix)
			assert.Equal(t, userID.String(), artifact.UserID)
			assert.True(t, artifact.IssuedAt.Equal(issuedAt))
		})
	}
}

func TestParseArtifactMalformed(t *testing.T) {
	tests := []string{
		"hunter2",
		"DIRECT_LOGIN_",
		"DIRECT_LOGIN_user-1",
		"DIRECT_LOGIN_user-1_notanumber",
		"TEMP_LOGIN_TOKEN__1700000000000",
	}

	for _, credential := range tests {
		t.Run(credential, func(t *testing.T) {
			_, ok := moemail.ParseArtifact(credential)
			assert.False(t, ok)
		})
	}
}

func TestArtifactVerifyWindow(t *testing.T) {
	issuedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	userID := uuid.New()
	artifact, ok := moemail.ParseArtifact(moemail.BuildDirectLoginArtifact(userID, issuedAt))
	require.True(t, ok)

	// valid strictly inside the window
	assert.NoError(t, artifact.Verify(userID, issuedAt))
	assert.NoError(t, artifact.Verify(userID, issuedAt.Add(moemail.ArtifactWindow-time.Millisecond)))

	// rejected at the boundary and beyond
	err := artifact.Verify(userID, issuedAt.Add(moemail.ArtifactWindow))
	assert.ErrorIs(t, err, moemail.ErrArtifactRejected)
	err = artifact.Verify(userID, issuedAt.Add(time.Hour))
	assert.ErrorIs(t, err, moemail.ErrArtifactRejected)
}

func TestArtifactVerifyWrongUser(t *testing.T) {
	issuedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	artifact, ok := moemail.ParseArtifact(moemail.BuildTempLoginArtifact(uuid.New(), issuedAt))
	require.True(t, ok)

	err := artifact.Verify(uuid.New(), issuedAt)
	assert.ErrorIs(t, err, moemail.ErrArtifactRejected)
}

func TestArtifactVerifyNil(t *testing.T) {
	var artifact *moemail.CredentialArtifact
	assert.ErrorIs(t, artifact.Verify(uuid.New(), time.Now()), moemail.ErrArtifactRejected)
}
