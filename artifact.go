package moemail

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Credential artifacts stand in for a password during server-initiated login
// flows. The format is fixed on the wire and shared with existing clients:
//
//	DIRECT_LOGIN_<userId>_<epochMillis>
//	TEMP_LOGIN_TOKEN_<userId>_<epochMillis>
//
// The string is an unsigned, parseable bearer proof. It is only honored when
// the embedded user id matches the account resolved by username and the
// timestamp lies inside ArtifactWindow, which confines its power to
// server-issued values with a short life.
const (
	DirectLoginPrefix = "DIRECT_LOGIN_"
	TempLoginPrefix   = "TEMP_LOGIN_TOKEN_"

	// ArtifactWindow bounds how long a minted artifact stays valid.
	ArtifactWindow = 10 * time.Minute

	// RedirectClaimWindow bounds replay of an auto-signin redirect URL,
	// independent of the bearer token's own expiry.
	RedirectClaimWindow = 5 * time.Minute
)

// BuildDirectLoginArtifact mints the artifact used by the direct-login and
// auto-signin flows.
func BuildDirectLoginArtifact(userID uuid.UUID, now time.Time) string {
	return fmt.Sprintf("%s%s_%d", DirectLoginPrefix, userID, now.UnixMilli())
}

// BuildTempLoginArtifact mints the artifact used by the one-shot
// token-signin exchange.
func BuildTempLoginArtifact(userID uuid.UUID, now time.Time) string {
	return fmt.Sprintf("%s%s_%d", TempLoginPrefix, userID, now.UnixMilli())
}

// CredentialArtifact is a parsed artifact string.
type CredentialArtifact struct {
	Prefix   string
	UserID   string
	IssuedAt time.Time
}

// IsArtifact reports whether the credential string is artifact-shaped. The
// password path treats anything else as a plaintext password.
func IsArtifact(credential string) bool {
	return strings.HasPrefix(credential, DirectLoginPrefix) ||
		strings.HasPrefix(credential, TempLoginPrefix)
}

// ParseArtifact splits an artifact into its parts. It does not judge
// freshness or ownership; see Verify.
func ParseArtifact(credential string) (*CredentialArtifact, bool) {
	var prefix string
	switch {
	case strings.HasPrefix(credential, DirectLoginPrefix):
		prefix = DirectLoginPrefix
	case strings.HasPrefix(credential, TempLoginPrefix):
		prefix = TempLoginPrefix
	default:
		return nil, false
	}

	rest := strings.TrimPrefix(credential, prefix)
	idx := strings.LastIndex(rest, "_")
	if idx <= 0 || idx == len(rest)-1 {
		return nil, false
	}

	millis, err := strconv.ParseInt(rest[idx+1:], 10, 64)
	if err != nil {
		return nil, false
	}

	return &CredentialArtifact{
		Prefix:   prefix,
		UserID:   rest[:idx],
		IssuedAt: time.UnixMilli(millis),
	}, true
}

// Verify accepts the artifact iff the embedded id matches the resolved user
// and strictly less than ArtifactWindow has elapsed since issuance.
func (a *CredentialArtifact) Verify(userID uuid.UUID, now time.Time) error {
	if a == nil {
		return ErrArtifactRejected
	}

	if a.UserID != userID.String() {
		return ErrArtifactRejected
	}

	if now.Sub(a.IssuedAt) >= ArtifactWindow {
		return ErrArtifactRejected
	}

	return nil
}
