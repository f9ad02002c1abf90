package moemail

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ Session = &SessionObject{}

type SessionObject struct {
	UserID         string         `json:"user_id,omitempty"`
	Audience       []string       `json:"audience,omitempty"`
	Issuer         string         `json:"issuer,omitempty"`
	IssuedAt       *time.Time     `json:"issued_at,omitempty"`
	ExpirationDate *time.Time     `json:"expiration_date,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
}

func (s *SessionObject) GetUserID() string {
	return s.UserID
}

func (s *SessionObject) GetUserUUID() (uuid.UUID, error) {
	return uuid.Parse(s.UserID)
}

func (s *SessionObject) GetAudience() []string {
	return s.Audience
}

func (s *SessionObject) GetIssuer() string {
	return s.Issuer
}

func (s *SessionObject) GetIssuedAt() *time.Time {
	return s.IssuedAt
}

func (s *SessionObject) GetData() map[string]any {
	return s.Data
}

// Can checks if the session's role grants the given permission
func (s *SessionObject) Can(permission Permission) bool {
	return HasPermission(s.getGlobalRole(), permission)
}

// HasRole checks if the user has a specific role
func (s *SessionObject) HasRole(role string) bool {
	return s.getGlobalRole() == Role(role)
}

// IsAtLeast checks if the user's role is at least the minimum required role
func (s *SessionObject) IsAtLeast(minRole Role) bool {
	return IsAtLeast(s.getGlobalRole(), minRole)
}

// getGlobalRole retrieves the role from session data with fallback to civilian
func (s *SessionObject) getGlobalRole() Role {
	if s.Data != nil {
		if roleData, exists := s.Data["role"]; exists {
			if roleStr, ok := roleData.(string); ok {
				if role, valid := ParseRole(roleStr); valid {
					return role
				}
			}
		}
	}
	return RoleCivilian
}

func (s SessionObject) String() string {
	issuedAt := "<nil>"
	if s.IssuedAt != nil {
		issuedAt = s.IssuedAt.Format(time.RFC1123)
	}
	return fmt.Sprintf(
		"user=%s aud=%v iss=%s iat=%s data=%v",
		s.UserID,
		s.Audience,
		s.Issuer,
		issuedAt,
		s.Data,
	)
}

// sessionFromAuthClaims creates a SessionObject from AuthClaims
func sessionFromAuthClaims(claims AuthClaims) (*SessionObject, error) {
	if claims == nil {
		return nil, ErrUnableToDecodeSession
	}

	data := make(map[string]any)
	data["role"] = claims.Role()

	var audience []string
	issuer := claims.Subject()
	if jwtClaims, ok := claims.(*JWTClaims); ok {
		audience = append(audience, jwtClaims.RegisteredClaims.Audience...)
		if len(jwtClaims.Metadata) > 0 {
			data["metadata"] = jwtClaims.Metadata
		}
		if jwtClaims.RegisteredClaims.Issuer != "" {
			issuer = jwtClaims.RegisteredClaims.Issuer
		}
	}

	issuedAt := claims.IssuedAt()
	expiresAt := claims.Expires()

	return &SessionObject{
		UserID:         claims.UserID(),
		Audience:       audience,
		Issuer:         issuer,
		Data:           data,
		IssuedAt:       &issuedAt,
		ExpirationDate: &expiresAt,
	}, nil
}
