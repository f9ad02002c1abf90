package moemail

import (
	"fmt"
	"time"

	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds module options
type Config interface {
	GetSigningKey() string
	GetTokenExpiration() int
	GetIssuer() string
	GetAudience() []string
	// GetBaseURL is the public origin used to build login links.
	GetBaseURL() string
}

// Session holds attributes that are part of an auth session
type Session interface {
	GetUserID() string
	GetUserUUID() (uuid.UUID, error)
	GetAudience() []string
	GetIssuer() string
	GetIssuedAt() *time.Time
	GetData() map[string]any
}

// Identity holds the attributes of an identity
type Identity interface {
	ID() string
	Username() string
	Email() string
	Role() string
}

// SessionResolver resolves the authenticated user for a request. The session
// framework itself lives outside this module; handlers only need the caller's
// id, or false when the request carries no session.
type SessionResolver func(c router.Context) (uuid.UUID, bool)

// IssuedToken is the response for a reusable login link issuance.
type IssuedToken struct {
	LoginURL   string `json:"loginUrl"`
	ExpiresAt  string `json:"expiresAt"`
	ExpiresIn  string `json:"expiresIn"`
	Username   string `json:"username"`
	IsReusable bool   `json:"isReusable"`
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] MOEMAIL "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] MOEMAIL "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] MOEMAIL "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] MOEMAIL "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
