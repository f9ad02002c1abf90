package moemail

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserStatus is the lifecycle status of a user account.
type UserStatus = string

const (
	// UserStatusActive means the account may sign in (subject to expiry).
	UserStatusActive UserStatus = "active"
	// UserStatusExpired means the account expiry date has passed.
	UserStatusExpired UserStatus = "expired"
	// UserStatusDisabled means an administrator disabled the account.
	UserStatusDisabled UserStatus = "disabled"
	// UserStatusSuspended means the account is temporarily suspended.
	UserStatusSuspended UserStatus = "suspended"
)

// User is the user model
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role           Role       `bun:"user_role,notnull" json:"user_role,omitempty"`
	Username       string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email          string     `bun:"email,unique,nullzero" json:"email,omitempty"`
	PasswordHash   string     `bun:"password_hash" json:"password_hash,omitempty"`
	Status         UserStatus `bun:"status,notnull,default:'active'" json:"status,omitempty"`
	ExpiresAt      *time.Time `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
	LastLoginAt    *time.Time `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	MaxEmails      int        `bun:"max_emails,notnull,default:10" json:"max_emails,omitempty"`
	IsAdminCreated bool       `bun:"is_admin_created" json:"is_admin_created,omitempty"`
	CreatedBy      *uuid.UUID `bun:"created_by,nullzero,type:uuid" json:"created_by,omitempty"`
	LoginAttempts  int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at,nullzero" json:"login_attempt_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus defaults an unset status to active. Rows created before the
// status column existed carry an empty string.
func (u *User) EnsureStatus() {
	if u.Status == "" {
		u.Status = UserStatusActive
	}
}

// IsActive reports whether the stored status is active. It does not consult
// ExpiresAt; use EffectiveStatus for the wall-clock aware answer.
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// IsExpired reports whether the stored status is expired.
func (u *User) IsExpired() bool {
	return u.Status == UserStatusExpired
}

// IsDisabled reports whether the stored status is disabled.
func (u *User) IsDisabled() bool {
	return u.Status == UserStatusDisabled
}

// IsSuspended reports whether the stored status is suspended.
func (u *User) IsSuspended() bool {
	return u.Status == UserStatusSuspended
}

// EffectiveStatus computes the status the account should be in at the given
// instant without touching storage. An explicitly stored non-active status
// always wins; an active account whose ExpiresAt lies in the past is reported
// as expired even though the row has not been reconciled yet.
func EffectiveStatus(u *User, now time.Time) UserStatus {
	if u == nil {
		return ""
	}

	status := u.Status
	if status == "" {
		status = UserStatusActive
	}

	if status != UserStatusActive {
		return status
	}

	if u.ExpiresAt != nil && now.After(*u.ExpiresAt) {
		return UserStatusExpired
	}

	return UserStatusActive
}

// TemporaryAccessToken is a bearer token an administrator issues so a user
// can sign in without their password. Reusable login-link tokens keep UsedAt
// nil forever; single-use tokens are stamped on first successful validation.
type TemporaryAccessToken struct {
	bun.BaseModel `bun:"table:temp_access_tokens,alias:tat"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User          *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Token         string     `bun:"token,notnull,unique" json:"token,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	UsedAt        *time.Time `bun:"used_at,nullzero" json:"used_at,omitempty"`
	CreatedBy     uuid.UUID  `bun:"created_by,notnull,type:uuid" json:"created_by,omitempty"`
	IPAddress     string     `bun:"ip_address" json:"ip_address,omitempty"`
	UserAgent     string     `bun:"user_agent" json:"user_agent,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// IsUsed reports whether the token has been consumed.
func (t *TemporaryAccessToken) IsUsed() bool {
	return t.UsedAt != nil
}

// ClientMeta captures where an issuance request came from, for audit records.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}

// ExpiryTemplate is a preset account lifetime offered to administrators.
type ExpiryTemplate struct {
	Label string
	// Value is the lifetime in milliseconds. Zero means permanent and the
	// sentinel -1 means the operator types a custom day count.
	Value int64
}

const day = 24 * time.Hour

// ExpiryTemplates lists the preset account lifetimes in display order.
var ExpiryTemplates = []ExpiryTemplate{
	{Label: "7-day trial", Value: (7 * day).Milliseconds()},
	{Label: "1 month", Value: (30 * day).Milliseconds()},
	{Label: "3 months", Value: (90 * day).Milliseconds()},
	{Label: "6 months", Value: (180 * day).Milliseconds()},
	{Label: "1 year", Value: (365 * day).Milliseconds()},
	{Label: "Custom days", Value: -1},
	{Label: "Permanent", Value: 0},
}
