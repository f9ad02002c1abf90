package moemail

import (
	"fmt"
	"time"
)

// UserStatusDisplay is the presentation summary for a user row in the admin
// panel. StatusColor carries the CSS class the frontend applies.
type UserStatusDisplay struct {
	Status         UserStatus `json:"status"`
	StatusText     string     `json:"statusText"`
	StatusColor    string     `json:"statusColor"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	DaysRemaining  *int       `json:"daysRemaining,omitempty"`
	IsExpiringSoon bool       `json:"isExpiringSoon"`
}

// StatusDisplay renders the display summary for a user at the given instant.
// The switch is exhaustive over the closed status set.
func StatusDisplay(u *User, now time.Time) UserStatusDisplay {
	status := EffectiveStatus(u, now)

	var daysRemaining *int
	expiringSoon := false
	if u.ExpiresAt != nil {
		days := daysUntil(now, *u.ExpiresAt)
		daysRemaining = &days
		expiringSoon = days > 0 && days <= 7
	}

	display := UserStatusDisplay{
		Status:         status,
		ExpiresAt:      u.ExpiresAt,
		DaysRemaining:  daysRemaining,
		IsExpiringSoon: expiringSoon,
	}

	switch status {
	case UserStatusExpired:
		display.StatusText = "Expired"
		display.StatusColor = "text-red-600"
	case UserStatusDisabled:
		display.StatusText = "Disabled"
		display.StatusColor = "text-gray-600"
	case UserStatusSuspended:
		display.StatusText = "Suspended"
		display.StatusColor = "text-yellow-600"
	default:
		display.StatusText = activeStatusText(u.ExpiresAt, daysRemaining)
		if expiringSoon {
			display.StatusColor = "text-orange-600"
		} else {
			display.StatusColor = "text-green-600"
		}
	}

	return display
}

func activeStatusText(expiresAt *time.Time, daysRemaining *int) string {
	if expiresAt == nil {
		return "Permanent"
	}
	if daysRemaining != nil && *daysRemaining > 0 {
		return fmt.Sprintf("%d days remaining", *daysRemaining)
	}
	return "Active"
}
