package moemail

// Role is the user's role. Each user holds exactly one role and assigning a
// new role replaces the previous one.
type Role = string

const (
	// RoleEmperor is the site owner (full control, cannot be deleted).
	RoleEmperor Role = "emperor"
	// RoleDuke is a super user (webhooks, API keys).
	RoleDuke Role = "duke"
	// RoleKnight is an advanced user (webhooks).
	RoleKnight Role = "knight"
	// RoleCivilian is a regular user (mailbox access only).
	RoleCivilian Role = "civilian"
)

// Permission names an operation a role may perform.
type Permission string

const (
	PermissionViewEmail     Permission = "view_email"
	PermissionManageEmail   Permission = "manage_email"
	PermissionManageWebhook Permission = "manage_webhook"
	PermissionPromoteUser   Permission = "promote_user"
	PermissionManageConfig  Permission = "manage_config"
	PermissionManageAPIKey  Permission = "manage_api_key"
	PermissionManageUsers   Permission = "manage_users"
)

// IsValidRole checks if the role is one of the predefined valid roles.
func IsValidRole(r Role) bool {
	switch r {
	case RoleEmperor, RoleDuke, RoleKnight, RoleCivilian:
		return true
	default:
		return false
	}
}

// HasPermission reports whether the role grants the permission. The switch is
// exhaustive over the closed role set; unknown roles grant nothing.
func HasPermission(r Role, p Permission) bool {
	switch r {
	case RoleEmperor:
		return true
	case RoleDuke:
		switch p {
		case PermissionViewEmail, PermissionManageWebhook, PermissionManageAPIKey:
			return true
		}
		return false
	case RoleKnight:
		switch p {
		case PermissionViewEmail, PermissionManageWebhook:
			return true
		}
		return false
	case RoleCivilian:
		return p == PermissionViewEmail
	default:
		return false
	}
}

// IsAtLeast checks if the role meets the minimum required level.
func IsAtLeast(r, minRole Role) bool {
	current, ok := roleLevel(r)
	if !ok {
		return false
	}

	min, ok := roleLevel(minRole)
	if !ok {
		return false
	}

	return current >= min
}

func roleLevel(r Role) (int, bool) {
	switch r {
	case RoleCivilian:
		return 0, true
	case RoleKnight:
		return 1, true
	case RoleDuke:
		return 2, true
	case RoleEmperor:
		return 3, true
	default:
		return 0, false
	}
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []Role {
	return []Role{
		RoleCivilian,
		RoleKnight,
		RoleDuke,
		RoleEmperor,
	}
}

// ParseRole safely parses a string into a Role type
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, IsValidRole(role)
}
