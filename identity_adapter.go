package moemail

// authIdentity is an immutable snapshot of the user fields a session is
// minted from. Sessions carry the snapshot, never the live record, so row
// updates after verification cannot leak into an already issued token.
type authIdentity struct {
	id       string
	username string
	email    string
	role     string
}

// identityFromUser snapshots a loaded user into an Identity.
func identityFromUser(user *User) Identity {
	if user == nil {
		return nil
	}
	return authIdentity{
		id:       user.ID.String(),
		username: user.Username,
		email:    user.Email,
		role:     string(user.Role),
	}
}

func (a authIdentity) ID() string       { return a.id }
func (a authIdentity) Username() string { return a.username }
func (a authIdentity) Email() string    { return a.email }
func (a authIdentity) Role() string     { return a.role }

var _ Identity = authIdentity{}
