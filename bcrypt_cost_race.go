//go:build race

package moemail

import "golang.org/x/crypto/bcrypt"

// Race-enabled builds hash at the default cost so the suite stays inside
// strict test timeouts.
func passwordHashCost() int {
	return bcrypt.DefaultCost
}
