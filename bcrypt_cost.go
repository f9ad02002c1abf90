//go:build !race

package moemail

func passwordHashCost() int {
	return 14
}
