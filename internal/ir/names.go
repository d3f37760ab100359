package ir

import "regexp"

// namePattern is a hyphen-separated identifier that starts with a letter.
var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*(-[A-Za-z0-9]+)*$`)

// ValidName reports whether s is a valid group name.
// Names are case-sensitive and cannot start or end with a hyphen.
func ValidName(s string) bool {
	return namePattern.MatchString(s)
}
