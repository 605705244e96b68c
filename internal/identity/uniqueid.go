package identity

import (
	"regexp"
	"strings"
)

const uniqueIDAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

var uniqueIDPattern = regexp.MustCompile(`^HOS-(DOC|STF)-[23456789ABCDEFGHJKLMNPQRSTUVWXYZ]{5}$`)

// NewUniqueID issues a staff login ID: HOS-DOC-XXXXX for doctors, HOS-STF-XXXXX
// for reception. Other roles have no unique ID.
func NewUniqueID(role Role) (string, error) {
	var prefix string
	switch role {
	case RoleDoctor:
		prefix = "HOS-DOC-"
	case RoleReception:
		prefix = "HOS-STF-"
	default:
		return "", nil
	}
	suffix, err := randomString(uniqueIDAlphabet, 5)
	if err != nil {
		return "", err
	}
	return prefix + suffix, nil
}

// IsUniqueID reports whether s is a well-formed staff unique ID.
func IsUniqueID(s string) bool {
	return uniqueIDPattern.MatchString(strings.ToUpper(strings.TrimSpace(s)))
}

// RoleFromUniqueID returns the role encoded in a unique ID.
func RoleFromUniqueID(s string) (Role, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(s, "HOS-DOC-"):
		return RoleDoctor, true
	case strings.HasPrefix(s, "HOS-STF-"):
		return RoleReception, true
	}
	return "", false
}
