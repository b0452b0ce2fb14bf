// Package validation holds the input rules for registrations.
package validation

import "regexp"

var (
	// Registration accepts 3 to 24 characters; updates accept 1 to 24.
	// Both limits are part of the public contract.
	newNamePattern     = regexp.MustCompile(`^[A-Za-z0-9_-]{3,24}$`)
	updatedNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,24}$`)
	emailPattern       = regexp.MustCompile(`(?i)^([\w-]+(?:\.[\w-]+)*)@((?:[\w-]+\.)*\w[\w-]{0,66})\.([a-z]{2,6}(?:\.[a-z]{2})?)$`)
)

// NewName reports whether name is acceptable for a new registration.
func NewName(name string) bool { return newNamePattern.MatchString(name) }

// UpdatedName reports whether name is acceptable when updating a registration.
func UpdatedName(name string) bool { return updatedNamePattern.MatchString(name) }

// Email reports whether email has a dotted-label@domain.tld shape.
func Email(email string) bool { return emailPattern.MatchString(email) }
