// Package model contains domain models passed between layers.
package model

// User is a registered participant. Token is the primary key and the only
// credential the user holds.
type User struct {
	Name     string
	Email    string
	Token    string
	Verified bool
}
