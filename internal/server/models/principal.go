package models

// Principal is the authenticated caller.
type Principal struct {
	ID            string
	EmailVerified bool
}
