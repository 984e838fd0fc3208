package id

import "github.com/google/uuid"

// New returns a random (v4) identifier in its canonical hyphenated form.
func New() string {
	return uuid.NewString()
}

// Valid reports whether s is a well-formed identifier.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
