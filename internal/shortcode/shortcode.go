// Package shortcode generates and validates the alphanumeric codes that
// identify shortened URLs.
package shortcode

import (
	"regexp"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Alphabet is the 62-character code alphabet: upper, lower and digits.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

const (
	// DefaultLength is the length of generated codes.
	DefaultLength = 6
	// ExtendedLength is the fallback length used when generation keeps
	// colliding at DefaultLength.
	ExtendedLength = 8
)

var shortCodeRegexp = regexp.MustCompile(`^[A-Za-z0-9]{3,20}$`)

// IsValid reports whether the code matches the accepted shape:
// 3 to 20 alphanumeric characters. The same rule is enforced at every
// entry point that takes a short code.
func IsValid(code string) bool {
	return shortCodeRegexp.MatchString(code)
}

// Generate returns a random code of the given length drawn uniformly from
// Alphabet. Collision avoidance is the caller's responsibility.
func Generate(length int) (string, error) {
	return gonanoid.Generate(Alphabet, length)
}
