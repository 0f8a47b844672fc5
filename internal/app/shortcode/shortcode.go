// Package shortcode generates and validates the short identifiers that map to
// destinations.
package shortcode

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
)

// Alphabet used for generated codes. Lowercase plus digits keeps codes
// case-insensitive and URL-safe.
const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// codePattern matches lowercase alphanumerics with interior hyphens. A code
// never starts or ends with a hyphen.
var codePattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]*[a-z0-9])?$`)

// DefaultReserved lists codes that can never be allocated because they would
// shadow service routes or well-known files.
var DefaultReserved = []string{
	"api", "admin", "www", "static", "assets", "health",
	"metrics", "robots.txt", "favicon.ico", "sitemap.xml",
}

// Normalize lowercases and trims a user-supplied code.
func Normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// Valid reports whether code satisfies the format and length rules for
// custom codes.
func Valid(code string, minLen, maxLen int) bool {
	if len(code) < minLen || len(code) > maxLen {
		return false
	}
	return codePattern.MatchString(code)
}

// IsReserved reports whether code appears in the reserved list (case
// insensitive).
func IsReserved(code string, reserved []string) bool {
	lower := strings.ToLower(code)
	for _, r := range reserved {
		if lower == strings.ToLower(r) {
			return true
		}
	}
	return false
}

// Generate returns a random code of the given length drawn from the code
// alphabet using crypto/rand.
func Generate(length int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = alphabet[n.Int64()]
	}
	return string(b), nil
}
