package emailutil

import "strings"

// Normalize normalizes an email address for consistent comparison
// by converting to lowercase and trimming whitespace
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Valid reports whether email has the minimal local@domain shape. Real
// validation is the backend's job; this only catches obvious typos before
// a round trip.
func Valid(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	return !strings.Contains(domain, "@") && strings.Contains(domain, ".")
}
