package call

import "strings"

// NormalizePhone coerces a raw contact number into +-prefixed international
// form. Numbers already carrying a + pass through, bare digit strings of a
// plausible length get the prefix, anything else is passed through unchanged
// and left for the provider to reject.
func NormalizePhone(candidate string) string {
	c := strings.TrimSpace(candidate)
	if strings.HasPrefix(c, "+") {
		return c
	}
	if isDigits(c) && len(c) >= 8 && len(c) <= 15 {
		return "+" + c
	}
	return c
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
