package clips

import "strings"

// MaxUsernameLength caps normalized login handles
const MaxUsernameLength = 24

// NormalizeUsername trims and lowercases raw, keeps only [a-z0-9_-] and caps
// the result at MaxUsernameLength bytes.
func NormalizeUsername(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	var b strings.Builder
	for _, r := range lowered {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
			if b.Len() == MaxUsernameLength {
				break
			}
		}
	}
	return b.String()
}
