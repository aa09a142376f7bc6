package audit

import "strings"

// Redacted replaces sanitized metadata values.
const Redacted = "[REDACTED]"

var piiKeyFragments = []string{
	"email",
	"phone",
	"address",
	"ssn",
	"credit_card",
	"creditcard",
	"password",
	"token",
	"secret",
}

// SanitizePII returns a copy of metadata with values under PII-looking keys
// replaced by Redacted. Nested maps are sanitized recursively.
func SanitizePII(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}

	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if isPIIKey(k) {
			out[k] = Redacted
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = SanitizePII(nested)
			continue
		}
		out[k] = v
	}
	return out
}

func isPIIKey(key string) bool {
	k := strings.ToLower(key)
	for _, frag := range piiKeyFragments {
		if strings.Contains(k, frag) {
			return true
		}
	}
	return false
}
