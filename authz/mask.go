package authz

import "strings"

const maskRune = '*'

// RequiresMasking reports whether values of res must be masked before they
// are shown to actor. Staff roles reading data they do not own see masked
// values.
func RequiresMasking(actor Actor, res Resource) bool {
	switch actor.Role {
	case RoleSupport, RoleAdmin:
		return res.UserID != actor.ID
	default:
		return false
	}
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return MaskValue(email, 0)
	}
	local := []rune(email[:at])
	return string(local[0]) + strings.Repeat(string(maskRune), 3) + email[at:]
}

// MaskValue replaces every rune except the last keep runes.
func MaskValue(v string, keep int) string {
	r := []rune(v)
	if keep < 0 {
		keep = 0
	}
	if keep >= len(r) {
		keep = 0
	}
	for i := 0; i < len(r)-keep; i++ {
		r[i] = maskRune
	}
	return string(r)
}
