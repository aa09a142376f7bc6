package authcore

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxEmailLength = 254

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)
	namePattern  = regexp.MustCompile(`^[\p{L}\p{N}\s\-']+$`)
)

var commonPasswords = map[string]struct{}{
	"password":       {},
	"password123":    {},
	"password1234":   {},
	"12345678":       {},
	"123456789":      {},
	"123456789012":   {},
	"qwerty123":      {},
	"qwerty123456":   {},
	"abc12345":       {},
	"password1":      {},
	"iloveyou":       {},
	"admin123":       {},
	"welcome1":       {},
	"welcome12345":   {},
	"letmein":        {},
	"letmein12345":   {},
	"monkey":         {},
	"dragon":         {},
	"master":         {},
	"qwertyuiop":     {},
	"qwertyuiop123":  {},
	"passw0rd1234":   {},
	"p@ssw0rd1234":   {},
	"changeme12345":  {},
	"administrator1": {},
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks the normalized form of email.
func ValidateEmail(email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return invalid("email", "email is required")
	}
	if len(email) > maxEmailLength {
		return invalid("email", "email is too long")
	}
	if !emailPattern.MatchString(email) {
		return invalid("email", "email is not a valid address")
	}
	return nil
}

// ValidateName trims name and checks it is 1 to 100 characters of letters,
// digits, spaces, hyphens and apostrophes.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return invalid("name", "name is required")
	}
	if utf8.RuneCountInString(name) > 100 {
		return invalid("name", "name is too long")
	}
	if !namePattern.MatchString(name) {
		return invalid("name", "name contains unsupported characters")
	}
	return nil
}

// validatePassword applies the length, character class and common password
// rules. Length is counted in characters.
func (e *Engine) validatePassword(field, pw string) error {
	n := utf8.RuneCountInString(pw)
	if n < e.config.Password.MinLength {
		return invalid(field, "password is too short")
	}
	if n > e.config.Password.MaxLength {
		return invalid(field, "password is too long")
	}
	if passwordClasses(pw) < 3 {
		return invalid(field, "password must mix at least three of upper case, lower case, digits and symbols")
	}
	if _, common := commonPasswords[strings.ToLower(pw)]; common {
		return invalid(field, "password is too common")
	}
	return nil
}

func passwordClasses(pw string) int {
	var upper, lower, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	n := 0
	for _, ok := range []bool{upper, lower, digit, symbol} {
		if ok {
			n++
		}
	}
	return n
}
