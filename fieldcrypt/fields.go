package fieldcrypt

import "fmt"

// SensitiveFields lists the record attributes that are always stored in
// enc:v1 form.
var SensitiveFields = []string{
	"ssn",
	"socialSecurityNumber",
	"taxId",
	"bankAccount",
	"creditCard",
	"cardNumber",
	"cvv",
	"pin",
	"password",
	"secret",
	"privateKey",
	"healthInfo",
	"medicalRecord",
	"diagnosis",
	"salary",
	"income",
}

var sensitiveSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(SensitiveFields))
	for _, f := range SensitiveFields {
		m[f] = struct{}{}
	}
	return m
}()

// IsSensitive reports whether field is in SensitiveFields.
func IsSensitive(field string) bool {
	_, ok := sensitiveSet[field]
	return ok
}

// EncryptFields returns a copy of data with the named string fields sealed.
// Non-string, empty and already encrypted values are copied through.
func (c *Cipher) EncryptFields(data map[string]any, fields ...string) (map[string]any, error) {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	for _, f := range fields {
		s, ok := data[f].(string)
		if !ok || s == "" || IsEncrypted(s) {
			continue
		}
		env, err := c.Encrypt(s)
		if err != nil {
			return nil, fmt.Errorf("encrypt %s: %w", f, err)
		}
		out[f] = env
	}
	return out, nil
}

// DecryptFields returns a copy of data with the named enc:v1 fields opened.
// Deterministic envelopes are left in place. Any authentication failure
// aborts the whole call.
func (c *Cipher) DecryptFields(data map[string]any, fields ...string) (map[string]any, error) {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	for _, f := range fields {
		s, ok := data[f].(string)
		if !ok || !IsEncrypted(s) {
			continue
		}
		if len(s) >= len(PrefixDeterministic) && s[:len(PrefixDeterministic)] == PrefixDeterministic {
			continue
		}
		plain, err := c.Decrypt(s)
		if err != nil {
			return nil, fmt.Errorf("decrypt %s: %w", f, err)
		}
		out[f] = plain
	}
	return out, nil
}
