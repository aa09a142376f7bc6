package jwt

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

// FuzzSessionCookieParse checks that arbitrary cookie values never panic
// and that nothing other than a cookie this manager signed is accepted.
func FuzzSessionCookieParse(f *testing.F) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mgr, err := NewManager(Config{
		SigningMethod: MethodHS256,
		PrivateKey:    bytes.Repeat([]byte{0x5a}, 32),
		Issuer:        "lifeplan",
		Audience:      "lifeplan-web",
		Leeway:        30 * time.Second,
		KeyID:         "cookie-1",
	})
	if err != nil {
		f.Fatal(err)
	}
	mgr.WithClock(func() time.Time { return now })

	signed, err := mgr.Sign("user-1", "sess-1", now.Add(8*time.Hour))
	if err != nil {
		f.Fatal(err)
	}
	parts := strings.Split(signed, ".")

	f.Add(signed)
	f.Add("")
	f.Add("sess-1")
	f.Add(parts[0] + "." + parts[1] + ".")
	f.Add(parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2])))
	f.Add("eyJhbGciOiJub25lIn0." + parts[1] + ".")
	f.Add(strings.Repeat(".", 3))

	f.Fuzz(func(t *testing.T, input string) {
		claims, err := mgr.Parse(input)
		if err != nil {
			return
		}
		if claims == nil {
			t.Fatal("Parse returned nil claims without error")
		}
		if claims.UID != "user-1" || claims.SID != "sess-1" {
			t.Fatalf("accepted forged claims %+v", claims)
		}
	})
}
