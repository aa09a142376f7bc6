package csrf

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const goodToken = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abdead"

func newRequest(method, path, cookie, header string) *http.Request {
	r := httptest.NewRequest(method, path, nil)
	if cookie != "" {
		r.AddCookie(&http.Cookie{Name: CookieName, Value: cookie})
	}
	if header != "" {
		r.Header.Set(HeaderName, header)
	}
	return r
}

func TestCheckStates(t *testing.T) {
	g := New(DefaultConfig())
	lastFlipped := goodToken[:63] + "f"

	cases := []struct {
		name string
		req  *http.Request
		want State
	}{
		{"get is exempt", newRequest(http.MethodGet, "/api/profile", "", ""), Exempt},
		{"token endpoint exempt", newRequest(http.MethodPost, TokenPath, "", ""), Exempt},
		{"external prefix exempt", newRequest(http.MethodPost, "/api/external/webhook", "", ""), Exempt},
		{"matching pair", newRequest(http.MethodPost, "/api/profile", goodToken, goodToken), Validated},
		{"last char differs", newRequest(http.MethodPut, "/api/profile", goodToken, lastFlipped), Rejected},
		{"header missing", newRequest(http.MethodDelete, "/api/profile", goodToken, ""), Rejected},
		{"cookie missing", newRequest(http.MethodPatch, "/api/profile", "", goodToken), Rejected},
		{"length differs", newRequest(http.MethodPost, "/api/profile", goodToken, goodToken[:10]), Rejected},
	}
	for _, tc := range cases {
		if got := g.Check(tc.req); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestMiddlewareRejectsGenerically(t *testing.T) {
	rejected := 0
	cfg := DefaultConfig()
	cfg.OnReject = func(*http.Request) { rejected++ }
	g := New(cfg)

	called := false
	h := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if StateFromContext(r.Context()) != Validated {
			t.Fatalf("expected validated state in context")
		}
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest(http.MethodPost, "/api/x", goodToken, ""))
	if rec.Code != http.StatusForbidden || called {
		t.Fatalf("expected 403 without calling next, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "CSRF token validation failed") {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
	if rejected != 1 {
		t.Fatalf("OnReject calls=%d", rejected)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest(http.MethodPost, "/api/x", goodToken, goodToken))
	if !called {
		t.Fatal("valid request did not reach handler")
	}
}

func TestHandlerIssuesAndReusesToken(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Secure = false
	g := New(cfg)

	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, TokenPath, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if got := rec.Header().Get("Cache-Control"); !strings.Contains(got, "no-store") {
		t.Fatalf("missing no-store: %q", got)
	}
	var body struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != CookieName || c.Value != body.CSRFToken || !c.HttpOnly || c.SameSite != http.SameSiteStrictMode || c.MaxAge != 86400 {
		t.Fatalf("unexpected cookie %+v", c)
	}

	rec = httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, newRequest(http.MethodGet, TokenPath, goodToken, ""))
	body.CSRFToken = ""
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body.CSRFToken != goodToken {
		t.Fatalf("existing token not reused: %q", body.CSRFToken)
	}

	rec = httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, newRequest(http.MethodGet, TokenPath, "junk", ""))
	body.CSRFToken = ""
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body.CSRFToken == "junk" || len(body.CSRFToken) != 64 {
		t.Fatalf("malformed cookie should be replaced, got %q", body.CSRFToken)
	}
}
