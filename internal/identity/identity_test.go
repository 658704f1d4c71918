package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddlewareIssuesAndKeepsVisitorID(t *testing.T) {
	t.Parallel()

	var seen string
	h := Middleware(true)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = VisitorIDFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if !IsValidVisitorID(seen) {
		t.Fatalf("expected generated visitor id, got %q", seen)
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != VisitorCookieName || cookies[0].Value != seen {
		t.Fatalf("unexpected cookies: %+v", cookies)
	}
	first := seen

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: VisitorCookieName, Value: first})
	h.ServeHTTP(w, req)
	if seen != first {
		t.Fatalf("expected id to be kept, got %q want %q", seen, first)
	}
}

func TestMiddlewareReplacesMalformedCookie(t *testing.T) {
	t.Parallel()

	var seen string
	h := Middleware(false)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = VisitorIDFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: VisitorCookieName, Value: "../../etc/passwd"})
	h.ServeHTTP(w, req)

	if !IsValidVisitorID(seen) {
		t.Fatalf("malformed cookie must be replaced, got %q", seen)
	}
	c := w.Result().Cookies()[0]
	if !c.Secure || c.SameSite != http.SameSiteNoneMode {
		t.Fatalf("production cookie must be Secure and SameSite=None: %+v", c)
	}
}

func TestRateLimitKey(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:5555"
	req = req.WithContext(WithVisitorID(req.Context(), "v_0123456789abcdef0123456789abcdef"))
	if got := RateLimitKey(req); got != "198.51.100.4" {
		t.Fatalf("RateLimitKey = %q", got)
	}
}
