package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func corsProbe(origins []string, method, origin string) *httptest.ResponseRecorder {
	handler := CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(method, "/", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestCORS_WildcardEchoesOriginWithoutCredentials(t *testing.T) {
	w := corsProbe([]string{"*"}, http.MethodGet, "https://evil.example")

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://evil.example" {
		t.Errorf("Expected origin echoed, got %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Errorf("Expected no credentials grant for wildcard match, got %q", got)
	}
}

func TestCORS_ExactOriginGrantsCredentials(t *testing.T) {
	w := corsProbe([]string{"https://app.example"}, http.MethodGet, "https://app.example")

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("Expected allowed origin, got %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Expected credentials grant for exact origin, got %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type, X-User-ID" {
		t.Errorf("Expected identity header allowed, got %q", got)
	}
}

func TestCORS_UnlistedOriginGetsNoHeaders(t *testing.T) {
	w := corsProbe([]string{"https://app.example"}, http.MethodGet, "https://other.example")

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Expected no CORS headers for unlisted origin, got %q", got)
	}
}

func TestCORS_PreflightShortCircuits(t *testing.T) {
	w := corsProbe([]string{"*"}, http.MethodOptions, "https://app.example")

	if w.Code != http.StatusOK {
		t.Errorf("Expected preflight 200, got %d", w.Code)
	}
}
