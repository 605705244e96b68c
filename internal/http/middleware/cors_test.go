package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func corsRequest(t *testing.T, origins []string, method, origin string, headers map[string]string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(method, "/api/v1/appointments/mine", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	CORS(origins)(next).ServeHTTP(rec, req)
	return rec, called
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	rec, called := corsRequest(t, []string{"https://reception.waylio.test"}, http.MethodGet, "https://reception.waylio.test", nil)

	if !called {
		t.Fatalf("expected handler to be called")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://reception.waylio.test" {
		t.Fatalf("expected allow origin header, got %q", got)
	}
}

func TestCORSDeniesUnknownOrigin(t *testing.T) {
	rec, _ := corsRequest(t, []string{"https://reception.waylio.test"}, http.MethodGet, "https://evil.example", nil)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow origin header, got %q", got)
	}
}

func TestCORSWildcard(t *testing.T) {
	rec, _ := corsRequest(t, []string{"*"}, http.MethodGet, "https://kiosk.example", nil)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Fatalf("expected allow origin header for wildcard config")
	}
}

func TestCORSEmptyListIsPassthrough(t *testing.T) {
	rec, called := corsRequest(t, []string{" ", ""}, http.MethodGet, "https://reception.waylio.test", nil)

	if !called {
		t.Fatalf("expected handler to be called")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no CORS headers, got %q", got)
	}
}

func TestCORSHandlesPreflight(t *testing.T) {
	rec, called := corsRequest(t, []string{"https://reception.waylio.test"}, http.MethodOptions, "https://reception.waylio.test", map[string]string{
		"Access-Control-Request-Method":  http.MethodPatch,
		"Access-Control-Request-Headers": "Authorization",
	})

	if called {
		t.Fatalf("expected handler to not be called on preflight")
	}
	if rec.Code >= http.StatusMultipleChoices {
		t.Fatalf("expected successful preflight, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != http.MethodPatch {
		t.Fatalf("expected PATCH to be allowed, got %q", got)
	}
}
