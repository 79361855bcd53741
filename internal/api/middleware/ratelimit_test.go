package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoginLimiter_Burst(t *testing.T) {
	// rate очень мал: после всплеска токены за время теста не восстановятся
	limiter := NewLoginLimiter(0.001, 3, testLogger())
	handler := limiter.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 3; i++ {
		if code := do("10.0.0.1:1234"); code != http.StatusOK {
			t.Fatalf("запрос %d в пределах burst: ожидался 200, получен %d", i+1, code)
		}
	}
	if code := do("10.0.0.1:5555"); code != http.StatusTooManyRequests {
		t.Errorf("запрос сверх burst: ожидался 429, получен %d", code)
	}

	// Другой IP имеет собственный лимит
	if code := do("10.0.0.2:1234"); code != http.StatusOK {
		t.Errorf("другой IP: ожидался 200, получен %d", code)
	}
}

func TestLoginLimiter_RejectBody(t *testing.T) {
	limiter := NewLoginLimiter(0.001, 1, testLogger())
	handler := limiter.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("ожидался 429, получен %d", rec.Code)
	}
	if code := errorCode(t, rec.Body.Bytes()); code != "TOO_MANY_REQUESTS" {
		t.Errorf("код ошибки: получен %s", code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("ожидался заголовок Retry-After")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remote   string
		expected string
	}{
		{"192.168.1.1:8080", "192.168.1.1"},
		{"[::1]:443", "::1"},
		{"10.0.0.5", "10.0.0.5"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remote
		if got := clientIP(req); got != tt.expected {
			t.Errorf("clientIP(%q): ожидалось %q, получено %q", tt.remote, tt.expected, got)
		}
	}
}

func TestCORS(t *testing.T) {
	called := false
	handler := CORS("http://localhost:3000")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	preflight := httptest.NewRequest(http.MethodOptions, "/files", nil)
	preflight.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, preflight)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight: ожидался 204, получен %d", rec.Code)
	}
	if called {
		t.Error("preflight не должен доходить до handler")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin: получено %q", got)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files", nil))
	if !called {
		t.Error("обычный запрос должен доходить до handler")
	}
}
