package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAdminToken(t *testing.T) {
	hash, err := HashAdminToken("correct-horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	guard := RequireAdminToken(hash)(okHandler())

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer correct-horse", http.StatusOK},
		{"wrong token", "Bearer battery-staple", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic correct-horse", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/backup", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			guard.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestRequireAdminTokenDisabled(t *testing.T) {
	guard := RequireAdminToken("")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/admin/backup", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	guard.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:51234"
	if got := RealIP(req); got != "192.0.2.7" {
		t.Errorf("remote addr ip = %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := RealIP(req); got != "203.0.113.9" {
		t.Errorf("forwarded ip = %q", got)
	}
}
