package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReadKey(t *testing.T) {
	cases := []struct {
		name  string
		setup func(r *http.Request)
		want  string
	}{
		{"none", func(r *http.Request) {}, ""},
		{"x-api-key", func(r *http.Request) { r.Header.Set("X-API-Key", "k1") }, "k1"},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer k2") }, "k2"},
		{"bearer case-insensitive", func(r *http.Request) { r.Header.Set("Authorization", "bearer k3") }, "k3"},
		{"bearer wins over header", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer k4")
			r.Header.Set("X-API-Key", "other")
		}, "k4"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tc.setup(req)
			if got := readKey(req); got != tc.want {
				t.Fatalf("want %q, got %q", tc.want, got)
			}
		})
	}
}

func TestLoopbackOnly(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	send := func(h http.Handler, remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/users", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	gated := LoopbackOnly(false)(ok)
	if got := send(gated, "127.0.0.1:5555"); got != http.StatusNoContent {
		t.Fatalf("loopback caller: want 204, got %d", got)
	}
	if got := send(gated, "[::1]:5555"); got != http.StatusNoContent {
		t.Fatalf("ipv6 loopback caller: want 204, got %d", got)
	}
	if got := send(gated, "203.0.113.7:5555"); got != http.StatusForbidden {
		t.Fatalf("remote caller: want 403, got %d", got)
	}

	open := LoopbackOnly(true)(ok)
	if got := send(open, "203.0.113.7:5555"); got != http.StatusNoContent {
		t.Fatalf("remote caller with remote admin on: want 204, got %d", got)
	}
}
