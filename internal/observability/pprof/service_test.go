package pprof

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithAuth(t *testing.T) {
	t.Parallel()

	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

	tests := []struct {
		name   string
		token  string
		header string
		query  string
		want   int
	}{
		{"no token configured", "", "", "", http.StatusOK},
		{"bearer match", "s3cret", "Bearer s3cret", "", http.StatusOK},
		{"bearer mismatch", "s3cret", "Bearer nope", "", http.StatusUnauthorized},
		{"query match", "s3cret", "", "s3cret", http.StatusOK},
		{"query mismatch", "s3cret", "", "nope", http.StatusUnauthorized},
		{"missing credentials", "s3cret", "", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			url := "/debug/pprof/"
			if tt.query != "" {
				url += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			withAuth(tt.token, ok)(rr, req)
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:6060", true},
		{"localhost:6060", true},
		{"[::1]:6060", true},
		{"0.0.0.0:6060", false},
		{":6060", false},
		{"192.168.1.5:6060", false},
		{"no-port", false},
	}
	for _, tt := range tests {
		if got := isLoopbackAddr(tt.addr); got != tt.want {
			t.Errorf("isLoopbackAddr(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestNeedsRestart(t *testing.T) {
	t.Parallel()

	base := Config{Enabled: true, Addr: "127.0.0.1:6060"}
	if needsRestart(base, base) {
		t.Fatal("identical configs must not restart")
	}
	changed := base
	changed.Addr = "127.0.0.1:7070"
	if !needsRestart(base, changed) {
		t.Fatal("addr change must restart")
	}
	changed = base
	changed.Token = "t"
	if !needsRestart(base, changed) {
		t.Fatal("token change must restart")
	}
}
