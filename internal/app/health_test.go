package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"fipsync/internal/config"
)

func serveHealth(t *testing.T, fs *fakeStore, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	server := NewHTTPServer(newTestService(t, config.Config{}, Deps{Store: fs}), "*")
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("X-Request-ID", "req-123")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	var body map[string]any
	if method != http.MethodOptions {
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
		}
	}
	return rr, body
}

func TestHealthEndpoint(t *testing.T) {
	rr, body := serveHealth(t, newFakeStore(), http.MethodGet, "/api/health")
	if rr.Code != http.StatusOK || body["ok"] != true {
		t.Fatalf("expected 200 ok=true, got %d %v", rr.Code, body)
	}
	for header, want := range map[string]string{
		"Access-Control-Allow-Origin": "*",
		"Cache-Control":               "no-store",
		"X-Request-ID":                "req-123",
	} {
		if got := rr.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestHealthEndpointOptions(t *testing.T) {
	rr, _ := serveHealth(t, newFakeStore(), http.MethodOptions, "/api/health")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204 for OPTIONS, got %d", rr.Code)
	}
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantState  string
		wantDB     string
	}{
		{name: "database up", wantStatus: http.StatusOK, wantState: "ready", wantDB: "ok"},
		{name: "database down", pingErr: errors.New("connection refused"), wantStatus: http.StatusServiceUnavailable, wantState: "not_ready", wantDB: "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFakeStore()
			fs.pingFn = func(context.Context) error { return tt.pingErr }

			rr, body := serveHealth(t, fs, http.MethodGet, "/api/ready")
			if rr.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			if body["status"] != tt.wantState || body["ok"] != (tt.pingErr == nil) {
				t.Fatalf("unexpected body %v", body)
			}
			checks, _ := body["checks"].(map[string]any)
			db, _ := checks["database"].(map[string]any)
			if db["status"] != tt.wantDB {
				t.Fatalf("database check = %v, want status %s", db, tt.wantDB)
			}
			if tt.pingErr != nil && db["error"] != tt.pingErr.Error() {
				t.Fatalf("database error = %v, want %q", db["error"], tt.pingErr.Error())
			}
		})
	}
}
