package http

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := NewRequestIDMiddleware().Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if seen == "" {
		t.Fatal("expected a generated request id")
	}
	if rec.Header().Get(RequestIDHeader) != seen {
		t.Errorf("expected header %q, got %q", seen, rec.Header().Get(RequestIDHeader))
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if seen != "abc-123" {
		t.Errorf("expected caller id to be reused, got %q", seen)
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if len(seen) > 128 {
		t.Error("expected oversized id to be replaced")
	}
}

func TestRequestID_EmptyContext(t *testing.T) {
	if got := RequestID(httptest.NewRequest("GET", "/", nil).Context()); got != "" {
		t.Errorf("expected empty id, got %q", got)
	}
}

func TestLoggingMiddleware_CapturesStatus(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	handler := NewLoggingMiddleware(logger).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/characters", nil))

	out := buf.String()
	if !strings.Contains(out, "status=418") || !strings.Contains(out, "path=/api/v1/characters") {
		t.Errorf("unexpected log line: %s", out)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := NewRecoveryMiddleware(discardLogger()).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantOrigin string
		wantStatus int
	}{
		{"wildcard", []string{"*"}, "http://localhost:3000", "GET", "http://localhost:3000", http.StatusOK},
		{"listed origin", []string{"https://app.test"}, "https://app.test", "GET", "https://app.test", http.StatusOK},
		{"unlisted origin", []string{"https://app.test"}, "https://evil.test", "GET", "", http.StatusOK},
		{"preflight", []string{"*"}, "https://app.test", "OPTIONS", "https://app.test", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			NewCORSMiddleware(tt.allowed).Handler(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("expected allow-origin %q, got %q", tt.wantOrigin, got)
			}
		})
	}
}

func readWatch(t *testing.T, conn *websocket.Conn) WatchMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg WatchMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("failed to read watch frame: %v", err)
	}
	return msg
}

func TestHandleWatch(t *testing.T) {
	env := setupTestServer(t)
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/characters/watch?limit=2"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("expected request id on the upgrade response")
	}

	first := readWatch(t, conn)
	if first.Type != MessageWindow {
		t.Fatalf("expected window frame first, got %s", first.Type)
	}

	// the initial load committed page 1, so a change frame and a re-read follow
	change := readWatch(t, conn)
	if change.Type != MessageChange || change.Event == nil || change.Event.LoadType != domain.LoadRefresh {
		t.Fatalf("expected refresh change frame, got %+v", change)
	}
	again := readWatch(t, conn)
	if again.Type != MessageWindow {
		t.Fatalf("expected window frame after change, got %s", again.Type)
	}

	rec := env.do(t, "POST", "/api/v1/characters/refresh")
	expectStatus(t, rec, http.StatusOK)
	if msg := readWatch(t, conn); msg.Type != MessageChange {
		t.Errorf("expected change frame after refresh, got %s", msg.Type)
	}
}

func TestHandleWatch_RejectsBadParams(t *testing.T) {
	env := setupTestServer(t)

	expectStatus(t, env.do(t, "GET", "/api/v1/characters/watch?limit=-1"), http.StatusBadRequest)
	expectStatus(t, env.do(t, "GET", "/api/v1/planets/watch"), http.StatusNotFound)
}
