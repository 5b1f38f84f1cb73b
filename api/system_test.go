package api_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/recruitflow/api/api"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func TestSystemHandlers(t *testing.T) {
	h := api.NewSystemHandler(fakePinger{})

	// HealthHandler
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.HealthHandler(w, req)
	res := w.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: expected 200 got %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("health: expected json content-type, got %q", ct)
	}
	b, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(b), `"status":"ok"`) {
		t.Fatalf("health: unexpected body %s", string(b))
	}

	// ReadyHandler
	req2 := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w2 := httptest.NewRecorder()
	h.ReadyHandler(w2, req2)
	if w2.Code != http.StatusOK {
		t.Fatalf("ready: expected 200 got %d", w2.Code)
	}

	down := api.NewSystemHandler(fakePinger{err: fmt.Errorf("db gone")})
	w3 := httptest.NewRecorder()
	down.ReadyHandler(w3, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w3.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready: expected 503 got %d", w3.Code)
	}

	// VersionHandler
	vh := h.VersionHandler("1.2.3", "2026-08-01T00:00:00Z")
	w4 := httptest.NewRecorder()
	vh(w4, httptest.NewRequest(http.MethodGet, "/version", nil))
	if w4.Code != http.StatusOK {
		t.Fatalf("version: expected 200 got %d", w4.Code)
	}
	body := w4.Body.String()
	if !strings.Contains(body, `"version":"1.2.3"`) || !strings.Contains(body, `"buildTime":"2026-08-01T00:00:00Z"`) {
		t.Fatalf("version: unexpected body %s", body)
	}
}
