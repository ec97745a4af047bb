package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type fakeChecker struct {
	err   error
	stats PoolStats
}

func (f *fakeChecker) Ping(context.Context) error { return f.err }

func (f *fakeChecker) Stats() *PoolStats {
	s := f.stats
	return &s
}

func TestHealthHandler_Healthy(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/db", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := HealthHandler(&fakeChecker{stats: PoolStats{Driver: "postgres", TotalConns: 3, Healthy: true}})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %v", body["status"])
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/db", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := HealthHandler(&fakeChecker{err: errors.New("connection refused"), stats: PoolStats{Driver: "mysql", Healthy: true}})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	var body struct {
		Status string    `json:"status"`
		Error  string    `json:"error"`
		Pool   PoolStats `json:"pool"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Pool.Healthy {
		t.Error("expected pool to be reported unhealthy after a failed ping")
	}
	if body.Error != "connection refused" {
		t.Errorf("unexpected error message %q", body.Error)
	}
}

func TestPoolStats_JSONTags(t *testing.T) {
	raw, err := json.Marshal(PoolStats{Driver: "postgres", MaxConns: 20})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"driver", "total_conns", "idle_conns", "acquired_conns", "max_conns", "wait_count", "wait_duration", "healthy"} {
		if _, ok := m[key]; !ok {
			t.Errorf("expected key %q in JSON", key)
		}
	}
}
