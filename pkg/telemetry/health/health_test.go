package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mercator-hq/creditgate/pkg/config"
	"mercator-hq/creditgate/pkg/storage/memory"
)

func TestChecker_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]CheckFunc
		wantStatus string
		wantReady  bool
	}{
		{
			name:       "no checks",
			checks:     nil,
			wantStatus: StatusReady,
			wantReady:  true,
		},
		{
			name: "all healthy",
			checks: map[string]CheckFunc{
				"storage": func(context.Context) error { return nil },
				"sweeper": func(context.Context) error { return nil },
			},
			wantStatus: StatusReady,
			wantReady:  true,
		},
		{
			name: "one failing",
			checks: map[string]CheckFunc{
				"storage": func(context.Context) error { return errors.New("connection refused") },
				"sweeper": func(context.Context) error { return nil },
			},
			wantStatus: StatusNotReady,
			wantReady:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(time.Second)
			for name, fn := range tt.checks {
				c.RegisterCheck(name, fn)
			}

			report := c.Readiness(context.Background())
			if report.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", report.Status, tt.wantStatus)
			}
			if report.Ready() != tt.wantReady {
				t.Errorf("Ready() = %v, want %v", report.Ready(), tt.wantReady)
			}
			if len(report.Checks) != len(tt.checks) {
				t.Errorf("got %d results, want %d", len(report.Checks), len(tt.checks))
			}
		})
	}
}

func TestChecker_Timeout(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.RegisterCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return nil
	})

	report := c.Readiness(context.Background())
	res := report.Checks["slow"]
	if res.Status != StatusUnhealthy || res.Message != ErrCheckTimeout.Error() {
		t.Errorf("unexpected result for slow check: %+v", res)
	}
}

func TestChecker_RegisterPinger(t *testing.T) {
	c := New(time.Second)
	c.RegisterPinger("storage:memory", memory.New())
	c.RegisterCheck("sweeper", func(context.Context) error { return nil })
	c.UnregisterCheck("sweeper")

	names := c.Names()
	if len(names) != 1 || names[0] != "storage:memory" {
		t.Errorf("Names() = %v, want [storage:memory]", names)
	}
	if !c.Readiness(context.Background()).Ready() {
		t.Error("expected memory backend to be ready")
	}
}

func TestHandlers(t *testing.T) {
	c := New(time.Second)
	c.RegisterCheck("storage", func(context.Context) error { return errors.New("down") })

	mux := http.NewServeMux()
	Register(mux, c, config.HealthConfig{
		LivenessPath:  "/health",
		ReadinessPath: "/ready",
		VersionPath:   "/version",
	}, NewVersionInfo("1.2.3", "abc", "today"))

	tests := []struct {
		method   string
		path     string
		wantCode int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodHead, "/health", http.StatusOK},
		{http.MethodGet, "/ready", http.StatusServiceUnavailable},
		{http.MethodGet, "/version", http.StatusOK},
		{http.MethodPost, "/health", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.method == http.MethodHead && rec.Body.Len() != 0 {
				t.Error("expected empty body for HEAD")
			}
		})
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	var info VersionInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	if info.Version != "1.2.3" || info.GoVersion == "" {
		t.Errorf("unexpected version info: %+v", info)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	var report Report
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode readiness: %v", err)
	}
	if report.Checks["storage"].Message != "down" {
		t.Errorf("expected failing check message, got %+v", report.Checks["storage"])
	}
}
