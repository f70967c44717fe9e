package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"fairrate/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		Addr:        ":0",
		FrontendURL: "http://localhost:5173",
		DBMigrate:   true,
		Admin: config.AdminConfig{
			Password:      "pw",
			SessionTTL:    time.Hour,
			SweepInterval: time.Hour,
		},
		RateLimit: config.RateLimitConfig{Enabled: true, Backend: "memory"},
	}
}

func serve(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	res := httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(method, path, nil))
	return res
}

func TestNewRuntimeInMemory(t *testing.T) {
	rt, err := NewRuntime(context.Background(), testConfig(), logr.Discard())
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	defer rt.Cleanup()

	res := serve(t, rt.Handler, http.MethodGet, "/api/countries")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), `"India"`) {
		t.Fatalf("expected seeded countries, got %s", res.Body.String())
	}
	if res.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
	if res.Header().Get("X-RateLimit-Limit") != "100" {
		t.Fatalf("expected general throttle headers, got %q", res.Header().Get("X-RateLimit-Limit"))
	}

	metrics := serve(t, rt.Handler, http.MethodGet, "/metrics")
	if metrics.Code != http.StatusOK {
		t.Fatalf("expected metrics 200, got %d", metrics.Code)
	}
	for _, want := range []string{"fairrate_http_requests_total", "go_goroutines"} {
		if !strings.Contains(metrics.Body.String(), want) {
			t.Fatalf("expected %s in metrics output", want)
		}
	}
}

func TestNewRuntimeSQLite(t *testing.T) {
	cfg := testConfig()
	cfg.DBDriver = "sqlite"
	cfg.DBDialect = "sqlite"
	cfg.DBDSN = "file:" + filepath.Join(t.TempDir(), "fairrate.db")

	rt, err := NewRuntime(context.Background(), cfg, logr.Discard())
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	res := serve(t, rt.Handler, http.MethodGet, "/api/track-view")
	rt.Cleanup()
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	// Reopening the same file must not reseed or fail on existing tables.
	rt, err = NewRuntime(context.Background(), cfg, logr.Discard())
	if err != nil {
		t.Fatalf("reopen runtime: %v", err)
	}
	defer rt.Cleanup()
	if res := serve(t, rt.Handler, http.MethodGet, "/api/countries"); res.Code != http.StatusOK {
		t.Fatalf("expected 200 after reopen, got %d", res.Code)
	}
}

func TestNewRuntimeFailsWhenDatabaseUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.DBDriver = "pgx"
	cfg.DBDialect = "postgres"
	cfg.DBDSN = "postgres://fairrate:pw@127.0.0.1:1/fairrate?sslmode=disable&connect_timeout=2"

	rt, err := NewRuntime(context.Background(), cfg, logr.Discard())
	if err == nil {
		rt.Cleanup()
		t.Fatalf("expected unreachable database to be fatal")
	}
}

func TestRateLimitDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Enabled = false
	rt, err := NewRuntime(context.Background(), cfg, logr.Discard())
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	defer rt.Cleanup()
	res := serve(t, rt.Handler, http.MethodGet, "/api/countries")
	if res.Header().Get("X-RateLimit-Limit") != "" {
		t.Fatalf("expected no throttle headers when disabled")
	}
}

func TestApplyPostgresTLS(t *testing.T) {
	cfg := config.Config{
		DBDriver: "pgx",
		DBDSN:    "postgres://u:p@db:5432/fairrate",
		DB:       config.DBTLSConfig{SSLMode: "verify-full", SSLRootCert: "/etc/ssl/ca.pem"},
	}
	got := applyPostgresTLS(cfg)
	if !strings.Contains(got, "sslmode=verify-full") || !strings.Contains(got, "sslrootcert=%2Fetc%2Fssl%2Fca.pem") {
		t.Fatalf("unexpected dsn %q", got)
	}
	cfg.DBDriver = "mysql"
	if applyPostgresTLS(cfg) != cfg.DBDSN {
		t.Fatalf("non-postgres dsn must be untouched")
	}
}
