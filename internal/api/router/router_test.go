package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/clinic-kiosk/internal/gateway"
	"github.com/wolfman30/clinic-kiosk/internal/kiosk"
	"github.com/wolfman30/clinic-kiosk/internal/kvstore"
	"github.com/wolfman30/clinic-kiosk/internal/observability/metrics"
	"github.com/wolfman30/clinic-kiosk/pkg/logging"
)

func newTestRouter(t *testing.T, apiHealthy bool, metricsToken string) http.Handler {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" && apiHealthy {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(upstream.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := logging.New("error")
	reg := prometheus.NewRegistry()
	kioskMetrics := metrics.NewKioskMetrics(reg)
	api := gateway.NewClient(upstream.URL, gateway.WithTimeout(time.Second), gateway.WithLogger(logger), gateway.WithMetrics(kioskMetrics))

	tabs := kiosk.NewTabs(ctx, kiosk.TabsConfig{
		Shared:  kvstore.NewMemoryStore(),
		API:     api,
		Logger:  logger,
		Metrics: kioskMetrics,
	})
	t.Cleanup(tabs.Close)

	handler, err := kiosk.NewHandler(kiosk.Config{
		Tabs:          tabs,
		API:           api,
		Logger:        logger,
		ProfileSecret: "router-secret",
		ProfileTTL:    time.Hour,
	})
	if err != nil {
		t.Fatalf("kiosk handler: %v", err)
	}

	return New(&Config{
		Logger:             logger,
		Kiosk:              handler,
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		MetricsToken:       metricsToken,
		CORSAllowedOrigins: []string{"https://kiosk.example"},
	})
}

func TestRouterHealthEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		healthy bool
		want    string
	}{
		{"api up", true, "ok"},
		{"api down", false, "unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, tt.healthy, "")

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != http.StatusOK {
				t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
			}
			var resp map[string]string
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode health response: %v", err)
			}
			if resp["status"] != "ok" {
				t.Errorf("expected status 'ok', got %q", resp["status"])
			}
			if resp["clinic_api"] != tt.want {
				t.Errorf("expected clinic_api %q, got %q", tt.want, resp["clinic_api"])
			}
		})
	}
}

func TestRouterMetricsRequiresToken(t *testing.T) {
	router := newTestRouter(t, true, "scrape-me")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer scrape-me")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rr.Code)
	}
}

func TestRouterMetricsOpenWithoutToken(t *testing.T) {
	router := newTestRouter(t, true, "")

	// Exercise the gateway so a series exists.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "kiosk_") {
		t.Fatalf("expected kiosk metrics in scrape, got %s", rr.Body.String())
	}
}

func TestRouterMountsKioskScreens(t *testing.T) {
	router := newTestRouter(t, true, "")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect to a tab, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); !strings.Contains(loc, "tab=") {
		t.Fatalf("expected tab parameter in redirect, got %q", loc)
	}
	if len(rr.Result().Cookies()) == 0 {
		t.Fatalf("expected profile cookie")
	}
}

func TestRouterCORSPreflight(t *testing.T) {
	router := newTestRouter(t, true, "")

	req := httptest.NewRequest(http.MethodOptions, "/slots", nil)
	req.Header.Set("Origin", "https://kiosk.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://kiosk.example" {
		t.Fatalf("expected allowed origin echoed, got %q", got)
	}
}

func TestRequireMetricsTokenHeader(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := requireMetricsToken(" secret ")(next)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set(metricsTokenHeader, "secret")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected header token accepted, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set(metricsTokenHeader, "wrong")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected wrong token rejected, got %d", rr.Code)
	}
}
