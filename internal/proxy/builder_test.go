package proxy_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"candlegate/internal/config"
	"candlegate/internal/logging"
	"candlegate/internal/proxy"
)

func loadTestConfig(t *testing.T, upstreamURL string) *config.Config {
	t.Helper()
	t.Setenv("TWELVED_API_KEY", "test-key")
	t.Setenv("PORT", "")
	t.Setenv("CANDLEGATE_UPSTREAM_URL", upstreamURL)
	t.Setenv("CANDLEGATE_LOG_LEVEL", "")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func TestBuilder_EndToEnd(t *testing.T) {
	var calls atomic.Int32
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("apikey") != "test-key" {
			t.Errorf("apikey = %q, want test-key", r.URL.Query().Get("apikey"))
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("symbol") == "ZZZZ" {
			_, _ = w.Write([]byte(`{"code":400,"message":"invalid symbol","status":"error"}`))
			return
		}
		_, _ = w.Write([]byte(`{"values":[],"status":"ok"}`))
	}))
	defer provider.Close()

	cfg := loadTestConfig(t, provider.URL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, engine, err := proxy.NewBuilder(cfg, logging.Nop{}).Build(ctx)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if !engine.Coalesce {
		t.Error("expected coalescing enabled by default")
	}
	if srv.Addr != ":4000" {
		t.Errorf("Addr = %q, want :4000", srv.Addr)
	}

	h := srv.Handler

	rr := get(t, h, "/api/candles?symbol=AAPL")
	if rr.Code != http.StatusOK || rr.Body.String() != `{"values":[],"status":"ok"}` {
		t.Fatalf("first response = %d %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS header on response")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID on response")
	}

	rr = get(t, h, "/api/candles?symbol=AAPL")
	if rr.Header().Get("X-Cache") != "HIT" {
		t.Errorf("second response X-Cache = %q, want HIT", rr.Header().Get("X-Cache"))
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}

	rr = get(t, h, "/api/candles?symbol=ZZZZ")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("provider error status = %d, want 500", rr.Code)
	}
	if msg := errorBody(t, rr); msg != "invalid symbol" {
		t.Errorf("error = %q, want invalid symbol", msg)
	}

	rr = get(t, h, "/api/candles")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing symbol status = %d, want 400", rr.Code)
	}

	rr = get(t, h, "/healthz")
	if rr.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rr.Code)
	}

	rr = get(t, h, "/metrics")
	if rr.Code != http.StatusOK {
		t.Errorf("metrics status = %d, want 200", rr.Code)
	}
}

func TestBuilder_IPBlock(t *testing.T) {
	cfg := loadTestConfig(t, "http://127.0.0.1:1")
	cfg.Server.IPBlockCIDRs = []string{"10.0.0.0/8"}

	srv, _, err := proxy.NewBuilder(cfg, logging.Nop{}).Build(context.Background())
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/candles?symbol=AAPL", nil)
	req.RemoteAddr = "10.2.3.4:5555"
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rr.Code)
	}
}

func TestBuilder_InvalidCIDR(t *testing.T) {
	cfg := loadTestConfig(t, "http://127.0.0.1:1")
	cfg.Server.IPBlockCIDRs = []string{"nope"}

	if _, _, err := proxy.NewBuilder(cfg, logging.Nop{}).Build(context.Background()); err == nil {
		t.Fatal("expected error for invalid CIDR")
	}
}
