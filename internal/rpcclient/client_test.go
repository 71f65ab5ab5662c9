package rpcclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/zecrx/randomx-miner/internal/metrics"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	cfg := DefaultConfig(srv.URL, "user", "pass")
	cfg.RetryAttempts = 0
	cfg.CBEnabled = false
	cfg.RateLimit = 0
	return New(cfg), srv.Close
}

func TestGetBlockchainInfo(t *testing.T) {
	client, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     1,
			"result": map[string]interface{}{"chain": "main", "blocks": 12345},
		})
	})
	defer closeFn()

	info, err := client.GetBlockchainInfo(context.Background())
	if err != nil {
		t.Fatalf("GetBlockchainInfo: %v", err)
	}
	if info.Chain != "main" || info.Blocks != 12345 {
		t.Fatalf("got %+v", info)
	}
}

func TestSubmitBlockAcceptsNull(t *testing.T) {
	client, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"id": 1, "result": nil})
	})
	defer closeFn()

	if err := client.SubmitBlock(context.Background(), "deadbeef"); err != nil {
		t.Fatalf("expected null reply to be accepted, got %v", err)
	}
}

func TestSubmitBlockAcceptsDuplicate(t *testing.T) {
	client, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"id": 1, "result": "duplicate"})
	})
	defer closeFn()

	if err := client.SubmitBlock(context.Background(), "deadbeef"); err != nil {
		t.Fatalf("expected duplicate reply to be accepted, got %v", err)
	}
}

func TestSubmitBlockRejectsError(t *testing.T) {
	client, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"id": 1, "result": "rejected: bad-prevblk"})
	})
	defer closeFn()

	if err := client.SubmitBlock(context.Background(), "deadbeef"); err == nil {
		t.Fatal("expected rejection to surface as an error")
	}
}

func TestCallSurfacesRPCError(t *testing.T) {
	client, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    1,
			"error": map[string]interface{}{"code": -1, "message": "boom"},
		})
	})
	defer closeFn()

	var out struct{}
	err := client.Call(context.Background(), "getmininginfo", nil, &out)
	if err == nil {
		t.Fatal("expected rpc error to propagate")
	}
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := DefaultConfig(srv.URL, "", "")
	cfg.RetryAttempts = 0
	cfg.CBThreshold = 2
	cfg.RateLimit = 0
	client := New(cfg)

	var out struct{}
	for i := 0; i < 2; i++ {
		_ = client.Call(context.Background(), "getmininginfo", nil, &out)
	}
	if client.CircuitBreakerState() != CircuitOpen {
		t.Fatalf("expected circuit to open after %d failures, got %v", cfg.CBThreshold, client.CircuitBreakerState())
	}

	if err := client.Call(context.Background(), "getmininginfo", nil, &out); err != ErrCircuitOpen {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCallRecordsMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"id": 1, "result": map[string]interface{}{}})
	}))
	defer srv.Close()

	met := metrics.New("test_client_metrics")
	cfg := DefaultConfig(srv.URL, "", "")
	cfg.RetryAttempts = 0
	cfg.CBEnabled = false
	cfg.RateLimit = 0
	cfg.Metrics = met
	client := New(cfg)

	var out struct{}
	if err := client.Call(context.Background(), "getmininginfo", nil, &out); err != nil {
		t.Fatalf("Call: %v", err)
	}

	got := testutil.ToFloat64(met.RPCRequestsTotal.WithLabelValues("getmininginfo", "success"))
	if got != 1 {
		t.Fatalf("RPCRequestsTotal: got %v, want 1", got)
	}
}

func TestCircuitBreakerOpenSetsMetric(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	met := metrics.New("test_client_cb_metrics")
	cfg := DefaultConfig(srv.URL, "", "")
	cfg.RetryAttempts = 0
	cfg.CBThreshold = 2
	cfg.RateLimit = 0
	cfg.Metrics = met
	client := New(cfg)

	var out struct{}
	for i := 0; i < 2; i++ {
		_ = client.Call(context.Background(), "getmininginfo", nil, &out)
	}

	if got := testutil.ToFloat64(met.CircuitOpen); got != 1 {
		t.Fatalf("CircuitOpen metric: got %v, want 1", got)
	}
}
