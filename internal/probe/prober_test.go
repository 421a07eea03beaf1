package probe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestMeasureCountsOutcomes(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.WriteHeader(http.StatusOK)
		case "/degraded":
			w.WriteHeader(http.StatusNotFound) // 4xx still counts as answered
		case "/down":
			w.WriteHeader(http.StatusInternalServerError)
		}
		hits.Add(1)
	}))
	defer server.Close()

	endpoints := map[string][]Step{
		"healthy":  {{URL: server.URL + "/ok"}},
		"degraded": {{URL: server.URL + "/degraded"}},
		"broken":   {{URL: server.URL + "/down"}},
	}
	prober := NewProber(nil, endpoints, time.Second, 4, 5)

	counts := prober.Measure(context.Background(), 5*time.Second)
	if got := counts["healthy"]; got.Total != 5 || got.OK != 5 {
		t.Fatalf("healthy = %+v, want 5/5", got)
	}
	if got := counts["degraded"]; got.Total != 5 || got.OK != 5 {
		t.Fatalf("4xx must count as success, got %+v", got)
	}
	if got := counts["broken"]; got.Total != 5 || got.OK != 0 {
		t.Fatalf("5xx must count as failure, got %+v", got)
	}
	if hits.Load() != 15 {
		t.Fatalf("expected 15 requests, got %d", hits.Load())
	}
}

func TestWorkflowStopsAtFirstFailure(t *testing.T) {
	var sawCheckout atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cart":
			w.WriteHeader(http.StatusBadGateway)
		case "/checkout":
			sawCheckout.Store(true)
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	endpoints := map[string][]Step{
		"purchase": {
			{Method: http.MethodPost, URL: server.URL + "/cart", Body: `{"item":"x"}`},
			{Method: http.MethodPost, URL: server.URL + "/checkout"},
		},
	}
	prober := NewProber(nil, endpoints, time.Second, 2, 3)

	counts := prober.Measure(context.Background(), 5*time.Second)
	if got := counts["purchase"]; got.OK != 0 || got.Total != 3 {
		t.Fatalf("failed first step must fail the workflow, got %+v", got)
	}
	if sawCheckout.Load() {
		t.Fatal("workflow continued past a failed step")
	}
}

func TestWorkflowOrderedSteps(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/cart" && r.Method == http.MethodPost {
			body, _ := io.ReadAll(r.Body)
			if string(body) != `{"item":"x"}` {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	endpoints := map[string][]Step{
		"purchase": {
			{Method: http.MethodPost, URL: server.URL + "/cart", Body: `{"item":"x"}`},
			{URL: server.URL + "/checkout"},
		},
	}
	prober := NewProber(nil, endpoints, time.Second, 2, 2)
	counts := prober.Measure(context.Background(), 5*time.Second)
	if got := counts["purchase"]; got.OK != 2 {
		t.Fatalf("full workflow should succeed, got %+v", got)
	}
}

func TestWarmupWaitsForEndpoints(t *testing.T) {
	var ready atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ready.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	prober := NewProber(nil, map[string][]Step{"home": {{URL: server.URL}}}, time.Second, 2, 1)

	ready.Store(true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := prober.Warmup(ctx); err != nil {
		t.Fatalf("Warmup: %v", err)
	}

	ready.Store(false)
	short, cancelShort := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelShort()
	if err := prober.Warmup(short); err == nil {
		t.Fatal("warm-up against a dead endpoint must time out")
	}
}
