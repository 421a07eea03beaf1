package repo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/miradorstack/mirador-chaos/internal/models"
)

func jaegerServer(t *testing.T, traces string, dependencies string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/services", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":["frontend","checkoutservice","frontend"]}`))
	})
	mux.HandleFunc("/api/traces", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(traces))
	})
	mux.HandleFunc("/api/dependencies", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(dependencies))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestServicesDeduplicates(t *testing.T) {
	server := jaegerServer(t, `{"data":[]}`, `{"data":[]}`)
	client := NewTraceClient([]string{server.URL + "/api/"}, time.Second)

	services, err := client.Services(context.Background())
	if err != nil {
		t.Fatalf("Services: %v", err)
	}
	if len(services) != 2 || services[0] != "checkoutservice" || services[1] != "frontend" {
		t.Fatalf("expected sorted unique services, got %v", services)
	}
}

func TestFetchTraceRelationsClassifiesTransport(t *testing.T) {
	trace := `{"data":[{
		"spans":[
			{"spanID":"root","processID":"p1","tags":[{"key":"span.kind","value":"server"}]},
			{"spanID":"call","processID":"p2","references":[{"refType":"CHILD_OF","spanID":"root"}],
			 "tags":[{"key":"span.kind","value":"server"}]},
			{"spanID":"emit","processID":"p2","tags":[{"key":"span.kind","value":"producer"}]},
			{"spanID":"consume","processID":"p3","references":[{"refType":"CHILD_OF","spanID":"emit"}],
			 "tags":[{"key":"span.kind","value":"consumer"}]},
			{"spanID":"follow","processID":"p4","references":[{"refType":"FOLLOWS_FROM","spanID":"call"}],"tags":[]}
		],
		"processes":{
			"p1":{"serviceName":"frontend"},
			"p2":{"serviceName":"checkoutservice"},
			"p3":{"serviceName":"fraudservice"},
			"p4":{"serviceName":"emailservice"}
		}
	}]}`
	server := jaegerServer(t, trace, `{"data":[]}`)
	client := NewTraceClient([]string{server.URL + "/api"}, time.Second)

	records, err := client.FetchTraceRelations(context.Background(), []string{"frontend"}, 30*time.Minute, 100)
	if err != nil {
		t.Fatalf("FetchTraceRelations: %v", err)
	}

	byPair := make(map[[2]string]models.Transport, len(records))
	for _, rec := range records {
		byPair[[2]string{rec.Caller, rec.Callee}] = rec.Transport
	}
	if byPair[[2]string{"frontend", "checkoutservice"}] != models.TransportSync {
		t.Fatalf("direct call must be sync, got %v", byPair)
	}
	if byPair[[2]string{"checkoutservice", "fraudservice"}] != models.TransportAsync {
		t.Fatalf("producer/consumer hop must be async, got %v", byPair)
	}
	if byPair[[2]string{"checkoutservice", "emailservice"}] != models.TransportAsync {
		t.Fatalf("FOLLOWS_FROM must be async, got %v", byPair)
	}
}

func TestFetchDependencyRelations(t *testing.T) {
	deps := `{"data":[
		{"parent":"frontend","child":"cartservice","callCount":10},
		{"parent":"cartservice","child":"cartservice","callCount":3},
		{"parent":"","child":"ghost","callCount":1}
	]}`
	server := jaegerServer(t, `{"data":[]}`, deps)
	client := NewTraceClient([]string{server.URL + "/api"}, time.Second)

	records, err := client.FetchDependencyRelations(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("FetchDependencyRelations: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("self and empty edges must be dropped, got %v", records)
	}
	rec := records[0]
	if rec.Caller != "frontend" || rec.Callee != "cartservice" || rec.Transport != models.TransportSync || rec.CallCount != 10 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestTraceClientTriesBasesInOrder(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	t.Cleanup(dead.Close)
	live := jaegerServer(t, `{"data":[]}`, `{"data":[]}`)

	client := NewTraceClient([]string{dead.URL + "/api", live.URL + "/api"}, time.Second)
	services, err := client.Services(context.Background())
	if err != nil {
		t.Fatalf("Services should fall through to the next base: %v", err)
	}
	if len(services) != 2 {
		t.Fatalf("unexpected services: %v", services)
	}
}

func TestGetJSONRejectsNonJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>login</html>"))
	}))
	t.Cleanup(server.Close)

	client := NewTraceClient([]string{server.URL}, time.Second)
	var out json.RawMessage
	if err := client.getJSON(context.Background(), server.URL+"/services", &out); err == nil {
		t.Fatal("non-JSON content must be rejected")
	}
}
