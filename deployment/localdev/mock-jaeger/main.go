// mock-jaeger serves a minimal Jaeger query API with canned traces so the
// chaos engine can be exercised locally without a demo fleet.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"
)

type span struct {
	SpanID     string      `json:"spanID"`
	ProcessID  string      `json:"processID"`
	References []reference `json:"references,omitempty"`
	Tags       []tag       `json:"tags,omitempty"`
}

type reference struct {
	RefType string `json:"refType"`
	SpanID  string `json:"spanID"`
}

type tag struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type process struct {
	ServiceName string `json:"serviceName"`
}

type trace struct {
	Spans     []span             `json:"spans"`
	Processes map[string]process `json:"processes"`
}

type dependency struct {
	Parent    string `json:"parent"`
	Child     string `json:"child"`
	CallCount int    `json:"callCount"`
}

func main() {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/services", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"data": []string{"frontend", "checkoutservice", "cartservice", "paymentservice", "fraudservice"},
		})
	})

	mux.HandleFunc("/api/traces", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"data": []trace{
			{
				Spans: []span{
					{SpanID: "s1", ProcessID: "p1", Tags: []tag{{Key: "span.kind", Value: "server"}}},
					{SpanID: "s2", ProcessID: "p2", References: []reference{{RefType: "CHILD_OF", SpanID: "s1"}}},
					{SpanID: "s3", ProcessID: "p2", Tags: []tag{{Key: "span.kind", Value: "producer"}}},
					{SpanID: "s4", ProcessID: "p3", References: []reference{{RefType: "CHILD_OF", SpanID: "s3"}},
						Tags: []tag{{Key: "span.kind", Value: "consumer"}}},
				},
				Processes: map[string]process{
					"p1": {ServiceName: "frontend"},
					"p2": {ServiceName: "checkoutservice"},
					"p3": {ServiceName: "fraudservice"},
				},
			},
			{
				Spans: []span{
					{SpanID: "s5", ProcessID: "p1"},
					{SpanID: "s6", ProcessID: "p4", References: []reference{{RefType: "CHILD_OF", SpanID: "s5"}}},
					{SpanID: "s7", ProcessID: "p5", References: []reference{{RefType: "CHILD_OF", SpanID: "s6"}}},
				},
				Processes: map[string]process{
					"p1": {ServiceName: "frontend"},
					"p4": {ServiceName: "cartservice"},
					"p5": {ServiceName: "paymentservice"},
				},
			},
		}})
	})

	mux.HandleFunc("/api/dependencies", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"data": []dependency{
			{Parent: "frontend", Child: "checkoutservice", CallCount: 120},
			{Parent: "frontend", Child: "cartservice", CallCount: 340},
			{Parent: "cartservice", Child: "paymentservice", CallCount: 95},
		}})
	})

	logger := log.New(log.Writer(), "jaeger-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":16686",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :16686")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Printf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}
