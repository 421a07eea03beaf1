package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/miradorstack/mirador-chaos/internal/models"
)

// RelationRecord is one observed caller-to-callee relationship, classified
// by transport. Names are raw as reported by the trace backend; the graph
// builder normalizes them.
type RelationRecord struct {
	Caller    string
	Callee    string
	Transport models.Transport
	CallCount int
}

// TraceClient queries a Jaeger-compatible trace backend for dependency
// relationships, either from raw spans or from the precomputed dependency
// summary fallback.
type TraceClient struct {
	bases      []string
	httpClient *http.Client
}

// NewTraceClient constructs a client trying each base URL in order until one
// answers with JSON.
func NewTraceClient(bases []string, timeout time.Duration) *TraceClient {
	cleaned := make([]string, 0, len(bases))
	for _, b := range bases {
		if b = strings.TrimRight(strings.TrimSpace(b), "/"); b != "" {
			cleaned = append(cleaned, b)
		}
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &TraceClient{
		bases:      cleaned,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Services lists the service names the backend has indexed.
func (c *TraceClient) Services(ctx context.Context) ([]string, error) {
	var lastErr error
	for _, base := range c.bases {
		var payload struct {
			Data []string `json:"data"`
		}
		if err := c.getJSON(ctx, base+"/services", &payload); err != nil {
			lastErr = err
			continue
		}
		if len(payload.Data) > 0 {
			return uniqueSorted(payload.Data), nil
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("trace backend services query failed: %w", lastErr)
	}
	return nil, nil
}

type jaegerSpan struct {
	SpanID     string `json:"spanID"`
	ProcessID  string `json:"processID"`
	References []struct {
		RefType string `json:"refType"`
		SpanID  string `json:"spanID"`
	} `json:"references"`
	Tags []struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	} `json:"tags"`
}

type jaegerTrace struct {
	Spans     []jaegerSpan `json:"spans"`
	Processes map[string]struct {
		ServiceName string `json:"serviceName"`
	} `json:"processes"`
}

// FetchTraceRelations scrapes recent traces per service and derives
// caller/callee records. A hop between producer and consumer span kinds, or
// a FOLLOWS_FROM reference, is classified async; a direct parent/child call
// is sync.
func (c *TraceClient) FetchTraceRelations(ctx context.Context, services []string, lookback time.Duration, limit int) ([]RelationRecord, error) {
	type key struct {
		caller, callee string
		transport      models.Transport
	}
	counts := make(map[key]int)

	endMS := time.Now().UnixMilli()
	lookbackMin := int(lookback.Minutes())
	if lookbackMin < 1 {
		lookbackMin = 1
	}

	for _, svc := range services {
		query := fmt.Sprintf("service=%s&lookback=%dm&end=%d&limit=%d",
			url.QueryEscape(svc), lookbackMin, endMS, limit)
		for _, base := range c.bases {
			var payload struct {
				Data []jaegerTrace `json:"data"`
			}
			if err := c.getJSON(ctx, base+"/traces?"+query, &payload); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				continue
			}
			for _, trace := range payload.Data {
				for _, rec := range relationsFromTrace(trace) {
					counts[key{rec.Caller, rec.Callee, rec.Transport}] += rec.CallCount
				}
			}
			break // next service after the first base that answered
		}
	}

	records := make([]RelationRecord, 0, len(counts))
	for k, n := range counts {
		records = append(records, RelationRecord{Caller: k.caller, Callee: k.callee, Transport: k.transport, CallCount: n})
	}
	return records, nil
}

func relationsFromTrace(trace jaegerTrace) []RelationRecord {
	type spanInfo struct {
		service string
		kind    string
	}
	spans := make(map[string]spanInfo, len(trace.Spans))
	for _, span := range trace.Spans {
		info := spanInfo{kind: spanKind(span)}
		if proc, ok := trace.Processes[span.ProcessID]; ok {
			info.service = proc.ServiceName
		}
		spans[span.SpanID] = info
	}

	var records []RelationRecord
	for _, span := range trace.Spans {
		child, ok := spans[span.SpanID]
		if !ok || child.service == "" {
			continue
		}
		for _, ref := range span.References {
			if ref.RefType != "CHILD_OF" && ref.RefType != "FOLLOWS_FROM" {
				continue
			}
			parent, ok := spans[ref.SpanID]
			if !ok || parent.service == "" || parent.service == child.service {
				continue
			}
			transport := models.TransportSync
			if ref.RefType == "FOLLOWS_FROM" || parent.kind == "producer" || child.kind == "consumer" {
				transport = models.TransportAsync
			}
			records = append(records, RelationRecord{
				Caller:    parent.service,
				Callee:    child.service,
				Transport: transport,
				CallCount: 1,
			})
			break
		}
	}
	return records
}

func spanKind(span jaegerSpan) string {
	for _, tag := range span.Tags {
		if tag.Key == "span.kind" {
			if s, ok := tag.Value.(string); ok {
				return strings.ToLower(s)
			}
		}
	}
	return ""
}

// FetchDependencyRelations reads the backend's precomputed dependency
// summary. This is the discovery fallback; edges from it carry no producer/
// consumer detail, so everything is reported sync and only broker-hop
// collapsing can tag async edges.
func (c *TraceClient) FetchDependencyRelations(ctx context.Context, lookback time.Duration) ([]RelationRecord, error) {
	endMS := time.Now().UnixMilli()
	lookbackMS := lookback.Milliseconds()
	if lookbackMS < 1 {
		lookbackMS = time.Minute.Milliseconds()
	}

	var lastErr error
	for _, base := range c.bases {
		var payload struct {
			Data []struct {
				Parent    string `json:"parent"`
				Child     string `json:"child"`
				CallCount int    `json:"callCount"`
			} `json:"data"`
		}
		endpoint := fmt.Sprintf("%s/dependencies?endTs=%d&lookback=%d", base, endMS, lookbackMS)
		if err := c.getJSON(ctx, endpoint, &payload); err != nil {
			lastErr = err
			continue
		}
		records := make([]RelationRecord, 0, len(payload.Data))
		for _, row := range payload.Data {
			if row.Parent == "" || row.Child == "" || row.Parent == row.Child {
				continue
			}
			records = append(records, RelationRecord{
				Caller:    row.Parent,
				Callee:    row.Child,
				Transport: models.TransportSync,
				CallCount: row.CallCount,
			})
		}
		if len(records) > 0 {
			return records, nil
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("trace backend dependencies query failed: %w", lastErr)
	}
	return nil, nil
}

func (c *TraceClient) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("trace backend returned %s for %s", resp.Status, endpoint)
	}
	if !strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "application/json") {
		return fmt.Errorf("trace backend returned non-JSON content for %s", endpoint)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func uniqueSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
