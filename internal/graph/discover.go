package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-chaos/internal/repo"
)

// TraceSource is the trace-backend behaviour discovery depends on.
type TraceSource interface {
	Services(ctx context.Context) ([]string, error)
	FetchTraceRelations(ctx context.Context, services []string, lookback time.Duration, limit int) ([]repo.RelationRecord, error)
	FetchDependencyRelations(ctx context.Context, lookback time.Duration) ([]repo.RelationRecord, error)
}

// defaultServices seeds trace queries when the backend's service index is
// still warming up.
var defaultServices = []string{
	"frontend", "checkoutservice", "cartservice", "productcatalogservice",
	"paymentservice", "shippingservice", "currencyservice", "emailservice",
	"recommendationservice", "adservice", "fraudservice", "accountingservice",
}

// Discoverer drives dependency discovery: trace scraping with a bounded
// retry while the backend indexes, then an explicit fallback to the
// precomputed dependency summary unless strict mode forbids it.
type Discoverer struct {
	logger   *slog.Logger
	source   TraceSource
	builder  *Builder
	lookback time.Duration
	limit    int
	timeout  time.Duration
	strict   bool
	poll     time.Duration
}

// NewDiscoverer constructs a Discoverer. strict disables the dependency-
// summary fallback entirely: zero trace-derived edges become a hard error.
func NewDiscoverer(logger *slog.Logger, source TraceSource, builder *Builder, lookback time.Duration, limit int, timeout time.Duration, strict bool) *Discoverer {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Discoverer{
		logger:   logger,
		source:   source,
		builder:  builder,
		lookback: lookback,
		limit:    limit,
		timeout:  timeout,
		strict:   strict,
		poll:     5 * time.Second,
	}
}

// Discover builds the dependency graph, preferring trace-derived edges. The
// graph records its source so a fallback-derived topology is always
// distinguishable from trace-derived data.
func (d *Discoverer) Discover(ctx context.Context) (*Graph, error) {
	deadline := time.Now().Add(d.timeout)
	widened := false

	for {
		records, err := d.scrape(ctx, d.currentLookback(widened))
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			return d.builder.Build(records)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		// Widen the search window once when half the budget is spent and the
		// backend still reports nothing.
		if !widened && remaining < d.timeout/2 {
			widened = true
			d.logger.Info("widening trace lookback window", slog.Duration("lookback", d.currentLookback(true)))
			continue
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.poll):
		}
	}

	if d.strict {
		return nil, fmt.Errorf("trace scraping found zero dependency edges and strict mode disables the dependency-summary fallback")
	}

	d.logger.Warn("trace scraping found zero edges; falling back to the dependency summary endpoint")
	records, err := d.source.FetchDependencyRelations(ctx, d.currentLookback(true))
	if err != nil {
		return nil, fmt.Errorf("dependency summary fallback: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no dependency edges found from traces or the dependency summary")
	}
	g, err := d.builder.Build(records)
	if err != nil {
		return nil, err
	}
	g.Source = SourceDependencies
	return g, nil
}

func (d *Discoverer) scrape(ctx context.Context, lookback time.Duration) ([]repo.RelationRecord, error) {
	services, err := d.source.Services(ctx)
	if err != nil {
		d.logger.Warn("service index query failed; probing default service names", slog.Any("error", err))
	}
	if len(services) == 0 {
		services = defaultServices
	}
	records, err := d.source.FetchTraceRelations(ctx, services, lookback, d.limit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		d.logger.Warn("trace scrape attempt failed", slog.Any("error", err))
		return nil, nil
	}
	return records, nil
}

func (d *Discoverer) currentLookback(widened bool) time.Duration {
	if widened && d.lookback < time.Hour {
		return time.Hour
	}
	return d.lookback
}
