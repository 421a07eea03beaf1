package probe

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/miradorstack/mirador-chaos/internal/models"
	"github.com/miradorstack/mirador-chaos/internal/utils"
)

// Step is one HTTP request in an endpoint probe. A workflow's steps run in
// order and every one must succeed for the probe to count as OK.
type Step struct {
	Method string
	URL    string
	Body   string
}

// warmupPoll spaces warm-up attempts while the fleet is still coming up.
const warmupPoll = 2 * time.Second

// Prober drives the declared endpoint probes during a measurement window.
// Only aggregate per-endpoint counts are correctness-relevant; latencies
// feed the tracker purely for per-window p95 logging.
type Prober struct {
	logger      *slog.Logger
	client      *http.Client
	endpoints   map[string][]Step
	perWindow   int
	maxInFlight int
	latency     *utils.LatencyTracker
}

// NewProber constructs a Prober over the declared endpoints. timeout bounds
// each individual workflow, not the whole window.
func NewProber(logger *slog.Logger, endpoints map[string][]Step, timeout time.Duration, maxInFlight, perWindow int) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if maxInFlight < 1 {
		maxInFlight = 8
	}
	if perWindow < 1 {
		perWindow = 10
	}
	return &Prober{
		logger:      logger,
		client:      &http.Client{Timeout: timeout},
		endpoints:   endpoints,
		perWindow:   perWindow,
		maxInFlight: maxInFlight,
		latency:     utils.NewLatencyTracker(0),
	}
}

// Endpoints returns the declared endpoint names, sorted.
func (p *Prober) Endpoints() []string {
	names := make([]string, 0, len(p.endpoints))
	for name := range p.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Measure runs the per-window probe budget against every declared endpoint,
// bounded by d and by the in-flight cap, and returns the aggregate counts. A
// probe cut off by the window deadline still counts as attempted.
func (p *Prober) Measure(ctx context.Context, d time.Duration) map[string]models.ProbeCount {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	p.latency.Reset()
	counts := make(map[string]models.ProbeCount, len(p.endpoints))
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, p.maxInFlight)
	)

	for name, steps := range p.endpoints {
		for i := 0; i < p.perWindow; i++ {
			if ctx.Err() != nil {
				break
			}
			wg.Add(1)
			sem <- struct{}{}
			go func(name string, steps []Step) {
				defer wg.Done()
				defer func() { <-sem }()
				ok := p.runWorkflow(ctx, name, steps)
				mu.Lock()
				count := counts[name]
				count.Total++
				if ok {
					count.OK++
				}
				counts[name] = count
				mu.Unlock()
			}(name, steps)
		}
	}
	wg.Wait()

	for _, name := range p.Endpoints() {
		count := counts[name]
		p.logger.Debug("endpoint measured",
			slog.String("endpoint", name),
			slog.Int("total", count.Total),
			slog.Int("ok", count.OK),
			slog.Duration("p95", p.latency.Percentile(95)))
	}
	return counts
}

// Warmup blocks until every declared endpoint answers one probe, or the
// context expires. Run before the first window so measurements never start
// against a fleet that is still booting.
func (p *Prober) Warmup(ctx context.Context) error {
	pending := make(map[string][]Step, len(p.endpoints))
	for name, steps := range p.endpoints {
		pending[name] = steps
	}
	for len(pending) > 0 {
		for name, steps := range pending {
			if p.runWorkflow(ctx, name, steps) {
				delete(pending, name)
			}
		}
		if len(pending) == 0 {
			break
		}
		select {
		case <-ctx.Done():
			names := make([]string, 0, len(pending))
			for name := range pending {
				names = append(names, name)
			}
			sort.Strings(names)
			return fmt.Errorf("endpoints never answered during warm-up: %s", strings.Join(names, ", "))
		case <-time.After(warmupPoll):
		}
	}
	return nil
}

// runWorkflow executes one probe: every step must complete without a
// transport error and with a status below 500.
func (p *Prober) runWorkflow(ctx context.Context, name string, steps []Step) bool {
	start := time.Now()
	for _, step := range steps {
		if !p.runStep(ctx, step) {
			return false
		}
	}
	p.latency.Observe(time.Since(start))
	return true
}

func (p *Prober) runStep(ctx context.Context, step Step) bool {
	method := step.Method
	if method == "" {
		method = http.MethodGet
	}
	var body *strings.Reader
	if step.Body != "" {
		body = strings.NewReader(step.Body)
	} else {
		body = strings.NewReader("")
	}
	req, err := http.NewRequestWithContext(ctx, method, step.URL, body)
	if err != nil {
		return false
	}
	if step.Body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}
