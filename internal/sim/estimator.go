package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/miradorstack/mirador-chaos/internal/chaos"
	"github.com/miradorstack/mirador-chaos/internal/graph"
	"github.com/miradorstack/mirador-chaos/internal/models"
)

// Population is the kill population the estimator samples from: one entry
// per replica of every chaos-eligible service. An entry carries its graph
// node index, or -1 when the service never appears in the topology; killing
// such a replica cannot change reachability but still occupies a kill slot,
// exactly as it does in a live window.
type Population struct {
	nodes    []int
	replicas []int // per graph node, replicas present in the population
}

// BuildPopulation expands the eligible services into per-replica entries.
// Replica counts default to 1; keys are matched on normalized names.
func BuildPopulation(g *graph.Graph, services []models.Service, replicas map[string]int) *Population {
	pop := &Population{replicas: make([]int, len(g.Services))}
	for _, svc := range services {
		if !svc.Eligible {
			continue
		}
		count := replicas[svc.Name]
		if count < 1 {
			count = 1
		}
		node := -1
		if idx, ok := g.Index(svc.Name); ok {
			node = idx
			pop.replicas[idx] += count
		}
		for i := 0; i < count; i++ {
			pop.nodes = append(pop.nodes, node)
		}
	}
	return pop
}

// Size reports the number of replicas in the population.
func (p *Population) Size() int { return len(p.nodes) }

// Estimator approximates per-endpoint success probability under the chaos
// kill law by Monte Carlo. Trials are independent and sharded across a
// bounded worker pool; each worker owns its randomness and its scratch
// state, so no synchronization happens inside the trial loop.
type Estimator struct {
	logger  *slog.Logger
	g       *graph.Graph
	trials  int
	workers int
}

// NewEstimator constructs an Estimator over a prepared graph.
func NewEstimator(logger *slog.Logger, g *graph.Graph, trials, workers int) *Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	return &Estimator{logger: logger, g: g, trials: trials, workers: workers}
}

// tally accumulates per-worker success counts: one slot per target plus one
// for the uniform-choice mix.
type tally struct {
	perTarget []int64
	mix       int64
	trials    int64
}

// Estimate runs the Monte Carlo for one (mode, p) pair. The returned slice
// holds one estimate per declared endpoint plus a "mix" estimate where each
// trial judges a uniformly chosen endpoint. The kill draw mirrors the chaos
// executor's law exactly: same count, uniform without replacement.
func (e *Estimator) Estimate(ctx context.Context, mode models.Mode, p float64, specs []models.TargetSpec, pop *Population) ([]models.ModelEstimate, error) {
	if e.trials <= 0 {
		return nil, fmt.Errorf("trial count must be positive, got %d", e.trials)
	}
	if pop.Size() == 0 {
		return nil, fmt.Errorf("empty kill population: no eligible services")
	}
	targets, err := compileTargets(e.g, mode, specs)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no targets declared")
	}

	killCount := chaos.KillCount(pop.Size(), p)
	adj := e.g.Adjacency(mode)
	entries := uniqueEntries(targets)

	started := time.Now()
	shards := shardTrials(e.trials, e.workers)
	tallies := make([]tally, len(shards))
	var wg sync.WaitGroup
	for w, shard := range shards {
		wg.Add(1)
		go func(w, shard int) {
			defer wg.Done()
			// Each worker seeds from the clock plus its index so concurrent
			// workers never share a stream. Never seeded from a constant.
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(w)*0x9e3779b9))
			tallies[w] = e.runShard(ctx, rng, shard, killCount, adj, entries, targets, pop)
		}(w, shard)
	}
	wg.Wait()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var total tally
	total.perTarget = make([]int64, len(targets))
	for _, t := range tallies {
		for i, n := range t.perTarget {
			total.perTarget[i] += n
		}
		total.mix += t.mix
		total.trials += t.trials
	}

	estimates := make([]models.ModelEstimate, 0, len(targets)+1)
	for i, ct := range targets {
		estimates = append(estimates, newEstimate(ct.endpoint, mode, p, total.perTarget[i], total.trials))
	}
	estimates = append(estimates, newEstimate(models.MixEndpoint, mode, p, total.mix, total.trials))

	e.logger.Info("simulation finished",
		slog.String("mode", string(mode)),
		slog.Float64("p_fail", p),
		slog.Int64("trials", total.trials),
		slog.Duration("elapsed", time.Since(started)))
	return estimates, nil
}

// runShard executes one worker's share of the trials. The scratch slices are
// reused across trials; only the first killCount population slots need
// resampling each round.
func (e *Estimator) runShard(ctx context.Context, rng *rand.Rand, trials, killCount int, adj [][]int, entries []int, targets []compiledTarget, pop *Population) tally {
	t := tally{perTarget: make([]int64, len(targets))}
	nodes := append([]int(nil), pop.nodes...)
	dead := make([]int, len(e.g.Services))
	alive := make([]bool, len(e.g.Services))
	reach := make(map[int][]bool, len(entries))

	for trial := 0; trial < trials; trial++ {
		if trial%4096 == 0 && ctx.Err() != nil {
			return t
		}

		// Partial Fisher-Yates: the first killCount slots are a uniform draw
		// without replacement.
		for i := 0; i < killCount; i++ {
			j := i + rng.Intn(len(nodes)-i)
			nodes[i], nodes[j] = nodes[j], nodes[i]
		}
		for i := range alive {
			alive[i] = true
			dead[i] = 0
		}
		for _, node := range nodes[:killCount] {
			if node < 0 {
				continue
			}
			dead[node]++
			if dead[node] >= pop.replicas[node] {
				alive[node] = false
			}
		}

		for _, entry := range entries {
			reach[entry] = graph.Reachable(adj, entry, alive)
		}
		for i, ct := range targets {
			if ct.satisfied(reach[ct.entry]) {
				t.perTarget[i]++
			}
		}
		pick := targets[rng.Intn(len(targets))]
		if pick.satisfied(reach[pick.entry]) {
			t.mix++
		}
		t.trials++
	}
	return t
}

func newEstimate(endpoint string, mode models.Mode, p float64, successes, trials int64) models.ModelEstimate {
	rate := float64(successes) / float64(trials)
	return models.ModelEstimate{
		Endpoint: endpoint,
		Mode:     mode,
		PFail:    p,
		Success:  rate,
		StdDev:   math.Sqrt(rate * (1 - rate)),
		Samples:  int(trials),
	}
}

func uniqueEntries(targets []compiledTarget) []int {
	seen := make(map[int]struct{}, len(targets))
	var entries []int
	for _, ct := range targets {
		if _, ok := seen[ct.entry]; ok {
			continue
		}
		seen[ct.entry] = struct{}{}
		entries = append(entries, ct.entry)
	}
	return entries
}

func shardTrials(total, workers int) []int {
	if workers > total {
		workers = total
	}
	shards := make([]int, workers)
	base := total / workers
	extra := total % workers
	for i := range shards {
		shards[i] = base
		if i < extra {
			shards[i]++
		}
	}
	return shards
}
