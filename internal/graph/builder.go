package graph

import (
	"sort"

	"github.com/miradorstack/mirador-chaos/internal/models"
	"github.com/miradorstack/mirador-chaos/internal/repo"
)

// Builder converts observed caller/callee relationships into a dependency
// graph, collapsing broker hops so the topology models application-service
// causality only.
type Builder struct {
	brokers     map[string]struct{}
	entrypoints []string
}

// NewBuilder constructs a Builder. Broker and entrypoint names are
// normalized before matching.
func NewBuilder(brokers, entrypoints []string) *Builder {
	brokerSet := make(map[string]struct{}, len(brokers))
	for _, b := range brokers {
		brokerSet[models.NormalizeService(b)] = struct{}{}
	}
	normalized := make([]string, 0, len(entrypoints))
	for _, e := range entrypoints {
		normalized = append(normalized, models.NormalizeService(e))
	}
	return &Builder{brokers: brokerSet, entrypoints: normalized}
}

type edge struct {
	caller, callee string
}

// Build unions all observed relationships into one topology and derives the
// async subset. An observed A -> broker -> B chain becomes a single A -> B
// edge tagged async; broker nodes never appear in the graph.
func (b *Builder) Build(records []repo.RelationRecord) (*Graph, error) {
	sync := make(map[edge]struct{})
	async := make(map[edge]struct{})
	intoBroker := make(map[string][]string)  // broker -> producers
	fromBroker := make(map[string][]string)  // broker -> consumers

	for _, rec := range records {
		caller := models.NormalizeService(rec.Caller)
		callee := models.NormalizeService(rec.Callee)
		if caller == "" || callee == "" || caller == callee {
			continue
		}
		callerBroker := b.isBroker(caller)
		calleeBroker := b.isBroker(callee)
		switch {
		case callerBroker && calleeBroker:
			continue
		case calleeBroker:
			intoBroker[callee] = append(intoBroker[callee], caller)
		case callerBroker:
			fromBroker[caller] = append(fromBroker[caller], callee)
		case rec.Transport == models.TransportAsync:
			async[edge{caller, callee}] = struct{}{}
		default:
			sync[edge{caller, callee}] = struct{}{}
		}
	}

	// Collapse each observed broker hop into a direct async edge.
	for broker, producers := range intoBroker {
		for _, producer := range producers {
			for _, consumer := range fromBroker[broker] {
				if producer != consumer {
					async[edge{producer, consumer}] = struct{}{}
				}
			}
		}
	}

	// An edge observed both ways keeps the async tag: the broker hop is the
	// stronger signal about its transport.
	for e := range async {
		delete(sync, e)
	}

	nodeSet := make(map[string]struct{})
	for e := range sync {
		nodeSet[e.caller] = struct{}{}
		nodeSet[e.callee] = struct{}{}
	}
	for e := range async {
		nodeSet[e.caller] = struct{}{}
		nodeSet[e.callee] = struct{}{}
	}

	services := make([]string, 0, len(nodeSet))
	for name := range nodeSet {
		services = append(services, name)
	}
	sort.Strings(services)
	index := make(map[string]int, len(services))
	for i, name := range services {
		index[name] = i
	}

	g := &Graph{Services: services, Source: SourceTraces}
	appendEdges := func(set map[edge]struct{}, markAsync bool) {
		pairs := make([][2]int, 0, len(set))
		for e := range set {
			pairs = append(pairs, [2]int{index[e.caller], index[e.callee]})
		}
		sort.Slice(pairs, func(i, j int) bool {
			if pairs[i][0] != pairs[j][0] {
				return pairs[i][0] < pairs[j][0]
			}
			return pairs[i][1] < pairs[j][1]
		})
		g.Edges = append(g.Edges, pairs...)
		if markAsync {
			g.AsyncEdges = append(g.AsyncEdges, pairs...)
		}
	}
	appendEdges(sync, false)
	appendEdges(async, true)

	for _, entry := range b.entrypoints {
		if idx, ok := index[entry]; ok {
			g.Entrypoints = append(g.Entrypoints, idx)
		}
	}

	if err := g.Prepare(); err != nil {
		return nil, err
	}
	return g, nil
}

func (b *Builder) isBroker(name string) bool {
	_, ok := b.brokers[name]
	return ok
}
