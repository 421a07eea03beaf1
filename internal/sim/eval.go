package sim

import (
	"fmt"

	"github.com/miradorstack/mirador-chaos/internal/graph"
	"github.com/miradorstack/mirador-chaos/internal/models"
)

// compiledTarget is a TargetSpec resolved against graph indices for one
// evaluation mode. Exclusion of async-only items happens here, once, so the
// per-trial check is a plain count over reachability bits.
type compiledTarget struct {
	endpoint  string
	entry     int
	kind      models.RuleKind
	items     []int
	k         int
	trivially bool
}

// compileTargets resolves every spec against the graph. Unknown entry or
// item names are hard errors: a silently missing node would make all_of
// unsatisfiable and any_of misleading. exclude_async applies only under
// non-blocking evaluation; items with no structural sync path from the entry
// are filtered out of the rule, and k_of_n drops k by the filtered count. A
// rule left with no items is satisfied outright.
func compileTargets(g *graph.Graph, mode models.Mode, specs []models.TargetSpec) ([]compiledTarget, error) {
	targets := make([]compiledTarget, 0, len(specs))
	for _, spec := range specs {
		if err := spec.Rule.Validate(); err != nil {
			return nil, fmt.Errorf("target %q: %w", spec.Endpoint, err)
		}
		entry, ok := g.Index(spec.Entry)
		if !ok {
			return nil, fmt.Errorf("target %q: entry service %q is not in the graph", spec.Endpoint, spec.Entry)
		}

		ct := compiledTarget{
			endpoint: spec.Endpoint,
			entry:    entry,
			kind:     spec.Rule.Kind,
			k:        spec.Rule.K,
		}

		var structural []bool
		if spec.ExcludeAsync && mode == models.ModeNonBlocking {
			structural = graph.Reachable(g.Adjacency(models.ModeNonBlocking), entry, nil)
		}

		excluded := 0
		for _, item := range spec.Rule.Items {
			idx, ok := g.Index(item)
			if !ok {
				return nil, fmt.Errorf("target %q: rule item %q is not in the graph", spec.Endpoint, item)
			}
			if structural != nil && !structural[idx] {
				excluded++
				continue
			}
			ct.items = append(ct.items, idx)
		}

		switch ct.kind {
		case models.RuleAnyOf:
			// Excluded items are removed, not counted as hits; the rule still
			// needs one of the remaining items unless nothing remains.
			ct.trivially = len(ct.items) == 0
		case models.RuleAllOf:
			ct.trivially = len(ct.items) == 0
		case models.RuleKOfN:
			ct.k -= excluded
			if ct.k <= 0 {
				ct.trivially = true
			} else if ct.k > len(ct.items) {
				ct.k = len(ct.items)
			}
		}

		targets = append(targets, ct)
	}
	return targets, nil
}

// satisfied evaluates the compiled rule against a reachability set. reach
// already folds liveness in: a dead node is never reachable, a dead entry
// reaches nothing. Item order is irrelevant.
func (ct compiledTarget) satisfied(reach []bool) bool {
	if ct.trivially {
		return true
	}
	hit := 0
	for _, idx := range ct.items {
		if reach[idx] {
			hit++
		}
	}
	switch ct.kind {
	case models.RuleAnyOf:
		return hit >= 1
	case models.RuleAllOf:
		return hit == len(ct.items)
	default:
		return hit >= ct.k
	}
}
