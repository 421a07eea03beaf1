package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/miradorstack/mirador-chaos/internal/models"
)

// rawTargetSpec mirrors one entry of the targets JSON file. The three rule
// fields are mutually exclusive; declaring zero or more than one is fatal.
type rawTargetSpec struct {
	Entry        string    `json:"entry"`
	AnyOf        []string  `json:"any_of"`
	AllOf        []string  `json:"all_of"`
	KOfN         *rawKOfN  `json:"k_of_n"`
	ExcludeAsync bool      `json:"exclude_async"`
}

type rawKOfN struct {
	K     int      `json:"k"`
	Items []string `json:"items"`
}

// LoadTargets reads per-endpoint target specifications from a JSON file and
// validates them eagerly. Service names are normalized to graph naming.
func LoadTargets(path string) (map[string]models.TargetSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}

	var raw map[string]rawTargetSpec
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse targets file %s: %w", path, err)
	}

	specs := make(map[string]models.TargetSpec, len(raw))
	for endpoint, entry := range raw {
		spec, err := entry.toSpec(endpoint)
		if err != nil {
			return nil, err
		}
		specs[endpoint] = spec
	}
	return specs, nil
}

func (r rawTargetSpec) toSpec(endpoint string) (models.TargetSpec, error) {
	rules := 0
	var rule models.SuccessRule
	if r.AnyOf != nil {
		rules++
		rule = models.SuccessRule{Kind: models.RuleAnyOf, Items: normalizeAll(r.AnyOf)}
	}
	if r.AllOf != nil {
		rules++
		rule = models.SuccessRule{Kind: models.RuleAllOf, Items: normalizeAll(r.AllOf)}
	}
	if r.KOfN != nil {
		rules++
		rule = models.SuccessRule{Kind: models.RuleKOfN, K: r.KOfN.K, Items: normalizeAll(r.KOfN.Items)}
	}
	if rules != 1 {
		return models.TargetSpec{}, fmt.Errorf("endpoint %q must declare exactly one of any_of/all_of/k_of_n, got %d", endpoint, rules)
	}
	if err := rule.Validate(); err != nil {
		return models.TargetSpec{}, fmt.Errorf("endpoint %q: %w", endpoint, err)
	}
	return models.TargetSpec{
		Endpoint:     endpoint,
		Entry:        models.NormalizeService(r.Entry),
		Rule:         rule,
		ExcludeAsync: r.ExcludeAsync,
	}, nil
}

func normalizeAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, models.NormalizeService(item))
	}
	return out
}

// SortedSpecs returns the target specs in stable endpoint order, for
// deterministic artifact layout and uniform per-trial selection.
func SortedSpecs(specs map[string]models.TargetSpec) []models.TargetSpec {
	out := make([]models.TargetSpec, 0, len(specs))
	for _, spec := range specs {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}
