package models

import "fmt"

// RuleKind enumerates the closed set of success-rule variants.
type RuleKind string

const (
	RuleAnyOf RuleKind = "any_of"
	RuleAllOf RuleKind = "all_of"
	RuleKOfN  RuleKind = "k_of_n"
)

// SuccessRule is a tagged variant with exactly three cases. K is meaningful
// only for RuleKOfN. Items hold normalized service names.
type SuccessRule struct {
	Kind  RuleKind
	Items []string
	K     int
}

// Validate rejects malformed rules eagerly, before any trial runs.
func (r SuccessRule) Validate() error {
	switch r.Kind {
	case RuleAnyOf, RuleAllOf:
		if len(r.Items) == 0 {
			return fmt.Errorf("%s requires a non-empty item list", r.Kind)
		}
	case RuleKOfN:
		if len(r.Items) == 0 {
			return fmt.Errorf("k_of_n requires a non-empty item list")
		}
		if r.K < 1 || r.K > len(r.Items) {
			return fmt.Errorf("k_of_n requires 1 <= k <= %d, got %d", len(r.Items), r.K)
		}
	default:
		return fmt.Errorf("unknown rule kind %q", r.Kind)
	}
	return nil
}

// TargetSpec declares how one probed endpoint's success is judged against
// the dependency graph.
type TargetSpec struct {
	Endpoint     string
	Entry        string
	Rule         SuccessRule
	ExcludeAsync bool
}
