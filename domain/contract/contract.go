package contract

import (
	"fmt"
	"sort"

	"sisas/domain/core"
)

// MethodRef names an extraction method by class and method name.
// Refs are resolved against a method catalog at load time, never at
// execution time.
type MethodRef struct {
	Class  string `json:"class_name"`
	Method string `json:"method_name"`
}

// Key returns the catalog lookup key for the ref
func (r MethodRef) Key() string {
	return r.Class + "." + r.Method
}

// MethodBinding declares one extraction method call and the provides key
// under which its raw output is addressable in assembly rules.
type MethodBinding struct {
	Ref      MethodRef `json:"ref"`
	Priority int       `json:"priority"`
	Provides string    `json:"provides"`
	Role     string    `json:"role"`
}

// Strategy is the merge strategy of an assembly rule.
type Strategy string

const (
	StrategyConcat        Strategy = "concat"
	StrategyWeightedMean  Strategy = "weighted_mean"
	StrategyMax           Strategy = "max"
	StrategyMin           Strategy = "min"
	StrategyFirstNonEmpty Strategy = "first_non_empty"
)

// IsValid reports whether the strategy is one of the closed set.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyConcat, StrategyWeightedMean, StrategyMax, StrategyMin, StrategyFirstNonEmpty:
		return true
	}
	return false
}

// AssemblyRule merges the named sources into one Evidence field.
type AssemblyRule struct {
	Sources  []string           `json:"sources"`
	Strategy Strategy           `json:"strategy"`
	Target   string             `json:"target"`
	Weights  map[string]float64 `json:"weights,omitempty"` // optional per-source overrides
}

// RuleKind is the kind of a validation rule.
type RuleKind string

const (
	RuleMustContain   RuleKind = "must_contain"
	RuleShouldContain RuleKind = "should_contain" // advisory, never fails
	RuleThreshold     RuleKind = "threshold"
)

// ValidationRule is one declarative check against assembled Evidence.
type ValidationRule struct {
	ID            string   `json:"id"`
	Kind          RuleKind `json:"kind"`
	Field         string   `json:"field"`
	MinCount      int      `json:"min_count,omitempty"`
	AllowedValues []string `json:"allowed_values,omitempty"`
	MinimumMean   float64  `json:"minimum_mean,omitempty"`
}

// AbortCondition names a failure-contract condition. The set is closed;
// unknown names are rejected at load.
type AbortCondition string

const (
	AbortMissingRequiredElement AbortCondition = "missing_required_element"
	AbortIncompleteText         AbortCondition = "incomplete_text"
	AbortNoMethodOutput         AbortCondition = "no_method_output"
	AbortMissingProvenance      AbortCondition = "missing_provenance"
)

// IsValid reports whether the condition is a known one.
func (c AbortCondition) IsValid() bool {
	switch c {
	case AbortMissingRequiredElement, AbortIncompleteText, AbortNoMethodOutput, AbortMissingProvenance:
		return true
	}
	return false
}

// FailureContract declares when evidence is invalid regardless of
// individual rule outcomes.
type FailureContract struct {
	AbortIf  []AbortCondition `json:"abort_if"`
	EmitCode string           `json:"emit_code"`
}

// NAPolicy controls how a failed (non-aborted) score is adjusted.
type NAPolicy struct {
	Mode    string  `json:"mode"`    // "keep" or "penalize"
	Penalty float64 `json:"penalty"` // subtracted on the [0,3] scale when mode is "penalize"
}

// PropertySpec describes one output field.
type PropertySpec struct {
	Type string `json:"type"`
}

// OutputSchema is the required shape of assembled Evidence.
type OutputSchema struct {
	Required   []string                `json:"required"`
	Properties map[string]PropertySpec `json:"properties"`
}

// Identity ties a contract to its place in the rollup tree.
type Identity struct {
	QuestionID    core.QuestionID   `json:"question_id"`
	DimensionID   core.DimensionID  `json:"dimension_id"`
	AreaID        core.AreaID       `json:"policy_area_id"`
	ClusterID     core.ClusterID    `json:"cluster_id"`
	SchemaVersion SchemaVersion     `json:"schema_version"`
	ContentHash   core.ContractHash `json:"content_hash"`
}

// Contract is the normalized, version-free representation every
// downstream stage operates on. Immutable once loaded.
type Contract struct {
	Identity        Identity
	ExecutorBinding string
	Bindings        []MethodBinding // sorted by priority, ascending
	AssemblyRules   []AssemblyRule
	ValidationRules []ValidationRule
	NAPolicy        NAPolicy
	Failure         FailureContract
	Output          OutputSchema
	Modality        string // contract-embedded default, scoring pack may override
	DefaultWeights  map[string]float64
}

// Binding returns the binding for a provides key.
func (c *Contract) Binding(provides string) (MethodBinding, bool) {
	for _, b := range c.Bindings {
		if b.Provides == provides {
			return b, true
		}
	}
	return MethodBinding{}, false
}

// SortBindings orders bindings by priority, ties broken by provides key
// so execution order is deterministic.
func (c *Contract) SortBindings() {
	sort.SliceStable(c.Bindings, func(i, j int) bool {
		if c.Bindings[i].Priority != c.Bindings[j].Priority {
			return c.Bindings[i].Priority < c.Bindings[j].Priority
		}
		return c.Bindings[i].Provides < c.Bindings[j].Provides
	})
}

// Validate performs structural checks that do not need external state:
// strategy and condition membership, duplicate provides keys, and the
// single-pass constraint (no assembly rule may source another rule's
// target).
func (c *Contract) Validate() error {
	if c.Identity.QuestionID == "" {
		return core.NewValidationError("identity.question_id", "cannot be empty")
	}
	if c.Identity.ContentHash == "" {
		return core.NewValidationError("identity.content_hash", "cannot be empty")
	}
	if len(c.Bindings) == 0 {
		return core.NewValidationError("method_binding", "at least one binding required")
	}

	seen := make(map[string]bool, len(c.Bindings))
	for _, b := range c.Bindings {
		if b.Provides == "" {
			return core.NewValidationError("method_binding.provides", "cannot be empty")
		}
		if seen[b.Provides] {
			return core.NewValidationError("method_binding.provides",
				fmt.Sprintf("duplicate provides key %q", b.Provides))
		}
		seen[b.Provides] = true
	}

	targets := make(map[string]bool, len(c.AssemblyRules))
	for _, r := range c.AssemblyRules {
		if !r.Strategy.IsValid() {
			return core.NewValidationError("evidence_assembly.strategy",
				fmt.Sprintf("unknown strategy %q", r.Strategy))
		}
		if r.Target == "" {
			return core.NewValidationError("evidence_assembly.target", "cannot be empty")
		}
		if targets[r.Target] {
			return core.NewValidationError("evidence_assembly.target",
				fmt.Sprintf("duplicate target %q", r.Target))
		}
		targets[r.Target] = true
	}
	for _, r := range c.AssemblyRules {
		for _, src := range r.Sources {
			if targets[src] {
				return fmt.Errorf("%w: rule %q sources %q", core.ErrRuleDependency, r.Target, src)
			}
		}
	}

	for _, vr := range c.ValidationRules {
		switch vr.Kind {
		case RuleMustContain, RuleShouldContain, RuleThreshold:
		default:
			return core.NewValidationError("validation_rules.kind",
				fmt.Sprintf("unknown rule kind %q", vr.Kind))
		}
	}

	for _, cond := range c.Failure.AbortIf {
		if !cond.IsValid() {
			return fmt.Errorf("%w: %q", core.ErrUnknownCondition, cond)
		}
	}
	return nil
}
