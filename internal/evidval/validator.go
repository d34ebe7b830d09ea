// Package evidval applies a contract's validation rules and failure
// contract to assembled Evidence. Violations are recorded, not thrown:
// the result is data consumed by the scorer and the run manifest.
package evidval

import (
	"sisas/domain/contract"
	"sisas/domain/evidence"
	"sisas/domain/signal"
)

// minCompleteTextLen is the shortest required text field that does not
// count as incomplete_text.
const minCompleteTextLen = 20

// Validator evaluates Evidence against one contract. It is stateless and
// safe for concurrent use; validating the same Evidence twice yields an
// identical result.
type Validator struct {
	contract *contract.Contract
}

// New creates a validator bound to a contract.
func New(c *contract.Contract) *Validator {
	return &Validator{contract: c}
}

// Validate evaluates every rule, then the failure contract. A violated
// must_contain or threshold rule raises severity to at least ERROR; any
// matched abort condition forces CRITICAL and abort_triggered regardless
// of individual rule outcomes.
func (v *Validator) Validate(ev *evidence.Evidence) *evidence.ValidationResult {
	result := &evidence.ValidationResult{
		Passed:   true,
		Severity: evidence.SeverityNone,
	}

	for _, rule := range v.contract.ValidationRules {
		switch rule.Kind {
		case contract.RuleMustContain:
			if !v.checkContains(ev, rule) {
				result.ViolatedRules = append(result.ViolatedRules, rule.ID)
				result.Severity = result.Severity.AtLeast(evidence.SeverityError)
				result.Passed = false
			}
		case contract.RuleShouldContain:
			if !v.checkContains(ev, rule) {
				result.Advisories = append(result.Advisories, rule.ID)
				result.Severity = result.Severity.AtLeast(evidence.SeverityWarning)
			}
		case contract.RuleThreshold:
			if !v.checkThreshold(ev, rule) {
				result.ViolatedRules = append(result.ViolatedRules, rule.ID)
				result.Severity = result.Severity.AtLeast(evidence.SeverityError)
				result.Passed = false
			}
		}
	}

	for _, cond := range v.contract.Failure.AbortIf {
		if v.conditionMatches(ev, cond) {
			result.AbortConditions = append(result.AbortConditions, cond)
		}
	}
	if len(result.AbortConditions) > 0 {
		result.AbortTriggered = true
		result.Passed = false
		result.Severity = evidence.SeverityCritical
		result.EmitCode = v.contract.Failure.EmitCode
	}
	return result
}

// checkContains counts qualifying elements of a list field. With
// allowed_values declared, only listed elements count.
func (v *Validator) checkContains(ev *evidence.Evidence, rule contract.ValidationRule) bool {
	items, ok := ev.List(rule.Field)
	if !ok {
		// A scalar non-empty value counts as one element.
		if val, present := ev.Field(rule.Field); present && !evidence.IsEmptyValue(val) {
			items = []interface{}{val}
		} else {
			return rule.MinCount == 0
		}
	}

	allowed := make(map[string]bool, len(rule.AllowedValues))
	for _, a := range rule.AllowedValues {
		allowed[a] = true
	}

	count := 0
	for _, item := range items {
		if evidence.IsEmptyValue(item) {
			continue
		}
		if len(allowed) > 0 {
			if s, ok := item.(string); !ok || !allowed[s] {
				continue
			}
		}
		count++
	}
	minCount := rule.MinCount
	if minCount == 0 {
		minCount = 1
	}
	return count >= minCount
}

// checkThreshold requires the field's mean to reach minimum_mean. Scalar
// numerics are their own mean.
func (v *Validator) checkThreshold(ev *evidence.Evidence, rule contract.ValidationRule) bool {
	if n, ok := ev.Number(rule.Field); ok {
		return n >= rule.MinimumMean
	}
	items, ok := ev.List(rule.Field)
	if !ok || len(items) == 0 {
		return false
	}
	sum, count := 0.0, 0
	for _, item := range items {
		if n, ok := toFloat(item); ok {
			sum += n
			count++
		}
	}
	if count == 0 {
		return false
	}
	return sum/float64(count) >= rule.MinimumMean
}

func (v *Validator) conditionMatches(ev *evidence.Evidence, cond contract.AbortCondition) bool {
	switch cond {
	case contract.AbortMissingRequiredElement:
		for _, field := range v.contract.Output.Required {
			val, ok := ev.Field(field)
			if !ok || evidence.IsEmptyValue(val) {
				return true
			}
		}
		return false
	case contract.AbortIncompleteText:
		for _, field := range v.contract.Output.Required {
			if !isTextProperty(v.contract.Output.Properties[field]) {
				continue
			}
			text, ok := ev.Text(field)
			if ok && len(text) > 0 && len(text) < minCompleteTextLen {
				return true
			}
		}
		return false
	case contract.AbortNoMethodOutput:
		if len(ev.Trace) == 0 {
			return true
		}
		for _, tr := range ev.Trace {
			if !tr.Missing {
				return false
			}
		}
		return true
	case contract.AbortMissingProvenance:
		return ev.Provenance.SisasSource == signal.SourceNone || ev.Provenance.SisasSource == ""
	}
	return false
}

func isTextProperty(p contract.PropertySpec) bool {
	return p.Type == "string" || p.Type == "text"
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
