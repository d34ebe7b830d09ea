package evidence

import "sisas/domain/contract"

// Severity ranks validation outcomes.
type Severity string

const (
	SeverityNone     Severity = "NONE"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

var severityRank = map[Severity]int{
	SeverityNone:     0,
	SeverityWarning:  1,
	SeverityError:    2,
	SeverityCritical: 3,
}

// AtLeast raises s to floor if floor outranks it.
func (s Severity) AtLeast(floor Severity) Severity {
	if severityRank[floor] > severityRank[s] {
		return floor
	}
	return s
}

// ValidationResult is the recorded outcome of applying a contract's
// validation rules and failure contract to Evidence. Violations are data,
// not errors; only the engine decides what to do with them.
type ValidationResult struct {
	Passed          bool                      `json:"passed"`
	ViolatedRules   []string                  `json:"violated_rules"`
	Advisories      []string                  `json:"advisories,omitempty"`
	Severity        Severity                  `json:"severity"`
	AbortTriggered  bool                      `json:"abort_triggered"`
	AbortConditions []contract.AbortCondition `json:"abort_conditions,omitempty"`
	EmitCode        string                    `json:"emit_code,omitempty"`
}
