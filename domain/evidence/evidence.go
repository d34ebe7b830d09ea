// Package evidence holds the per-question artifacts produced by the
// assembly, validation, and scoring stages. All records are created once
// and flow forward; nothing here mutates after construction.
package evidence

import (
	"sisas/domain/core"
	"sisas/domain/signal"
)

// Sub-score field names expected in assembled Evidence.
const (
	FieldElements   = "elements_score"
	FieldSimilarity = "similarity_score"
	FieldPatterns   = "patterns_score"
)

// SourceTrace records one raw method output's contribution to assembly,
// including failed and missing sources.
type SourceTrace struct {
	Provides   string  `json:"provides"`
	Method     string  `json:"method"`
	Confidence float64 `json:"confidence"`
	Missing    bool    `json:"missing,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Evidence is the merged, provenance-tagged result of running a
// contract's assembly rules over raw method outputs.
type Evidence struct {
	QuestionID  core.QuestionID        `json:"question_id"`
	Fields      map[string]interface{} `json:"fields"`
	Provenance  signal.Provenance      `json:"signal_provenance"`
	Trace       []SourceTrace          `json:"trace"`
	AssembledAt core.Timestamp         `json:"assembled_at"`
}

// Field returns a field value and whether it is present.
func (e *Evidence) Field(name string) (interface{}, bool) {
	v, ok := e.Fields[name]
	return v, ok
}

// Number returns a numeric field. Missing or non-numeric fields report
// ok=false rather than zero so callers can distinguish absence from 0.
func (e *Evidence) Number(name string) (float64, bool) {
	v, ok := e.Fields[name]
	if !ok {
		return 0, false
	}
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

// List returns a list-valued field normalized to []interface{}.
func (e *Evidence) List(name string) ([]interface{}, bool) {
	v, ok := e.Fields[name]
	if !ok {
		return nil, false
	}
	switch l := v.(type) {
	case []interface{}:
		return l, true
	case []string:
		out := make([]interface{}, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

// Text returns a string field.
func (e *Evidence) Text(name string) (string, bool) {
	v, ok := e.Fields[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// IsEmptyValue reports whether a value counts as empty for
// first_non_empty assembly and must_contain counting.
func IsEmptyValue(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []interface{}:
		return len(x) == 0
	case []string:
		return len(x) == 0
	case map[string]interface{}:
		return len(x) == 0
	}
	return false
}

// SubScores extracts the Elements/Similarity/Patterns sub-scores used by
// every scoring modality. Missing sub-scores read as zero; the validator
// is responsible for catching genuinely absent required fields first.
func (e *Evidence) SubScores() (elements, similarity, patterns float64) {
	elements, _ = e.Number(FieldElements)
	similarity, _ = e.Number(FieldSimilarity)
	patterns, _ = e.Number(FieldPatterns)
	return elements, similarity, patterns
}
