// Package testkit provides fixture builders and a scripted method
// executor for exercising the pipeline without real extraction methods.
package testkit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sisas/domain/contract"
	"sisas/domain/core"
	"sisas/domain/signal"
	"sisas/ports"
)

// ContractDoc describes one contract fixture. Zero values produce a
// well-formed v3 contract with the standard three-signal method set.
type ContractDoc struct {
	QuestionID  string
	DimensionID string
	AreaID      string
	ClusterID   string

	Modality  string
	Legacy    bool // emit the flat method_inputs layout
	AbortIf   []string
	EmitCode  string
	NAMode    string
	NAPenalty float64
}

// NewContractDoc returns the standard fixture for a question placed at
// the given topology coordinates.
func NewContractDoc(questionID, dimensionID, areaID, clusterID string) *ContractDoc {
	return &ContractDoc{
		QuestionID:  questionID,
		DimensionID: dimensionID,
		AreaID:      areaID,
		ClusterID:   clusterID,
		AbortIf:     []string{"missing_required_element", "no_method_output"},
		EmitCode:    "EVIDENCE_INCOMPLETE",
	}
}

// Map builds the contract document without a content hash.
func (d *ContractDoc) Map() map[string]interface{} {
	version := 3
	if d.Legacy {
		version = 2
	}
	methods := []interface{}{
		map[string]interface{}{
			"class_name": "ElementExtractor", "method_name": "extract",
			"priority": 1, "provides": "elements", "role": "primary",
		},
		map[string]interface{}{
			"class_name": "ElementExtractor", "method_name": "score",
			"priority": 2, "provides": "elements_signal",
		},
		map[string]interface{}{
			"class_name": "SemanticAnalyzer", "method_name": "similarity",
			"priority": 3, "provides": "similarity_signal",
		},
		map[string]interface{}{
			"class_name": "PatternMiner", "method_name": "mine",
			"priority": 4, "provides": "patterns_signal",
		},
	}

	doc := map[string]interface{}{
		"identity": map[string]interface{}{
			"question_id":    d.QuestionID,
			"dimension_id":   d.DimensionID,
			"policy_area_id": d.AreaID,
			"cluster_id":     d.ClusterID,
			"schema_version": version,
		},
		"executor_binding": "default",
		"evidence_assembly": map[string]interface{}{
			"assembly_rules": []interface{}{
				map[string]interface{}{
					"sources": []interface{}{"elements"}, "strategy": "concat", "target": "found_elements",
				},
				map[string]interface{}{
					"sources": []interface{}{"elements_signal"}, "strategy": "first_non_empty", "target": "elements_score",
				},
				map[string]interface{}{
					"sources": []interface{}{"similarity_signal"}, "strategy": "first_non_empty", "target": "similarity_score",
				},
				map[string]interface{}{
					"sources": []interface{}{"patterns_signal"}, "strategy": "first_non_empty", "target": "patterns_score",
				},
				map[string]interface{}{
					"sources":  []interface{}{"elements_signal", "similarity_signal", "patterns_signal"},
					"strategy": "weighted_mean", "target": "combined_confidence",
				},
			},
		},
		"validation_rules": map[string]interface{}{
			"rules": []interface{}{
				map[string]interface{}{
					"id": "require-elements", "kind": "must_contain",
					"field": "found_elements", "min_count": 1,
				},
				map[string]interface{}{
					"id": "coverage-advisory", "kind": "should_contain",
					"field": "found_elements", "min_count": 3,
				},
				map[string]interface{}{
					"id": "elements-floor", "kind": "threshold",
					"field": "elements_score", "minimum_mean": 0.2,
				},
			},
		},
		"failure_contract": map[string]interface{}{
			"abort_if":  toInterfaces(d.AbortIf),
			"emit_code": d.EmitCode,
		},
		"output_contract": map[string]interface{}{
			"modality": d.Modality,
			"schema": map[string]interface{}{
				"required": []interface{}{
					"found_elements", "elements_score", "similarity_score", "patterns_score",
				},
				"properties": map[string]interface{}{
					"found_elements":      map[string]interface{}{"type": "list"},
					"elements_score":      map[string]interface{}{"type": "number"},
					"similarity_score":    map[string]interface{}{"type": "number"},
					"patterns_score":      map[string]interface{}{"type": "number"},
					"combined_confidence": map[string]interface{}{"type": "number"},
				},
			},
		},
	}
	if d.NAMode != "" {
		doc["validation_rules"].(map[string]interface{})["na_policy"] = map[string]interface{}{
			"mode": d.NAMode, "penalty": d.NAPenalty,
		}
	}
	if d.Legacy {
		doc["method_inputs"] = methods
	} else {
		doc["method_binding"] = map[string]interface{}{"methods": methods}
	}
	return doc
}

// Marshal produces the contract file bytes with a valid content hash
// stamped into identity.content_hash.
func (d *ContractDoc) Marshal() ([]byte, error) {
	doc := d.Map()
	hash, err := core.CanonicalHash(doc)
	if err != nil {
		return nil, err
	}
	doc["identity"].(map[string]interface{})["content_hash"] = hash.String()
	return json.Marshal(doc)
}

// Write stores the contract as <dir>/<question_id>.json.
func (d *ContractDoc) Write(dir string) error {
	raw, err := d.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, d.QuestionID+".json"), raw, 0o644)
}

// WriteTree writes a full contract tree: the given clusters, each with
// areasPerCluster policy areas of six dimensions of five questions. It
// returns the question ids and the cluster membership map.
func WriteTree(dir string, clusters, areasPerCluster int) ([]string, map[string][]string, error) {
	var questions []string
	membership := make(map[string][]string)
	for c := 1; c <= clusters; c++ {
		clusterID := fmt.Sprintf("CL-%02d", c)
		for a := 1; a <= areasPerCluster; a++ {
			areaID := fmt.Sprintf("PA-%02d-%02d", c, a)
			membership[clusterID] = append(membership[clusterID], areaID)
			for dim := 1; dim <= 6; dim++ {
				dimID := fmt.Sprintf("%s-D%d", areaID, dim)
				for q := 1; q <= 5; q++ {
					qid := fmt.Sprintf("%s-Q%d", dimID, q)
					doc := NewContractDoc(qid, dimID, areaID, clusterID)
					if err := doc.Write(dir); err != nil {
						return nil, nil, err
					}
					questions = append(questions, qid)
				}
			}
		}
	}
	return questions, membership, nil
}

func toInterfaces(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// ScoringPack builds a scoring pack scoped to one question.
func ScoringPack(questionID, modality string, threshold float64) *signal.Pack {
	return &signal.Pack{
		ID:         core.PackID("pack-scoring-" + questionID),
		Version:    "v1",
		SourceHash: core.PackHash("a1b2c3"),
		Scope:      questionID,
		Kind:       signal.KindScoring,
		Scoring:    &signal.ScoringPayload{Modality: modality, Threshold: threshold},
	}
}

// ContextPack builds a context pack for a question or policy-area scope.
func ContextPack(scope string, patterns []string) *signal.Pack {
	return &signal.Pack{
		ID:         core.PackID("pack-context-" + scope),
		Version:    "v1",
		SourceHash: core.PackHash("d4e5f6"),
		Scope:      scope,
		Kind:       signal.KindContext,
		Context:    &signal.ContextPayload{Patterns: patterns},
	}
}

// AssemblyPack builds an aggregation-settings pack for a rollup level.
func AssemblyPack(level string, weights map[string]float64, minCoherence *float64, membership map[string][]string) *signal.Pack {
	return &signal.Pack{
		ID:         core.PackID("pack-assembly-" + level),
		Version:    "v1",
		SourceHash: core.PackHash("0718a9"),
		Scope:      level,
		Kind:       signal.KindAssembly,
		Assembly: &signal.AssemblyPayload{
			Weights:      weights,
			MinCoherence: minCoherence,
			Membership:   membership,
		},
	}
}

// ScriptedExecutor replays configured outputs per method, optionally per
// question. It implements both ports.MethodExecutor and
// ports.MethodCatalog.
type ScriptedExecutor struct {
	mu      sync.Mutex
	outputs map[string]ports.RawOutput
	errs    map[string]error
	missing map[string]bool
	calls   []string

	// Delay is applied before every call; combined with a short method
	// timeout it simulates stuck methods.
	Delay time.Duration
}

// NewScriptedExecutor returns an executor preloaded with the standard
// fixture outputs matching NewContractDoc's method set.
func NewScriptedExecutor() *ScriptedExecutor {
	x := &ScriptedExecutor{
		outputs: make(map[string]ports.RawOutput),
		errs:    make(map[string]error),
		missing: make(map[string]bool),
	}
	x.SetOutput("ElementExtractor.extract", ports.RawOutput{
		Value:      []interface{}{"institutional_framework", "budget_allocation"},
		Confidence: 0.9,
	})
	x.SetOutput("ElementExtractor.score", ports.RawOutput{Value: 0.9, Confidence: 0.85})
	x.SetOutput("SemanticAnalyzer.similarity", ports.RawOutput{Value: 0.6, Confidence: 0.7})
	x.SetOutput("PatternMiner.mine", ports.RawOutput{Value: 0.5, Confidence: 0.65})
	return x
}

// SetOutput scripts the result for a method key, either "Class.Method"
// or "questionID/Class.Method" for a per-question override.
func (x *ScriptedExecutor) SetOutput(key string, out ports.RawOutput) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.outputs[key] = out
}

// SetError scripts a failure for a method key.
func (x *ScriptedExecutor) SetError(key string, err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.errs[key] = err
}

// SetMissing removes a method from the catalog.
func (x *ScriptedExecutor) SetMissing(key string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.missing[key] = true
}

// Calls returns every "questionID/Class.Method" invocation in order.
func (x *ScriptedExecutor) Calls() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]string, len(x.calls))
	copy(out, x.calls)
	return out
}

// Execute implements ports.MethodExecutor.
func (x *ScriptedExecutor) Execute(
	ctx context.Context,
	ref contract.MethodRef,
	mctx ports.MethodContext,
	_ *signal.Pack,
) (ports.RawOutput, error) {
	if x.Delay > 0 {
		select {
		case <-time.After(x.Delay):
		case <-ctx.Done():
			return ports.RawOutput{}, ctx.Err()
		}
	}
	key := ref.Key()
	scoped := mctx.QuestionID.String() + "/" + key

	x.mu.Lock()
	x.calls = append(x.calls, scoped)
	err, hasErr := x.errs[scoped]
	if !hasErr {
		err, hasErr = x.errs[key]
	}
	out, ok := x.outputs[scoped]
	if !ok {
		out, ok = x.outputs[key]
	}
	x.mu.Unlock()

	if hasErr {
		return ports.RawOutput{}, err
	}
	if !ok {
		return ports.RawOutput{}, fmt.Errorf("no scripted output for %s", key)
	}
	return out, nil
}

// Has implements ports.MethodCatalog.
func (x *ScriptedExecutor) Has(ref contract.MethodRef) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return !x.missing[ref.Key()]
}
