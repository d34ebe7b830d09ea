// Package assembler merges raw per-method outputs into one Evidence
// record according to a contract's assembly rules. Assembly is a single
// pass: no rule may read another rule's output, and the contract store
// rejects contracts that imply otherwise.
package assembler

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"sisas/domain/contract"
	"sisas/domain/core"
	"sisas/domain/evidence"
	"sisas/domain/signal"
	"sisas/ports"
)

// SourceOutput pairs one binding's raw output with its execution outcome.
// A non-nil Err marks a failed method; the source is then treated as
// missing and recorded in the evidence trace.
type SourceOutput struct {
	Binding contract.MethodBinding
	Output  ports.RawOutput
	Err     error
}

// Assemble runs every assembly rule over the collected outputs and
// returns the merged Evidence. Missing sources are recorded but never
// fatal here; structural problems were the loader's job.
func Assemble(
	questionID core.QuestionID,
	outputs map[string]SourceOutput,
	c *contract.Contract,
	prov signal.Provenance,
) (*evidence.Evidence, error) {
	ev := &evidence.Evidence{
		QuestionID:  questionID,
		Fields:      make(map[string]interface{}, len(c.AssemblyRules)),
		Provenance:  prov,
		AssembledAt: core.Now(),
	}

	// Trace every binding, present or not, in deterministic order.
	keys := make([]string, 0, len(c.Bindings))
	for _, b := range c.Bindings {
		keys = append(keys, b.Provides)
	}
	sort.Strings(keys)
	for _, key := range keys {
		out, ok := outputs[key]
		trace := evidence.SourceTrace{Provides: key}
		if !ok {
			binding, _ := c.Binding(key)
			trace.Method = binding.Ref.Key()
			trace.Missing = true
		} else {
			trace.Method = out.Binding.Ref.Key()
			trace.Confidence = out.Output.Confidence
			if out.Err != nil {
				trace.Missing = true
				trace.Error = out.Err.Error()
			}
		}
		ev.Trace = append(ev.Trace, trace)
	}

	for _, rule := range c.AssemblyRules {
		value, ok, err := applyRule(rule, outputs, c)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Target, err)
		}
		if ok {
			ev.Fields[rule.Target] = value
		}
	}
	return ev, nil
}

// applyRule evaluates one rule; ok=false means no source was available
// and the target stays absent.
func applyRule(
	rule contract.AssemblyRule,
	outputs map[string]SourceOutput,
	c *contract.Contract,
) (interface{}, bool, error) {
	switch rule.Strategy {
	case contract.StrategyConcat:
		return applyConcat(rule, outputs)
	case contract.StrategyWeightedMean:
		return applyWeightedMean(rule, outputs, c)
	case contract.StrategyMax:
		return applyExtremum(rule, outputs, true)
	case contract.StrategyMin:
		return applyExtremum(rule, outputs, false)
	case contract.StrategyFirstNonEmpty:
		return applyFirstNonEmpty(rule, outputs)
	}
	return nil, false, fmt.Errorf("unknown strategy %q", rule.Strategy)
}

func present(outputs map[string]SourceOutput, key string) (SourceOutput, bool) {
	out, ok := outputs[key]
	if !ok || out.Err != nil {
		return SourceOutput{}, false
	}
	return out, true
}

// applyConcat flattens list-valued sources in declared source order.
// Scalar values contribute as single elements.
func applyConcat(rule contract.AssemblyRule, outputs map[string]SourceOutput) (interface{}, bool, error) {
	var merged []interface{}
	any := false
	for _, src := range rule.Sources {
		out, ok := present(outputs, src)
		if !ok {
			continue
		}
		any = true
		switch v := out.Output.Value.(type) {
		case []interface{}:
			merged = append(merged, v...)
		case []string:
			for _, s := range v {
				merged = append(merged, s)
			}
		default:
			if !evidence.IsEmptyValue(v) {
				merged = append(merged, v)
			}
		}
	}
	if !any {
		return nil, false, nil
	}
	return merged, true, nil
}

// applyWeightedMean combines numeric sources as sum(v_i*w_i)/sum(w_i).
// Missing sources are excluded entirely: their weight never enters the
// denominator. A source's default weight is its confidence normalized by
// binding priority unless the rule or contract overrides it.
func applyWeightedMean(
	rule contract.AssemblyRule,
	outputs map[string]SourceOutput,
	c *contract.Contract,
) (interface{}, bool, error) {
	var values, weights []float64
	for _, src := range rule.Sources {
		out, ok := present(outputs, src)
		if !ok {
			continue
		}
		v, ok := toFloat(out.Output.Value)
		if !ok {
			return nil, false, fmt.Errorf("source %q is not numeric", src)
		}
		values = append(values, v)
		weights = append(weights, sourceWeight(rule, c, src, out))
	}
	if len(values) == 0 {
		return nil, false, nil
	}
	return stat.Mean(values, weights), true, nil
}

func sourceWeight(rule contract.AssemblyRule, c *contract.Contract, src string, out SourceOutput) float64 {
	if w, ok := rule.Weights[src]; ok {
		return w
	}
	if w, ok := c.DefaultWeights[src]; ok {
		return w
	}
	priority := out.Binding.Priority
	if priority < 1 {
		priority = 1
	}
	w := out.Output.Confidence / float64(priority)
	if w <= 0 {
		// Zero-confidence sources still participate, minimally.
		w = 1e-9
	}
	return w
}

func applyExtremum(rule contract.AssemblyRule, outputs map[string]SourceOutput, max bool) (interface{}, bool, error) {
	var best float64
	found := false
	for _, src := range rule.Sources {
		out, ok := present(outputs, src)
		if !ok {
			continue
		}
		v, ok := toFloat(out.Output.Value)
		if !ok {
			return nil, false, fmt.Errorf("source %q is not numeric", src)
		}
		if !found || (max && v > best) || (!max && v < best) {
			best = v
			found = true
		}
	}
	if !found {
		return nil, false, nil
	}
	return best, true, nil
}

func applyFirstNonEmpty(rule contract.AssemblyRule, outputs map[string]SourceOutput) (interface{}, bool, error) {
	for _, src := range rule.Sources {
		out, ok := present(outputs, src)
		if !ok {
			continue
		}
		if !evidence.IsEmptyValue(out.Output.Value) {
			return out.Output.Value, true, nil
		}
	}
	return nil, false, nil
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
