package contract

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"sisas/domain/core"
)

// SchemaVersion distinguishes contract file revisions. Version resolution
// happens exactly once, in Decode; nothing downstream branches on it.
type SchemaVersion int

const (
	SchemaV2 SchemaVersion = 2
	SchemaV3 SchemaVersion = 3
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// fileV3 mirrors the current on-disk contract layout.
type fileV3 struct {
	Identity         identitySection  `json:"identity" validate:"required"`
	ExecutorBinding  string           `json:"executor_binding"`
	MethodBinding    *bindingSection  `json:"method_binding" validate:"required"`
	EvidenceAssembly assemblySection  `json:"evidence_assembly" validate:"required"`
	ValidationRules  rulesSection     `json:"validation_rules" validate:"required"`
	FailureContract  failureSection   `json:"failure_contract"`
	OutputContract   outContractSect  `json:"output_contract" validate:"required"`
}

// fileV2 is the legacy layout: bindings live in a flat method_inputs list.
type fileV2 struct {
	Identity         identitySection `json:"identity" validate:"required"`
	ExecutorBinding  string          `json:"executor_binding"`
	MethodInputs     []methodEntry   `json:"method_inputs" validate:"required,min=1,dive"`
	EvidenceAssembly assemblySection `json:"evidence_assembly" validate:"required"`
	ValidationRules  rulesSection    `json:"validation_rules" validate:"required"`
	FailureContract  failureSection  `json:"failure_contract"`
	OutputContract   outContractSect `json:"output_contract" validate:"required"`
}

type identitySection struct {
	QuestionID    string `json:"question_id" validate:"required"`
	DimensionID   string `json:"dimension_id" validate:"required"`
	PolicyAreaID  string `json:"policy_area_id" validate:"required"`
	ClusterID     string `json:"cluster_id" validate:"required"`
	SchemaVersion int    `json:"schema_version"`
	ContentHash   string `json:"content_hash" validate:"required,len=64,hexadecimal"`
}

type bindingSection struct {
	Methods []methodEntry `json:"methods" validate:"required,min=1,dive"`
}

type methodEntry struct {
	ClassName  string `json:"class_name" validate:"required"`
	MethodName string `json:"method_name" validate:"required"`
	Priority   int    `json:"priority" validate:"min=1"`
	Provides   string `json:"provides" validate:"required"`
	Role       string `json:"role"`
}

type assemblySection struct {
	AssemblyRules  []assemblyEntry    `json:"assembly_rules" validate:"required,min=1,dive"`
	DefaultWeights map[string]float64 `json:"default_weights"`
}

type assemblyEntry struct {
	Sources  []string           `json:"sources" validate:"required,min=1"`
	Strategy string             `json:"strategy" validate:"required,oneof=concat weighted_mean max min first_non_empty"`
	Target   string             `json:"target" validate:"required"`
	Weights  map[string]float64 `json:"weights"`
}

type rulesSection struct {
	Rules    []ruleEntry `json:"rules" validate:"dive"`
	NAPolicy naEntry     `json:"na_policy"`
}

type ruleEntry struct {
	ID            string   `json:"id" validate:"required"`
	Kind          string   `json:"kind" validate:"required,oneof=must_contain should_contain threshold"`
	Field         string   `json:"field" validate:"required"`
	MinCount      int      `json:"min_count"`
	AllowedValues []string `json:"allowed_values"`
	MinimumMean   float64  `json:"minimum_mean"`
}

type naEntry struct {
	Mode    string  `json:"mode" validate:"omitempty,oneof=keep penalize"`
	Penalty float64 `json:"penalty" validate:"min=0,max=3"`
}

type failureSection struct {
	AbortIf  []string `json:"abort_if"`
	EmitCode string   `json:"emit_code"`
}

type outContractSect struct {
	Modality string        `json:"modality"`
	Schema   schemaSection `json:"schema" validate:"required"`
}

type schemaSection struct {
	Required   []string                   `json:"required" validate:"required,min=1"`
	Properties map[string]propertyEntry   `json:"properties"`
}

type propertyEntry struct {
	Type string `json:"type"`
}

// DetectVersion inspects raw contract JSON and reports its schema
// revision: v3 carries method_binding, legacy v2 carries method_inputs.
func DetectVersion(raw []byte) (SchemaVersion, error) {
	var probe struct {
		MethodBinding json.RawMessage `json:"method_binding"`
		MethodInputs  json.RawMessage `json:"method_inputs"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return 0, fmt.Errorf("%w: %v", core.ErrSchemaInvalid, err)
	}
	switch {
	case len(probe.MethodBinding) > 0:
		return SchemaV3, nil
	case len(probe.MethodInputs) > 0:
		return SchemaV2, nil
	default:
		return 0, fmt.Errorf("%w: neither method_binding nor method_inputs present", core.ErrSchemaInvalid)
	}
}

// Decode parses, schema-validates, and normalizes a contract file. The
// returned Contract is the only representation later stages ever see.
// Decode does not verify the content hash; that belongs to the store,
// which has the raw bytes.
func Decode(raw []byte) (*Contract, error) {
	version, err := DetectVersion(raw)
	if err != nil {
		return nil, err
	}

	switch version {
	case SchemaV3:
		var f fileV3
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrSchemaInvalid, err)
		}
		if err := validate.Struct(&f); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrSchemaInvalid, err)
		}
		return normalize(version, f.Identity, f.ExecutorBinding, f.MethodBinding.Methods,
			f.EvidenceAssembly, f.ValidationRules, f.FailureContract, f.OutputContract)
	case SchemaV2:
		var f fileV2
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrSchemaInvalid, err)
		}
		if err := validate.Struct(&f); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrSchemaInvalid, err)
		}
		return normalize(version, f.Identity, f.ExecutorBinding, f.MethodInputs,
			f.EvidenceAssembly, f.ValidationRules, f.FailureContract, f.OutputContract)
	default:
		return nil, fmt.Errorf("%w: unsupported schema version %d", core.ErrSchemaInvalid, version)
	}
}

func normalize(
	version SchemaVersion,
	id identitySection,
	executorBinding string,
	methods []methodEntry,
	assembly assemblySection,
	rules rulesSection,
	failure failureSection,
	out outContractSect,
) (*Contract, error) {
	c := &Contract{
		Identity: Identity{
			QuestionID:    core.QuestionID(id.QuestionID),
			DimensionID:   core.DimensionID(id.DimensionID),
			AreaID:        core.AreaID(id.PolicyAreaID),
			ClusterID:     core.ClusterID(id.ClusterID),
			SchemaVersion: version,
			ContentHash:   core.ContractHash(id.ContentHash),
		},
		ExecutorBinding: executorBinding,
		NAPolicy: NAPolicy{
			Mode:    rules.NAPolicy.Mode,
			Penalty: rules.NAPolicy.Penalty,
		},
		Failure: FailureContract{
			EmitCode: failure.EmitCode,
		},
		Output: OutputSchema{
			Required:   out.Schema.Required,
			Properties: make(map[string]PropertySpec, len(out.Schema.Properties)),
		},
		Modality:       out.Modality,
		DefaultWeights: assembly.DefaultWeights,
	}
	if c.NAPolicy.Mode == "" {
		c.NAPolicy.Mode = "keep"
	}
	if c.Modality == "" {
		c.Modality = "weighted_balanced"
	}

	for _, m := range methods {
		c.Bindings = append(c.Bindings, MethodBinding{
			Ref:      MethodRef{Class: m.ClassName, Method: m.MethodName},
			Priority: m.Priority,
			Provides: m.Provides,
			Role:     m.Role,
		})
	}
	c.SortBindings()

	for _, r := range assembly.AssemblyRules {
		c.AssemblyRules = append(c.AssemblyRules, AssemblyRule{
			Sources:  r.Sources,
			Strategy: Strategy(r.Strategy),
			Target:   r.Target,
			Weights:  r.Weights,
		})
	}

	for _, r := range rules.Rules {
		c.ValidationRules = append(c.ValidationRules, ValidationRule{
			ID:            r.ID,
			Kind:          RuleKind(r.Kind),
			Field:         r.Field,
			MinCount:      r.MinCount,
			AllowedValues: r.AllowedValues,
			MinimumMean:   r.MinimumMean,
		})
	}

	for _, cond := range failure.AbortIf {
		c.Failure.AbortIf = append(c.Failure.AbortIf, AbortCondition(cond))
	}

	for name, p := range out.Schema.Properties {
		c.Output.Properties[name] = PropertySpec{Type: p.Type}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// RecomputeHash hashes the contract content with the declared
// identity.content_hash field removed, so the stamp never hashes itself.
// encoding/json marshals map keys sorted, which makes the digest stable
// across formatting differences.
func RecomputeHash(raw []byte) (core.Hash, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrSchemaInvalid, err)
	}
	if identity, ok := doc["identity"].(map[string]interface{}); ok {
		delete(identity, "content_hash")
	}
	return core.CanonicalHash(doc)
}
