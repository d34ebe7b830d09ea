package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Contract loading errors
	ErrContractLoad     = errors.New("contract load failed")
	ErrContractNotFound = fmt.Errorf("%w: contract file missing", ErrContractLoad)
	ErrSchemaInvalid    = fmt.Errorf("%w: schema invalid", ErrContractLoad)
	ErrRuleDependency   = fmt.Errorf("%w: assembly rule depends on another rule's target", ErrContractLoad)
	ErrUnknownMethod    = fmt.Errorf("%w: unknown method reference", ErrContractLoad)
	ErrUnknownCondition = fmt.Errorf("%w: unknown abort condition", ErrContractLoad)

	// Integrity errors (hash mismatch between declared and recomputed content)
	ErrIntegrity = errors.New("integrity violation: hash mismatch")

	// Execution errors
	ErrMethodExecution = errors.New("method execution failed")
	ErrMethodTimeout   = fmt.Errorf("%w: timed out", ErrMethodExecution)

	// Aggregation errors
	ErrCardinality       = errors.New("structural cardinality mismatch")
	ErrSignalPackMissing = errors.New("required signal pack missing")

	// Range errors: out-of-range scores are programming errors, not inputs
	ErrScoreOutOfRange = errors.New("score out of range")
)

// Score scale bounds shared by scorer and all rollup stages.
const (
	ScaleMin = 0.0
	ScaleMax = 3.0
)

// CheckScoreRange returns ErrScoreOutOfRange when v falls outside [lo, hi].
func CheckScoreRange(what string, v, lo, hi float64) error {
	if v < lo || v > hi {
		return fmt.Errorf("%w: %s = %g not in [%g, %g]", ErrScoreOutOfRange, what, v, lo, hi)
	}
	return nil
}

// Error constructors with context
func NewContractLoadError(questionID string, reason string) error {
	return fmt.Errorf("%w: question %s: %s", ErrContractLoad, questionID, reason)
}

func NewIntegrityError(questionID string, declared, computed Hash) error {
	return fmt.Errorf("%w: question %s: declared %s computed %s",
		ErrIntegrity, questionID, declared, computed)
}

func NewCardinalityError(level, groupID string, want, got int) error {
	return fmt.Errorf("%w: %s %s expects %d children, got %d",
		ErrCardinality, level, groupID, want, got)
}

func NewValidationError(field string, reason string) error {
	return fmt.Errorf("validation failed for %s: %s", field, reason)
}

// Error checking helpers
func IsContractLoadError(err error) bool {
	return errors.Is(err, ErrContractLoad)
}

func IsIntegrityError(err error) bool {
	return errors.Is(err, ErrIntegrity)
}

func IsCardinalityError(err error) bool {
	return errors.Is(err, ErrCardinality)
}

func IsMethodExecutionError(err error) bool {
	return errors.Is(err, ErrMethodExecution)
}
