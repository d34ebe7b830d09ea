package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	// QuestionID identifies one analytical question (e.g. "Q004").
	QuestionID ID
	// DimensionID identifies a dimension grouping five questions.
	DimensionID ID
	// AreaID identifies a policy area grouping six dimensions.
	AreaID ID
	// ClusterID identifies a cluster of policy areas.
	ClusterID ID
	// PackID identifies a versioned signal pack.
	PackID ID
	// RunID identifies one full evaluation run.
	RunID ID
)

// String conversions for domain IDs
func (id QuestionID) String() string  { return ID(id).String() }
func (id DimensionID) String() string { return ID(id).String() }
func (id AreaID) String() string      { return ID(id).String() }
func (id ClusterID) String() string   { return ID(id).String() }
func (id PackID) String() string      { return ID(id).String() }
func (id RunID) String() string       { return ID(id).String() }

// ParseQuestionID parses a string into QuestionID
func ParseQuestionID(s string) (QuestionID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("question ID cannot be empty")
	}
	return QuestionID(s), nil
}

// ParseRunID parses a string into RunID
func ParseRunID(s string) (RunID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("run ID cannot be empty")
	}
	return RunID(s), nil
}

// ParsePackID parses a string into PackID
func ParsePackID(s string) (PackID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("pack ID cannot be empty")
	}
	return PackID(s), nil
}
