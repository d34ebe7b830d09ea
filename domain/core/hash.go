package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals checks if two hashes are equal
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// Domain-specific hash types
type (
	ContractHash Hash
	PackHash     Hash
	RecordHash   Hash
)

// String conversions
func (h ContractHash) String() string { return Hash(h).String() }
func (h PackHash) String() string     { return Hash(h).String() }
func (h RecordHash) String() string   { return Hash(h).String() }

// CanonicalHash hashes any JSON-serializable value deterministically.
// encoding/json writes map keys in sorted order, so two structurally
// equal documents always hash identically.
func CanonicalHash(v interface{}) (Hash, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonical hash: %w", err)
	}
	return NewHash(data), nil
}

// ComputeTopologyHash creates a deterministic hash over a membership map
// (group id -> ordered member ids).
func ComputeTopologyHash(members map[string][]string) Hash {
	keys := make([]string, 0, len(members))
	for k := range members {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var data strings.Builder
	for _, key := range keys {
		data.WriteString(key)
		data.WriteString(":")
		data.WriteString(strings.Join(members[key], ","))
		data.WriteString(";")
	}
	return NewHash([]byte(data.String()))
}
