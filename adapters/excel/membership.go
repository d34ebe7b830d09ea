// Package excel loads aggregation settings maintained as a spreadsheet:
// cluster membership on one sheet, per-level child weights on another.
// The loader turns the workbook into ordinary assembly signal packs, so
// the engine never knows weights came from a workbook.
package excel

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"sisas/domain/core"
	"sisas/domain/signal"
)

const (
	membershipSheet = "Membership"
	weightsSheet    = "Weights"
)

// SettingsReader reads one aggregation-settings workbook.
type SettingsReader struct {
	filePath string
}

// NewSettingsReader creates a reader for the workbook path.
func NewSettingsReader(filePath string) *SettingsReader {
	return &SettingsReader{filePath: filePath}
}

// ReadPacks converts the workbook into assembly packs, one per rollup
// level that has weights, with cluster membership attached to the
// cluster-level pack. Pack hashes are computed over the extracted
// payload, so a re-saved but unchanged workbook hashes identically.
func (r *SettingsReader) ReadPacks(version string) ([]*signal.Pack, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	membership, err := r.readMembership(f)
	if err != nil {
		return nil, err
	}
	weightsByLevel, err := r.readWeights(f)
	if err != nil {
		return nil, err
	}

	levels := []string{"dimension", "policy_area", "cluster", "macro"}
	var packs []*signal.Pack
	for _, level := range levels {
		weights := weightsByLevel[level]
		payload := &signal.AssemblyPayload{Weights: weights}
		if level == "cluster" {
			payload.Membership = membership
		}
		if len(weights) == 0 && len(payload.Membership) == 0 {
			continue
		}
		hash, err := core.CanonicalHash(payload)
		if err != nil {
			return nil, err
		}
		packs = append(packs, &signal.Pack{
			ID:         core.PackID("workbook-" + level),
			Version:    version,
			SourceHash: core.PackHash(hash),
			Scope:      level,
			Kind:       signal.KindAssembly,
			Assembly:   payload,
		})
	}
	return packs, nil
}

// readMembership expects header row cluster_id|policy_area_id.
func (r *SettingsReader) readMembership(f *excelize.File) (map[string][]string, error) {
	rows, err := f.GetRows(membershipSheet)
	if err != nil {
		return nil, fmt.Errorf("reading %s sheet: %w", membershipSheet, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%s sheet needs a header row and at least one data row", membershipSheet)
	}
	membership := make(map[string][]string)
	for i, row := range rows[1:] {
		if len(row) < 2 {
			continue
		}
		cluster := strings.TrimSpace(row[0])
		area := strings.TrimSpace(row[1])
		if cluster == "" || area == "" {
			return nil, fmt.Errorf("%s row %d: empty cluster or area id", membershipSheet, i+2)
		}
		membership[cluster] = append(membership[cluster], area)
	}
	return membership, nil
}

// readWeights expects header row level|child_id|weight.
func (r *SettingsReader) readWeights(f *excelize.File) (map[string]map[string]float64, error) {
	rows, err := f.GetRows(weightsSheet)
	if err != nil {
		// Weights sheet is optional; membership alone is valid.
		return map[string]map[string]float64{}, nil
	}
	out := make(map[string]map[string]float64)
	for i, row := range rows {
		if i == 0 || len(row) < 3 {
			continue
		}
		level := strings.TrimSpace(row[0])
		child := strings.TrimSpace(row[1])
		weight, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: bad weight %q", weightsSheet, i+1, row[2])
		}
		if weight < 0 {
			return nil, fmt.Errorf("%s row %d: negative weight", weightsSheet, i+1)
		}
		if out[level] == nil {
			out[level] = make(map[string]float64)
		}
		out[level][child] = weight
	}
	return out, nil
}
