// Package jsonfile persists engine output as one hash-stamped JSON
// record per question and per aggregate, for downstream audit tooling.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"sisas/domain/evidence"
	"sisas/domain/rollup"
)

// Sink writes records beneath a base directory:
//
//	<dir>/questions/<question_id>.json
//	<dir>/aggregates/<level>_<group_id>.json
//	<dir>/manifest_<run_id>.json
type Sink struct {
	dir string
}

// NewSink creates the directory layout and returns the sink.
func NewSink(dir string) (*Sink, error) {
	for _, sub := range []string{"questions", "aggregates"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("creating output dir: %w", err)
		}
	}
	return &Sink{dir: dir}, nil
}

// WriteQuestion persists one question record.
func (s *Sink) WriteQuestion(_ context.Context, record *evidence.QuestionRecord) error {
	path := filepath.Join(s.dir, "questions", record.QuestionID.String()+".json")
	return writeJSON(path, record)
}

// WriteAggregate persists one aggregate record.
func (s *Sink) WriteAggregate(_ context.Context, score *rollup.GroupScore) error {
	name := fmt.Sprintf("%s_%s.json", score.Level, score.GroupID)
	return writeJSON(filepath.Join(s.dir, "aggregates", name), score)
}

// WriteManifest persists the run manifest.
func (s *Sink) WriteManifest(_ context.Context, manifest *rollup.RunManifest) error {
	name := fmt.Sprintf("manifest_%s.json", manifest.RunID)
	return writeJSON(filepath.Join(s.dir, name), manifest)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}
