package contractstore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"sisas/domain/core"
	"sisas/internal/testkit"
)

func writeFixture(t *testing.T, dir, questionID string) {
	t.Helper()
	doc := testkit.NewContractDoc(questionID, "D-01", "PA-01", "CL-01")
	if err := doc.Write(dir); err != nil {
		t.Fatalf("writing fixture contract: %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "Q-001")

	store := New(dir, testkit.NewScriptedExecutor(), nil)
	c, err := store.Load(core.QuestionID("Q-001"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if c.Identity.QuestionID != core.QuestionID("Q-001") {
		t.Errorf("Wrong question id: %s", c.Identity.QuestionID)
	}
	if c.Identity.DimensionID != core.DimensionID("D-01") {
		t.Errorf("Wrong dimension id: %s", c.Identity.DimensionID)
	}
	if len(c.Bindings) == 0 {
		t.Error("Bindings not decoded")
	}

	// Second load serves the cached instance.
	again, err := store.Load(core.QuestionID("Q-001"))
	if err != nil {
		t.Fatal(err)
	}
	if again != c {
		t.Error("Expected cached contract instance on second load")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	store := New(t.TempDir(), nil, nil)
	_, err := store.Load(core.QuestionID("Q-404"))
	if !errors.Is(err, core.ErrContractNotFound) {
		t.Errorf("Expected ErrContractNotFound, got %v", err)
	}
}

func TestLoad_TamperedContentFailsIntegrity(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "Q-001")

	// Flip a value without restamping the hash.
	path := filepath.Join(dir, "Q-001.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	tampered := bytes.Replace(raw, []byte(`"min_count":1`), []byte(`"min_count":2`), 1)
	if bytes.Equal(raw, tampered) {
		t.Fatal("Tamper target not found in fixture")
	}
	if err := os.WriteFile(path, tampered, 0o644); err != nil {
		t.Fatal(err)
	}

	store := New(dir, nil, nil)
	_, err = store.Load(core.QuestionID("Q-001"))
	if !core.IsIntegrityError(err) {
		t.Errorf("Expected integrity error, got %v", err)
	}
}

func TestLoad_FilenameIdentityMismatch(t *testing.T) {
	dir := t.TempDir()
	doc := testkit.NewContractDoc("Q-002", "D-01", "PA-01", "CL-01")
	raw, err := doc.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	// Stored under the wrong name.
	if err := os.WriteFile(filepath.Join(dir, "Q-001.json"), raw, 0o644); err != nil {
		t.Fatal(err)
	}

	store := New(dir, nil, nil)
	_, err = store.Load(core.QuestionID("Q-001"))
	if !core.IsContractLoadError(err) {
		t.Errorf("Expected contract load error, got %v", err)
	}
}

func TestLoad_UnknownMethodRejected(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "Q-001")

	executor := testkit.NewScriptedExecutor()
	executor.SetMissing("PatternMiner.mine")

	store := New(dir, executor, nil)
	_, err := store.Load(core.QuestionID("Q-001"))
	if !errors.Is(err, core.ErrUnknownMethod) {
		t.Errorf("Expected ErrUnknownMethod, got %v", err)
	}
}

func TestLoad_LegacyLayout(t *testing.T) {
	dir := t.TempDir()
	doc := testkit.NewContractDoc("Q-001", "D-01", "PA-01", "CL-01")
	doc.Legacy = true
	if err := doc.Write(dir); err != nil {
		t.Fatal(err)
	}

	store := New(dir, nil, nil)
	c, err := store.Load(core.QuestionID("Q-001"))
	if err != nil {
		t.Fatalf("Legacy contract failed to load: %v", err)
	}
	if len(c.Bindings) != 4 {
		t.Errorf("Expected 4 bindings from legacy layout, got %d", len(c.Bindings))
	}
}

func TestQuestionIDs(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "Q-002")
	writeFixture(t, dir, "Q-001")
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := New(dir, nil, nil)
	ids, err := store.QuestionIDs()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Fatalf("Expected 2 ids, got %d", len(ids))
	}
	if ids[0] != core.QuestionID("Q-001") || ids[1] != core.QuestionID("Q-002") {
		t.Errorf("IDs not in stable order: %v", ids)
	}
}

func TestIdentities_PartialFailures(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "Q-001")
	writeFixture(t, dir, "Q-002")
	// A corrupt file alongside the healthy ones.
	if err := os.WriteFile(filepath.Join(dir, "Q-003.json"), []byte(`{"broken"`), 0o644); err != nil {
		t.Fatal(err)
	}

	store := New(dir, nil, nil)
	identities, failures, err := store.Identities()
	if err != nil {
		t.Fatalf("Identities failed: %v", err)
	}
	if len(identities) != 2 {
		t.Errorf("Expected 2 identities, got %d", len(identities))
	}
	if len(failures) != 1 {
		t.Fatalf("Expected 1 failure, got %d", len(failures))
	}
	if _, ok := failures[core.QuestionID("Q-003")]; !ok {
		t.Error("Q-003 failure not recorded")
	}
}
