// Package contractstore loads, verifies, and caches per-question
// contracts for the lifetime of the process.
package contractstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/patrickmn/go-cache"

	"sisas/domain/contract"
	"sisas/domain/core"
	"sisas/internal"
	"sisas/ports"
)

// Store is the process-wide contract source. Loaded contracts are
// immutable and cached by question id; concurrent readers share the same
// instance.
type Store struct {
	dir     string
	catalog ports.MethodCatalog
	cache   *cache.Cache
	log     *internal.Logger
}

// New creates a store reading contract files from dir. When catalog is
// non-nil every method reference is resolved against it at load time and
// dangling refs fail the load.
func New(dir string, catalog ports.MethodCatalog, logger *internal.Logger) *Store {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Store{
		dir:     dir,
		catalog: catalog,
		cache:   cache.New(cache.NoExpiration, 0),
		log:     logger,
	}
}

// Load returns the contract for a question, loading and verifying it on
// first access.
func (s *Store) Load(id core.QuestionID) (*contract.Contract, error) {
	if cached, ok := s.cache.Get(id.String()); ok {
		return cached.(*contract.Contract), nil
	}

	path := filepath.Join(s.dir, id.String()+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrContractNotFound, err)
	}

	c, err := s.decode(id, raw)
	if err != nil {
		return nil, err
	}

	s.cache.Set(id.String(), c, cache.NoExpiration)
	s.log.Debug("[ContractStore] loaded %s (schema v%d, %d bindings, %d rules)",
		id, c.Identity.SchemaVersion, len(c.Bindings), len(c.AssemblyRules))
	return c, nil
}

func (s *Store) decode(id core.QuestionID, raw []byte) (*contract.Contract, error) {
	c, err := contract.Decode(raw)
	if err != nil {
		return nil, core.NewContractLoadError(id.String(), err.Error())
	}

	if c.Identity.QuestionID != id {
		return nil, core.NewContractLoadError(id.String(),
			fmt.Sprintf("identity declares question %s", c.Identity.QuestionID))
	}

	computed, err := contract.RecomputeHash(raw)
	if err != nil {
		return nil, core.NewContractLoadError(id.String(), err.Error())
	}
	if !computed.Equals(core.Hash(c.Identity.ContentHash)) {
		return nil, core.NewIntegrityError(id.String(), core.Hash(c.Identity.ContentHash), computed)
	}

	if s.catalog != nil {
		for _, b := range c.Bindings {
			if !s.catalog.Has(b.Ref) {
				return nil, fmt.Errorf("%w: %s (question %s)", core.ErrUnknownMethod, b.Ref.Key(), id)
			}
		}
	}
	return c, nil
}

// QuestionIDs lists every question with a contract file, in stable order.
func (s *Store) QuestionIDs() ([]core.QuestionID, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", core.ErrContractLoad, s.dir, err)
	}
	ids := make([]core.QuestionID, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, core.QuestionID(strings.TrimSuffix(e.Name(), ".json")))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Identities loads every contract and returns its identity section.
// Individual load failures are returned alongside the successes so one
// corrupt contract never hides the rest of the tree.
func (s *Store) Identities() ([]contract.Identity, map[core.QuestionID]error, error) {
	ids, err := s.QuestionIDs()
	if err != nil {
		return nil, nil, err
	}
	identities := make([]contract.Identity, 0, len(ids))
	failures := make(map[core.QuestionID]error)
	for _, id := range ids {
		c, err := s.Load(id)
		if err != nil {
			failures[id] = err
			continue
		}
		identities = append(identities, c.Identity)
	}
	return identities, failures, nil
}
