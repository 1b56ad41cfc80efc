package artifact

import (
	"fmt"
	"sort"
	"sync"

	"github.com/JoseManu96/ml.school/internal/model"
	mlerrors "github.com/JoseManu96/ml.school/pkg/errors"
)

// Record identifies one persisted artifact write.
type Record struct {
	RunID  string
	Branch string
	Step   string
	Name   string
	Value  any
}

type storeKey struct {
	runID  string
	branch string
	step   string
	name   string
}

// Store is the append-only record of every artifact produced by a completed
// step, keyed by (run, branch path, step, name). It is the only resource
// shared across branches and is safe for concurrent use. Records written by
// a branch survive the failure of its region, so partial results remain
// available for diagnostics.
type Store struct {
	mu      sync.RWMutex
	records []Record
	index   map[storeKey]int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{index: make(map[storeKey]int)}
}

// Put appends one artifact record. Re-putting an existing coordinate fails
// with ErrArtifactRewrite; stored artifacts are immutable.
func (s *Store) Put(runID string, branch model.Path, step, name string, value any) error {
	key := storeKey{runID: runID, branch: branch.String(), step: step, name: name}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[key]; exists {
		return fmt.Errorf("artifact %q at step %s: %w", name, step, mlerrors.ErrArtifactRewrite)
	}

	s.index[key] = len(s.records)
	s.records = append(s.records, Record{
		RunID:  runID,
		Branch: key.branch,
		Step:   step,
		Name:   name,
		Value:  value,
	})
	return nil
}

// Get returns the value stored for one coordinate.
func (s *Store) Get(runID string, branch model.Path, step, name string) (any, bool) {
	key := storeKey{runID: runID, branch: branch.String(), step: step, name: name}

	s.mu.RLock()
	defer s.mu.RUnlock()

	position, ok := s.index[key]
	if !ok {
		return nil, false
	}
	return s.records[position].Value, true
}

// StepArtifacts returns the values one step execution produced.
func (s *Store) StepArtifacts(runID string, branch model.Path, step string) map[string]any {
	rendered := branch.String()

	s.mu.RLock()
	defer s.mu.RUnlock()

	values := make(map[string]any)
	for _, record := range s.records {
		if record.RunID == runID && record.Branch == rendered && record.Step == step {
			values[record.Name] = record.Value
		}
	}
	return values
}

// BranchArtifacts returns every record written on one branch path, in write
// order.
func (s *Store) BranchArtifacts(runID string, branch model.Path) []Record {
	rendered := branch.String()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []Record
	for _, record := range s.records {
		if record.RunID == runID && record.Branch == rendered {
			records = append(records, record)
		}
	}
	return records
}

// Runs lists the distinct run IDs present in the store, sorted.
func (s *Store) Runs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, record := range s.records {
		seen[record.RunID] = struct{}{}
	}

	runs := make([]string, 0, len(seen))
	for runID := range seen {
		runs = append(runs, runID)
	}
	sort.Strings(runs)
	return runs
}

// Len reports the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
