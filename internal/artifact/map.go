package artifact

import (
	"fmt"
	"sort"

	mlerrors "github.com/JoseManu96/ml.school/pkg/errors"
)

// Map is the working set of artifacts visible to one step execution. Reads
// see every value inherited from ancestor steps on the same branch path;
// writes land in the current step's own layer. Each branch of a parallel
// region receives a Clone, so siblings never share storage.
type Map struct {
	values  map[string]any
	written map[string]struct{}
}

// NewMap returns an empty working set.
func NewMap() *Map {
	return &Map{
		values:  make(map[string]any),
		written: make(map[string]struct{}),
	}
}

// Clone returns an independent copy for a new branch. Values are copied
// shallowly; artifact values are immutable by contract once written.
func (m *Map) Clone() *Map {
	clone := &Map{
		values:  make(map[string]any, len(m.values)),
		written: make(map[string]struct{}),
	}
	for name, value := range m.values {
		clone.values[name] = value
	}
	return clone
}

// BeginStep marks the start of a new step execution. Names written by
// earlier steps become inherited and may be shadowed by the new step.
func (m *Map) BeginStep() {
	m.written = make(map[string]struct{})
}

// Get returns the value currently visible under name.
func (m *Map) Get(name string) (any, bool) {
	value, ok := m.values[name]
	return value, ok
}

// Has reports whether name is visible.
func (m *Map) Has(name string) bool {
	_, ok := m.values[name]
	return ok
}

// Set records a value produced by the current step. Writing the same name
// twice within one step execution fails with ErrArtifactRewrite; shadowing a
// name inherited from an earlier step is allowed.
func (m *Map) Set(name string, value any) error {
	if _, dup := m.written[name]; dup {
		return fmt.Errorf("artifact %q: %w", name, mlerrors.ErrArtifactRewrite)
	}
	m.values[name] = value
	m.written[name] = struct{}{}
	return nil
}

// Written lists the names produced by the current step, sorted.
func (m *Map) Written() []string {
	names := make([]string, 0, len(m.written))
	for name := range m.written {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Names lists every visible artifact name, sorted.
func (m *Map) Names() []string {
	names := make([]string, 0, len(m.values))
	for name := range m.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of visible artifacts.
func (m *Map) Len() int {
	return len(m.values)
}

// Snapshot returns a detached copy of the visible values.
func (m *Map) Snapshot() map[string]any {
	snapshot := make(map[string]any, len(m.values))
	for name, value := range m.values {
		snapshot[name] = value
	}
	return snapshot
}
