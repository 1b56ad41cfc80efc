package model

import (
	"fmt"
	"strings"
)

// Fork records one split decision on the way to a branch: the split step and
// the branch index taken at it. Indices are assigned in spawn order, starting
// at zero, and are stable for the lifetime of the run.
type Fork struct {
	Split string
	Index int
}

// Path is the ordered list of forks taken from the start step to reach a
// branch. The empty path denotes the top-level execution context.
type Path []Fork

// Child returns a new path extended by one fork. The receiver is not mutated.
func (p Path) Child(split string, index int) Path {
	child := make(Path, len(p)+1)
	copy(child, p)
	child[len(p)] = Fork{Split: split, Index: index}
	return child
}

// String renders the path as "split[i]/split[j]". The empty path renders as
// an empty string.
func (p Path) String() string {
	if len(p) == 0 {
		return ""
	}
	parts := make([]string, len(p))
	for i, f := range p {
		parts[i] = fmt.Sprintf("%s[%d]", f.Split, f.Index)
	}
	return strings.Join(parts, "/")
}

// Index returns the branch index of the innermost fork, or -1 for the
// top-level path.
func (p Path) Index() int {
	if len(p) == 0 {
		return -1
	}
	return p[len(p)-1].Index
}
