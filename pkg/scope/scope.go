// Package scope predicts file-claim conflicts between workflow steps.
//
// A claim names the file patterns a step intends to touch and whether
// its access is exclusive or shared. The manager detects overlaps so
// the router can build safe parallel execution groups; it does not
// prevent a misbehaving adapter from writing outside its claim.
package scope

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tombee/dispatch/pkg/workflow"
)

// Claim is one step's (or workflow's) declared file scope.
type Claim struct {
	// Owner identifies the claiming step or workflow
	Owner string

	// Patterns are the glob patterns the owner intends to touch
	Patterns []string

	// Mode is exclusive or shared; exclusive conflicts with any
	// overlapping claim, shared only with overlapping exclusive ones
	Mode workflow.ScopeMode
}

// Conflict names two claims whose patterns overlap.
type Conflict struct {
	// Owners are the ids of the conflicting claims
	Owners []string

	// Patterns lists the overlapping pattern pairs
	Patterns []string

	// Reason is a human-readable description of the overlap
	Reason string
}

// Manager detects conflicts over an immutable snapshot of claims. It
// takes no locks and performs no I/O beyond globbing.
type Manager struct {
	// root anchors filesystem expansion of relative patterns; empty
	// means patterns are compared as globs only
	root string
}

// NewManager creates a scope manager. root may be empty.
func NewManager(root string) *Manager {
	return &Manager{root: root}
}

// DetectConflicts compares every claim pair and reports those whose
// pattern sets overlap with at least one exclusive participant. Two
// shared claims never conflict.
func (m *Manager) DetectConflicts(claims []Claim) []Conflict {
	var conflicts []Conflict
	for i := 0; i < len(claims); i++ {
		for j := i + 1; j < len(claims); j++ {
			a, b := claims[i], claims[j]
			if a.Mode == workflow.ScopeShared && b.Mode == workflow.ScopeShared {
				continue
			}
			overlapping := m.overlappingPatterns(a.Patterns, b.Patterns)
			if len(overlapping) == 0 {
				continue
			}
			conflicts = append(conflicts, Conflict{
				Owners:   []string{a.Owner, b.Owner},
				Patterns: overlapping,
				Reason: fmt.Sprintf("%s and %s claim overlapping files (%s)",
					a.Owner, b.Owner, strings.Join(overlapping, ", ")),
			})
		}
	}
	return conflicts
}

// overlappingPatterns returns the deduplicated patterns from both sets
// that overlap with a pattern on the other side.
func (m *Manager) overlappingPatterns(as, bs []string) []string {
	seen := make(map[string]bool)
	var overlapping []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			overlapping = append(overlapping, p)
		}
	}
	for _, a := range as {
		for _, b := range bs {
			if m.patternsOverlap(a, b) {
				add(a)
				add(b)
			}
		}
	}
	sort.Strings(overlapping)
	return overlapping
}

// patternsOverlap reports whether two glob patterns can name a common
// path. Each pattern is matched against the other (a concrete path is
// matched by the broader glob), then, when a root is configured, both
// are expanded against the filesystem and their result sets compared.
func (m *Manager) patternsOverlap(a, b string) bool {
	if a == b {
		return true
	}
	if ok, err := doublestar.Match(a, b); err == nil && ok {
		return true
	}
	if ok, err := doublestar.Match(b, a); err == nil && ok {
		return true
	}
	if m.root == "" {
		return false
	}

	pathsA := m.expand(a)
	if len(pathsA) == 0 {
		return false
	}
	pathsB := m.expand(b)
	if len(pathsB) == 0 {
		return false
	}
	inA := make(map[string]bool, len(pathsA))
	for _, p := range pathsA {
		inA[p] = true
	}
	for _, p := range pathsB {
		if inA[p] {
			return true
		}
	}
	return false
}

// expand globs a pattern against the configured root.
func (m *Manager) expand(pattern string) []string {
	matches, err := doublestar.Glob(rootFS(m.root), pattern)
	if err != nil {
		return nil
	}
	return matches
}
