package scope

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/dispatch/pkg/workflow"
)

func TestDetectConflictsOverlapIsSymmetric(t *testing.T) {
	m := NewManager("")
	glob := Claim{Owner: "wide", Patterns: []string{"src/**/*.py"}}
	path := Claim{Owner: "narrow", Patterns: []string{"src/app/main.py"}}

	forward := m.DetectConflicts([]Claim{glob, path})
	reversed := m.DetectConflicts([]Claim{path, glob})

	require.Len(t, forward, 1)
	require.Len(t, reversed, 1)
	assert.ElementsMatch(t, forward[0].Patterns, reversed[0].Patterns)
	assert.ElementsMatch(t, []string{"wide", "narrow"}, forward[0].Owners)
}

func TestDetectConflictsSharedClaimsNeverConflict(t *testing.T) {
	m := NewManager("")
	a := Claim{Owner: "a", Patterns: []string{"docs/**"}, Mode: workflow.ScopeShared}
	b := Claim{Owner: "b", Patterns: []string{"docs/**"}, Mode: workflow.ScopeShared}

	assert.Empty(t, m.DetectConflicts([]Claim{a, b}))

	// One exclusive participant over the same patterns conflicts.
	b.Mode = workflow.ScopeExclusive
	assert.Len(t, m.DetectConflicts([]Claim{a, b}), 1)
}

func TestDetectConflictsIdenticalPatterns(t *testing.T) {
	m := NewManager("")
	conflicts := m.DetectConflicts([]Claim{
		{Owner: "a", Patterns: []string{"src/*.go"}},
		{Owner: "b", Patterns: []string{"src/*.go"}},
	})

	require.Len(t, conflicts, 1)
	assert.Equal(t, []string{"src/*.go"}, conflicts[0].Patterns)
	assert.Contains(t, conflicts[0].Reason, "overlapping files")
}

func TestDetectConflictsDisjointPatterns(t *testing.T) {
	m := NewManager("")
	conflicts := m.DetectConflicts([]Claim{
		{Owner: "py", Patterns: []string{"src/**/*.py"}},
		{Owner: "docs", Patterns: []string{"docs/**/*.md"}},
	})
	assert.Empty(t, conflicts)
}

func TestDetectConflictsExpandsAgainstRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "src", "main.py"), []byte("print()\n"), 0o644))

	// The globs do not match each other textually; only filesystem
	// expansion reveals that both name src/main.py.
	claims := []Claim{
		{Owner: "a", Patterns: []string{"src/*.py"}},
		{Owner: "b", Patterns: []string{"**/main.py"}},
	}

	assert.Len(t, NewManager(root).DetectConflicts(claims), 1)
	assert.Empty(t, NewManager("").DetectConflicts(claims))
}

func TestDetectConflictsThreeWay(t *testing.T) {
	m := NewManager("")
	conflicts := m.DetectConflicts([]Claim{
		{Owner: "a", Patterns: []string{"src/**"}},
		{Owner: "b", Patterns: []string{"src/app/main.py"}},
		{Owner: "c", Patterns: []string{"docs/readme.md"}},
	})

	// Only the a/b pair overlaps; c stays out of every conflict.
	require.Len(t, conflicts, 1)
	assert.NotContains(t, conflicts[0].Owners, "c")
}
