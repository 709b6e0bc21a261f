package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/agenda/internal/ir"
	"github.com/roach88/agenda/internal/testutil"
)

func TestAnalyzeRequires_Empty(t *testing.T) {
	assert.Empty(t, AnalyzeRequires(nil))
}

func TestAnalyzeRequires_DAG(t *testing.T) {
	warnings := AnalyzeRequires([]ir.Correlation{
		testutil.Requires("ab", "a", "b"),
		testutil.Requires("ac", "a", "c"),
		testutil.Requires("bc", "b", "c"),
	})
	assert.Empty(t, warnings)
}

func TestAnalyzeRequires_SelfLoop(t *testing.T) {
	warnings := AnalyzeRequires([]ir.Correlation{testutil.Requires("aa", "a", "a")})
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"a", "a"}, warnings[0].Path)
	assert.Contains(t, warnings[0].Message, "requires itself")
}

func TestAnalyzeRequires_TwoNodeCycle(t *testing.T) {
	warnings := AnalyzeRequires([]ir.Correlation{
		testutil.Requires("ba", "b", "a"),
		testutil.Requires("ab", "a", "b"),
	})
	require.Len(t, warnings, 1)
	assert.Equal(t, ir.WarnRequiresCycle, warnings[0].Code)
	assert.Equal(t, []string{"a", "b", "a"}, warnings[0].Path)
	assert.Equal(t, "REQUIRES cycle detected: a → b → a", warnings[0].Message)
}

func TestAnalyzeRequires_IgnoresExcludesAndRoleLevel(t *testing.T) {
	warnings := AnalyzeRequires([]ir.Correlation{
		testutil.Requires("ab", "a", "b"),
		testutil.Excludes("ba", "b", "a"),
		{ID: "r", Rule: ir.RuleAll, SourceActivityID: "a"},
	})
	assert.Empty(t, warnings)
}

func TestAnalyzeRequires_MultipleCyclesSorted(t *testing.T) {
	warnings := AnalyzeRequires([]ir.Correlation{
		testutil.Requires("yz", "y", "z"),
		testutil.Requires("zy", "z", "y"),
		testutil.Requires("ab", "a", "b"),
		{ID: "ba", Rule: ir.RuleAll, SourceActivityID: "b", TargetActivityID: "a"},
	})
	require.Len(t, warnings, 2)
	assert.Equal(t, []string{"a", "b", "a"}, warnings[0].Path)
	assert.Equal(t, []string{"y", "z", "y"}, warnings[1].Path)
}
