package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/agenda/internal/ir"
	"github.com/roach88/agenda/internal/testutil"
)

func TestAutoPick_FollowsChain(t *testing.T) {
	e, s := setupEngineWithCatalog(t, chainCatalog(5))
	addParticipant(t, s, "p1", ir.RoleParticipant)

	result, err := e.Select(context.Background(), "p1", "a0")
	require.NoError(t, err)

	assert.Equal(t, []string{"b0", "c0", "d0", "e0"}, activityIDs(result.AutoPicked))
	assert.Equal(t, []string{"a0", "b0", "c0", "d0", "e0"}, programIDs(t, e, "p1"))
}

func TestAutoPick_CycleTerminates(t *testing.T) {
	cat := &ir.Catalog{
		Activities: []ir.Activity{
			testutil.Activity("x", 1, "09:00", "10:00"),
			testutil.Activity("y", 1, "10:00", "11:00"),
			testutil.Activity("z", 1, "11:00", "12:00"),
		},
		Correlations: []ir.Correlation{
			testutil.Requires("xy", "x", "y"),
			testutil.Requires("yz", "y", "z"),
			testutil.Requires("zx", "z", "x"),
		},
	}
	e, s := setupEngineWithCatalog(t, cat)
	addParticipant(t, s, "p1", ir.RoleParticipant)

	result, err := e.Select(context.Background(), "p1", "x")
	require.NoError(t, err)

	assert.Equal(t, []string{"y", "z"}, activityIDs(result.AutoPicked))
	assert.Equal(t, []string{"x", "y", "z"}, programIDs(t, e, "p1"))
}

func TestAutoPick_QuotaExceeded(t *testing.T) {
	e, s := setupEngineWithCatalog(t, chainCatalog(5), WithMaxSteps(2))
	addParticipant(t, s, "p1", ir.RoleParticipant)

	_, err := e.Select(context.Background(), "p1", "a0")
	require.True(t, IsStepsExceededError(err), "got %v", err)

	var stepsErr *StepsExceededError
	require.ErrorAs(t, err, &stepsErr)
	assert.Equal(t, "d0", stepsErr.ActivityID)
	assert.Equal(t, 3, stepsErr.Steps)
	assert.Equal(t, 2, stepsErr.Limit)

	assert.Empty(t, programIDs(t, e, "p1"), "quota failure rolls back the select")
}

func TestAutoPick_Skips(t *testing.T) {
	tests := []struct {
		name     string
		cat      *ir.Catalog
		before   []string
		wantCode string
		program  []string
	}{
		{
			name: "forbidden target",
			cat: &ir.Catalog{
				Activities: []ir.Activity{
					testutil.Activity("a", 1, "09:00", "10:00"),
					testutil.Activity("b", 1, "11:00", "12:00"),
				},
				Correlations: []ir.Correlation{
					testutil.Requires("ab", "a", "b"),
					testutil.RoleRule("no_b", ir.RuleExcludes, "b", ir.RoleParticipant),
				},
			},
			wantCode: WarnAutoPickForbidden,
			program:  []string{"a"},
		},
		{
			name: "target overlaps the requested activity",
			cat: &ir.Catalog{
				Activities: []ir.Activity{
					testutil.Activity("a", 1, "09:00", "10:00"),
					testutil.Activity("b", 1, "09:30", "10:30"),
				},
				Correlations: []ir.Correlation{testutil.Requires("ab", "a", "b")},
			},
			wantCode: WarnAutoPickConflict,
			program:  []string{"a"},
		},
		{
			name: "target overlaps a mandatory selection",
			cat: &ir.Catalog{
				Activities: []ir.Activity{
					testutil.Activity("a", 1, "09:00", "10:00"),
					testutil.Activity("b", 1, "11:00", "12:00"),
					testutil.Required(testutil.Activity("m", 1, "11:30", "12:30")),
				},
				Correlations: []ir.Correlation{testutil.Requires("ab", "a", "b")},
			},
			before:   []string{"m"},
			wantCode: WarnAutoPickConflict,
			program:  []string{"m", "a"},
		},
		{
			name: "target excluded by a selection",
			cat: &ir.Catalog{
				Activities: []ir.Activity{
					testutil.Activity("a", 1, "09:00", "10:00"),
					testutil.Activity("b", 1, "11:00", "12:00"),
					testutil.Activity("c", 1, "14:00", "15:00"),
				},
				Correlations: []ir.Correlation{
					testutil.Requires("ab", "a", "b"),
					testutil.Excludes("bc", "b", "c"),
				},
			},
			before:   []string{"c"},
			wantCode: WarnAutoPickExcluded,
			program:  []string{"c", "a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, s := setupEngineWithCatalog(t, tt.cat)
			addParticipant(t, s, "p1", ir.RoleParticipant)
			ctx := context.Background()

			for _, id := range tt.before {
				_, err := e.Select(ctx, "p1", id)
				require.NoError(t, err)
			}

			result, err := e.Select(ctx, "p1", "a")
			require.NoError(t, err)

			assert.Empty(t, result.AutoPicked)
			require.Len(t, result.Warnings, 1)
			assert.Equal(t, tt.wantCode, result.Warnings[0].Code)
			assert.Equal(t, "b", result.Warnings[0].ActivityID)
			assert.Equal(t, tt.program, programIDs(t, e, "p1"))
		})
	}
}

func TestAutoPick_EvictsUnprotectedSelection(t *testing.T) {
	cat := &ir.Catalog{
		Activities: []ir.Activity{
			testutil.Activity("a", 1, "09:00", "10:00"),
			testutil.Activity("b", 1, "11:00", "12:00"),
			testutil.Activity("x", 1, "11:30", "12:30"),
		},
		Correlations: []ir.Correlation{testutil.Requires("ab", "a", "b")},
	}
	e, s := setupEngineWithCatalog(t, cat)
	addParticipant(t, s, "p1", ir.RoleParticipant)
	ctx := context.Background()

	_, err := e.Select(ctx, "p1", "x")
	require.NoError(t, err)

	result, err := e.Select(ctx, "p1", "a")
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, activityIDs(result.AutoPicked))
	assert.Equal(t, []string{"x"}, activityIDs(result.Evicted))
	assert.Equal(t, []string{"a", "b"}, programIDs(t, e, "p1"))
}

func TestAutoPick_RoleRestrictions(t *testing.T) {
	activities := []ir.Activity{
		testutil.Activity("a", 1, "09:00", "10:00"),
		testutil.Activity("b", 1, "11:00", "12:00"),
	}

	tests := []struct {
		name string
		corr ir.Correlation
		role ir.ParticipantRole
		want []string
	}{
		{"auto-pick limited to other role", testutil.AutoPickFor(testutil.Requires("ab", "a", "b"), ir.RoleAlumni), ir.RoleParticipant, []string{}},
		{"auto-pick limited to own role", testutil.AutoPickFor(testutil.Requires("ab", "a", "b"), ir.RoleAlumni), ir.RoleAlumni, []string{"b"}},
		{"rule scoped to other role", testutil.ForRole(testutil.Requires("ab", "a", "b"), ir.RoleAlumni), ir.RoleParticipant, []string{}},
		{"ALL target is not picked", ir.Correlation{ID: "ab", Rule: ir.RuleAll, SourceActivityID: "a", TargetActivityID: "b"}, ir.RoleParticipant, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := &ir.Catalog{Activities: activities, Correlations: []ir.Correlation{tt.corr}}
			e, s := setupEngineWithCatalog(t, cat)
			addParticipant(t, s, "p1", tt.role)

			result, err := e.Select(context.Background(), "p1", "a")
			require.NoError(t, err)

			assert.Equal(t, tt.want, activityIDs(result.AutoPicked))
			assert.Empty(t, result.Warnings)
		})
	}
}
