package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/agenda/internal/ir"
	"github.com/roach88/agenda/internal/testutil"
)

// assertNoOverlap checks that no two activities in the program collide.
func assertNoOverlap(t *testing.T, cat *ir.Catalog, program []string) {
	t.Helper()
	for i := 0; i < len(program); i++ {
		a, ok := cat.Activity(program[i])
		require.True(t, ok, program[i])
		for j := i + 1; j < len(program); j++ {
			b, ok := cat.Activity(program[j])
			require.True(t, ok, program[j])
			assert.False(t, Overlaps(a, b), "%s overlaps %s", a.ID, b.ID)
		}
	}
}

func TestNoDoubleBooking_AnyOrder(t *testing.T) {
	cat := testutil.FestivalCatalog()
	ids := cat.ActivityIDs()

	orders := map[string][]string{
		"catalog": ids,
		"reverse": reversed(ids),
	}

	for name, order := range orders {
		t.Run(name, func(t *testing.T) {
			e, s := setupEngine(t)
			addParticipant(t, s, "p1", ir.RoleParticipant)
			ctx := context.Background()

			for _, id := range order {
				_, err := e.Select(ctx, "p1", id)
				if err != nil {
					_, isEngineErr := KindOf(err)
					require.True(t, isEngineErr, "unexpected error: %v", err)
				}
			}

			assertNoOverlap(t, cat, programIDs(t, e, "p1"))
		})
	}
}

func TestConcurrentSelects_SameParticipant(t *testing.T) {
	cat := &ir.Catalog{Activities: []ir.Activity{
		testutil.Activity("a", 1, "10:00", "11:00"),
		testutil.Activity("b", 1, "10:30", "11:30"),
		testutil.Activity("c", 1, "10:45", "11:15"),
	}}
	e, s := setupEngineWithCatalog(t, cat)
	addParticipant(t, s, "p1", ir.RoleParticipant)
	ctx := context.Background()

	var g errgroup.Group
	for i := 0; i < 30; i++ {
		id := cat.Activities[i%len(cat.Activities)].ID
		g.Go(func() error {
			_, err := e.Select(ctx, "p1", id)
			return err
		})
	}
	require.NoError(t, g.Wait())

	program := programIDs(t, e, "p1")
	assert.Len(t, program, 1, "last write wins leaves exactly one of the overlapping activities")
	assertNoOverlap(t, cat, program)
}

func TestConcurrentOperations_ManyParticipants(t *testing.T) {
	e, s := setupEngine(t)
	cat := testutil.FestivalCatalog()
	ctx := context.Background()

	const n = 8
	for i := 0; i < n; i++ {
		addParticipant(t, s, fmt.Sprintf("p%d", i), ir.RoleParticipant)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := 0; i < n; i++ {
		pid := fmt.Sprintf("p%d", i)
		g.Go(func() error {
			if _, err := e.EnsureRequired(gctx, pid); err != nil {
				return err
			}
			if _, err := e.Select(gctx, pid, "workshop_b"); err != nil {
				return err
			}
			_, err := e.UpdateProgram(gctx, pid, []string{"ceremony", "workshop_b", "hike"})
			return err
		})
	}
	require.NoError(t, g.Wait())

	for i := 0; i < n; i++ {
		program := programIDs(t, e, fmt.Sprintf("p%d", i))
		assert.Equal(t, []string{"ceremony", "workshop_b", "hike"}, program)
		assertNoOverlap(t, cat, program)
	}
}

func reversed(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out
}
