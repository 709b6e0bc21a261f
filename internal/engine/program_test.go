package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/agenda/internal/ir"
)

func TestUpdateProgram_AddsAndEnsuresMandatory(t *testing.T) {
	e, s := setupEngine(t)
	addParticipant(t, s, "p1", ir.RoleParticipant)

	program, err := e.UpdateProgram(context.Background(), "p1", []string{"workshop_b", "hike"})
	require.NoError(t, err)

	assert.Equal(t, []string{"ceremony", "workshop_b", "hike"}, activityIDs(program))
}

func TestUpdateProgram_RemovesOptional(t *testing.T) {
	e, s := setupEngine(t)
	addParticipant(t, s, "p1", ir.RoleParticipant)
	ctx := context.Background()

	_, err := e.UpdateProgram(ctx, "p1", []string{"workshop_b", "hike"})
	require.NoError(t, err)

	program, err := e.UpdateProgram(ctx, "p1", []string{"ceremony", "workshop_b", "lunch"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ceremony", "workshop_b", "lunch"}, activityIDs(program))
}

func TestUpdateProgram_RefusesToDropMandatory(t *testing.T) {
	e, s := setupEngine(t)
	addParticipant(t, s, "p1", ir.RoleParticipant)
	ctx := context.Background()

	_, err := e.UpdateProgram(ctx, "p1", []string{"workshop_b", "hike"})
	require.NoError(t, err)

	_, err = e.UpdateProgram(ctx, "p1", []string{"workshop_b"})
	require.True(t, IsConflict(err), "got %v", err)

	var engineErr *Error
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, "ceremony", engineErr.ActivityID)

	assert.Equal(t, []string{"ceremony", "workshop_b", "hike"}, programIDs(t, e, "p1"), "nothing changed")
}

func TestUpdateProgram_UnknownActivity(t *testing.T) {
	e, s := setupEngine(t)
	addParticipant(t, s, "p1", ir.RoleParticipant)
	ctx := context.Background()

	_, err := e.Select(ctx, "p1", "hike")
	require.NoError(t, err)

	_, err = e.UpdateProgram(ctx, "p1", []string{"lunch", "karaoke"})
	require.True(t, IsNotFound(err), "got %v", err)

	assert.Equal(t, []string{"hike"}, programIDs(t, e, "p1"), "nothing changed")
}

func TestUpdateProgram_DuplicatesAndNoop(t *testing.T) {
	e, s := setupEngine(t)
	addParticipant(t, s, "p1", ir.RoleParticipant)
	ctx := context.Background()

	first, err := e.UpdateProgram(ctx, "p1", []string{"hike", "hike", "ceremony"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ceremony", "hike"}, activityIDs(first))

	second, err := e.UpdateProgram(ctx, "p1", []string{"ceremony", "hike"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestUpdateProgram_RunsSelectPipeline(t *testing.T) {
	e, s := setupEngine(t)
	addParticipant(t, s, "p1", ir.RoleParticipant)

	program, err := e.UpdateProgram(context.Background(), "p1", []string{"ceremony", "workshop_b", "gala"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ceremony", "workshop_b", "gala"}, activityIDs(program))

	_, err = e.UpdateProgram(context.Background(), "p1", []string{"ceremony", "gala", "hike"})
	require.True(t, IsConflict(err), "hike is excluded by gala: %v", err)
}

func TestUpdateProgram_SelectingOverMandatoryFails(t *testing.T) {
	e, s := setupEngine(t)
	addParticipant(t, s, "junior", ir.RoleMembreJunior)

	_, err := e.UpdateProgram(context.Background(), "junior", []string{"workshop_a"})
	require.True(t, IsConflict(err), "got %v", err)

	assert.Equal(t, []string{"ceremony"}, programIDs(t, e, "junior"),
		"mandatory selections are re-asserted before additions")
}

func TestUpdateProgram_FailureModes(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want []string
	}{
		{"best effort keeps earlier steps", nil, []string{"ceremony", "hike"}},
		{"atomic rolls back", []Option{WithAtomicPrograms()}, []string{"ceremony", "lunch"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, s := setupEngine(t, tt.opts...)
			addParticipant(t, s, "junior", ir.RoleMembreJunior)
			ctx := context.Background()

			_, err := e.UpdateProgram(ctx, "junior", []string{"ceremony", "lunch"})
			require.NoError(t, err)

			_, err = e.UpdateProgram(ctx, "junior", []string{"ceremony", "hike", "board_meeting"})
			require.True(t, IsForbidden(err), "got %v", err)

			assert.Equal(t, tt.want, programIDs(t, e, "junior"))
		})
	}
}

func TestUpdateProgram_MandatoryAlwaysPresent(t *testing.T) {
	roles := []ir.ParticipantRole{ir.RoleParticipant, ir.RolePresident, ir.RoleAlumni, ir.RoleMembreJunior}
	for _, role := range roles {
		t.Run(string(role), func(t *testing.T) {
			e, s := setupEngine(t)
			addParticipant(t, s, "p1", role)
			ctx := context.Background()

			program, err := e.UpdateProgram(ctx, "p1", []string{"workshop_b", "lunch"})
			require.NoError(t, err)

			rs, err := e.Rules(ctx, "p1")
			require.NoError(t, err)

			got := activityIDs(program)
			for _, id := range rs.MandatoryIDs() {
				assert.Contains(t, got, id)
			}
		})
	}
}

func TestUpdateProgram_KeptActivityEvictedByMandatory(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want []string
	}{
		{"best effort keeps the mandatory re-assert", nil, []string{"lunch", "ceremony"}},
		{"atomic rolls back", []Option{WithAtomicPrograms()}, []string{"workshop_a", "lunch"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, s := setupEngine(t, tt.opts...)
			addParticipant(t, s, "p1", ir.RoleParticipant)
			ctx := context.Background()

			_, err := e.Select(ctx, "p1", "workshop_a")
			require.NoError(t, err)
			require.Equal(t, []string{"workshop_a", "lunch"}, programIDs(t, e, "p1"))

			_, err = e.UpdateProgram(ctx, "p1", []string{"workshop_a", "lunch"})
			require.True(t, IsConflict(err), "workshop_a overlaps the mandatory ceremony: %v", err)

			var engineErr *Error
			require.ErrorAs(t, err, &engineErr)
			assert.Equal(t, "workshop_a", engineErr.ActivityID)
			assert.Equal(t, "ceremony", engineErr.Details["mandatory_activity_id"])

			assert.Equal(t, tt.want, programIDs(t, e, "p1"))
		})
	}
}
