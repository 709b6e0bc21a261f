package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/agenda/internal/ir"
	"github.com/roach88/agenda/internal/testutil"
)

func TestImportCatalog_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	want := testutil.FestivalCatalog()

	result, err := s.ImportCatalog(ctx, want)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{ActivityTypes: 5, Activities: 7, Correlations: 4}, result)

	got, err := s.LoadCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestImportCatalog_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := s.ImportCatalog(ctx, testutil.FestivalCatalog())
		require.NoError(t, err)
	}

	activities, err := s.ListActivities(ctx)
	require.NoError(t, err)
	assert.Len(t, activities, 7)

	correlations, err := s.ListCorrelations(ctx, CorrelationFilter{})
	require.NoError(t, err)
	assert.Len(t, correlations, 4)
}

func TestImportCatalog_KeepsSelectionsOnSurvivingActivities(t *testing.T) {
	s := createFestivalStore(t, ir.RoleParticipant)
	ctx := context.Background()
	pid := participantID(ir.RoleParticipant)

	_, err := s.CreateSelection(ctx, newSelection("sel-1", pid, "lunch"))
	require.NoError(t, err)
	_, err = s.CreateSelection(ctx, newSelection("sel-2", pid, "hike"))
	require.NoError(t, err)

	cat := testutil.FestivalCatalog()
	var kept []ir.Activity
	for _, a := range cat.Activities {
		if a.ID != "hike" {
			kept = append(kept, a)
		}
	}
	cat.Activities = kept
	cat.Correlations = cat.Correlations[:1]

	result, err := s.ImportCatalog(ctx, cat)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RemovedActivities)

	sels, err := s.ListSelections(ctx, pid)
	require.NoError(t, err)
	require.Len(t, sels, 1)
	assert.Equal(t, "lunch", sels[0].ActivityID)

	_, err = s.GetActivity(ctx, "hike")
	assert.ErrorIs(t, err, ErrNotFound)

	correlations, err := s.ListCorrelations(ctx, CorrelationFilter{})
	require.NoError(t, err)
	require.Len(t, correlations, 1)
	assert.Equal(t, "workshop_lunch", correlations[0].ID)
}

func TestImportCatalog_UpdatesActivityInPlace(t *testing.T) {
	s := createFestivalStore(t)
	ctx := context.Background()

	cat := testutil.FestivalCatalog()
	cat.Activities[3].Name = "Picnic Lunch"
	cat.Activities[3].Capacity = 40

	_, err := s.ImportCatalog(ctx, cat)
	require.NoError(t, err)

	lunch, err := s.GetActivity(ctx, "lunch")
	require.NoError(t, err)
	assert.Equal(t, "Picnic Lunch", lunch.Name)
	assert.Equal(t, 40, lunch.Capacity)
}

func TestImportCatalog_Empty(t *testing.T) {
	s := createFestivalStore(t)
	ctx := context.Background()

	result, err := s.ImportCatalog(ctx, &ir.Catalog{})
	require.NoError(t, err)
	assert.Equal(t, 7, result.RemovedActivities)

	cat, err := s.LoadCatalog(ctx)
	require.NoError(t, err)
	assert.Empty(t, cat.ActivityTypes)
	assert.Empty(t, cat.Activities)
	assert.Empty(t, cat.Correlations)
}

func TestListActivities_CatalogOrder(t *testing.T) {
	s := createFestivalStore(t)

	activities, err := s.ListActivities(context.Background())
	require.NoError(t, err)

	ids := make([]string, len(activities))
	for i, a := range activities {
		ids[i] = a.ID
	}
	assert.Equal(t, []string{"ceremony", "workshop_a", "workshop_b", "lunch", "board_meeting", "hike", "gala"}, ids)
}

func TestListCorrelations_FilterByActivity(t *testing.T) {
	s := createFestivalStore(t)
	ctx := context.Background()

	tests := []struct {
		activity string
		want     []string
	}{
		{"gala", []string{"gala_hike", "alumni_gala"}},
		{"hike", []string{"gala_hike"}},
		{"lunch", []string{"workshop_lunch"}},
		{"ceremony", nil},
	}

	for _, tt := range tests {
		t.Run(tt.activity, func(t *testing.T) {
			correlations, err := s.ListCorrelations(ctx, CorrelationFilter{ActivityID: tt.activity})
			require.NoError(t, err)

			var ids []string
			for _, c := range correlations {
				ids = append(ids, c.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}
