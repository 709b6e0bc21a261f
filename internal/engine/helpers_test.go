package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/agenda/internal/ir"
	"github.com/roach88/agenda/internal/store"
	"github.com/roach88/agenda/internal/testutil"
)

func setupTestStore(t *testing.T, cat *ir.Catalog) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.ImportCatalog(context.Background(), cat)
	require.NoError(t, err)
	return s
}

// setupEngine returns an engine over the festival catalog with
// deterministic ids and clock.
func setupEngine(t *testing.T, opts ...Option) (*Engine, *store.Store) {
	t.Helper()
	return setupEngineWithCatalog(t, testutil.FestivalCatalog(), opts...)
}

func setupEngineWithCatalog(t *testing.T, cat *ir.Catalog, opts ...Option) (*Engine, *store.Store) {
	t.Helper()
	s := setupTestStore(t, cat)
	clock := testutil.NewStepClock(testutil.EventStart.AddDate(0, -1, 0), time.Minute)
	base := []Option{
		WithIDGenerator(testutil.NewSequentialIDs("")),
		WithClock(clock.Now),
	}
	return New(s, append(base, opts...)...), s
}

func addParticipant(t *testing.T, s *store.Store, id string, role ir.ParticipantRole) {
	t.Helper()
	require.NoError(t, s.SaveParticipant(context.Background(), ir.Participant{ID: id, Role: role}))
}

// programIDs returns the activity ids of the participant's program in
// enrolment order.
func programIDs(t *testing.T, e *Engine, participantID string) []string {
	t.Helper()
	program, err := e.Program(context.Background(), participantID)
	require.NoError(t, err)
	return activityIDs(program)
}

func activityIDs(sels []ir.Selection) []string {
	ids := make([]string, 0, len(sels))
	for _, s := range sels {
		ids = append(ids, s.ActivityID)
	}
	return ids
}

// chainCatalog builds activities a0..a(n-1) on separate hours of day 1,
// each REQUIRES the next.
func chainCatalog(n int) *ir.Catalog {
	cat := &ir.Catalog{}
	for i := 0; i < n; i++ {
		id := chainID(i)
		start := time.Duration(8+i) * time.Hour
		a := ir.Activity{
			ID:        id,
			Name:      id,
			StartTime: testutil.EventStart.Add(start),
			EndTime:   testutil.EventStart.Add(start + 30*time.Minute),
			Capacity:  10,
			DayKey:    testutil.DayKey(1),
		}
		cat.Activities = append(cat.Activities, a)
		if i > 0 {
			cat.Correlations = append(cat.Correlations, testutil.Requires("r"+chainID(i-1), chainID(i-1), id))
		}
	}
	return cat
}

func chainID(i int) string {
	return string(rune('a'+i)) + "0"
}
