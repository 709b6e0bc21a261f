package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/agenda/internal/ir"
	"github.com/roach88/agenda/internal/testutil"
)

// createTestStore opens a fresh database in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createFestivalStore opens a store seeded with the festival catalog and
// one participant per given role, with ids "p-<role>".
func createFestivalStore(t *testing.T, roles ...ir.ParticipantRole) *Store {
	t.Helper()
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.ImportCatalog(ctx, testutil.FestivalCatalog())
	require.NoError(t, err)

	for _, role := range roles {
		require.NoError(t, s.SaveParticipant(ctx, ir.Participant{ID: participantID(role), Role: role}))
	}
	return s
}

func participantID(role ir.ParticipantRole) string {
	return "p-" + string(role)
}

func newSelection(id, participant, activity string) ir.Selection {
	return ir.Selection{
		ID:            id,
		ParticipantID: participant,
		ActivityID:    activity,
		EnrolledAt:    testutil.EventStart,
	}
}
