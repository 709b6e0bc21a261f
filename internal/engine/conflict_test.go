package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/agenda/internal/ir"
	"github.com/roach88/agenda/internal/testutil"
)

func booking(a ir.Activity) Booking {
	return Booking{Selection: ir.Selection{ID: "sel-" + a.ID, ActivityID: a.ID}, Activity: a}
}

func TestOverlaps(t *testing.T) {
	base := testutil.Activity("a", 1, "10:00", "11:00")

	tests := []struct {
		name  string
		other ir.Activity
		want  bool
	}{
		{"partial overlap", testutil.Activity("b", 1, "10:30", "11:30"), true},
		{"contained", testutil.Activity("b", 1, "10:15", "10:45"), true},
		{"identical window", testutil.Activity("b", 1, "10:00", "11:00"), true},
		{"touching end", testutil.Activity("b", 1, "11:00", "12:00"), false},
		{"touching start", testutil.Activity("b", 1, "09:00", "10:00"), false},
		{"other day", testutil.Activity("b", 2, "10:00", "11:00"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(base, tt.other))
			assert.Equal(t, tt.want, Overlaps(tt.other, base), "symmetric")
		})
	}
}

func TestFindConflict(t *testing.T) {
	a := testutil.Activity("a", 1, "09:00", "10:00")
	b := testutil.Activity("b", 1, "10:00", "11:00")
	c := testutil.Activity("c", 1, "12:00", "13:00")
	current := []Booking{booking(a), booking(b), booking(c)}

	got, ok := FindConflict(testutil.Activity("x", 1, "10:30", "11:30"), current)
	assert.True(t, ok)
	assert.Equal(t, "b", got.Activity.ID)
	assert.Equal(t, "sel-b", got.Selection.ID)

	_, ok = FindConflict(testutil.Activity("y", 1, "11:00", "12:00"), current)
	assert.False(t, ok)

	_, ok = FindConflict(a, current)
	assert.False(t, ok, "an activity never conflicts with its own booking")

	_, ok = FindConflict(a, nil)
	assert.False(t, ok)
}

func TestFindConflicts(t *testing.T) {
	a := testutil.Activity("a", 1, "09:00", "10:00")
	b := testutil.Activity("b", 1, "11:00", "12:00")
	c := testutil.Activity("c", 2, "09:00", "12:00")
	current := []Booking{booking(a), booking(b), booking(c)}

	got := FindConflicts(testutil.Activity("x", 1, "09:30", "11:30"), current)
	assert.Equal(t, []string{"a", "b"}, bookingIDs(got))

	assert.Empty(t, FindConflicts(testutil.Activity("y", 1, "10:00", "11:00"), current))
	assert.Empty(t, FindConflicts(a, current))
}
