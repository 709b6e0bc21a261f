package engine

import "github.com/roach88/agenda/internal/ir"

// Booking is a selection together with the activity it claims.
type Booking struct {
	Selection ir.Selection
	Activity  ir.Activity
}

// Overlaps reports whether two activities collide: same day-partition key
// and overlapping half-open windows.
func Overlaps(a, b ir.Activity) bool {
	return a.ConflictsWith(b)
}

// FindConflict returns the first booking in current that collides with
// candidate. A booking of candidate itself never conflicts.
func FindConflict(candidate ir.Activity, current []Booking) (Booking, bool) {
	for _, b := range current {
		if b.Activity.ID == candidate.ID {
			continue
		}
		if Overlaps(candidate, b.Activity) {
			return b, true
		}
	}
	return Booking{}, false
}

// FindConflicts returns every booking in current that collides with
// candidate, in the order of current. Bookings in a valid program never
// collide with each other, but a long candidate can still span several.
func FindConflicts(candidate ir.Activity, current []Booking) []Booking {
	var out []Booking
	for _, b := range current {
		if b.Activity.ID != candidate.ID && Overlaps(candidate, b.Activity) {
			out = append(out, b)
		}
	}
	return out
}

func bookingIDs(bs []Booking) []string {
	ids := make([]string, len(bs))
	for i, b := range bs {
		ids[i] = b.Activity.ID
	}
	return ids
}
