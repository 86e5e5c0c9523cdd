// Package version models the immutable change history of an event: full
// field snapshots, sequential version records, and the field-level differ
// that renders human-readable change descriptions.
package version

import (
	"time"

	"github.com/louisbranch/gatherspace/internal/services/calendar/domain/event"
)

// Snapshot is the versioned subset of an event's fields at a point in time.
// Identifiers, ownership, and version metadata are deliberately excluded so
// two snapshots compare equal exactly when the user-visible fields do.
type Snapshot struct {
	Title          string
	Description    string
	StartTime      time.Time
	EndTime        time.Time
	Location       string
	IsRecurring    bool
	RecurrenceRule string
}

// Capture extracts the versioned fields from a live event.
func Capture(evt event.Event) Snapshot {
	return Snapshot{
		Title:          evt.Title,
		Description:    evt.Description,
		StartTime:      evt.StartTime.UTC(),
		EndTime:        evt.EndTime.UTC(),
		Location:       evt.Location,
		IsRecurring:    evt.IsRecurring,
		RecurrenceRule: evt.RecurrenceRule,
	}
}

// Restore writes the snapshot's fields back onto a live event, leaving
// identity, ownership, and version metadata untouched.
func Restore(evt event.Event, snap Snapshot) event.Event {
	evt.Title = snap.Title
	evt.Description = snap.Description
	evt.StartTime = snap.StartTime
	evt.EndTime = snap.EndTime
	evt.Location = snap.Location
	evt.IsRecurring = snap.IsRecurring
	evt.RecurrenceRule = snap.RecurrenceRule
	return evt
}
