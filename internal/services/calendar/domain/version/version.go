package version

import "time"

// Version is one immutable entry in an event's change journal. Records are
// created exactly once per accepted mutation and never modified or deleted.
type Version struct {
	// EventID is the event this version belongs to.
	EventID string
	// Number is the version sequence within the event (starts at 1).
	// Assigned by storage on append.
	Number uint64
	// Snapshot holds the full versioned field state at this version.
	Snapshot Snapshot
	// ChangedBy is the user who caused the change.
	ChangedBy string
	// CreatedAt is when the version was recorded.
	CreatedAt time.Time
	// ChangeDescription is the rendered summary of what changed.
	ChangeDescription string
}
