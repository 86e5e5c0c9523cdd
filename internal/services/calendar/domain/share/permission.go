package share

import "time"

// Permission is a persisted grant of a role on an event to a user.
// The owner's access is implicit in the event record and is never
// stored as a Permission row.
type Permission struct {
	EventID   string
	UserID    string
	Role      Role
	CreatedAt time.Time
	UpdatedAt *time.Time
}
