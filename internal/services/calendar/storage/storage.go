// Package storage defines the persistence boundaries for calendar
// events, their version history, and sharing grants.
package storage

import (
	"context"
	"time"

	apperrors "github.com/louisbranch/gatherspace/internal/platform/errors"
	"github.com/louisbranch/gatherspace/internal/services/calendar/domain/event"
	"github.com/louisbranch/gatherspace/internal/services/calendar/domain/share"
	"github.com/louisbranch/gatherspace/internal/services/calendar/domain/version"
)

// ErrNotFound indicates a requested persistence record is missing.
// Callers use this to differentiate between legitimate "no such entity"
// states and transport or data corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrVersionConflict indicates a version append raced with another
// writer and lost. The engine retries once before surfacing the
// conflict to the caller.
var ErrVersionConflict = apperrors.New(apperrors.CodeVersionConflict, "concurrent version write detected")

// ErrPermissionExists indicates a share grant already exists for the
// event and user pair.
var ErrPermissionExists = apperrors.New(apperrors.CodeShareAlreadyExists, "event already shared with user")

// EventStore owns the current-state event records that read paths and
// mutation preconditions consult.
type EventStore interface {
	// PutEvent stores or replaces an event record.
	PutEvent(ctx context.Context, evt event.Event) error
	// GetEvent retrieves an event by id. Returns ErrNotFound for
	// unknown and deleted events alike.
	GetEvent(ctx context.Context, eventID string) (event.Event, error)
	// ListEventsForUser returns a page of events the user owns or has
	// been granted access to, ordered by start time ascending.
	ListEventsForUser(ctx context.Context, req ListEventsRequest) (EventPage, error)
	// DeleteEvent removes the event record. Version history and
	// grants are cleaned up by the combined store operation, not here.
	DeleteEvent(ctx context.Context, eventID string) error
}

// ListEventsRequest describes filters for user-facing event listings.
type ListEventsRequest struct {
	// UserID scopes results to events the user can view (required).
	UserID string
	// RangeStart excludes events ending at or before this instant.
	RangeStart *time.Time
	// RangeEnd excludes events starting at or after this instant.
	RangeEnd *time.Time
	// PageSize is the maximum number of events to return
	// (default: 50, max: 200).
	PageSize int
	// PageToken resumes listing after a previous page.
	PageToken string
}

// EventPage describes a page of event records.
type EventPage struct {
	Events        []event.Event
	NextPageToken string
}

// VersionStore owns the append-only version history that drives
// rollback, comparison, and the changelog.
type VersionStore interface {
	// AppendVersion atomically assigns the next version number for
	// the event and stores the record. Returns ErrVersionConflict if
	// the assignment raced with a concurrent append.
	AppendVersion(ctx context.Context, v version.Version) (version.Version, error)
	// GetVersion retrieves a specific version of an event.
	GetVersion(ctx context.Context, eventID string, number uint64) (version.Version, error)
	// ListVersions returns all versions of an event, newest first.
	ListVersions(ctx context.Context, eventID string) ([]version.Version, error)
	// LatestVersion returns the highest version number recorded for
	// the event, or 0 when no versions exist.
	LatestVersion(ctx context.Context, eventID string) (uint64, error)
	// ListVersionsPage returns a filtered, paginated changelog slice.
	ListVersionsPage(ctx context.Context, req ListVersionsPageRequest) (VersionPage, error)
}

// ListVersionsPageRequest describes request filters for changelog views.
type ListVersionsPageRequest struct {
	// EventID scopes the query to a single event (required).
	EventID string
	// PageSize is the maximum number of versions to return
	// (default: 50, max: 200).
	PageSize int
	// CursorVersion is the version number to paginate from
	// (0 for the first page).
	CursorVersion uint64
	// Descending orders results newest first when true.
	Descending bool
	// FilterClause is an optional SQL WHERE clause fragment produced
	// by the filter package.
	FilterClause string
	// FilterParams are the positional parameters for the clause.
	FilterParams []any
}

// VersionPage contains a paginated changelog slice.
type VersionPage struct {
	Versions []version.Version
	// HasNextPage indicates more results exist past the cursor.
	HasNextPage bool
	// TotalCount is the total number of versions matching the filter.
	TotalCount int
}

// PermissionStore owns sharing grants. The owner never appears here;
// ownership lives on the event record.
type PermissionStore interface {
	// PutPermission stores a new grant. Returns ErrPermissionExists
	// if a grant already exists for the event and user.
	PutPermission(ctx context.Context, p share.Permission) error
	// UpdatePermission replaces the role on an existing grant.
	// Returns ErrNotFound if no grant exists.
	UpdatePermission(ctx context.Context, eventID, userID string, role share.Role, updatedAt time.Time) (share.Permission, error)
	// GetPermission retrieves the grant for an event and user pair.
	GetPermission(ctx context.Context, eventID, userID string) (share.Permission, error)
	// DeletePermission revokes a grant. Returns ErrNotFound if no
	// grant exists.
	DeletePermission(ctx context.Context, eventID, userID string) error
	// ListPermissionsByEvent returns all grants on an event ordered
	// by creation time.
	ListPermissionsByEvent(ctx context.Context, eventID string) ([]share.Permission, error)
	// ListEventIDsByUser returns the ids of events shared with the
	// user.
	ListEventIDsByUser(ctx context.Context, userID string) ([]string, error)
}

// Store is the full persistence surface the calendar service requires.
// The combined mutation methods keep an event record and its version
// history consistent under a single transaction.
type Store interface {
	EventStore
	VersionStore
	PermissionStore

	// CreateEventWithVersion atomically stores a new event and its
	// initial version record.
	CreateEventWithVersion(ctx context.Context, evt event.Event, v version.Version) (version.Version, error)
	// UpdateEventWithVersion atomically replaces the event record and
	// appends the next version. Returns ErrVersionConflict if another
	// writer appended first.
	UpdateEventWithVersion(ctx context.Context, evt event.Event, v version.Version) (version.Version, error)
	// DeleteEventWithGrants removes the event record and its grants
	// while retaining the version history for audit.
	DeleteEventWithGrants(ctx context.Context, eventID string) error
}
