package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	apperrors "github.com/louisbranch/gatherspace/internal/platform/errors"
	"github.com/louisbranch/gatherspace/internal/services/calendar/domain/event"
	"github.com/louisbranch/gatherspace/internal/services/calendar/domain/share"
	"github.com/louisbranch/gatherspace/internal/services/calendar/domain/version"
	"github.com/louisbranch/gatherspace/internal/services/calendar/storage"
	"github.com/louisbranch/gatherspace/internal/services/calendar/storage/filter"
)

// CreateEvent validates the input, persists the event, and records
// version 1 of its history.
func (s *Service) CreateEvent(ctx context.Context, actorID string, input event.CreateInput) (event.Event, error) {
	evt, err := event.Create(actorID, input, s.now, s.idGenerator)
	if err != nil {
		return event.Event{}, err
	}

	v := version.Version{
		EventID:           evt.ID,
		Number:            1,
		Snapshot:          version.Capture(evt),
		ChangedBy:         actorID,
		CreatedAt:         evt.CreatedAt,
		ChangeDescription: version.DescriptionInitialCreation,
	}
	if _, err := s.store.CreateEventWithVersion(ctx, evt, v); err != nil {
		return event.Event{}, fmt.Errorf("persist event: %w", err)
	}
	return evt, nil
}

// BatchCreateEvents creates several events for the same actor. Inputs
// are validated up front so a bad entry fails the whole batch before
// anything is persisted.
func (s *Service) BatchCreateEvents(ctx context.Context, actorID string, inputs []event.CreateInput) ([]event.Event, error) {
	for i, input := range inputs {
		if _, err := event.NormalizeCreateInput(input); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeOf(err), fmt.Sprintf("event %d invalid", i), err)
		}
	}

	events := make([]event.Event, 0, len(inputs))
	for _, input := range inputs {
		evt, err := s.CreateEvent(ctx, actorID, input)
		if err != nil {
			return events, err
		}
		events = append(events, evt)
	}
	return events, nil
}

// GetEvent returns the event when the actor holds at least viewer
// access.
func (s *Service) GetEvent(ctx context.Context, actorID, eventID string) (event.Event, error) {
	return s.authorize(ctx, actorID, eventID, share.Role.CanView)
}

// ListEvents returns a page of events the actor owns or was granted
// access to.
func (s *Service) ListEvents(ctx context.Context, actorID string, q ListEventsQuery) (storage.EventPage, error) {
	return s.store.ListEventsForUser(ctx, storage.ListEventsRequest{
		UserID:     actorID,
		RangeStart: q.RangeStart,
		RangeEnd:   q.RangeEnd,
		PageSize:   q.PageSize,
		PageToken:  q.PageToken,
	})
}

// ListEventsQuery describes filters for user-facing event listings.
type ListEventsQuery struct {
	RangeStart *time.Time
	RangeEnd   *time.Time
	PageSize   int
	PageToken  string
}

// UpdateEvent applies a partial update and appends the next version.
// Requires editor access. A no-change update still records a version
// so the changelog reflects the write.
func (s *Service) UpdateEvent(ctx context.Context, actorID, eventID string, input event.UpdateInput) (event.Event, error) {
	release := s.locks.acquire(eventID)
	defer release()

	apply := func(current event.Event) (event.Event, version.Version, error) {
		updated, err := event.ApplyUpdate(current, input)
		if err != nil {
			return event.Event{}, version.Version{}, err
		}
		now := s.now().UTC()
		updated.Version = current.Version + 1
		updated.UpdatedAt = &now

		v := version.Version{
			EventID:           eventID,
			Number:            updated.Version,
			Snapshot:          version.Capture(updated),
			ChangedBy:         actorID,
			CreatedAt:         now,
			ChangeDescription: version.Describe(version.Capture(current), version.Capture(updated)),
		}
		return updated, v, nil
	}

	return s.mutate(ctx, actorID, eventID, share.Role.CanEdit, apply)
}

// RollbackEvent restores the event to the state captured by the target
// version, recorded as a new forward version. Owner-only: editors can
// update but not rewind.
func (s *Service) RollbackEvent(ctx context.Context, actorID, eventID string, target uint64) (event.Event, error) {
	release := s.locks.acquire(eventID)
	defer release()

	// The target version is fetched inside the mutation cycle so the
	// permission check runs first and history existence is not leaked
	// to actors without manage access.
	apply := func(current event.Event) (event.Event, version.Version, error) {
		snapshot, err := s.store.GetVersion(ctx, eventID, target)
		if err != nil {
			return event.Event{}, version.Version{}, err
		}

		now := s.now().UTC()
		restored := version.Restore(current, snapshot.Snapshot)
		restored.Version = current.Version + 1
		restored.UpdatedAt = &now

		v := version.Version{
			EventID:           eventID,
			Number:            restored.Version,
			Snapshot:          snapshot.Snapshot,
			ChangedBy:         actorID,
			CreatedAt:         now,
			ChangeDescription: version.Describe(version.Capture(current), snapshot.Snapshot),
		}
		return restored, v, nil
	}

	return s.mutate(ctx, actorID, eventID, share.Role.CanManage, apply)
}

// mutate runs the authorize-apply-persist cycle for an event mutation,
// retrying once when a cross-process writer wins the version race.
// Callers must hold the event lock.
func (s *Service) mutate(ctx context.Context, actorID, eventID string, capability func(share.Role) bool, apply func(event.Event) (event.Event, version.Version, error)) (event.Event, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		current, err := s.authorize(ctx, actorID, eventID, capability)
		if err != nil {
			return event.Event{}, err
		}

		updated, v, err := apply(current)
		if err != nil {
			return event.Event{}, err
		}

		if _, err := s.store.UpdateEventWithVersion(ctx, updated, v); err != nil {
			if stderrors.Is(err, storage.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return event.Event{}, fmt.Errorf("persist mutation: %w", err)
		}
		return updated, nil
	}
	return event.Event{}, lastErr
}

// DeleteEvent removes the event and its grants. Version history is
// retained. Owner-only.
func (s *Service) DeleteEvent(ctx context.Context, actorID, eventID string) error {
	release := s.locks.acquire(eventID)
	defer release()

	if _, err := s.authorize(ctx, actorID, eventID, share.Role.CanManage); err != nil {
		return err
	}
	return s.store.DeleteEventWithGrants(ctx, eventID)
}

// GetEventVersion returns one version record. Requires viewer access.
func (s *Service) GetEventVersion(ctx context.Context, actorID, eventID string, number uint64) (version.Version, error) {
	if _, err := s.authorize(ctx, actorID, eventID, share.Role.CanView); err != nil {
		return version.Version{}, err
	}
	return s.store.GetVersion(ctx, eventID, number)
}

// ChangelogQuery describes paging and filtering for changelog reads.
// Filter accepts AIP-160 expressions over changed_by, description,
// version, and ts.
type ChangelogQuery struct {
	PageSize      int
	CursorVersion uint64
	Descending    bool
	Filter        string
}

// Changelog returns a page of the event's version history. Requires
// viewer access.
func (s *Service) Changelog(ctx context.Context, actorID, eventID string, q ChangelogQuery) (storage.VersionPage, error) {
	if _, err := s.authorize(ctx, actorID, eventID, share.Role.CanView); err != nil {
		return storage.VersionPage{}, err
	}

	cond, err := filter.ParseChangelogFilter(q.Filter)
	if err != nil {
		return storage.VersionPage{}, apperrors.Wrap(apperrors.CodeUnknown, "invalid changelog filter", err)
	}

	return s.store.ListVersionsPage(ctx, storage.ListVersionsPageRequest{
		EventID:       eventID,
		PageSize:      q.PageSize,
		CursorVersion: q.CursorVersion,
		Descending:    q.Descending,
		FilterClause:  cond.Clause,
		FilterParams:  cond.Params,
	})
}

// Comparison is the field-level difference between two versions of an
// event.
type Comparison struct {
	EventID string
	Base    uint64
	Target  uint64
	Diffs   []version.FieldDiff
	Summary string
}

// CompareVersions diffs two versions of the event. Requires viewer
// access.
func (s *Service) CompareVersions(ctx context.Context, actorID, eventID string, base, target uint64) (Comparison, error) {
	if _, err := s.authorize(ctx, actorID, eventID, share.Role.CanView); err != nil {
		return Comparison{}, err
	}

	baseVersion, err := s.store.GetVersion(ctx, eventID, base)
	if err != nil {
		return Comparison{}, err
	}
	targetVersion, err := s.store.GetVersion(ctx, eventID, target)
	if err != nil {
		return Comparison{}, err
	}

	return Comparison{
		EventID: eventID,
		Base:    base,
		Target:  target,
		Diffs:   version.Diff(baseVersion.Snapshot, targetVersion.Snapshot),
		Summary: version.Describe(baseVersion.Snapshot, targetVersion.Snapshot),
	}, nil
}

// ListOccurrences expands a recurring event's rule inside the probe
// window. Requires viewer access.
func (s *Service) ListOccurrences(ctx context.Context, actorID, eventID string, rangeStart, rangeEnd time.Time, maxOccurrences int) ([]event.Occurrence, error) {
	evt, err := s.authorize(ctx, actorID, eventID, share.Role.CanView)
	if err != nil {
		return nil, err
	}
	return event.Occurrences(evt, rangeStart, rangeEnd, maxOccurrences)
}

// DetectConflicts returns the actor's visible events whose time windows
// intersect the probe window. excludeEventID skips the event being
// edited so it does not conflict with itself.
func (s *Service) DetectConflicts(ctx context.Context, actorID string, start, end time.Time, excludeEventID string) ([]event.Event, error) {
	if !end.After(start) {
		return nil, event.ErrTimeRangeInvalid
	}

	var conflicts []event.Event
	pageToken := ""
	for {
		page, err := s.store.ListEventsForUser(ctx, storage.ListEventsRequest{
			UserID:     actorID,
			RangeStart: &start,
			RangeEnd:   &end,
			PageSize:   maxConflictPageSize,
			PageToken:  pageToken,
		})
		if err != nil {
			return nil, err
		}
		for _, evt := range page.Events {
			if evt.ID == excludeEventID {
				continue
			}
			if evt.Overlaps(start, end) {
				conflicts = append(conflicts, evt)
			}
		}
		if page.NextPageToken == "" {
			return conflicts, nil
		}
		pageToken = page.NextPageToken
	}
}

const maxConflictPageSize = 200

// authorize loads the event and verifies the actor's effective role
// passes the allowed check. Unknown events surface ErrNotFound; known
// events the actor cannot act on surface ErrPermissionDenied
// regardless of whether any access exists.
func (s *Service) authorize(ctx context.Context, actorID, eventID string, allowed func(share.Role) bool) (event.Event, error) {
	evt, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return event.Event{}, err
	}

	role, err := s.resolveRole(ctx, evt.OwnerID, eventID, actorID)
	if err != nil {
		return event.Event{}, err
	}
	if !allowed(role) {
		return event.Event{}, ErrPermissionDenied
	}
	return evt, nil
}
