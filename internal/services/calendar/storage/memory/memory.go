// Package memory provides a mutex-guarded in-memory implementation of
// the calendar storage interfaces, used by tests and single-process
// deployments.
package memory

import (
	"context"
	"sort"
	"sync"

	"time"

	apperrors "github.com/louisbranch/gatherspace/internal/platform/errors"
	"github.com/louisbranch/gatherspace/internal/services/calendar/domain/event"
	"github.com/louisbranch/gatherspace/internal/services/calendar/domain/share"
	"github.com/louisbranch/gatherspace/internal/services/calendar/domain/version"
	"github.com/louisbranch/gatherspace/internal/services/calendar/storage"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Store keeps all calendar state in process memory. All methods are
// safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	events   map[string]event.Event
	versions map[string][]version.Version
	grants   map[string]map[string]share.Permission
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		events:   make(map[string]event.Event),
		versions: make(map[string][]version.Version),
		grants:   make(map[string]map[string]share.Permission),
	}
}

func (s *Store) PutEvent(_ context.Context, evt event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[evt.ID] = evt
	return nil
}

func (s *Store) GetEvent(_ context.Context, eventID string) (event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	evt, ok := s.events[eventID]
	if !ok {
		return event.Event{}, storage.ErrNotFound
	}
	return evt, nil
}

func (s *Store) ListEventsForUser(_ context.Context, req storage.ListEventsRequest) (storage.EventPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var visible []event.Event
	for _, evt := range s.events {
		if evt.OwnerID != req.UserID {
			if _, ok := s.grants[evt.ID][req.UserID]; !ok {
				continue
			}
		}
		if req.RangeStart != nil && !evt.EndTime.After(*req.RangeStart) {
			continue
		}
		if req.RangeEnd != nil && !evt.StartTime.Before(*req.RangeEnd) {
			continue
		}
		visible = append(visible, evt)
	}

	sort.Slice(visible, func(i, j int) bool {
		if visible[i].StartTime.Equal(visible[j].StartTime) {
			return visible[i].ID < visible[j].ID
		}
		return visible[i].StartTime.Before(visible[j].StartTime)
	})

	start := 0
	if req.PageToken != "" {
		for i, evt := range visible {
			if evt.ID == req.PageToken {
				start = i + 1
				break
			}
		}
	}

	size := clampPageSize(req.PageSize)
	end := start + size
	if end > len(visible) {
		end = len(visible)
	}

	page := storage.EventPage{Events: visible[start:end]}
	if end < len(visible) && len(page.Events) > 0 {
		page.NextPageToken = page.Events[len(page.Events)-1].ID
	}
	return page, nil
}

func (s *Store) DeleteEvent(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[eventID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.events, eventID)
	return nil
}

func (s *Store) AppendVersion(_ context.Context, v version.Version) (version.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendVersionLocked(v)
}

// appendVersionLocked assigns the next version number and stores the
// record. Callers must hold the write lock.
func (s *Store) appendVersionLocked(v version.Version) (version.Version, error) {
	next := uint64(len(s.versions[v.EventID])) + 1
	if v.Number == 0 {
		v.Number = next
	} else if v.Number != next {
		return version.Version{}, storage.ErrVersionConflict
	}
	s.versions[v.EventID] = append(s.versions[v.EventID], v)
	return v, nil
}

func (s *Store) GetVersion(_ context.Context, eventID string, number uint64) (version.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.versions[eventID]
	if number == 0 || number > uint64(len(history)) {
		return version.Version{}, storage.ErrNotFound
	}
	return history[number-1], nil
}

func (s *Store) ListVersions(_ context.Context, eventID string) ([]version.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.versions[eventID]
	out := make([]version.Version, len(history))
	for i, v := range history {
		out[len(history)-1-i] = v
	}
	return out, nil
}

func (s *Store) LatestVersion(_ context.Context, eventID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.versions[eventID])), nil
}

func (s *Store) ListVersionsPage(_ context.Context, req storage.ListVersionsPageRequest) (storage.VersionPage, error) {
	if req.FilterClause != "" {
		return storage.VersionPage{}, apperrors.New(apperrors.CodeUnknown, "changelog filters require the sqlite store")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.versions[req.EventID]
	matched := make([]version.Version, len(history))
	copy(matched, history)
	if req.Descending {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	var page []version.Version
	size := clampPageSize(req.PageSize)
	for _, v := range matched {
		if req.CursorVersion != 0 {
			if req.Descending && v.Number >= req.CursorVersion {
				continue
			}
			if !req.Descending && v.Number <= req.CursorVersion {
				continue
			}
		}
		if len(page) == size {
			return storage.VersionPage{Versions: page, HasNextPage: true, TotalCount: len(matched)}, nil
		}
		page = append(page, v)
	}
	return storage.VersionPage{Versions: page, TotalCount: len(matched)}, nil
}

func (s *Store) PutPermission(_ context.Context, p share.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	grants := s.grants[p.EventID]
	if grants == nil {
		grants = make(map[string]share.Permission)
		s.grants[p.EventID] = grants
	}
	if _, ok := grants[p.UserID]; ok {
		return storage.ErrPermissionExists
	}
	grants[p.UserID] = p
	return nil
}

func (s *Store) UpdatePermission(_ context.Context, eventID, userID string, role share.Role, updatedAt time.Time) (share.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	grant, ok := s.grants[eventID][userID]
	if !ok {
		return share.Permission{}, storage.ErrNotFound
	}
	grant.Role = role
	grant.UpdatedAt = &updatedAt
	s.grants[eventID][userID] = grant
	return grant, nil
}

func (s *Store) GetPermission(_ context.Context, eventID, userID string) (share.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	grant, ok := s.grants[eventID][userID]
	if !ok {
		return share.Permission{}, storage.ErrNotFound
	}
	return grant, nil
}

func (s *Store) DeletePermission(_ context.Context, eventID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grants[eventID][userID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.grants[eventID], userID)
	return nil
}

func (s *Store) ListPermissionsByEvent(_ context.Context, eventID string) ([]share.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	grants := make([]share.Permission, 0, len(s.grants[eventID]))
	for _, grant := range s.grants[eventID] {
		grants = append(grants, grant)
	}
	sort.Slice(grants, func(i, j int) bool {
		if grants[i].CreatedAt.Equal(grants[j].CreatedAt) {
			return grants[i].UserID < grants[j].UserID
		}
		return grants[i].CreatedAt.Before(grants[j].CreatedAt)
	})
	return grants, nil
}

func (s *Store) ListEventIDsByUser(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for eventID, grants := range s.grants {
		if _, ok := grants[userID]; ok {
			ids = append(ids, eventID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) CreateEventWithVersion(_ context.Context, evt event.Event, v version.Version) (version.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.versions[evt.ID]) != 0 {
		return version.Version{}, storage.ErrVersionConflict
	}
	stored, err := s.appendVersionLocked(v)
	if err != nil {
		return version.Version{}, err
	}
	s.events[evt.ID] = evt
	return stored, nil
}

func (s *Store) UpdateEventWithVersion(_ context.Context, evt event.Event, v version.Version) (version.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.events[evt.ID]
	if !ok {
		return version.Version{}, storage.ErrNotFound
	}
	if evt.Version != current.Version+1 {
		return version.Version{}, storage.ErrVersionConflict
	}
	stored, err := s.appendVersionLocked(v)
	if err != nil {
		return version.Version{}, err
	}
	s.events[evt.ID] = evt
	return stored, nil
}

func (s *Store) DeleteEventWithGrants(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[eventID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.events, eventID)
	delete(s.grants, eventID)
	return nil
}

func clampPageSize(size int) int {
	if size <= 0 {
		return defaultPageSize
	}
	if size > maxPageSize {
		return maxPageSize
	}
	return size
}
