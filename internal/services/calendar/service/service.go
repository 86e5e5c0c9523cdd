// Package service implements the calendar mutation engine: permission
// checks, versioned event mutations, rollback, and sharing.
package service

import (
	"context"
	"time"

	apperrors "github.com/louisbranch/gatherspace/internal/platform/errors"
	"github.com/louisbranch/gatherspace/internal/platform/id"
	"github.com/louisbranch/gatherspace/internal/services/calendar/domain/share"
	"github.com/louisbranch/gatherspace/internal/services/calendar/storage"
)

// ErrPermissionDenied indicates the actor lacks the role a calendar
// operation requires. Users with no access and users with an
// insufficient role receive the same error so event existence is not
// leaked through sharing state.
var ErrPermissionDenied = apperrors.New(apperrors.CodePermissionDenied, "insufficient permissions for this operation")

// Service coordinates calendar mutations. Writes to the same event are
// serialized through per-event locks; the store's version sequencing
// backstops writers that race across processes.
type Service struct {
	store       storage.Store
	resolver    *share.Resolver
	locks       *eventLocks
	now         func() time.Time
	idGenerator func() (string, error)
}

// Option configures optional Service behavior.
type Option func(*Service)

// WithClock overrides the time source, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides event id generation, primarily for tests.
func WithIDGenerator(idGenerator func() (string, error)) Option {
	return func(s *Service) {
		if idGenerator != nil {
			s.idGenerator = idGenerator
		}
	}
}

// New constructs a calendar Service backed by the given store.
func New(store storage.Store, opts ...Option) *Service {
	s := &Service{
		store:       store,
		resolver:    share.NewResolver(store),
		locks:       newEventLocks(),
		now:         time.Now,
		idGenerator: id.NewID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// resolveRole returns the actor's effective role on the event owned by
// ownerID.
func (s *Service) resolveRole(ctx context.Context, ownerID, eventID, actorID string) (share.Role, error) {
	return s.resolver.Resolve(ctx, ownerID, eventID, actorID)
}
