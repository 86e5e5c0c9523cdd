package share

import (
	"context"
	stderrors "errors"

	apperrors "github.com/louisbranch/gatherspace/internal/platform/errors"
)

// ErrGrantNotFound is returned by a GrantSource when no grant exists
// for the requested event and user pair.
var ErrGrantNotFound = apperrors.New(apperrors.CodeNotFound, "grant not found")

// GrantSource looks up the stored grant for a user on an event. It
// returns ErrGrantNotFound (or an error wrapping it) when no grant
// exists.
type GrantSource interface {
	GetPermission(ctx context.Context, eventID, userID string) (Permission, error)
}

// Resolver computes the effective role a user holds on an event.
type Resolver struct {
	grants GrantSource
}

// NewResolver returns a Resolver backed by the given grant source.
func NewResolver(grants GrantSource) *Resolver {
	return &Resolver{grants: grants}
}

// Resolve returns the user's effective role for the event. Ownership
// takes precedence over any stored grant, so a stale grant row can
// never demote the owner. Users with neither ownership nor a grant
// resolve to RoleNone.
func (r *Resolver) Resolve(ctx context.Context, ownerID, eventID, userID string) (Role, error) {
	if userID == ownerID {
		return RoleOwner, nil
	}
	grant, err := r.grants.GetPermission(ctx, eventID, userID)
	if err != nil {
		if stderrors.Is(err, ErrGrantNotFound) || apperrors.CodeOf(err) == apperrors.CodeNotFound {
			return RoleNone, nil
		}
		return RoleNone, err
	}
	return grant.Role, nil
}
