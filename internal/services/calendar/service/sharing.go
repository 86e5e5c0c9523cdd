package service

import (
	"context"
	"fmt"

	apperrors "github.com/louisbranch/gatherspace/internal/platform/errors"
	"github.com/louisbranch/gatherspace/internal/services/calendar/domain/share"
)

// ErrShareTargetIsOwner indicates an attempt to grant a role to the
// event owner, whose access is already absolute.
var ErrShareTargetIsOwner = apperrors.New(apperrors.CodeShareTargetIsOwner, "cannot share an event with its owner")

// ShareEvent grants a role on the event to another user. Only the
// owner can share, the owner cannot be a target, and an existing grant
// must be changed with ChangeRole rather than re-shared.
func (s *Service) ShareEvent(ctx context.Context, actorID, eventID, targetUserID, roleLabel string) (share.Permission, error) {
	role, err := share.RoleFromLabel(roleLabel)
	if err != nil {
		return share.Permission{}, err
	}

	evt, err := s.authorize(ctx, actorID, eventID, share.Role.CanManage)
	if err != nil {
		return share.Permission{}, err
	}
	if targetUserID == evt.OwnerID {
		return share.Permission{}, ErrShareTargetIsOwner
	}

	grant := share.Permission{
		EventID:   eventID,
		UserID:    targetUserID,
		Role:      role,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.PutPermission(ctx, grant); err != nil {
		return share.Permission{}, err
	}
	return grant, nil
}

// ChangeRole replaces the role on an existing grant. Only the owner
// can change grants.
func (s *Service) ChangeRole(ctx context.Context, actorID, eventID, targetUserID, roleLabel string) (share.Permission, error) {
	role, err := share.RoleFromLabel(roleLabel)
	if err != nil {
		return share.Permission{}, err
	}

	if _, err := s.authorize(ctx, actorID, eventID, share.Role.CanManage); err != nil {
		return share.Permission{}, err
	}

	return s.store.UpdatePermission(ctx, eventID, targetUserID, role, s.now().UTC())
}

// RevokeShare removes a grant. The target loses access immediately.
// Only the owner can revoke.
func (s *Service) RevokeShare(ctx context.Context, actorID, eventID, targetUserID string) error {
	if _, err := s.authorize(ctx, actorID, eventID, share.Role.CanManage); err != nil {
		return err
	}
	if err := s.store.DeletePermission(ctx, eventID, targetUserID); err != nil {
		return fmt.Errorf("revoke grant: %w", err)
	}
	return nil
}

// ListPermissions returns all grants on the event. Only the owner can
// inspect sharing state.
func (s *Service) ListPermissions(ctx context.Context, actorID, eventID string) ([]share.Permission, error) {
	if _, err := s.authorize(ctx, actorID, eventID, share.Role.CanManage); err != nil {
		return nil, err
	}
	return s.store.ListPermissionsByEvent(ctx, eventID)
}
