package share

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/louisbranch/gatherspace/internal/platform/errors"
)

func TestRoleCapabilities(t *testing.T) {
	tests := []struct {
		role      Role
		canView   bool
		canEdit   bool
		canManage bool
	}{
		{RoleNone, false, false, false},
		{RoleViewer, true, false, false},
		{RoleEditor, true, true, false},
		{RoleOwner, true, true, true},
	}

	for _, tc := range tests {
		t.Run(tc.role.String(), func(t *testing.T) {
			if got := tc.role.CanView(); got != tc.canView {
				t.Errorf("CanView() = %v, want %v", got, tc.canView)
			}
			if got := tc.role.CanEdit(); got != tc.canEdit {
				t.Errorf("CanEdit() = %v, want %v", got, tc.canEdit)
			}
			if got := tc.role.CanManage(); got != tc.canManage {
				t.Errorf("CanManage() = %v, want %v", got, tc.canManage)
			}
		})
	}
}

func TestRoleHierarchyMonotonic(t *testing.T) {
	// Every capability granted to a role must be granted to all
	// higher roles.
	ordered := []Role{RoleNone, RoleViewer, RoleEditor, RoleOwner}
	for i := 1; i < len(ordered); i++ {
		lower, higher := ordered[i-1], ordered[i]
		if lower.CanView() && !higher.CanView() {
			t.Errorf("%s can view but %s cannot", lower, higher)
		}
		if lower.CanEdit() && !higher.CanEdit() {
			t.Errorf("%s can edit but %s cannot", lower, higher)
		}
		if lower.CanManage() && !higher.CanManage() {
			t.Errorf("%s can manage but %s cannot", lower, higher)
		}
	}
}

func TestRoleFromLabel(t *testing.T) {
	tests := []struct {
		label   string
		want    Role
		wantErr bool
	}{
		{"viewer", RoleViewer, false},
		{"editor", RoleEditor, false},
		{"owner", RoleNone, true},
		{"none", RoleNone, true},
		{"", RoleNone, true},
		{"Viewer", RoleNone, true},
	}

	for _, tc := range tests {
		t.Run(tc.label, func(t *testing.T) {
			got, err := RoleFromLabel(tc.label)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.label)
				}
				if apperrors.CodeOf(err) != apperrors.CodeShareInvalidRole {
					t.Fatalf("unexpected error code %s", apperrors.CodeOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("RoleFromLabel(%q) = %v, want %v", tc.label, got, tc.want)
			}
		})
	}
}

type stubGrants struct {
	grants map[string]Role
	err    error
}

func (s stubGrants) GetPermission(ctx context.Context, eventID, userID string) (Permission, error) {
	if s.err != nil {
		return Permission{}, s.err
	}
	role, ok := s.grants[eventID+"/"+userID]
	if !ok {
		return Permission{}, ErrGrantNotFound
	}
	return Permission{EventID: eventID, UserID: userID, Role: role}, nil
}

func TestResolveOwnerPrecedence(t *testing.T) {
	// A stored grant must never demote the owner.
	resolver := NewResolver(stubGrants{grants: map[string]Role{
		"evt-1/owner-1": RoleViewer,
	}})

	role, err := resolver.Resolve(context.Background(), "owner-1", "evt-1", "owner-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if role != RoleOwner {
		t.Fatalf("expected owner role, got %v", role)
	}
}

func TestResolveGrantedRole(t *testing.T) {
	resolver := NewResolver(stubGrants{grants: map[string]Role{
		"evt-1/user-2": RoleEditor,
	}})

	role, err := resolver.Resolve(context.Background(), "owner-1", "evt-1", "user-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if role != RoleEditor {
		t.Fatalf("expected editor role, got %v", role)
	}
}

func TestResolveNoGrant(t *testing.T) {
	resolver := NewResolver(stubGrants{})

	role, err := resolver.Resolve(context.Background(), "owner-1", "evt-1", "user-3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if role != RoleNone {
		t.Fatalf("expected no role, got %v", role)
	}
}

func TestResolvePropagatesStoreError(t *testing.T) {
	boom := errors.New("disk on fire")
	resolver := NewResolver(stubGrants{err: boom})

	_, err := resolver.Resolve(context.Background(), "owner-1", "evt-1", "user-2")
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}
