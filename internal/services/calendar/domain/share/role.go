// Package share defines the access roles granted on calendar events and
// resolves the effective role a user holds for a given event.
package share

import apperrors "github.com/louisbranch/gatherspace/internal/platform/errors"

// Role is the level of access a user holds on an event. Roles are
// strictly ordered: owner > editor > viewer > none.
type Role int

const (
	RoleNone Role = iota
	RoleViewer
	RoleEditor
	RoleOwner
)

// String returns the wire label for the role.
func (r Role) String() string {
	switch r {
	case RoleViewer:
		return "viewer"
	case RoleEditor:
		return "editor"
	case RoleOwner:
		return "owner"
	default:
		return "none"
	}
}

// CanView reports whether the role permits reading the event and its
// version history.
func (r Role) CanView() bool {
	return r >= RoleViewer
}

// CanEdit reports whether the role permits updating the event's
// fields.
func (r Role) CanEdit() bool {
	return r >= RoleEditor
}

// CanManage reports whether the role permits owner-level operations:
// sharing, changing or revoking grants, rollback, and delete.
func (r Role) CanManage() bool {
	return r >= RoleOwner
}

// RoleFromLabel parses a grantable role label. Only viewer and editor
// can be granted; ownership is fixed at creation and never reassigned.
func RoleFromLabel(label string) (Role, error) {
	switch label {
	case "viewer":
		return RoleViewer, nil
	case "editor":
		return RoleEditor, nil
	default:
		return RoleNone, apperrors.WithMetadata(apperrors.CodeShareInvalidRole,
			"role must be viewer or editor", map[string]string{"role": label})
	}
}
