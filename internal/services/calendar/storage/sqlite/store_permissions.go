package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/louisbranch/gatherspace/internal/services/calendar/domain/share"
	"github.com/louisbranch/gatherspace/internal/services/calendar/storage"
)

const permissionColumns = `event_id, user_id, role, created_at, updated_at`

// PutPermission stores a new grant.
func (s *Store) PutPermission(ctx context.Context, p share.Permission) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO permissions (`+permissionColumns+`) VALUES (?, ?, ?, ?, ?)`,
		p.EventID,
		p.UserID,
		p.Role.String(),
		toMillis(p.CreatedAt),
		toNullMillis(p.UpdatedAt),
	)
	if err != nil {
		if isConstraintError(err) {
			return storage.ErrPermissionExists
		}
		return fmt.Errorf("put permission: %w", err)
	}
	return nil
}

// UpdatePermission replaces the role on an existing grant.
func (s *Store) UpdatePermission(ctx context.Context, eventID, userID string, role share.Role, updatedAt time.Time) (share.Permission, error) {
	if s == nil || s.sqlDB == nil {
		return share.Permission{}, fmt.Errorf("storage is not configured")
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE permissions SET role = ?, updated_at = ? WHERE event_id = ? AND user_id = ?`,
		role.String(), toMillis(updatedAt), eventID, userID)
	if err != nil {
		return share.Permission{}, fmt.Errorf("update permission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return share.Permission{}, fmt.Errorf("update permission result: %w", err)
	}
	if affected == 0 {
		return share.Permission{}, storage.ErrNotFound
	}
	return s.GetPermission(ctx, eventID, userID)
}

// GetPermission retrieves the grant for an event and user pair.
func (s *Store) GetPermission(ctx context.Context, eventID, userID string) (share.Permission, error) {
	if s == nil || s.sqlDB == nil {
		return share.Permission{}, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+permissionColumns+` FROM permissions WHERE event_id = ? AND user_id = ?`,
		eventID, userID)
	p, err := scanPermission(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return share.Permission{}, storage.ErrNotFound
		}
		return share.Permission{}, fmt.Errorf("get permission: %w", err)
	}
	return p, nil
}

func scanPermission(row rowScanner) (share.Permission, error) {
	var p share.Permission
	var roleLabel string
	var createdMillis int64
	var updatedAt sql.NullInt64
	if err := row.Scan(&p.EventID, &p.UserID, &roleLabel, &createdMillis, &updatedAt); err != nil {
		return share.Permission{}, err
	}
	role, err := share.RoleFromLabel(roleLabel)
	if err != nil {
		return share.Permission{}, fmt.Errorf("stored role %q: %w", roleLabel, err)
	}
	p.Role = role
	p.CreatedAt = fromMillis(createdMillis)
	p.UpdatedAt = fromNullMillis(updatedAt)
	return p, nil
}

// DeletePermission revokes a grant.
func (s *Store) DeletePermission(ctx context.Context, eventID, userID string) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM permissions WHERE event_id = ? AND user_id = ?`, eventID, userID)
	if err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete permission result: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListPermissionsByEvent returns all grants on an event ordered by
// creation time.
func (s *Store) ListPermissionsByEvent(ctx context.Context, eventID string) ([]share.Permission, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+permissionColumns+` FROM permissions WHERE event_id = ? ORDER BY created_at, user_id`,
		eventID)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	var grants []share.Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		grants = append(grants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read permissions: %w", err)
	}
	return grants, nil
}

// ListEventIDsByUser returns the ids of events shared with the user.
func (s *Store) ListEventIDsByUser(ctx context.Context, userID string) ([]string, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT event_id FROM permissions WHERE user_id = ? ORDER BY event_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list shared event ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan event id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read shared event ids: %w", err)
	}
	return ids, nil
}
