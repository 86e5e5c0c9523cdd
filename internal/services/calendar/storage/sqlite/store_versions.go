package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/gatherspace/internal/services/calendar/domain/event"
	"github.com/louisbranch/gatherspace/internal/services/calendar/domain/version"
	"github.com/louisbranch/gatherspace/internal/services/calendar/storage"
)

const versionColumns = `event_id, version, title, description, start_time, end_time, location, is_recurring, recurrence_rule, changed_by, created_at, change_description`

// AppendVersion atomically assigns the next version number for the
// event and stores the record.
func (s *Store) AppendVersion(ctx context.Context, v version.Version) (version.Version, error) {
	if s == nil || s.sqlDB == nil {
		return version.Version{}, fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return version.Version{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stored, err := appendVersionTx(ctx, tx, v)
	if err != nil {
		return version.Version{}, err
	}

	if err := tx.Commit(); err != nil {
		return version.Version{}, fmt.Errorf("commit tx: %w", err)
	}
	return stored, nil
}

// appendVersionTx assigns the next version number from the sequence
// table and inserts the record. The composite primary key backstops
// the sequence: a racing writer hits the constraint and surfaces
// ErrVersionConflict.
func appendVersionTx(ctx context.Context, tx *sql.Tx, v version.Version) (version.Version, error) {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO version_seq (event_id, next_version) VALUES (?, 1) ON CONFLICT(event_id) DO NOTHING`,
		v.EventID); err != nil {
		return version.Version{}, fmt.Errorf("init version seq: %w", err)
	}

	var next int64
	if err := tx.QueryRowContext(ctx,
		`SELECT next_version FROM version_seq WHERE event_id = ?`, v.EventID).Scan(&next); err != nil {
		return version.Version{}, fmt.Errorf("get version seq: %w", err)
	}

	if v.Number == 0 {
		v.Number = uint64(next)
	} else if v.Number != uint64(next) {
		return version.Version{}, storage.ErrVersionConflict
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE version_seq SET next_version = next_version + 1 WHERE event_id = ?`, v.EventID); err != nil {
		return version.Version{}, fmt.Errorf("increment version seq: %w", err)
	}

	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO event_versions (`+versionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.EventID,
		int64(v.Number),
		v.Snapshot.Title,
		v.Snapshot.Description,
		toMillis(v.Snapshot.StartTime),
		toMillis(v.Snapshot.EndTime),
		v.Snapshot.Location,
		boolToInt(v.Snapshot.IsRecurring),
		v.Snapshot.RecurrenceRule,
		v.ChangedBy,
		v.CreatedAt.UTC().Format(time.RFC3339Nano),
		v.ChangeDescription,
	); err != nil {
		if isConstraintError(err) {
			return version.Version{}, storage.ErrVersionConflict
		}
		return version.Version{}, fmt.Errorf("append version: %w", err)
	}

	return v, nil
}

// GetVersion retrieves a specific version of an event.
func (s *Store) GetVersion(ctx context.Context, eventID string, number uint64) (version.Version, error) {
	if s == nil || s.sqlDB == nil {
		return version.Version{}, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM event_versions WHERE event_id = ? AND version = ?`,
		eventID, int64(number))
	v, err := scanVersion(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return version.Version{}, storage.ErrNotFound
		}
		return version.Version{}, fmt.Errorf("get version: %w", err)
	}
	return v, nil
}

func scanVersion(row rowScanner) (version.Version, error) {
	var v version.Version
	var number, startMillis, endMillis, isRecurring int64
	var createdAt string
	if err := row.Scan(
		&v.EventID,
		&number,
		&v.Snapshot.Title,
		&v.Snapshot.Description,
		&startMillis,
		&endMillis,
		&v.Snapshot.Location,
		&isRecurring,
		&v.Snapshot.RecurrenceRule,
		&v.ChangedBy,
		&createdAt,
		&v.ChangeDescription,
	); err != nil {
		return version.Version{}, err
	}
	v.Number = uint64(number)
	v.Snapshot.StartTime = fromMillis(startMillis)
	v.Snapshot.EndTime = fromMillis(endMillis)
	v.Snapshot.IsRecurring = isRecurring != 0
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return version.Version{}, fmt.Errorf("parse version timestamp: %w", err)
	}
	v.CreatedAt = ts
	return v, nil
}

// ListVersions returns all versions of an event, newest first.
func (s *Store) ListVersions(ctx context.Context, eventID string) ([]version.Version, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM event_versions WHERE event_id = ? ORDER BY version DESC`,
		eventID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	return collectVersions(rows)
}

func collectVersions(rows *sql.Rows) ([]version.Version, error) {
	var versions []version.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read versions: %w", err)
	}
	return versions, nil
}

// LatestVersion returns the highest version number recorded for the
// event, or 0 when no versions exist.
func (s *Store) LatestVersion(ctx context.Context, eventID string) (uint64, error) {
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	var latest sql.NullInt64
	if err := s.sqlDB.QueryRowContext(ctx,
		`SELECT MAX(version) FROM event_versions WHERE event_id = ?`, eventID).Scan(&latest); err != nil {
		return 0, fmt.Errorf("latest version: %w", err)
	}
	if !latest.Valid {
		return 0, nil
	}
	return uint64(latest.Int64), nil
}

// ListVersionsPage returns a filtered, paginated changelog slice.
func (s *Store) ListVersionsPage(ctx context.Context, req storage.ListVersionsPageRequest) (storage.VersionPage, error) {
	if s == nil || s.sqlDB == nil {
		return storage.VersionPage{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(req.EventID) == "" {
		return storage.VersionPage{}, fmt.Errorf("event id is required")
	}

	var where strings.Builder
	where.WriteString(" WHERE event_id = ?")
	filterArgs := []any{req.EventID}
	if req.FilterClause != "" {
		where.WriteString(" AND (" + req.FilterClause + ")")
		filterArgs = append(filterArgs, req.FilterParams...)
	}

	var total int
	if err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM event_versions`+where.String(), filterArgs...).Scan(&total); err != nil {
		return storage.VersionPage{}, fmt.Errorf("count versions: %w", err)
	}

	query := `SELECT ` + versionColumns + ` FROM event_versions` + where.String()
	args := filterArgs
	if req.CursorVersion != 0 {
		if req.Descending {
			query += " AND version < ?"
		} else {
			query += " AND version > ?"
		}
		args = append(args, int64(req.CursorVersion))
	}
	if req.Descending {
		query += " ORDER BY version DESC"
	} else {
		query += " ORDER BY version ASC"
	}

	size := clampPageSize(req.PageSize)
	query += " LIMIT ?"
	args = append(args, int64(size+1))

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return storage.VersionPage{}, fmt.Errorf("list versions page: %w", err)
	}
	defer rows.Close()

	versions, err := collectVersions(rows)
	if err != nil {
		return storage.VersionPage{}, err
	}

	page := storage.VersionPage{Versions: versions, TotalCount: total}
	if len(versions) > size {
		page.Versions = versions[:size]
		page.HasNextPage = true
	}
	return page, nil
}

// CreateEventWithVersion atomically stores a new event and its initial
// version record.
func (s *Store) CreateEventWithVersion(ctx context.Context, evt event.Event, v version.Version) (version.Version, error) {
	if s == nil || s.sqlDB == nil {
		return version.Version{}, fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return version.Version{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		eventArgs(evt)...); err != nil {
		if isConstraintError(err) {
			return version.Version{}, storage.ErrVersionConflict
		}
		return version.Version{}, fmt.Errorf("insert event: %w", err)
	}

	stored, err := appendVersionTx(ctx, tx, v)
	if err != nil {
		return version.Version{}, err
	}

	if err := tx.Commit(); err != nil {
		return version.Version{}, fmt.Errorf("commit tx: %w", err)
	}
	return stored, nil
}

// UpdateEventWithVersion atomically replaces the event record and
// appends the next version. A writer that read a stale event version
// loses with ErrVersionConflict.
func (s *Store) UpdateEventWithVersion(ctx context.Context, evt event.Event, v version.Version) (version.Version, error) {
	if s == nil || s.sqlDB == nil {
		return version.Version{}, fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return version.Version{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current int64
	if err := tx.QueryRowContext(ctx,
		`SELECT version FROM events WHERE id = ?`, evt.ID).Scan(&current); err != nil {
		if err == sql.ErrNoRows {
			return version.Version{}, storage.ErrNotFound
		}
		return version.Version{}, fmt.Errorf("read event version: %w", err)
	}
	if evt.Version != uint64(current)+1 {
		return version.Version{}, storage.ErrVersionConflict
	}

	stored, err := appendVersionTx(ctx, tx, v)
	if err != nil {
		return version.Version{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE events SET title = ?, description = ?, start_time = ?, end_time = ?, location = ?, is_recurring = ?, recurrence_rule = ?, updated_at = ?, version = ? WHERE id = ?`,
		evt.Title,
		evt.Description,
		toMillis(evt.StartTime),
		toMillis(evt.EndTime),
		evt.Location,
		boolToInt(evt.IsRecurring),
		evt.RecurrenceRule,
		toNullMillis(evt.UpdatedAt),
		int64(evt.Version),
		evt.ID,
	); err != nil {
		return version.Version{}, fmt.Errorf("update event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return version.Version{}, fmt.Errorf("commit tx: %w", err)
	}
	return stored, nil
}
