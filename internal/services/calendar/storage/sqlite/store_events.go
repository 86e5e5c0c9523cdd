package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/louisbranch/gatherspace/internal/services/calendar/domain/event"
	"github.com/louisbranch/gatherspace/internal/services/calendar/storage"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

const eventColumns = `id, title, description, start_time, end_time, location, is_recurring, recurrence_rule, owner_id, created_at, updated_at, version`

// PutEvent stores or replaces an event record.
func (s *Store) PutEvent(ctx context.Context, evt event.Event) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	_, err := s.sqlDB.ExecContext(ctx, upsertEventSQL, eventArgs(evt)...)
	if err != nil {
		return fmt.Errorf("put event: %w", err)
	}
	return nil
}

const upsertEventSQL = `INSERT INTO events (` + eventColumns + `)
 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
 ON CONFLICT(id) DO UPDATE SET
   title = excluded.title,
   description = excluded.description,
   start_time = excluded.start_time,
   end_time = excluded.end_time,
   location = excluded.location,
   is_recurring = excluded.is_recurring,
   recurrence_rule = excluded.recurrence_rule,
   updated_at = excluded.updated_at,
   version = excluded.version`

func eventArgs(evt event.Event) []any {
	return []any{
		evt.ID,
		evt.Title,
		evt.Description,
		toMillis(evt.StartTime),
		toMillis(evt.EndTime),
		evt.Location,
		boolToInt(evt.IsRecurring),
		evt.RecurrenceRule,
		evt.OwnerID,
		toMillis(evt.CreatedAt),
		toNullMillis(evt.UpdatedAt),
		int64(evt.Version),
	}
}

// GetEvent retrieves an event by id.
func (s *Store) GetEvent(ctx context.Context, eventID string) (event.Event, error) {
	if s == nil || s.sqlDB == nil {
		return event.Event{}, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, eventID)
	evt, err := scanEvent(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return event.Event{}, storage.ErrNotFound
		}
		return event.Event{}, fmt.Errorf("get event: %w", err)
	}
	return evt, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (event.Event, error) {
	var evt event.Event
	var startMillis, endMillis, createdMillis, isRecurring, versionNum int64
	var updatedAt sql.NullInt64
	if err := row.Scan(
		&evt.ID,
		&evt.Title,
		&evt.Description,
		&startMillis,
		&endMillis,
		&evt.Location,
		&isRecurring,
		&evt.RecurrenceRule,
		&evt.OwnerID,
		&createdMillis,
		&updatedAt,
		&versionNum,
	); err != nil {
		return event.Event{}, err
	}
	evt.StartTime = fromMillis(startMillis)
	evt.EndTime = fromMillis(endMillis)
	evt.IsRecurring = isRecurring != 0
	evt.CreatedAt = fromMillis(createdMillis)
	evt.UpdatedAt = fromNullMillis(updatedAt)
	evt.Version = uint64(versionNum)
	return evt, nil
}

// ListEventsForUser returns a page of events the user owns or has been
// granted access to, ordered by start time ascending.
func (s *Store) ListEventsForUser(ctx context.Context, req storage.ListEventsRequest) (storage.EventPage, error) {
	if s == nil || s.sqlDB == nil {
		return storage.EventPage{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(req.UserID) == "" {
		return storage.EventPage{}, fmt.Errorf("user id is required")
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + eventColumns + ` FROM events
 WHERE (owner_id = ? OR EXISTS (SELECT 1 FROM permissions p WHERE p.event_id = events.id AND p.user_id = ?))`)
	args := []any{req.UserID, req.UserID}

	if req.RangeStart != nil {
		sb.WriteString(" AND end_time > ?")
		args = append(args, toMillis(*req.RangeStart))
	}
	if req.RangeEnd != nil {
		sb.WriteString(" AND start_time < ?")
		args = append(args, toMillis(*req.RangeEnd))
	}
	if req.PageToken != "" {
		// The token is the last event id of the previous page; resume
		// strictly after its (start_time, id) position.
		sb.WriteString(` AND (start_time, id) > (SELECT start_time, id FROM events WHERE id = ?)`)
		args = append(args, req.PageToken)
	}

	size := clampPageSize(req.PageSize)
	sb.WriteString(" ORDER BY start_time, id LIMIT ?")
	args = append(args, int64(size+1))

	rows, err := s.sqlDB.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return storage.EventPage{}, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return storage.EventPage{}, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return storage.EventPage{}, fmt.Errorf("read events: %w", err)
	}

	page := storage.EventPage{Events: events}
	if len(events) > size {
		page.Events = events[:size]
		page.NextPageToken = page.Events[size-1].ID
	}
	return page, nil
}

// DeleteEvent removes a single event record.
func (s *Store) DeleteEvent(ctx context.Context, eventID string) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, eventID)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete event result: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteEventWithGrants removes the event record and its grants in one
// transaction. Version history is retained for audit.
func (s *Store) DeleteEventWithGrants(ctx context.Context, eventID string) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, eventID)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete event result: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM permissions WHERE event_id = ?`, eventID); err != nil {
		return fmt.Errorf("delete grants: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
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
