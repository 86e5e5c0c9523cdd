package event

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/gatherspace/internal/platform/errors"
	"github.com/louisbranch/gatherspace/internal/platform/id"
)

var (
	// ErrTitleEmpty indicates a missing event title.
	ErrTitleEmpty = apperrors.New(apperrors.CodeEventTitleEmpty, "event title is required")
	// ErrStartTimeMissing indicates a missing start time.
	ErrStartTimeMissing = apperrors.New(apperrors.CodeEventStartTimeMissing, "event start time is required")
	// ErrEndTimeMissing indicates a missing end time.
	ErrEndTimeMissing = apperrors.New(apperrors.CodeEventEndTimeMissing, "event end time is required")
	// ErrTimeRangeInvalid indicates an end time at or before the start time.
	ErrTimeRangeInvalid = apperrors.New(apperrors.CodeEventTimeRangeInvalid, "event end time must be after start time")
	// ErrRecurrenceRuleEmpty indicates a recurring event without a recurrence rule.
	ErrRecurrenceRuleEmpty = apperrors.New(apperrors.CodeEventRecurrenceRuleEmpty, "recurring event requires a recurrence rule")
)

// Event is the live, mutable calendar resource. Historical states live in
// the version journal; Version always equals the latest journal entry for
// this event.
type Event struct {
	ID          string
	Title       string
	Description string
	StartTime   time.Time
	EndTime     time.Time
	Location    string
	IsRecurring bool
	// RecurrenceRule is an RFC 5545 RRULE string, empty for one-off events.
	RecurrenceRule string
	// OwnerID identifies the organizer. Ownership is immutable; it is never
	// transferred by sharing or rollback.
	OwnerID   string
	CreatedAt time.Time
	// UpdatedAt is nil until the first mutation after creation.
	UpdatedAt *time.Time
	// Version starts at 1 and increases by exactly 1 per accepted mutation.
	Version uint64
}

// CreateInput describes the fields needed to create an event.
type CreateInput struct {
	Title          string
	Description    string
	StartTime      time.Time
	EndTime        time.Time
	Location       string
	IsRecurring    bool
	RecurrenceRule string
}

// UpdateInput carries a partial update. Nil fields are left unchanged.
type UpdateInput struct {
	Title          *string
	Description    *string
	StartTime      *time.Time
	EndTime        *time.Time
	Location       *string
	IsRecurring    *bool
	RecurrenceRule *string
}

// Create builds a new event with a generated ID, version 1, and timestamps.
func Create(ownerID string, input CreateInput, now func() time.Time, idGenerator func() (string, error)) (Event, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateInput(input)
	if err != nil {
		return Event{}, err
	}

	eventID, err := idGenerator()
	if err != nil {
		return Event{}, fmt.Errorf("generate event id: %w", err)
	}

	return Event{
		ID:             eventID,
		Title:          normalized.Title,
		Description:    normalized.Description,
		StartTime:      normalized.StartTime.UTC(),
		EndTime:        normalized.EndTime.UTC(),
		Location:       normalized.Location,
		IsRecurring:    normalized.IsRecurring,
		RecurrenceRule: normalized.RecurrenceRule,
		OwnerID:        ownerID,
		CreatedAt:      now().UTC(),
		Version:        1,
	}, nil
}

// NormalizeCreateInput trims and validates event creation fields.
func NormalizeCreateInput(input CreateInput) (CreateInput, error) {
	input.Title = strings.TrimSpace(input.Title)
	if input.Title == "" {
		return CreateInput{}, ErrTitleEmpty
	}
	if input.StartTime.IsZero() {
		return CreateInput{}, ErrStartTimeMissing
	}
	if input.EndTime.IsZero() {
		return CreateInput{}, ErrEndTimeMissing
	}
	if !input.EndTime.After(input.StartTime) {
		return CreateInput{}, ErrTimeRangeInvalid
	}
	input.Location = strings.TrimSpace(input.Location)
	input.RecurrenceRule = strings.TrimSpace(input.RecurrenceRule)
	if input.IsRecurring && input.RecurrenceRule == "" {
		return CreateInput{}, ErrRecurrenceRuleEmpty
	}
	if input.RecurrenceRule != "" {
		if err := ValidateRecurrenceRule(input.RecurrenceRule); err != nil {
			return CreateInput{}, err
		}
	}
	return input, nil
}

// ApplyUpdate returns a copy of the event with the partial update applied and
// validated. The version counter and UpdatedAt are managed by the mutation
// engine, not here.
func ApplyUpdate(evt Event, input UpdateInput) (Event, error) {
	updated := evt
	if input.Title != nil {
		updated.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		updated.Description = *input.Description
	}
	if input.StartTime != nil {
		updated.StartTime = input.StartTime.UTC()
	}
	if input.EndTime != nil {
		updated.EndTime = input.EndTime.UTC()
	}
	if input.Location != nil {
		updated.Location = strings.TrimSpace(*input.Location)
	}
	if input.IsRecurring != nil {
		updated.IsRecurring = *input.IsRecurring
	}
	if input.RecurrenceRule != nil {
		updated.RecurrenceRule = strings.TrimSpace(*input.RecurrenceRule)
	}

	if updated.Title == "" {
		return Event{}, ErrTitleEmpty
	}
	if !updated.EndTime.After(updated.StartTime) {
		return Event{}, ErrTimeRangeInvalid
	}
	if updated.IsRecurring && updated.RecurrenceRule == "" {
		return Event{}, ErrRecurrenceRuleEmpty
	}
	if updated.RecurrenceRule != "" {
		if err := ValidateRecurrenceRule(updated.RecurrenceRule); err != nil {
			return Event{}, err
		}
	}
	return updated, nil
}

// Overlaps reports whether the event's [start, end) window intersects the
// probe window. Shared boundaries do not count as overlap.
func (e Event) Overlaps(start, end time.Time) bool {
	return start.Before(e.EndTime) && end.After(e.StartTime)
}
