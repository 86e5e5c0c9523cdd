package event

import (
	"time"

	"github.com/teambition/rrule-go"

	apperrors "github.com/louisbranch/gatherspace/internal/platform/errors"
)

// defaultMaxOccurrences caps recurrence expansion so a rule without an UNTIL
// or COUNT clause cannot produce unbounded output.
const defaultMaxOccurrences = 500

// Occurrence is one concrete instance of an event within a time window.
type Occurrence struct {
	EventID string
	Start   time.Time
	End     time.Time
}

// ValidateRecurrenceRule checks that a non-empty rule parses as an RFC 5545
// RRULE string.
func ValidateRecurrenceRule(rule string) error {
	if _, err := rrule.StrToRRule(rule); err != nil {
		return apperrors.WithMetadata(
			apperrors.CodeEventRecurrenceRuleBad,
			"recurrence rule is not a valid RFC 5545 RRULE: "+err.Error(),
			map[string]string{"Rule": rule},
		)
	}
	return nil
}

// Occurrences expands the event into concrete instances within
// [rangeStart, rangeEnd]. Non-recurring events yield at most one occurrence.
// maxOccurrences caps the expansion; zero or negative applies the default.
func Occurrences(evt Event, rangeStart, rangeEnd time.Time, maxOccurrences int) ([]Occurrence, error) {
	if maxOccurrences <= 0 {
		maxOccurrences = defaultMaxOccurrences
	}

	if !evt.IsRecurring || evt.RecurrenceRule == "" {
		if evt.Overlaps(rangeStart, rangeEnd) {
			return []Occurrence{{EventID: evt.ID, Start: evt.StartTime, End: evt.EndTime}}, nil
		}
		return nil, nil
	}

	rule, err := rrule.StrToRRule(evt.RecurrenceRule)
	if err != nil {
		return nil, apperrors.WithMetadata(
			apperrors.CodeEventRecurrenceRuleBad,
			"recurrence rule is not a valid RFC 5545 RRULE: "+err.Error(),
			map[string]string{"Rule": evt.RecurrenceRule},
		)
	}
	rule.DTStart(evt.StartTime)

	duration := evt.EndTime.Sub(evt.StartTime)
	starts := rule.Between(rangeStart, rangeEnd, true)
	if len(starts) > maxOccurrences {
		starts = starts[:maxOccurrences]
	}

	occurrences := make([]Occurrence, 0, len(starts))
	for _, start := range starts {
		occurrences = append(occurrences, Occurrence{
			EventID: evt.ID,
			Start:   start,
			End:     start.Add(duration),
		})
	}
	return occurrences, nil
}
