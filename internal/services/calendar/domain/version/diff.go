package version

import (
	"strings"
	"time"
)

// Field names the versioned fields in their canonical comparison order.
type Field string

const (
	FieldTitle          Field = "title"
	FieldDescription    Field = "description"
	FieldStartTime      Field = "start_time"
	FieldEndTime        Field = "end_time"
	FieldLocation       Field = "location"
	FieldIsRecurring    Field = "is_recurring"
	FieldRecurrenceRule Field = "recurrence_rule"
)

// Fixed change descriptions.
const (
	DescriptionInitialCreation = "Initial creation"
	DescriptionNoChanges       = "No changes"
)

// FieldDiff records one changed field between two snapshots. Values are
// rendered as strings: times in RFC 3339, booleans as "true"/"false".
type FieldDiff struct {
	Field    Field
	OldValue string
	NewValue string
}

// fieldRule pairs a field with its value renderer and description clause so
// the comparison order and wording stay reproducible.
type fieldRule struct {
	field    Field
	value    func(Snapshot) string
	describe func(old, new string) string
}

// schema enumerates the versioned fields in the order clauses are rendered.
var schema = []fieldRule{
	{
		field: FieldTitle,
		value: func(s Snapshot) string { return s.Title },
		describe: func(old, new string) string {
			return "Title changed from '" + old + "' to '" + new + "'"
		},
	},
	{
		field:    FieldDescription,
		value:    func(s Snapshot) string { return s.Description },
		describe: updatedClause("Description"),
	},
	{
		field:    FieldStartTime,
		value:    func(s Snapshot) string { return renderTime(s.StartTime) },
		describe: updatedClause("Start time"),
	},
	{
		field:    FieldEndTime,
		value:    func(s Snapshot) string { return renderTime(s.EndTime) },
		describe: updatedClause("End time"),
	},
	{
		field:    FieldLocation,
		value:    func(s Snapshot) string { return s.Location },
		describe: updatedClause("Location"),
	},
	{
		field:    FieldIsRecurring,
		value:    func(s Snapshot) string { return renderBool(s.IsRecurring) },
		describe: updatedClause("Recurring"),
	},
	{
		field:    FieldRecurrenceRule,
		value:    func(s Snapshot) string { return s.RecurrenceRule },
		describe: updatedClause("Recurrence rule"),
	},
}

func updatedClause(label string) func(old, new string) string {
	return func(string, string) string { return label + " updated" }
}

// renderTime keeps full precision so sub-second shifts still register
// as changes; for whole seconds the output matches RFC3339.
func renderTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func renderBool(value bool) string {
	if value {
		return "true"
	}
	return "false"
}

// Diff compares two snapshots field by field and returns the changed fields
// in schema order. An empty result means the snapshots are identical.
func Diff(before, after Snapshot) []FieldDiff {
	var diffs []FieldDiff
	for _, rule := range schema {
		oldValue := rule.value(before)
		newValue := rule.value(after)
		if oldValue == newValue {
			continue
		}
		diffs = append(diffs, FieldDiff{
			Field:    rule.field,
			OldValue: oldValue,
			NewValue: newValue,
		})
	}
	return diffs
}

// Describe renders a human-readable change summary with one clause per
// changed field, joined by "; " in schema order. Identical snapshots yield
// DescriptionNoChanges.
func Describe(before, after Snapshot) string {
	var clauses []string
	for _, rule := range schema {
		oldValue := rule.value(before)
		newValue := rule.value(after)
		if oldValue == newValue {
			continue
		}
		clauses = append(clauses, rule.describe(oldValue, newValue))
	}
	if len(clauses) == 0 {
		return DescriptionNoChanges
	}
	return strings.Join(clauses, "; ")
}
