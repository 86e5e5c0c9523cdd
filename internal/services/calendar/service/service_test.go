package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	apperrors "github.com/louisbranch/gatherspace/internal/platform/errors"
	"github.com/louisbranch/gatherspace/internal/services/calendar/domain/event"
	"github.com/louisbranch/gatherspace/internal/services/calendar/domain/share"
	"github.com/louisbranch/gatherspace/internal/services/calendar/domain/version"
	"github.com/louisbranch/gatherspace/internal/services/calendar/storage"
	"github.com/louisbranch/gatherspace/internal/services/calendar/storage/memory"
)

var testStart = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) *Service {
	t.Helper()
	var counter int
	var mu sync.Mutex
	return New(memory.NewStore(),
		WithClock(func() time.Time { return testStart.Add(-time.Hour) }),
		WithIDGenerator(func() (string, error) {
			mu.Lock()
			defer mu.Unlock()
			counter++
			return fmt.Sprintf("evt-%04d", counter), nil
		}),
	)
}

func createInput(title string) event.CreateInput {
	return event.CreateInput{
		Title:     title,
		StartTime: testStart,
		EndTime:   testStart.Add(30 * time.Minute),
	}
}

func mustCreate(t *testing.T, svc *Service, actorID, title string) event.Event {
	t.Helper()
	evt, err := svc.CreateEvent(context.Background(), actorID, createInput(title))
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	return evt
}

func strPtr(s string) *string { return &s }

func TestCreateEventRecordsInitialVersion(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	evt := mustCreate(t, svc, "owner-1", "Standup")
	if evt.Version != 1 || evt.OwnerID != "owner-1" {
		t.Fatalf("unexpected event %+v", evt)
	}

	v, err := svc.GetEventVersion(ctx, "owner-1", evt.ID, 1)
	if err != nil {
		t.Fatalf("get version: %v", err)
	}
	if v.ChangeDescription != version.DescriptionInitialCreation {
		t.Fatalf("unexpected description %q", v.ChangeDescription)
	}
	if v.ChangedBy != "owner-1" {
		t.Fatalf("unexpected author %q", v.ChangedBy)
	}
	if diffs := version.Diff(v.Snapshot, version.Capture(evt)); len(diffs) != 0 {
		t.Fatalf("snapshot drifted: %v", diffs)
	}
}

func TestCreateEventRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	tests := []struct {
		name  string
		input event.CreateInput
		want  error
	}{
		{"empty title", event.CreateInput{StartTime: testStart, EndTime: testStart.Add(time.Hour)}, event.ErrTitleEmpty},
		{"end before start", event.CreateInput{Title: "X", StartTime: testStart, EndTime: testStart.Add(-time.Hour)}, event.ErrTimeRangeInvalid},
		{"recurring without rule", event.CreateInput{Title: "X", StartTime: testStart, EndTime: testStart.Add(time.Hour), IsRecurring: true}, event.ErrRecurrenceRuleEmpty},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateEvent(ctx, "owner-1", tc.input); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestUpdateEventAppendsDescribedVersion(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	evt := mustCreate(t, svc, "owner-1", "Standup")

	updated, err := svc.UpdateEvent(ctx, "owner-1", evt.ID, event.UpdateInput{Title: strPtr("Planning")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 || updated.Title != "Planning" {
		t.Fatalf("unexpected event %+v", updated)
	}
	if updated.UpdatedAt == nil {
		t.Fatal("expected UpdatedAt to be set")
	}

	v, err := svc.GetEventVersion(ctx, "owner-1", evt.ID, 2)
	if err != nil {
		t.Fatalf("get version: %v", err)
	}
	want := "Title changed from 'Standup' to 'Planning'"
	if v.ChangeDescription != want {
		t.Fatalf("expected %q, got %q", want, v.ChangeDescription)
	}
}

func TestUpdateEventNoChangesStillVersions(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	evt := mustCreate(t, svc, "owner-1", "Standup")

	updated, err := svc.UpdateEvent(ctx, "owner-1", evt.ID, event.UpdateInput{Title: strPtr("Standup")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}

	v, err := svc.GetEventVersion(ctx, "owner-1", evt.ID, 2)
	if err != nil {
		t.Fatalf("get version: %v", err)
	}
	if v.ChangeDescription != version.DescriptionNoChanges {
		t.Fatalf("expected %q, got %q", version.DescriptionNoChanges, v.ChangeDescription)
	}
}

func TestUpdateEventValidationLeavesHistoryUntouched(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	evt := mustCreate(t, svc, "owner-1", "Standup")

	badEnd := testStart.Add(-time.Hour)
	if _, err := svc.UpdateEvent(ctx, "owner-1", evt.ID, event.UpdateInput{EndTime: &badEnd}); !errors.Is(err, event.ErrTimeRangeInvalid) {
		t.Fatalf("expected ErrTimeRangeInvalid, got %v", err)
	}

	got, err := svc.GetEvent(ctx, "owner-1", evt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != 1 {
		t.Fatalf("failed update must not version, got %d", got.Version)
	}
}

func TestPermissionEnforcement(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	evt := mustCreate(t, svc, "owner-1", "Standup")

	if _, err := svc.ShareEvent(ctx, "owner-1", evt.ID, "viewer-1", "viewer"); err != nil {
		t.Fatalf("share: %v", err)
	}
	if _, err := svc.ShareEvent(ctx, "owner-1", evt.ID, "editor-1", "editor"); err != nil {
		t.Fatalf("share: %v", err)
	}

	// Viewer can read but not write.
	if _, err := svc.GetEvent(ctx, "viewer-1", evt.ID); err != nil {
		t.Fatalf("viewer read: %v", err)
	}
	if _, err := svc.UpdateEvent(ctx, "viewer-1", evt.ID, event.UpdateInput{Title: strPtr("Hijacked")}); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if err := svc.DeleteEvent(ctx, "viewer-1", evt.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}

	// Editor can write but not manage: sharing, rollback, and delete
	// stay owner-only.
	if _, err := svc.UpdateEvent(ctx, "editor-1", evt.ID, event.UpdateInput{Location: strPtr("Room 2")}); err != nil {
		t.Fatalf("editor update: %v", err)
	}
	if _, err := svc.ShareEvent(ctx, "editor-1", evt.ID, "user-9", "viewer"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if _, err := svc.RollbackEvent(ctx, "editor-1", evt.ID, 1); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied for editor rollback, got %v", err)
	}
	if err := svc.DeleteEvent(ctx, "editor-1", evt.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied for editor delete, got %v", err)
	}
	latest, err := svc.GetEvent(ctx, "owner-1", evt.ID)
	if err != nil {
		t.Fatalf("get after denied rollback: %v", err)
	}
	if latest.Version != 2 {
		t.Fatalf("denied operations must not version the event, got %d", latest.Version)
	}

	// A stranger gets the same denial as an under-privileged user.
	if _, err := svc.GetEvent(ctx, "stranger-1", evt.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}

	// An unknown event is a missing record, not a permission problem.
	if _, err := svc.GetEvent(ctx, "owner-1", "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRollbackRestoresSnapshotAsForwardVersion(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	evt := mustCreate(t, svc, "owner-1", "Standup")

	if _, err := svc.UpdateEvent(ctx, "owner-1", evt.ID, event.UpdateInput{Title: strPtr("Planning"), Location: strPtr("Room 2")}); err != nil {
		t.Fatalf("update: %v", err)
	}

	restored, err := svc.RollbackEvent(ctx, "owner-1", evt.ID, 1)
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if restored.Version != 3 {
		t.Fatalf("rollback must move history forward, got version %d", restored.Version)
	}
	if restored.Title != "Standup" || restored.Location != "" {
		t.Fatalf("unexpected restored state %+v", restored)
	}

	v, err := svc.GetEventVersion(ctx, "owner-1", evt.ID, 3)
	if err != nil {
		t.Fatalf("get version: %v", err)
	}
	// The rollback version is described like any other change, diffed
	// against the pre-rollback state.
	if v.ChangeDescription != "Title changed from 'Planning' to 'Standup'; Location updated" {
		t.Fatalf("unexpected description %q", v.ChangeDescription)
	}

	// The restored state is byte-equal to the target version.
	cmp, err := svc.CompareVersions(ctx, "owner-1", evt.ID, 1, 3)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if len(cmp.Diffs) != 0 || cmp.Summary != version.DescriptionNoChanges {
		t.Fatalf("expected empty diff, got %+v", cmp)
	}
}

func TestRollbackToUnknownVersion(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	evt := mustCreate(t, svc, "owner-1", "Standup")

	if _, err := svc.RollbackEvent(ctx, "owner-1", evt.ID, 7); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	got, err := svc.GetEvent(ctx, "owner-1", evt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != 1 {
		t.Fatalf("failed rollback must not version, got %d", got.Version)
	}
}

func TestCompareVersionsIsDirectional(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	evt := mustCreate(t, svc, "owner-1", "Standup")
	if _, err := svc.UpdateEvent(ctx, "owner-1", evt.ID, event.UpdateInput{Title: strPtr("Planning")}); err != nil {
		t.Fatalf("update: %v", err)
	}

	forward, err := svc.CompareVersions(ctx, "owner-1", evt.ID, 1, 2)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	backward, err := svc.CompareVersions(ctx, "owner-1", evt.ID, 2, 1)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}

	if len(forward.Diffs) != 1 || len(backward.Diffs) != 1 {
		t.Fatalf("expected one diff each, got %v / %v", forward.Diffs, backward.Diffs)
	}
	if forward.Diffs[0].OldValue != backward.Diffs[0].NewValue || forward.Diffs[0].NewValue != backward.Diffs[0].OldValue {
		t.Fatalf("expected mirrored values, got %+v / %+v", forward.Diffs[0], backward.Diffs[0])
	}
}

func TestDeleteEventRevokesAccessButKeepsHistory(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	evt := mustCreate(t, svc, "owner-1", "Standup")
	if _, err := svc.ShareEvent(ctx, "owner-1", evt.ID, "viewer-1", "viewer"); err != nil {
		t.Fatalf("share: %v", err)
	}

	if err := svc.DeleteEvent(ctx, "owner-1", evt.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := svc.GetEvent(ctx, "owner-1", evt.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.GetEvent(ctx, "viewer-1", evt.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for revoked viewer, got %v", err)
	}
}

func TestSharingLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	evt := mustCreate(t, svc, "owner-1", "Standup")

	// Sharing with the owner is rejected.
	if _, err := svc.ShareEvent(ctx, "owner-1", evt.ID, "owner-1", "viewer"); !errors.Is(err, ErrShareTargetIsOwner) {
		t.Fatalf("expected ErrShareTargetIsOwner, got %v", err)
	}

	// Only viewer and editor are grantable.
	if _, err := svc.ShareEvent(ctx, "owner-1", evt.ID, "user-2", "owner"); apperrors.CodeOf(err) != apperrors.CodeShareInvalidRole {
		t.Fatalf("expected invalid role, got %v", err)
	}

	grant, err := svc.ShareEvent(ctx, "owner-1", evt.ID, "user-2", "viewer")
	if err != nil {
		t.Fatalf("share: %v", err)
	}
	if grant.Role != share.RoleViewer {
		t.Fatalf("unexpected grant %+v", grant)
	}

	// Re-sharing an existing grant is an error, not an upsert.
	if _, err := svc.ShareEvent(ctx, "owner-1", evt.ID, "user-2", "editor"); !errors.Is(err, storage.ErrPermissionExists) {
		t.Fatalf("expected ErrPermissionExists, got %v", err)
	}

	// ChangeRole is the path for upgrades.
	changed, err := svc.ChangeRole(ctx, "owner-1", evt.ID, "user-2", "editor")
	if err != nil {
		t.Fatalf("change role: %v", err)
	}
	if changed.Role != share.RoleEditor || changed.UpdatedAt == nil {
		t.Fatalf("unexpected grant %+v", changed)
	}
	if _, err := svc.UpdateEvent(ctx, "user-2", evt.ID, event.UpdateInput{Location: strPtr("Room 2")}); err != nil {
		t.Fatalf("upgraded editor update: %v", err)
	}

	grants, err := svc.ListPermissions(ctx, "owner-1", evt.ID)
	if err != nil {
		t.Fatalf("list grants: %v", err)
	}
	if len(grants) != 1 || grants[0].UserID != "user-2" {
		t.Fatalf("unexpected grants %v", grants)
	}
	if _, err := svc.ListPermissions(ctx, "user-2", evt.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}

	// Revocation takes effect immediately.
	if err := svc.RevokeShare(ctx, "owner-1", evt.ID, "user-2"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := svc.GetEvent(ctx, "user-2", evt.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied after revoke, got %v", err)
	}
	if err := svc.RevokeShare(ctx, "owner-1", evt.ID, "user-2"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestChangelogPagination(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	evt := mustCreate(t, svc, "owner-1", "Standup")
	for i := 2; i <= 6; i++ {
		if _, err := svc.UpdateEvent(ctx, "owner-1", evt.ID, event.UpdateInput{Title: strPtr(fmt.Sprintf("Rev %d", i))}); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}

	page, err := svc.Changelog(ctx, "owner-1", evt.ID, ChangelogQuery{PageSize: 4, Descending: true})
	if err != nil {
		t.Fatalf("changelog: %v", err)
	}
	if len(page.Versions) != 4 || !page.HasNextPage || page.TotalCount != 6 {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.Versions[0].Number != 6 {
		t.Fatalf("expected newest first, got %d", page.Versions[0].Number)
	}

	page, err = svc.Changelog(ctx, "owner-1", evt.ID, ChangelogQuery{PageSize: 4, Descending: true, CursorVersion: page.Versions[3].Number})
	if err != nil {
		t.Fatalf("changelog page 2: %v", err)
	}
	if len(page.Versions) != 2 || page.HasNextPage {
		t.Fatalf("unexpected page %+v", page)
	}

	if _, err := svc.Changelog(ctx, "viewer-x", evt.ID, ChangelogQuery{}); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if _, err := svc.Changelog(ctx, "owner-1", evt.ID, ChangelogQuery{Filter: "bogus ="}); err == nil {
		t.Fatal("expected filter parse error")
	}
}

func TestBatchCreateEventsValidatesUpfront(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	inputs := []event.CreateInput{
		createInput("One"),
		{Title: "", StartTime: testStart, EndTime: testStart.Add(time.Hour)},
	}
	if _, err := svc.BatchCreateEvents(ctx, "owner-1", inputs); !errors.Is(err, event.ErrTitleEmpty) {
		t.Fatalf("expected ErrTitleEmpty, got %v", err)
	}

	// Nothing was persisted since validation failed before writes.
	page, err := svc.ListEvents(ctx, "owner-1", ListEventsQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Events) != 0 {
		t.Fatalf("expected no events, got %d", len(page.Events))
	}

	events, err := svc.BatchCreateEvents(ctx, "owner-1", []event.CreateInput{createInput("One"), createInput("Two")})
	if err != nil {
		t.Fatalf("batch create: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
}

func TestDetectConflicts(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	evt := mustCreate(t, svc, "owner-1", "Standup")
	other, err := svc.CreateEvent(ctx, "owner-1", event.CreateInput{
		Title:     "Lunch",
		StartTime: testStart.Add(2 * time.Hour),
		EndTime:   testStart.Add(3 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	conflicts, err := svc.DetectConflicts(ctx, "owner-1", testStart.Add(15*time.Minute), testStart.Add(45*time.Minute), "")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(conflicts) != 1 || conflicts[0].ID != evt.ID {
		t.Fatalf("unexpected conflicts %v", conflicts)
	}

	// Back-to-back events do not conflict.
	conflicts, err = svc.DetectConflicts(ctx, "owner-1", testStart.Add(30*time.Minute), testStart.Add(time.Hour), "")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("expected no conflicts, got %v", conflicts)
	}

	// The event being edited is excluded from its own conflict check.
	conflicts, err = svc.DetectConflicts(ctx, "owner-1", other.StartTime, other.EndTime, other.ID)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("expected no conflicts, got %v", conflicts)
	}

	if _, err := svc.DetectConflicts(ctx, "owner-1", testStart, testStart, ""); !errors.Is(err, event.ErrTimeRangeInvalid) {
		t.Fatalf("expected ErrTimeRangeInvalid, got %v", err)
	}
}

func TestListOccurrencesRequiresViewAccess(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	evt, err := svc.CreateEvent(ctx, "owner-1", event.CreateInput{
		Title:          "Daily sync",
		StartTime:      testStart,
		EndTime:        testStart.Add(30 * time.Minute),
		IsRecurring:    true,
		RecurrenceRule: "FREQ=DAILY;COUNT=10",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	occurrences, err := svc.ListOccurrences(ctx, "owner-1", evt.ID, testStart, testStart.Add(72*time.Hour), 0)
	if err != nil {
		t.Fatalf("occurrences: %v", err)
	}
	if len(occurrences) == 0 {
		t.Fatal("expected occurrences in window")
	}

	if _, err := svc.ListOccurrences(ctx, "stranger-1", evt.ID, testStart, testStart.Add(72*time.Hour), 0); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestConcurrentUpdatesStayGapless(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	evt := mustCreate(t, svc, "owner-1", "Standup")

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			title := fmt.Sprintf("Rev %d", i)
			if _, err := svc.UpdateEvent(ctx, "owner-1", evt.ID, event.UpdateInput{Title: &title}); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent update: %v", err)
	}

	got, err := svc.GetEvent(ctx, "owner-1", evt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != writers+1 {
		t.Fatalf("expected version %d, got %d", writers+1, got.Version)
	}

	page, err := svc.Changelog(ctx, "owner-1", evt.ID, ChangelogQuery{PageSize: 200})
	if err != nil {
		t.Fatalf("changelog: %v", err)
	}
	if page.TotalCount != writers+1 {
		t.Fatalf("expected %d versions, got %d", writers+1, page.TotalCount)
	}
	for i, v := range page.Versions {
		if want := uint64(i + 1); v.Number != want {
			t.Fatalf("history has a gap: expected %d at index %d, got %d", want, i, v.Number)
		}
	}
}

func TestOwnershipSurvivesGrantRows(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	evt := mustCreate(t, svc, "owner-1", "Standup")

	// Even if a grant row somehow exists for the owner, the owner role
	// wins during resolution.
	if err := svc.store.PutPermission(ctx, share.Permission{EventID: evt.ID, UserID: "owner-1", Role: share.RoleViewer, CreatedAt: testStart}); err != nil {
		t.Fatalf("seed grant: %v", err)
	}
	if _, err := svc.ShareEvent(ctx, "owner-1", evt.ID, "user-2", "viewer"); err != nil {
		t.Fatalf("owner share: %v", err)
	}
}
