package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tremolo/internal/moderation"
)

func setupTestStore(t *testing.T) *ModerationStore {
	tmpDir := t.TempDir()
	db, err := Open(filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return NewModerationStore(db)
}

func testReport(reporterID string, priority int, createdAt time.Time) *moderation.Report {
	return &moderation.Report{
		ID:         uuid.NewString(),
		ReporterID: reporterID,
		ReportType: moderation.ReportTypePost,
		TargetID:   uuid.NewString(),
		Reason:     moderation.ReasonSpam,
		Status:     moderation.ReportStatusPending,
		Priority:   priority,
		CreatedAt:  createdAt,
	}
}

func TestModerationStore_Reports(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("create and get round-trip", func(t *testing.T) {
		reviewed := now.Add(time.Hour)
		r := testReport("reporter-1", 2, now)
		r.Description = "spammy link farm"
		r.ReviewedBy = "mod-1"
		r.ReviewedAt = &reviewed

		require.NoError(t, store.CreateReport(ctx, r))

		got, err := store.GetReport(ctx, r.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, r.ReporterID, got.ReporterID)
		assert.Equal(t, r.Description, got.Description)
		assert.Equal(t, 2, got.Priority)
		require.NotNil(t, got.ReviewedAt)
		assert.True(t, got.ReviewedAt.Equal(reviewed))
	})

	t.Run("get missing returns nil", func(t *testing.T) {
		got, err := store.GetReport(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestModerationStore_QueueOrdering(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	// Flagged beats priority beats age.
	flagged := testReport("r1", 2, base.Add(time.Minute))
	flagged.ModeratorFlagged = true
	urgent := testReport("r2", 1, base.Add(3*time.Minute))
	old := testReport("r3", 3, base.Add(2 * time.Minute))

	for _, r := range []*moderation.Report{old, urgent, flagged} {
		require.NoError(t, store.CreateReport(ctx, r))
	}

	queue, err := store.ListQueue(ctx, moderation.QueueFilter{Status: moderation.ReportStatusPending})
	require.NoError(t, err)
	require.Len(t, queue, 3)
	assert.Equal(t, flagged.ID, queue[0].ID)
	assert.Equal(t, urgent.ID, queue[1].ID)
	assert.Equal(t, old.ID, queue[2].ID)
}

func TestModerationStore_QueueFilters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	p1 := testReport("r1", 1, base)
	p3 := testReport("r1", 3, base.Add(time.Second))
	resolved := testReport("r2", 1, base.Add(2*time.Second))
	resolved.Status = moderation.ReportStatusResolved

	for _, r := range []*moderation.Report{p1, p3, resolved} {
		require.NoError(t, store.CreateReport(ctx, r))
	}

	byPriority, err := store.ListQueue(ctx, moderation.QueueFilter{Priority: 3})
	require.NoError(t, err)
	require.Len(t, byPriority, 1)
	assert.Equal(t, p3.ID, byPriority[0].ID)

	pending, err := store.ListQueue(ctx, moderation.QueueFilter{Status: moderation.ReportStatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	limited, err := store.ListQueue(ctx, moderation.QueueFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestModerationStore_ResolveReportOnce(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	r := testReport("r1", 3, now)
	require.NoError(t, store.CreateReport(ctx, r))

	err := store.ResolveReport(ctx, r.ID, moderation.ReportStatusResolved, "mod-1", now, "handled", moderation.ActionContentRemoved)
	require.NoError(t, err)

	got, err := store.GetReport(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, moderation.ReportStatusResolved, got.Status)
	assert.Equal(t, "mod-1", got.ReviewedBy)
	assert.Equal(t, moderation.ActionContentRemoved, got.ActionTaken)

	// Second resolution must be refused.
	err = store.ResolveReport(ctx, r.ID, moderation.ReportStatusDismissed, "mod-2", now, "", "")
	assert.Error(t, err)
}

func TestModerationStore_FindRecentReport(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	r := testReport("r1", 3, now.Add(-time.Hour))
	require.NoError(t, store.CreateReport(ctx, r))

	found, err := store.FindRecentReport(ctx, "r1", r.ReportType, r.TargetID, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, r.ID, found.ID)

	// Outside the window.
	found, err = store.FindRecentReport(ctx, "r1", r.ReportType, r.TargetID, now)
	require.NoError(t, err)
	assert.Nil(t, found)

	// Different reporter.
	found, err = store.FindRecentReport(ctx, "r2", r.ReportType, r.TargetID, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestModerationStore_CountReportsBy(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.CreateReport(ctx, testReport("busy", 3, now.Add(time.Duration(i)*time.Second))))
	}
	require.NoError(t, store.CreateReport(ctx, testReport("busy", 3, now.Add(-48*time.Hour))))

	count, err := store.CountReportsBy(ctx, "busy", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func testAction(moderatorID, targetUserID string, actionType moderation.ActionType, createdAt time.Time) *moderation.Action {
	return &moderation.Action{
		ID:           uuid.NewString(),
		ModeratorID:  moderatorID,
		TargetUserID: targetUserID,
		ActionType:   actionType,
		Reason:       "policy violation",
		CreatedAt:    createdAt,
	}
}

func TestModerationStore_Actions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("round-trip with duration", func(t *testing.T) {
		days := 7
		expires := now.Add(7 * 24 * time.Hour)
		a := testAction("mod-1", "target-1", moderation.ActionUserSuspended, now)
		a.DurationDays = &days
		a.ExpiresAt = &expires
		a.InternalNotes = "second strike"

		require.NoError(t, store.CreateAction(ctx, a))

		got, err := store.GetAction(ctx, a.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.NotNil(t, got.DurationDays)
		assert.Equal(t, 7, *got.DurationDays)
		require.NotNil(t, got.ExpiresAt)
		assert.True(t, got.ExpiresAt.Equal(expires))
		assert.False(t, got.Reversed())
	})

	t.Run("permanent action has nil expiry", func(t *testing.T) {
		a := testAction("mod-1", "target-2", moderation.ActionUserBanned, now)
		require.NoError(t, store.CreateAction(ctx, a))

		got, err := store.GetAction(ctx, a.ID)
		require.NoError(t, err)
		assert.Nil(t, got.DurationDays)
		assert.Nil(t, got.ExpiresAt)
	})
}

func TestModerationStore_MarkActionRevoked(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a := testAction("mod-1", "target-1", moderation.ActionUserSuspended, now)
	require.NoError(t, store.CreateAction(ctx, a))

	err := store.MarkActionRevoked(ctx, a.ID, "mod-2", now.Add(time.Hour), "appeal granted", false)
	require.NoError(t, err)

	got, err := store.GetAction(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, got.Reversed())
	assert.Equal(t, "mod-2", got.RevokedBy)
	assert.Equal(t, "appeal granted", got.Metadata.ReversalReason)
	assert.False(t, got.Metadata.IsSelfReversal)
	// Original fields untouched.
	assert.Equal(t, "mod-1", got.ModeratorID)
	assert.True(t, got.CreatedAt.Equal(now))

	// Second revocation must be refused.
	err = store.MarkActionRevoked(ctx, a.ID, "mod-3", now.Add(2*time.Hour), "again", false)
	assert.Error(t, err)

	// And the stored fields must be unchanged after the refused attempt.
	got, err = store.GetAction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "mod-2", got.RevokedBy)
}

func TestModerationStore_AttemptRevocationOverwrite(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a := testAction("mod-1", "target-1", moderation.ActionUserSuspended, now)
	require.NoError(t, store.CreateAction(ctx, a))
	require.NoError(t, store.MarkActionRevoked(ctx, a.ID, "mod-2", now.Add(time.Hour), "appeal granted", false))

	rejected, err := store.AttemptRevocationOverwrite(ctx, a.ID, "attacker", now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, rejected)

	got, err := store.GetAction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "mod-2", got.RevokedBy)
	assert.True(t, got.RevokedAt.Equal(now.Add(time.Hour)))
}

func TestModerationStore_FindActiveActionByType(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	revoked := testAction("mod-1", "target-1", moderation.ActionUserSuspended, now.Add(-2*time.Hour))
	require.NoError(t, store.CreateAction(ctx, revoked))
	require.NoError(t, store.MarkActionRevoked(ctx, revoked.ID, "mod-1", now.Add(-time.Hour), "mistake", true))

	active := testAction("mod-2", "target-1", moderation.ActionUserSuspended, now)
	require.NoError(t, store.CreateAction(ctx, active))

	got, err := store.FindActiveActionByType(ctx, "target-1", moderation.ActionUserSuspended)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, active.ID, got.ID)

	got, err = store.FindActiveActionByType(ctx, "target-1", moderation.ActionUserBanned)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestModerationStore_StateChanges(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a := testAction("mod-1", "target-1", moderation.ActionUserSuspended, now)
	require.NoError(t, store.CreateAction(ctx, a))

	entries := []moderation.StateChangeEntry{
		{Timestamp: now, Action: moderation.StateApplied, ByUserID: "mod-1"},
		{Timestamp: now.Add(time.Hour), Action: moderation.StateReversed, ByUserID: "mod-2", Reason: "appeal"},
		{Timestamp: now.Add(2 * time.Hour), Action: moderation.StateReapplied, ByUserID: "mod-1"},
	}
	for _, e := range entries {
		require.NoError(t, store.AppendStateChange(ctx, a.ID, e))
	}

	got, err := store.ListStateChanges(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, moderation.StateApplied, got[0].Action)
	assert.Equal(t, moderation.StateReversed, got[1].Action)
	assert.Equal(t, "appeal", got[1].Reason)
	assert.Equal(t, moderation.StateReapplied, got[2].Action)
}

func TestModerationStore_RestrictionConflict(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	expires := now.Add(72 * time.Hour)
	first := &moderation.Restriction{
		ID:              uuid.NewString(),
		UserID:          "user-1",
		RestrictionType: moderation.RestrictionPostingDisabled,
		ExpiresAt:       &expires,
		IsActive:        true,
		Reason:          "spam",
		AppliedBy:       "mod-1",
		CreatedAt:       now,
	}
	require.NoError(t, store.CreateRestriction(ctx, first))

	second := &moderation.Restriction{
		ID:              uuid.NewString(),
		UserID:          "user-1",
		RestrictionType: moderation.RestrictionPostingDisabled,
		IsActive:        true,
		Reason:          "more spam",
		AppliedBy:       "mod-2",
		CreatedAt:       now.Add(time.Minute),
	}
	err := store.CreateRestriction(ctx, second)
	require.Error(t, err)

	var conflict *moderation.RestrictionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, first.ID, conflict.Existing.ID)

	// A different restriction type is fine.
	third := &moderation.Restriction{
		ID:              uuid.NewString(),
		UserID:          "user-1",
		RestrictionType: moderation.RestrictionUploadDisabled,
		IsActive:        true,
		Reason:          "uploads too",
		AppliedBy:       "mod-1",
		CreatedAt:       now,
	}
	require.NoError(t, store.CreateRestriction(ctx, third))

	// Deactivating frees the slot.
	require.NoError(t, store.DeactivateRestriction(ctx, first.ID))
	require.NoError(t, store.CreateRestriction(ctx, second))

	active, err := store.ListActiveRestrictions(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestModerationStore_Users(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("unknown user yields zero suspension state", func(t *testing.T) {
		u, err := store.GetUser(ctx, "fresh")
		require.NoError(t, err)
		assert.Equal(t, "fresh", u.ID)
		assert.False(t, u.Suspended)
		assert.Nil(t, u.SuspendedUntil)
	})

	t.Run("suspend and lift", func(t *testing.T) {
		until := now.Add(7 * 24 * time.Hour)
		require.NoError(t, store.SetUserSuspension(ctx, "user-1", &until, "harassment", true))

		u, err := store.GetUser(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, u.Suspended)
		require.NotNil(t, u.SuspendedUntil)
		assert.True(t, u.SuspendedUntil.Equal(until))
		assert.Equal(t, "harassment", u.SuspensionReason)

		require.NoError(t, store.SetUserSuspension(ctx, "user-1", nil, "", false))
		u, err = store.GetUser(ctx, "user-1")
		require.NoError(t, err)
		assert.False(t, u.Suspended)
		assert.Nil(t, u.SuspendedUntil)
	})

	t.Run("permanent suspension has nil until", func(t *testing.T) {
		require.NoError(t, store.SetUserSuspension(ctx, "user-2", nil, "banned", true))
		u, err := store.GetUser(ctx, "user-2")
		require.NoError(t, err)
		assert.True(t, u.Suspended)
		assert.Nil(t, u.SuspendedUntil)
	})
}

func TestModerationStore_SecurityEvents(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.AppendSecurityEvent(ctx, &moderation.SecurityEvent{
			ID:        uuid.NewString(),
			EventType: moderation.EventRateLimitExceeded,
			UserID:    "user-1",
			Details:   map[string]any{"count": float64(i)},
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		}))
	}

	page1, cursor, err := store.ListSecurityEvents(ctx, 3, "")
	require.NoError(t, err)
	require.Len(t, page1, 3)
	require.NotEmpty(t, cursor)
	// Newest first.
	assert.True(t, page1[0].CreatedAt.After(page1[1].CreatedAt))

	page2, cursor2, err := store.ListSecurityEvents(ctx, 3, cursor)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Empty(t, cursor2)

	// No overlap between pages.
	seen := map[string]bool{}
	for _, e := range append(page1, page2...) {
		assert.False(t, seen[e.ID])
		seen[e.ID] = true
	}
}
