package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) seedResolvedReport(t *testing.T, priority int, createdAt time.Time, resolution time.Duration) {
	t.Helper()
	reviewedAt := createdAt.Add(resolution)
	require.NoError(t, f.store.CreateReport(context.Background(), &Report{
		ID:         uuid.NewString(),
		ReporterID: uuid.NewString(),
		ReportType: ReportTypePost,
		TargetID:   uuid.NewString(),
		Reason:     ReasonSpam,
		Status:     ReportStatusResolved,
		Priority:   priority,
		CreatedAt:  createdAt,
		ReviewedBy: f.mod.ID,
		ReviewedAt: &reviewedAt,
	}))
}

func (f *fixture) seedReversedAction(t *testing.T, moderatorID, targetUserID string, createdAt time.Time, timeToReversal time.Duration, reversalReason string) *Action {
	t.Helper()
	revokedAt := createdAt.Add(timeToReversal)
	a := &Action{
		ID:           uuid.NewString(),
		ModeratorID:  moderatorID,
		TargetUserID: targetUserID,
		ActionType:   ActionUserWarned,
		Reason:       "seed",
		CreatedAt:    createdAt,
		RevokedAt:    &revokedAt,
		RevokedBy:    f.mod2.ID,
		Metadata:     ActionMetadata{ReversalReason: reversalReason},
	}
	require.NoError(t, f.store.CreateAction(context.Background(), a))
	return a
}

func TestSLACompliance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	window := 7 * 24 * time.Hour
	base := f.now.Add(-48 * time.Hour)

	// P1 target is 2h: one within, one outside.
	f.seedResolvedReport(t, 1, base, time.Hour)
	f.seedResolvedReport(t, 1, base, 3*time.Hour)
	// P3 target is 24h: within.
	f.seedResolvedReport(t, 3, base, 10*time.Hour)
	// Unresolved reports are excluded.
	require.NoError(t, f.store.CreateReport(ctx, &Report{
		ID:         uuid.NewString(),
		ReporterID: uuid.NewString(),
		ReportType: ReportTypePost,
		TargetID:   uuid.NewString(),
		Reason:     ReasonSpam,
		Status:     ReportStatusPending,
		Priority:   1,
		CreatedAt:  base,
	}))
	// Dismissed reports are reviewed but not resolved; they stay out of the
	// compliance base even with reviewed_at set.
	dismissedAt := base.Add(time.Hour)
	require.NoError(t, f.store.CreateReport(ctx, &Report{
		ID:         uuid.NewString(),
		ReporterID: uuid.NewString(),
		ReportType: ReportTypePost,
		TargetID:   uuid.NewString(),
		Reason:     ReasonSpam,
		Status:     ReportStatusDismissed,
		Priority:   1,
		CreatedAt:  base,
		ReviewedBy: f.mod.ID,
		ReviewedAt: &dismissedAt,
	}))

	_, err := f.svc.SLACompliance(ctx, f.user, window)
	kindIs(t, err, KindInsufficientPermissions)

	report, err := f.svc.SLACompliance(ctx, f.mod, window)
	require.NoError(t, err)

	p1 := report.Tiers[1]
	assert.Equal(t, 2, p1.TargetHours)
	assert.Equal(t, 2, p1.Resolved)
	assert.Equal(t, 1, p1.WithinTarget)
	assert.InDelta(t, 50.0, p1.CompliancePct, 0.01)

	p3 := report.Tiers[3]
	assert.Equal(t, 1, p3.Resolved)
	assert.InDelta(t, 100.0, p3.CompliancePct, 0.01)

	assert.InDelta(t, 66.67, report.Overall, 0.01)
}

func TestReversalRates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	window := 7 * 24 * time.Hour
	base := f.now.Add(-48 * time.Hour)

	// A related report at P2 so the per-priority axis has data.
	relatedID := uuid.NewString()
	require.NoError(t, f.store.CreateReport(ctx, &Report{
		ID:         relatedID,
		ReporterID: uuid.NewString(),
		ReportType: ReportTypePost,
		TargetID:   uuid.NewString(),
		Reason:     ReasonHarassment,
		Status:     ReportStatusResolved,
		Priority:   2,
		CreatedAt:  base,
	}))

	revokedAt := base.Add(time.Hour)
	require.NoError(t, f.store.CreateAction(ctx, &Action{
		ID:              uuid.NewString(),
		ModeratorID:     f.mod.ID,
		TargetUserID:    f.user.ID,
		ActionType:      ActionUserWarned,
		Reason:          "seed",
		RelatedReportID: relatedID,
		CreatedAt:       base,
		RevokedAt:       &revokedAt,
		RevokedBy:       f.mod2.ID,
		Metadata:        ActionMetadata{ReversalReason: "appeal upheld"},
	}))

	require.NoError(t, f.store.CreateAction(ctx, &Action{
		ID:           uuid.NewString(),
		ModeratorID:  f.mod.ID,
		TargetUserID: f.user.ID,
		ActionType:   ActionUserWarned,
		Reason:       "kept",
		CreatedAt:    base,
	}))
	require.NoError(t, f.store.CreateAction(ctx, &Action{
		ID:           uuid.NewString(),
		ModeratorID:  f.mod2.ID,
		TargetUserID: f.user.ID,
		ActionType:   ActionUserSuspended,
		Reason:       "kept",
		CreatedAt:    base,
	}))

	_, err := f.svc.ReversalRates(ctx, f.user, window)
	kindIs(t, err, KindInsufficientPermissions)

	report, err := f.svc.ReversalRates(ctx, f.mod, window)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Reversed)
	assert.InDelta(t, 33.33, report.OverallPct, 0.01)

	warned := report.ByType[ActionUserWarned]
	assert.Equal(t, 2, warned.Total)
	assert.Equal(t, 1, warned.Reversed)
	assert.InDelta(t, 50.0, warned.Pct, 0.01)

	byMod := report.ByModerator[f.mod.ID]
	assert.Equal(t, 2, byMod.Total)
	assert.Equal(t, 1, byMod.Reversed)

	p2 := report.ByPriority[2]
	assert.Equal(t, 1, p2.Total)
	assert.Equal(t, 1, p2.Reversed)
	assert.InDelta(t, 100.0, p2.Pct, 0.01)
}

func TestTimeToReversal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	window := 7 * 24 * time.Hour
	base := f.now.Add(-48 * time.Hour)

	f.seedReversedAction(t, f.mod.ID, f.user.ID, base, time.Hour, "a")
	f.seedReversedAction(t, f.mod.ID, f.user.ID, base, 3*time.Hour, "b")
	// Non-reversed actions contribute nothing.
	require.NoError(t, f.store.CreateAction(ctx, &Action{
		ID:           uuid.NewString(),
		ModeratorID:  f.mod.ID,
		TargetUserID: f.user.ID,
		ActionType:   ActionUserWarned,
		Reason:       "kept",
		CreatedAt:    base,
	}))

	report, err := f.svc.TimeToReversal(ctx, f.mod, window)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Overall.Count)
	assert.Equal(t, 2*time.Hour, report.Overall.Mean)
	assert.Equal(t, 2*time.Hour, report.Overall.Median)
	assert.Equal(t, time.Hour, report.Overall.Min)
	assert.Equal(t, 3*time.Hour, report.Overall.Max)
	assert.Equal(t, 2, report.ByType[ActionUserWarned].Count)
}

func TestReversalPatterns(t *testing.T) {
	f := newFixture(t)
	window := 7 * 24 * time.Hour
	repeatTarget := uuid.NewString()
	oneOff := uuid.NewString()

	// Reversals land at the fixture clock: Saturday 2026-03-14, 11:00 UTC.
	base := f.now.Add(-time.Hour)
	f.seedReversedAction(t, f.mod.ID, repeatTarget, base.Add(-time.Hour), time.Hour, "appeal upheld")
	f.seedReversedAction(t, f.mod.ID, repeatTarget, base.Add(-time.Hour), time.Hour, "appeal upheld")
	f.seedReversedAction(t, f.mod2.ID, oneOff, base.Add(-time.Hour), time.Hour, "mistaken identity")

	report, err := f.svc.ReversalPatterns(context.Background(), f.mod, window)
	require.NoError(t, err)

	assert.Equal(t, 2, report.ReasonCounts["appeal upheld"])
	assert.Equal(t, 1, report.ReasonCounts["mistaken identity"])

	require.Len(t, report.RepeatTargets, 1)
	assert.Equal(t, repeatTarget, report.RepeatTargets[0].UserID)
	assert.Equal(t, 2, report.RepeatTargets[0].ReversedCount)

	assert.Equal(t, 3, report.ByDayOfWeek["Saturday"])
	assert.Equal(t, 3, report.ByHourOfDay[11])
}
