package moderation

import (
	"context"
	"sort"
	"time"
)

// The metrics engine reads report and action history only; nothing in this
// file mutates state.

// SLAReport is per-priority compliance over a window.
type SLAReport struct {
	Window  time.Duration       `json:"window"`
	Tiers   map[int]SLATierStat `json:"tiers"`
	Overall float64             `json:"overall_pct"`
}

// SLATierStat is the compliance breakdown for one priority tier.
type SLATierStat struct {
	TargetHours  int     `json:"target_hours"`
	Resolved     int     `json:"resolved"`
	WithinTarget int     `json:"within_target"`
	CompliancePct float64 `json:"compliance_pct"`
}

// SLACompliance computes, per priority tier, the percentage of resolved
// reports whose (reviewed_at - created_at) met the tier's target.
func (s *Service) SLACompliance(ctx context.Context, actor Actor, window time.Duration) (*SLAReport, error) {
	if err := s.guard.VerifyModeratorRole(ctx, actor); err != nil {
		return nil, err
	}
	reports, err := s.store.ListReportsSince(ctx, s.now().Add(-window))
	if err != nil {
		return nil, wrapUnexpected(err, "list reports")
	}

	out := &SLAReport{Window: window, Tiers: make(map[int]SLATierStat)}
	totalResolved, totalWithin := 0, 0
	for _, r := range reports {
		// Dismissals close a report without moderator action, so they are
		// not part of the compliance base.
		if r.ReviewedAt == nil || r.Status != ReportStatusResolved {
			continue
		}
		tier := out.Tiers[r.Priority]
		tier.TargetHours = SLATargetHours(r.Priority)
		tier.Resolved++
		totalResolved++
		if r.ReviewedAt.Sub(r.CreatedAt) <= time.Duration(tier.TargetHours)*time.Hour {
			tier.WithinTarget++
			totalWithin++
		}
		out.Tiers[r.Priority] = tier
	}
	for p, tier := range out.Tiers {
		tier.CompliancePct = pct(tier.WithinTarget, tier.Resolved)
		out.Tiers[p] = tier
	}
	out.Overall = pct(totalWithin, totalResolved)
	return out, nil
}

// ReversalRateReport breaks reversal rate down along every requested axis.
type ReversalRateReport struct {
	Window      time.Duration      `json:"window"`
	Total       int                `json:"total_actions"`
	Reversed    int                `json:"reversed_actions"`
	OverallPct  float64            `json:"overall_pct"`
	ByType      map[ActionType]RateStat `json:"by_type"`
	ByPriority  map[int]RateStat        `json:"by_priority"`
	ByModerator map[string]RateStat     `json:"by_moderator"`
}

// RateStat is a reversed/total pair with its percentage.
type RateStat struct {
	Total    int     `json:"total"`
	Reversed int     `json:"reversed"`
	Pct      float64 `json:"pct"`
}

// ReversalRates computes reversed/total overall, per action type, per
// priority (via the related report), and per moderator.
func (s *Service) ReversalRates(ctx context.Context, actor Actor, window time.Duration) (*ReversalRateReport, error) {
	if err := s.guard.VerifyModeratorRole(ctx, actor); err != nil {
		return nil, err
	}
	actions, err := s.store.ListActionsSince(ctx, s.now().Add(-window))
	if err != nil {
		return nil, wrapUnexpected(err, "list actions")
	}

	out := &ReversalRateReport{
		Window:      window,
		ByType:      make(map[ActionType]RateStat),
		ByPriority:  make(map[int]RateStat),
		ByModerator: make(map[string]RateStat),
	}
	bump := func(stat RateStat, reversed bool) RateStat {
		stat.Total++
		if reversed {
			stat.Reversed++
		}
		return stat
	}
	for _, a := range actions {
		reversed := a.Reversed()
		out.Total++
		if reversed {
			out.Reversed++
		}
		out.ByType[a.ActionType] = bump(out.ByType[a.ActionType], reversed)
		out.ByModerator[a.ModeratorID] = bump(out.ByModerator[a.ModeratorID], reversed)
		if a.RelatedReportID != "" {
			if report, err := s.store.GetReport(ctx, a.RelatedReportID); err == nil && report != nil {
				out.ByPriority[report.Priority] = bump(out.ByPriority[report.Priority], reversed)
			}
		}
	}
	out.OverallPct = pct(out.Reversed, out.Total)
	finishRates(out.ByType)
	finishRatesInt(out.ByPriority)
	finishRatesStr(out.ByModerator)
	return out, nil
}

func finishRates(m map[ActionType]RateStat) {
	for k, v := range m {
		v.Pct = pct(v.Reversed, v.Total)
		m[k] = v
	}
}

func finishRatesInt(m map[int]RateStat) {
	for k, v := range m {
		v.Pct = pct(v.Reversed, v.Total)
		m[k] = v
	}
}

func finishRatesStr(m map[string]RateStat) {
	for k, v := range m {
		v.Pct = pct(v.Reversed, v.Total)
		m[k] = v
	}
}

// DurationStats summarizes a set of durations.
type DurationStats struct {
	Count  int           `json:"count"`
	Mean   time.Duration `json:"mean"`
	Median time.Duration `json:"median"`
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
}

// TimeToReversalReport carries time-to-reversal statistics overall and per
// action type.
type TimeToReversalReport struct {
	Window  time.Duration                 `json:"window"`
	Overall DurationStats                 `json:"overall"`
	ByType  map[ActionType]DurationStats  `json:"by_type"`
}

// TimeToReversal computes (revoked_at - created_at) statistics for reversed
// actions in the window.
func (s *Service) TimeToReversal(ctx context.Context, actor Actor, window time.Duration) (*TimeToReversalReport, error) {
	if err := s.guard.VerifyModeratorRole(ctx, actor); err != nil {
		return nil, err
	}
	actions, err := s.store.ListActionsSince(ctx, s.now().Add(-window))
	if err != nil {
		return nil, wrapUnexpected(err, "list actions")
	}

	var all []time.Duration
	byType := make(map[ActionType][]time.Duration)
	for _, a := range actions {
		if !a.Reversed() {
			continue
		}
		d := a.RevokedAt.Sub(a.CreatedAt)
		all = append(all, d)
		byType[a.ActionType] = append(byType[a.ActionType], d)
	}

	out := &TimeToReversalReport{
		Window:  window,
		Overall: summarize(all),
		ByType:  make(map[ActionType]DurationStats, len(byType)),
	}
	for t, ds := range byType {
		out.ByType[t] = summarize(ds)
	}
	return out, nil
}

func summarize(ds []time.Duration) DurationStats {
	if len(ds) == 0 {
		return DurationStats{}
	}
	sorted := make([]time.Duration, len(ds))
	copy(sorted, ds)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	median := sorted[len(sorted)/2]
	if len(sorted)%2 == 0 {
		median = (sorted[len(sorted)/2-1] + sorted[len(sorted)/2]) / 2
	}
	return DurationStats{
		Count:  len(sorted),
		Mean:   sum / time.Duration(len(sorted)),
		Median: median,
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}
}

// ReversalPatternReport is the pattern-mining output: reversal reason
// frequencies, repeat-reversal targets, and UTC time-of-week bucketing.
type ReversalPatternReport struct {
	Window          time.Duration  `json:"window"`
	ReasonCounts    map[string]int `json:"reason_counts"`
	RepeatTargets   []RepeatTarget `json:"repeat_targets"`
	ByDayOfWeek     map[string]int `json:"by_day_of_week"`
	ByHourOfDay     map[int]int    `json:"by_hour_of_day"`
}

// RepeatTarget is a user with two or more reversed actions in the window.
type RepeatTarget struct {
	UserID        string `json:"user_id"`
	ReversedCount int    `json:"reversed_count"`
}

// ReversalPatterns mines reversed actions for reason frequencies, targets
// with at least two reversals, and day-of-week/hour-of-day buckets in UTC.
func (s *Service) ReversalPatterns(ctx context.Context, actor Actor, window time.Duration) (*ReversalPatternReport, error) {
	if err := s.guard.VerifyModeratorRole(ctx, actor); err != nil {
		return nil, err
	}
	actions, err := s.store.ListActionsSince(ctx, s.now().Add(-window))
	if err != nil {
		return nil, wrapUnexpected(err, "list actions")
	}

	out := &ReversalPatternReport{
		Window:       window,
		ReasonCounts: make(map[string]int),
		ByDayOfWeek:  make(map[string]int),
		ByHourOfDay:  make(map[int]int),
	}
	perTarget := make(map[string]int)
	for _, a := range actions {
		if !a.Reversed() {
			continue
		}
		if a.Metadata.ReversalReason != "" {
			out.ReasonCounts[a.Metadata.ReversalReason]++
		}
		perTarget[a.TargetUserID]++
		utc := a.RevokedAt.UTC()
		out.ByDayOfWeek[utc.Weekday().String()]++
		out.ByHourOfDay[utc.Hour()]++
	}
	for userID, n := range perTarget {
		if n >= 2 {
			out.RepeatTargets = append(out.RepeatTargets, RepeatTarget{UserID: userID, ReversedCount: n})
		}
	}
	sort.Slice(out.RepeatTargets, func(i, j int) bool {
		if out.RepeatTargets[i].ReversedCount != out.RepeatTargets[j].ReversedCount {
			return out.RepeatTargets[i].ReversedCount > out.RepeatTargets[j].ReversedCount
		}
		return out.RepeatTargets[i].UserID < out.RepeatTargets[j].UserID
	})
	return out, nil
}

func pct(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
