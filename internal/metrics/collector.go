package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// StatsSource provides functions to retrieve current counts for gauge
// metrics. Nil functions are skipped.
type StatsSource struct {
	PendingReportCount    func() int
	PendingByPriority     func() map[int]int
	ActiveRestrictionCount func() int
	SuspendedUserCount    func() int
}

// StartCollector launches a goroutine that periodically updates gauge
// metrics. It runs every interval until the context is cancelled.
func StartCollector(ctx context.Context, src StatsSource, interval time.Duration) {
	collect(src)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				collect(src)
			}
		}
	}()

	log.Info().Dur("interval", interval).Msg("Metrics collector started")
}

func collect(src StatsSource) {
	if src.PendingReportCount != nil {
		QueuePending.Set(float64(src.PendingReportCount()))
	}
	if src.PendingByPriority != nil {
		for priority, count := range src.PendingByPriority() {
			QueueByPriority.WithLabelValues(priorityLabel(priority)).Set(float64(count))
		}
	}
	if src.ActiveRestrictionCount != nil {
		ActiveRestrictions.Set(float64(src.ActiveRestrictionCount()))
	}
	if src.SuspendedUserCount != nil {
		SuspendedUsers.Set(float64(src.SuspendedUserCount()))
	}
}

func priorityLabel(p int) string {
	switch p {
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3"
	case 4:
		return "4"
	case 5:
		return "5"
	default:
		return "unknown"
	}
}
