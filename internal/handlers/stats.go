package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"golang.org/x/sync/errgroup"

	"tremolo/internal/metrics"
	"tremolo/internal/moderation"
)

const defaultStatsWindow = 7 * 24 * time.Hour

// HandleSLACompliance reports per-priority SLA compliance over a window.
// GET /api/stats/sla
func (h *Handler) HandleSLACompliance(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.SLACompliance(r.Context(), actor(r), parseWindow(r, defaultStatsWindow))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleReversalRates reports reversal rates overall and broken down by
// action type, priority, and moderator.
// GET /api/stats/reversal-rates
func (h *Handler) HandleReversalRates(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.ReversalRates(r.Context(), actor(r), parseWindow(r, defaultStatsWindow))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleTimeToReversal reports time-to-reversal statistics.
// GET /api/stats/time-to-reversal
func (h *Handler) HandleTimeToReversal(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.TimeToReversal(r.Context(), actor(r), parseWindow(r, defaultStatsWindow))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleReversalPatterns reports mined reversal patterns: reason counts,
// repeat targets, and UTC time-of-week buckets.
// GET /api/stats/reversal-patterns
func (h *Handler) HandleReversalPatterns(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.ReversalPatterns(r.Context(), actor(r), parseWindow(r, defaultStatsWindow))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// StatsSummary bundles every stats report for the moderation dashboard.
type StatsSummary struct {
	Window          string                            `json:"window"`
	SLA             *moderation.SLAReport             `json:"sla"`
	ReversalRates   *moderation.ReversalRateReport    `json:"reversal_rates"`
	TimeToReversal  *moderation.TimeToReversalReport  `json:"time_to_reversal"`
	ReversalPattern *moderation.ReversalPatternReport `json:"reversal_patterns"`
	Queue           QueueGauges                       `json:"queue"`
}

// QueueGauges is the point-in-time operational state read from the
// Prometheus gauges the collector maintains.
type QueueGauges struct {
	Pending            int `json:"pending"`
	ActiveRestrictions int `json:"active_restrictions"`
	SuspendedUsers     int `json:"suspended_users"`
}

// HandleStatsSummary computes every stats report concurrently and returns
// them as one dashboard payload.
// GET /api/stats/summary
func (h *Handler) HandleStatsSummary(w http.ResponseWriter, r *http.Request) {
	window := parseWindow(r, defaultStatsWindow)
	who := actor(r)

	summary := StatsSummary{Window: window.String()}
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		summary.SLA, err = h.service.SLACompliance(ctx, who, window)
		return err
	})
	g.Go(func() error {
		var err error
		summary.ReversalRates, err = h.service.ReversalRates(ctx, who, window)
		return err
	})
	g.Go(func() error {
		var err error
		summary.TimeToReversal, err = h.service.TimeToReversal(ctx, who, window)
		return err
	})
	g.Go(func() error {
		var err error
		summary.ReversalPattern, err = h.service.ReversalPatterns(ctx, who, window)
		return err
	})
	if err := g.Wait(); err != nil {
		writeError(w, r, err)
		return
	}

	summary.Queue = QueueGauges{
		Pending:            int(getGaugeValue(metrics.QueuePending)),
		ActiveRestrictions: int(getGaugeValue(metrics.ActiveRestrictions)),
		SuspendedUsers:     int(getGaugeValue(metrics.SuspendedUsers)),
	}

	writeJSON(w, http.StatusOK, summary)
}

// getGaugeValue reads the current value of a prometheus.Gauge.
func getGaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		return 0
	}
	if m.Gauge != nil {
		return m.GetGauge().GetValue()
	}
	return 0
}
