package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"tremolo/internal/moderation"
	"tremolo/internal/tracing"
)

// ReportRequest is the submit-report payload, accepted as JSON or form data.
type ReportRequest struct {
	ReportType  string `json:"report_type"`
	TargetID    string `json:"target_id"`
	Reason      string `json:"reason"`
	Description string `json:"description"`
}

// HandleSubmitReport files a user report against content or a user.
// POST /api/reports
func (h *Handler) HandleSubmitReport(w http.ResponseWriter, r *http.Request) {
	var req ReportRequest
	if err := decodeRequest(r, &req, func() error {
		req.ReportType = r.FormValue("report_type")
		req.TargetID = r.FormValue("target_id")
		req.Reason = r.FormValue("reason")
		req.Description = r.FormValue("description")
		return nil
	}); err != nil {
		writeError(w, r, moderation.NewError(moderation.KindValidation, "invalid request body"))
		return
	}

	who := actor(r)
	ctx, span := tracing.ModerationSpan(r.Context(), "submit_report", who.ID)
	defer span.End()

	report, err := h.service.SubmitReport(ctx, who, moderation.SubmitReportInput{
		ReportType:  moderation.ReportType(req.ReportType),
		TargetID:    req.TargetID,
		Reason:      moderation.ReportReason(req.Reason),
		Description: req.Description,
	})
	if err != nil {
		tracing.EndWithError(span, err)
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

// HandleFlagContent files a moderator-initiated flag. The report enters the
// queue ahead of user reports of the same priority.
// POST /api/flags
func (h *Handler) HandleFlagContent(w http.ResponseWriter, r *http.Request) {
	var req ReportRequest
	if err := decodeRequest(r, &req, func() error {
		req.ReportType = r.FormValue("report_type")
		req.TargetID = r.FormValue("target_id")
		req.Reason = r.FormValue("reason")
		req.Description = r.FormValue("description")
		return nil
	}); err != nil {
		writeError(w, r, moderation.NewError(moderation.KindValidation, "invalid request body"))
		return
	}

	report, err := h.service.FlagContent(r.Context(), actor(r), moderation.SubmitReportInput{
		ReportType:  moderation.ReportType(req.ReportType),
		TargetID:    req.TargetID,
		Reason:      moderation.ReportReason(req.Reason),
		Description: req.Description,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

// HandleGetReport returns one report by id.
// GET /api/reports/{id}
func (h *Handler) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.GetReport(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleQueue returns the moderation queue, filtered by query parameters.
// GET /api/queue
func (h *Handler) HandleQueue(w http.ResponseWriter, r *http.Request) {
	filter, err := queueFilterFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	reports, err := h.service.Queue(r.Context(), actor(r), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if reports == nil {
		reports = []*moderation.Report{}
	}

	log.Debug().Int("count", len(reports)).Msg("Moderation queue served")
	writeJSON(w, http.StatusOK, map[string]any{
		"reports": reports,
		"count":   len(reports),
	})
}

func queueFilterFromQuery(r *http.Request) (moderation.QueueFilter, error) {
	q := r.URL.Query()
	filter := moderation.QueueFilter{
		Status:     moderation.ReportStatus(q.Get("status")),
		ReportType: moderation.ReportType(q.Get("report_type")),
		Limit:      50,
	}

	if raw := q.Get("priority"); raw != "" {
		priority, err := strconv.Atoi(raw)
		if err != nil || priority < 1 || priority > 5 {
			return filter, moderation.NewError(moderation.KindValidation, "priority must be 1-5")
		}
		filter.Priority = priority
	}
	if raw := q.Get("moderator_flagged"); raw != "" {
		flagged := raw == "true" || raw == "1"
		filter.ModeratorFlagged = &flagged
	}
	if raw := q.Get("created_after"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, moderation.NewError(moderation.KindValidation, "created_after must be RFC3339")
		}
		filter.CreatedAfter = t
	}
	if raw := q.Get("created_before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, moderation.NewError(moderation.KindValidation, "created_before must be RFC3339")
		}
		filter.CreatedBefore = t
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 200 {
			return filter, moderation.NewError(moderation.KindValidation, "limit must be 1-200")
		}
		filter.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, moderation.NewError(moderation.KindValidation, "offset must be non-negative")
		}
		filter.Offset = offset
	}
	return filter, nil
}
