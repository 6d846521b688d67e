package handlers

import (
	"net/http"
)

// HandleVerifyImmutability checks the reversal-field invariants of one
// action. Violations are reported in the response and raised internally as
// security events.
// GET /api/actions/{id}/immutability
func (h *Handler) HandleVerifyImmutability(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.VerifyReversalImmutability(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleTamperProbe attempts a direct mutation of a reversed action to
// confirm the persistence layer rejects it. Admin only.
// POST /api/actions/{id}/tamper-probe
func (h *Handler) HandleTamperProbe(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.VerifyReversalTamperResistance(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
