package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dsjohal14/sqlpoll/internal/streamlite"
)

// HandleRunSource runs one cycle of a source immediately, outside its schedule.
// A failed cycle answers 502 with the report; a cycle already running answers 409.
func (h *Handler) HandleRunSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, ok := h.registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "source not found: "+id, "SOURCE_NOT_FOUND")
		return
	}

	report, err := c.RunCycle(r.Context())
	switch {
	case errors.Is(err, streamlite.ErrCycleInProgress):
		writeError(w, http.StatusConflict, err.Error(), "CYCLE_IN_PROGRESS")
		return
	case errors.Is(err, streamlite.ErrClosed), errors.Is(err, streamlite.ErrNotOpen):
		writeError(w, http.StatusServiceUnavailable, err.Error(), "SOURCE_UNAVAILABLE")
		return
	}

	status := http.StatusOK
	if err != nil {
		status = http.StatusBadGateway
	}

	h.logger.Info().
		Str("source", id).
		Str("outcome", report.Outcome).
		Int("rows", report.Rows).
		Msg("manual cycle completed")

	writeJSON(w, status, RunResponse{
		Source: id,
		Report: toCycleReport(report),
	})
}
