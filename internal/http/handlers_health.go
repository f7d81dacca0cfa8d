package httpapi

import "net/http"

// HandleHealth reports healthy when every source is connected
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	connectors := h.registry.List()

	resp := HealthResponse{
		Status:      "healthy",
		SourceCount: len(connectors),
	}
	for _, c := range connectors {
		if c.Status().Open {
			resp.OpenCount++
		}
	}

	status := http.StatusOK
	if resp.OpenCount < resp.SourceCount {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	h.logger.Debug().Int("sources", resp.SourceCount).Int("open", resp.OpenCount).Msg("health check")

	writeJSON(w, status, resp)
}
