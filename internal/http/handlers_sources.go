package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HandleListSources returns the status of every source
func (h *Handler) HandleListSources(w http.ResponseWriter, _ *http.Request) {
	connectors := h.registry.List()

	sources := make([]SourceStatus, 0, len(connectors))
	for _, c := range connectors {
		sources = append(sources, toSourceStatus(c))
	}

	writeJSON(w, http.StatusOK, SourcesResponse{
		Sources: sources,
		Count:   len(sources),
	})
}

// HandleGetSource returns the status of one source
func (h *Handler) HandleGetSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, ok := h.registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "source not found: "+id, "SOURCE_NOT_FOUND")
		return
	}

	writeJSON(w, http.StatusOK, toSourceStatus(c))
}
