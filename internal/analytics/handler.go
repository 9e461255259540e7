package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/omnidex-search/omnidex/pkg/logger"
)

// Handler serves the analytics rollup over HTTP.
type Handler struct {
	aggregator *Aggregator
	store      *Store // optional
	log        *slog.Logger
}

func NewHandler(aggregator *Aggregator, store *Store) *Handler {
	return &Handler{
		aggregator: aggregator,
		store:      store,
		log:        logger.WithComponent("analytics-handler"),
	}
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.aggregator.Stats())
}

// History serves persisted snapshots, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.writeJSON(w, http.StatusOK, []AggregatedStats{})
		return
	}
	snapshots, err := h.store.ListSnapshots(r.Context(), 24)
	if err != nil {
		h.log.Error("snapshot listing failed", "error", err)
		http.Error(w, "snapshot listing failed", http.StatusInternalServerError)
		return
	}
	if snapshots == nil {
		snapshots = []AggregatedStats{}
	}
	h.writeJSON(w, http.StatusOK, snapshots)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error("failed to write analytics response", "error", err)
	}
}
