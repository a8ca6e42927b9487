package syncqueue

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Router exposes the operator surface: queue depth for alerting, a manual
// sweep trigger, and explicit requeue of failed retryable entries. The
// manual sweep drains with the same batch bound as the ticker sweep.
func Router(store Store, processor *Processor, batch int) chi.Router {
	if batch <= 0 {
		batch = 50
	}

	r := chi.NewRouter()
	h := &handler{store: store, processor: processor, batch: batch}

	r.Get("/stats", h.stats)
	r.Post("/sweep", h.sweep)
	r.Post("/{id}/requeue", h.requeue)

	return r
}

type handler struct {
	store     Store
	processor *Processor
	batch     int
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read queue stats"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) sweep(w http.ResponseWriter, r *http.Request) {
	summary, err := h.processor.ProcessPending(r.Context(), h.batch)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "sweep failed"})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *handler) requeue(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid entry id"})
		return
	}

	if err := h.store.Requeue(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotRequeueable) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "entry is not eligible for requeue"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "requeue failed"})
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	if v == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
