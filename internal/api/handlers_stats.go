package api

import (
	"net/http"

	"github.com/shohag/notifyd/internal/queue"
	"github.com/shohag/notifyd/internal/service"
)

type StatsHandler struct {
	svc   *service.Service
	queue *queue.Queue
}

func NewStatsHandler(svc *service.Service, q *queue.Queue) *StatsHandler {
	return &StatsHandler{svc: svc, queue: q}
}

func (h *StatsHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *StatsHandler) Queue(w http.ResponseWriter, r *http.Request) {
	counts, err := h.queue.Counts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get queue counts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"paused": h.queue.Paused(),
		"counts": counts,
	})
}

func (h *StatsHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.queue.Pause()
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (h *StatsHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.queue.Resume()
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}
