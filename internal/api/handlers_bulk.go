package api

import (
	"encoding/json"
	"net/http"

	"github.com/shohag/notifyd/internal/service"
)

type BulkHandler struct {
	svc *service.Service
}

func NewBulkHandler(svc *service.Service) *BulkHandler {
	return &BulkHandler{svc: svc}
}

const maxBulkBodySize = 8 * 1024 * 1024 // 8MB

func (h *BulkHandler) Run(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBulkBodySize)
	var req service.BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items is required")
		return
	}

	res, err := h.svc.RunBulk(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
