package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/shohag/formsync/internal/gateway"
	"github.com/shohag/formsync/internal/models"
	"github.com/shohag/formsync/internal/observer"
	"github.com/shohag/formsync/internal/queue"
	"github.com/shohag/formsync/internal/storage"
)

type QueueHandler struct {
	manager *queue.Manager
	gw      *gateway.Gateway
	obs     *observer.Observer
	store   storage.Store
	log     zerolog.Logger
}

func NewQueueHandler(manager *queue.Manager, gw *gateway.Gateway, obs *observer.Observer, store storage.Store, log zerolog.Logger) *QueueHandler {
	return &QueueHandler{manager: manager, gw: gw, obs: obs, store: store, log: log}
}

func (h *QueueHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "formsync",
	})
}

type submitRequest struct {
	Endpoint string         `json:"endpoint"`
	Method   string         `json:"method,omitempty"`
	Payload  map[string]any `json:"payload"`
}

type submitResponse struct {
	Success bool                     `json:"success"`
	Queued  bool                     `json:"queued"`
	Data    json.RawMessage          `json:"data,omitempty"`
	Entry   *models.QueuedSubmission `json:"entry,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

// Submit relays a submission through the gateway: delivered now,
// queued for later, or rejected outright.
func (h *QueueHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint is required")
		return
	}

	var result gateway.Result
	if req.Method == http.MethodPatch {
		result = h.gw.SubmitPatch(r.Context(), req.Endpoint, req.Payload)
	} else {
		result = h.gw.Submit(r.Context(), req.Endpoint, req.Payload)
	}

	resp := submitResponse{
		Success: result.Success,
		Queued:  result.Queued,
		Data:    result.Data,
		Entry:   result.Entry,
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}

	switch {
	case result.Success:
		writeJSON(w, http.StatusOK, resp)
	case result.Queued:
		writeJSON(w, http.StatusAccepted, resp)
	default:
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	}
}

func (h *QueueHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.obs.Stats())
}

func (h *QueueHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	status := models.SubmissionStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = models.StatusQueued
	}
	switch status {
	case models.StatusQueued, models.StatusSending, models.StatusFailed:
	default:
		writeError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	subs, err := h.store.GetByStatus(r.Context(), status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list submissions")
		return
	}
	if subs == nil {
		subs = []models.QueuedSubmission{}
	}
	writeJSON(w, http.StatusOK, subs)
}

func (h *QueueHandler) Flush(w http.ResponseWriter, r *http.Request) {
	stats, err := h.manager.Flush(r.Context())
	if errors.Is(err, queue.ErrFlushInProgress) {
		writeError(w, http.StatusConflict, "flush already in progress")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "flush failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *QueueHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	count, err := h.manager.RetryFailed(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "retry failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"requeued": count})
}

func (h *QueueHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to clear queue")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
