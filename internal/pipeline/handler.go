package pipeline

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clientela-ai/clientela/internal/store"
	"github.com/clientela-ai/clientela/pkg/logging"
)

// Handler exposes the pipeline over HTTP for the dashboard's test console
// and for channels without a dedicated webhook adapter.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

// NewHandler builds the HTTP surface for the pipeline service.
func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if svc == nil {
		panic("pipeline: service is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

type errorResponse struct {
	Error string `json:"error"`
}

// ProcessMessage handles POST /api/v1/conversations/message.
func (h *Handler) ProcessMessage(w http.ResponseWriter, r *http.Request) {
	var req InboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	result, err := h.svc.Process(r.Context(), &req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, store.ErrBotNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "bot not found"})
	case errors.Is(err, ErrConversationPaused):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "conversation is paused"})
	case errors.Is(err, ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		h.logger.Error("message processing failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
