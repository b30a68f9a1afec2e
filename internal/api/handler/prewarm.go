package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hszk-dev/typereel/internal/domain/model"
	"github.com/hszk-dev/typereel/internal/usecase"
)

type PrewarmRequest struct {
	Text  string `json:"text"`
	Video bool   `json:"video"`
}

type PrewarmResponse struct {
	Key  string `json:"key"`
	Kind string `json:"kind"`
}

// PrewarmHandler queues renders ahead of the first request for them.
type PrewarmHandler struct {
	svc usecase.PrewarmService
}

// NewPrewarmHandler creates a new PrewarmHandler.
func NewPrewarmHandler(svc usecase.PrewarmService) *PrewarmHandler {
	return &PrewarmHandler{svc: svc}
}

// Prewarm handles POST /v1/prewarm
func (h *PrewarmHandler) Prewarm(w http.ResponseWriter, r *http.Request) {
	var body PrewarmRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return
	}

	req, err := h.svc.Enqueue(r.Context(), body.Text, body.Video)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrEmptyText):
			Error(w, http.StatusBadRequest, `field "text" is required`, "")
		case model.IsInputError(err):
			Error(w, http.StatusBadRequest, "invalid text", err.Error())
		case errors.Is(err, usecase.ErrPrewarmDisabled):
			Error(w, http.StatusServiceUnavailable, "prewarm is disabled", "")
		default:
			Error(w, http.StatusInternalServerError, "failed to queue prewarm task", err.Error())
		}
		return
	}

	JSON(w, http.StatusAccepted, PrewarmResponse{
		Key:  req.Key.String(),
		Kind: req.Kind.String(),
	})
}
