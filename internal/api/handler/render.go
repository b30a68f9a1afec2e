package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hszk-dev/typereel/internal/domain/model"
	"github.com/hszk-dev/typereel/internal/usecase"
)

// RenderHandler serves rendered artifacts.
type RenderHandler struct {
	svc usecase.RenderService
}

// NewRenderHandler creates a new RenderHandler.
func NewRenderHandler(svc usecase.RenderService) *RenderHandler {
	return &RenderHandler{svc: svc}
}

// Render handles GET /?text=<string>&video=<bool>
func (h *RenderHandler) Render(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	video, err := parseVideoParam(query.Get("video"))
	if err != nil {
		Error(w, http.StatusBadRequest, `parameter "video" must be true or false`, query.Get("video"))
		return
	}

	req, err := model.NewRenderRequest(query.Get("text"), video)
	if err != nil {
		h.handleInputError(w, err)
		return
	}

	artifact, err := h.svc.Render(r.Context(), req)
	if err != nil {
		h.handleServiceError(w, r, req, err)
		return
	}
	defer func() { _ = artifact.Close() }()

	w.Header().Set("Content-Type", req.Kind.ContentType())
	w.Header().Set("X-Cache-Key", req.Key.String())
	http.ServeContent(w, r, "", artifact.Info().ModTime(), artifact)
}

func (h *RenderHandler) handleInputError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrEmptyText):
		Error(w, http.StatusBadRequest, `parameter "text" is required`, "")
	default:
		Error(w, http.StatusBadRequest, "invalid text", err.Error())
	}
}

func (h *RenderHandler) handleServiceError(w http.ResponseWriter, r *http.Request, req model.RenderRequest, err error) {
	// The client is gone; nobody reads the answer and the job keeps running.
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		slog.Debug("client went away while waiting for render",
			"cache_key", req.Key,
			"kind", req.Kind,
		)
		return
	}

	detail := err.Error()
	var stageErr *model.StageError
	if errors.As(err, &stageErr) {
		detail = stageErr.Detail()
	}

	switch {
	case model.IsInputError(err):
		Error(w, http.StatusBadRequest, "invalid text", detail)
	case errors.Is(err, model.ErrWaitTimeout):
		Error(w, http.StatusGatewayTimeout, "timed out waiting for render", detail)
	case req.Kind == model.KindVideo:
		Error(w, http.StatusInternalServerError, "failed to process video", detail)
	default:
		Error(w, http.StatusInternalServerError, "failed to generate image", detail)
	}
}

// parseVideoParam treats a missing value as false.
func parseVideoParam(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}
