package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hszk-dev/typereel/internal/domain/model"
	"github.com/hszk-dev/typereel/internal/usecase"
)

const (
	defaultJobLimit = 20
	maxJobLimit     = 100
)

var cacheKeyPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

type JobResponse struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	State      string `json:"state"`
	Source     string `json:"source,omitempty"`
	Frames     int    `json:"frames"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
	DurationMS int64  `json:"duration_ms"`
}

type JobsResponse struct {
	Key  string        `json:"key"`
	Jobs []JobResponse `json:"jobs"`
}

// JobsHandler exposes the render job ledger.
type JobsHandler struct {
	svc usecase.RenderService
}

// NewJobsHandler creates a new JobsHandler.
func NewJobsHandler(svc usecase.RenderService) *JobsHandler {
	return &JobsHandler{svc: svc}
}

// List handles GET /v1/jobs/{key}
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !cacheKeyPattern.MatchString(key) {
		Error(w, http.StatusBadRequest, "invalid cache key", "key must be 64 lowercase hex characters")
		return
	}

	limit := defaultJobLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxJobLimit {
			Error(w, http.StatusBadRequest, "invalid limit", "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	jobs, err := h.svc.JobHistory(r.Context(), model.CacheKey(key), limit)
	if err != nil {
		if errors.Is(err, usecase.ErrLedgerDisabled) {
			Error(w, http.StatusNotFound, "job ledger is disabled", "")
			return
		}
		slog.Error("failed to list jobs", "cache_key", key, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list jobs", "")
		return
	}

	resp := JobsResponse{Key: key, Jobs: make([]JobResponse, 0, len(jobs))}
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(job))
	}
	JSON(w, http.StatusOK, resp)
}

func toJobResponse(j *model.Job) JobResponse {
	return JobResponse{
		ID:         j.ID.String(),
		Kind:       j.Kind.String(),
		State:      j.State.String(),
		Source:     string(j.Source),
		Frames:     j.Frames,
		Error:      j.Error,
		StartedAt:  j.StartedAt.Format(time.RFC3339),
		FinishedAt: j.FinishedAt.Format(time.RFC3339),
		DurationMS: j.Duration().Milliseconds(),
	}
}
