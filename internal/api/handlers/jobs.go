package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/alphalens/internal/scheduler"
	"github.com/wonny/alphalens/pkg/logger"
)

// JobController is the scheduler surface exposed over HTTP
type JobController interface {
	ListJobs() []scheduler.JobStatus
	TriggerJob(ctx context.Context, name string) error
}

// JobHandler handles job introspection endpoints
type JobHandler struct {
	jobs   JobController
	logger *logger.Logger
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobs JobController, log *logger.Logger) *JobHandler {
	return &JobHandler{
		jobs:   jobs,
		logger: log,
	}
}

// List returns the status of every scheduled job
// GET /api/jobs
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.jobs.ListJobs())
}

// Trigger runs a job now, outside its schedule
// POST /api/jobs/{name}/trigger
func (h *JobHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	// 요청 컨텍스트는 응답 후 취소되므로 잠금 획득에만 사용
	if err := h.jobs.TriggerJob(r.Context(), name); err != nil {
		respondErr(w, err)
		return
	}

	h.logger.WithField("job", name).Info("Job triggered manually")
	respondJSON(w, http.StatusAccepted, map[string]string{
		"status": "triggered",
		"job":    name,
	})
}
