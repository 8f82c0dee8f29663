// README: Job ticket handlers for staff.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"repairtrack/internal/modules/job"
)

type JobService interface {
	Get(ctx context.Context, id string) (*job.Job, error)
	AssignTechnician(ctx context.Context, id, technician string) error
}

type JobHandler struct {
	jobs JobService
}

func NewJobHandler(svc JobService) *JobHandler {
	return &JobHandler{jobs: svc}
}

func (h *JobHandler) Get(c *gin.Context) {
	j, err := h.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toJobResponse(j))
}

type assignTechnicianReq struct {
	Technician string `json:"technician" binding:"required"`
}

func (h *JobHandler) AssignTechnician(c *gin.Context) {
	var req assignTechnicianReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "technician is required")
		return
	}
	id := c.Param("id")
	if err := h.jobs.AssignTechnician(c.Request.Context(), id, req.Technician); err != nil {
		writeRequestError(c, err)
		return
	}
	j, err := h.jobs.Get(c.Request.Context(), id)
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toJobResponse(j))
}
