package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/routine-api/internal/dto"
	"github.com/noah-isme/routine-api/internal/middleware"
	"github.com/noah-isme/routine-api/internal/models"
	appErrors "github.com/noah-isme/routine-api/pkg/errors"
	"github.com/noah-isme/routine-api/pkg/response"
)

type routineService interface {
	Generate(ctx context.Context, req dto.GenerateRoutineRequest) (*dto.GenerateRoutineResponse, error)
	List(ctx context.Context, filter models.RoutineFilter) ([]models.RoutineView, bool, error)
	LatestRun(ctx context.Context) (*models.RoutineRun, error)
	Export(ctx context.Context, filter models.RoutineFilter, format dto.RoutineExportFormat) (*dto.RoutineExport, error)
}

type routineJobs interface {
	Enqueue(ctx context.Context, req dto.GenerateRoutineRequest) (*dto.RoutineJobResponse, error)
	Status(ctx context.Context, id string) (*dto.RoutineJobResponse, error)
}

// RoutineHandler exposes routine generation and viewing endpoints.
type RoutineHandler struct {
	service routineService
	jobs    routineJobs
}

// NewRoutineHandler constructs the handler. jobs may be nil when async generation is off.
func NewRoutineHandler(svc routineService, jobs routineJobs) *RoutineHandler {
	return &RoutineHandler{service: svc, jobs: jobs}
}

// Generate godoc
// @Summary Generate the weekly routine
// @Description Replaces the stored routine with a freshly generated one. With async=true the run is queued and a job id is returned.
// @Tags Routine
// @Accept json
// @Produce json
// @Param payload body dto.GenerateRoutineRequest false "Generation options"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /routine/generate [post]
func (h *RoutineHandler) Generate(c *gin.Context) {
	var req dto.GenerateRoutineRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
			return
		}
	}

	if req.Async {
		if h.jobs == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrSchedulerDisabled, "async generation is not enabled"))
			return
		}
		job, err := h.jobs.Enqueue(c.Request.Context(), req)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusAccepted, job)
		return
	}

	result, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// JobStatus godoc
// @Summary Get async generation status
// @Tags Routine
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /routine/jobs/{id} [get]
func (h *RoutineHandler) JobStatus(c *gin.Context) {
	if h.jobs == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "routine job not found"))
		return
	}
	status, err := h.jobs.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status)
}

// List godoc
// @Summary List the routine
// @Description Students always see their own department and semester. Teachers see their own classes unless another filter is given.
// @Tags Routine
// @Produce json
// @Param departmentId query string false "Department ID"
// @Param semesterId query string false "Semester ID"
// @Param teacherId query string false "Teacher ID"
// @Param day query string false "Day name"
// @Success 200 {object} response.Envelope
// @Router /routine [get]
func (h *RoutineHandler) List(c *gin.Context) {
	filter, ok := h.scopedFilter(c)
	if !ok {
		return
	}
	views, cacheHit, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, views, middleware.ExtractMeta(c))
}

// LatestRun godoc
// @Summary Latest generation run
// @Tags Routine
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /routine/runs/latest [get]
func (h *RoutineHandler) LatestRun(c *gin.Context) {
	run, err := h.service.LatestRun(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run)
}

// Export godoc
// @Summary Export the routine
// @Tags Routine
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Param departmentId query string false "Department ID"
// @Param semesterId query string false "Semester ID"
// @Param teacherId query string false "Teacher ID"
// @Success 200 {file} file
// @Router /routine/export [get]
func (h *RoutineHandler) Export(c *gin.Context) {
	filter, ok := h.scopedFilter(c)
	if !ok {
		return
	}
	format := dto.RoutineExportFormat(strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", string(dto.RoutineExportCSV)))))
	file, err := h.service.Export(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Content)
}

func (h *RoutineHandler) scopedFilter(c *gin.Context) (models.RoutineFilter, bool) {
	var query dto.RoutineQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid routine query"))
		return models.RoutineFilter{}, false
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.RoutineFilter{}, false
	}
	filter, err := scopeRoutineFilter(claims, query.Filter())
	if err != nil {
		response.Error(c, err)
		return models.RoutineFilter{}, false
	}
	return filter, true
}

// scopeRoutineFilter narrows a filter to what the caller may see.
func scopeRoutineFilter(claims *models.JWTClaims, filter models.RoutineFilter) (models.RoutineFilter, error) {
	switch claims.Role {
	case models.RoleStudent:
		if claims.DepartmentID == nil || claims.SemesterID == nil {
			return filter, appErrors.Clone(appErrors.ErrForbidden, "student account has no department or semester")
		}
		filter.DepartmentID = *claims.DepartmentID
		filter.SemesterID = *claims.SemesterID
		filter.TeacherID = ""
	case models.RoleTeacher:
		if filter.DepartmentID == "" && filter.SemesterID == "" && filter.TeacherID == "" && claims.TeacherID != nil {
			filter.TeacherID = *claims.TeacherID
		}
	}
	return filter, nil
}
