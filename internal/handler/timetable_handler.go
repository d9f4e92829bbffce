package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type timetableGenerator interface {
	Generate(ctx context.Context, schoolID string, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error)
	GenerateAsync(ctx context.Context, schoolID string, req dto.GenerateTimetableRequest) (*dto.TimetableJobStatus, error)
	JobStatus(jobID string) (*dto.TimetableJobStatus, error)
	Runs(ctx context.Context, schoolID string, query dto.TimetableRunQuery) ([]models.TimetableRun, error)
	Unplaced(ctx context.Context, schoolID string) ([]dto.UnplacedRequirement, *models.TimetableRun, error)
}

type timetableReader interface {
	ClassTimetable(ctx context.Context, schoolID, classID string) (*dto.TimetableGrid, bool, error)
	TeacherTimetable(ctx context.Context, schoolID, teacherID string) (*dto.TimetableGrid, bool, error)
}

type timetableExporter interface {
	Export(ctx context.Context, schoolID, ownerType, ownerID, format string) (*service.TimetableDocument, error)
	Publish(ctx context.Context, schoolID, ownerType, ownerID, format string) (*dto.ExportLink, error)
	OpenLink(token string) (*service.StoredExport, error)
}

type unplacedResponse struct {
	RunID    string                    `json:"runId,omitempty"`
	Version  int                       `json:"version,omitempty"`
	Status   models.TimetableRunStatus `json:"status,omitempty"`
	Unplaced []dto.UnplacedRequirement `json:"unplaced"`
}

// TimetableHandler exposes timetable generation and read endpoints.
type TimetableHandler struct {
	generator timetableGenerator
	reader    timetableReader
	exporter  timetableExporter
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(generator *service.TimetableService, reader *service.TimetableQueryService, exporter *service.TimetableExportService) *TimetableHandler {
	return &TimetableHandler{generator: generator, reader: reader, exporter: exporter}
}

// Generate godoc
// @Summary Regenerate the timetable of a school
// @Description Replaces every schedule row of the school. With async=true the run is queued and a job is returned.
// @Tags Timetable
// @Accept json
// @Produce json
// @Param schoolId path string true "School ID"
// @Param payload body dto.GenerateTimetableRequest false "Generation options"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 423 {object} response.Envelope
// @Router /schools/{schoolId}/timetable/generate [post]
func (h *TimetableHandler) Generate(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
			return
		}
	}
	schoolID := c.Param("schoolId")
	if req.Async {
		status, err := h.generator.GenerateAsync(c.Request.Context(), schoolID, req)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Accepted(c, status)
		return
	}
	result, err := h.generator.Generate(c.Request.Context(), schoolID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Job godoc
// @Summary Get async generation status
// @Tags Timetable
// @Produce json
// @Param schoolId path string true "School ID"
// @Param jobId path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schools/{schoolId}/timetable/jobs/{jobId} [get]
func (h *TimetableHandler) Job(c *gin.Context) {
	status, err := h.generator.JobStatus(c.Param("jobId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if status.SchoolID != c.Param("schoolId") {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "job not found or expired"))
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Runs godoc
// @Summary List generation runs of a school
// @Tags Timetable
// @Produce json
// @Param schoolId path string true "School ID"
// @Param limit query int false "Maximum runs" default(20)
// @Success 200 {object} response.Envelope
// @Router /schools/{schoolId}/timetable/runs [get]
func (h *TimetableHandler) Runs(c *gin.Context) {
	var query dto.TimetableRunQuery
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a number"))
			return
		}
		query.Limit = limit
	}
	runs, err := h.generator.Runs(c.Request.Context(), c.Param("schoolId"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, nil)
}

// Unplaced godoc
// @Summary Unplaced lessons of the latest run
// @Tags Timetable
// @Produce json
// @Param schoolId path string true "School ID"
// @Success 200 {object} response.Envelope
// @Router /schools/{schoolId}/timetable/unplaced [get]
func (h *TimetableHandler) Unplaced(c *gin.Context) {
	unplaced, run, err := h.generator.Unplaced(c.Request.Context(), c.Param("schoolId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	payload := unplacedResponse{Unplaced: unplaced}
	if payload.Unplaced == nil {
		payload.Unplaced = []dto.UnplacedRequirement{}
	}
	if run != nil {
		payload.RunID = run.ID
		payload.Version = run.Version
		payload.Status = run.Status
	}
	response.JSON(c, http.StatusOK, payload, nil)
}

// ClassTimetable godoc
// @Summary Weekly grid of a class
// @Tags Timetable
// @Produce json
// @Param schoolId path string true "School ID"
// @Param classId path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schools/{schoolId}/timetable/classes/{classId} [get]
func (h *TimetableHandler) ClassTimetable(c *gin.Context) {
	grid, hit, err := h.reader.ClassTimetable(c.Request.Context(), c.Param("schoolId"), c.Param("classId"))
	h.writeGrid(c, grid, hit, err)
}

// TeacherTimetable godoc
// @Summary Weekly grid of a teacher across classes
// @Tags Timetable
// @Produce json
// @Param schoolId path string true "School ID"
// @Param teacherId path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schools/{schoolId}/timetable/teachers/{teacherId} [get]
func (h *TimetableHandler) TeacherTimetable(c *gin.Context) {
	grid, hit, err := h.reader.TeacherTimetable(c.Request.Context(), c.Param("schoolId"), c.Param("teacherId"))
	h.writeGrid(c, grid, hit, err)
}

// ExportClass godoc
// @Summary Download the grid of a class
// @Tags Timetable
// @Produce text/csv
// @Produce application/pdf
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param schoolId path string true "School ID"
// @Param classId path string true "Class ID"
// @Param format query string false "csv, pdf or xlsx" default(pdf)
// @Success 200 {file} binary
// @Router /schools/{schoolId}/timetable/classes/{classId}/export [get]
func (h *TimetableHandler) ExportClass(c *gin.Context) {
	h.export(c, dto.GridOwnerClass, c.Param("classId"))
}

// ExportTeacher godoc
// @Summary Download the grid of a teacher
// @Tags Timetable
// @Produce text/csv
// @Produce application/pdf
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param schoolId path string true "School ID"
// @Param teacherId path string true "Teacher ID"
// @Param format query string false "csv, pdf or xlsx" default(pdf)
// @Success 200 {file} binary
// @Router /schools/{schoolId}/timetable/teachers/{teacherId}/export [get]
func (h *TimetableHandler) ExportTeacher(c *gin.Context) {
	h.export(c, dto.GridOwnerTeacher, c.Param("teacherId"))
}

// PublishClass godoc
// @Summary Store the grid of a class and return a signed download link
// @Tags Timetable
// @Produce json
// @Param schoolId path string true "School ID"
// @Param classId path string true "Class ID"
// @Param format query string false "csv, pdf or xlsx" default(pdf)
// @Success 201 {object} response.Envelope
// @Router /schools/{schoolId}/timetable/classes/{classId}/export-link [post]
func (h *TimetableHandler) PublishClass(c *gin.Context) {
	h.publish(c, dto.GridOwnerClass, c.Param("classId"))
}

// PublishTeacher godoc
// @Summary Store the grid of a teacher and return a signed download link
// @Tags Timetable
// @Produce json
// @Param schoolId path string true "School ID"
// @Param teacherId path string true "Teacher ID"
// @Param format query string false "csv, pdf or xlsx" default(pdf)
// @Success 201 {object} response.Envelope
// @Router /schools/{schoolId}/timetable/teachers/{teacherId}/export-link [post]
func (h *TimetableHandler) PublishTeacher(c *gin.Context) {
	h.publish(c, dto.GridOwnerTeacher, c.Param("teacherId"))
}

// Download godoc
// @Summary Download a published timetable
// @Tags Timetable
// @Produce text/csv
// @Produce application/pdf
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *TimetableHandler) Download(c *gin.Context) {
	stored, err := h.exporter.OpenLink(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer stored.File.Close() //nolint:errcheck
	info, err := stored.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export"))
		return
	}
	c.DataFromReader(http.StatusOK, info.Size(), stored.ContentType, stored.File, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", stored.Filename),
	})
}

func (h *TimetableHandler) publish(c *gin.Context, ownerType, ownerID string) {
	link, err := h.exporter.Publish(c.Request.Context(), c.Param("schoolId"), ownerType, ownerID, c.DefaultQuery("format", "pdf"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, link)
}

func (h *TimetableHandler) export(c *gin.Context, ownerType, ownerID string) {
	doc, err := h.exporter.Export(c.Request.Context(), c.Param("schoolId"), ownerType, ownerID, c.DefaultQuery("format", "pdf"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	c.Data(http.StatusOK, doc.ContentType, doc.Content)
}

func (h *TimetableHandler) writeGrid(c *gin.Context, grid *dto.TimetableGrid, hit bool, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, grid, nil, middleware.ExtractMeta(c))
}
