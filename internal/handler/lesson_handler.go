package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type lessonMover interface {
	Move(ctx context.Context, schoolID string, req dto.MoveLessonRequest) (*dto.MoveLessonResponse, error)
}

// LessonHandler exposes manual timetable edits.
type LessonHandler struct {
	mover lessonMover
}

// NewLessonHandler constructs the handler.
func NewLessonHandler(svc *service.LessonMoveService) *LessonHandler {
	return &LessonHandler{mover: svc}
}

// Move godoc
// @Summary Move a placed lesson to another slot
// @Description Doubles and horizontal electives move as a whole. A rejected move returns success=false with a reason.
// @Tags Timetable
// @Accept json
// @Produce json
// @Param schoolId path string true "School ID"
// @Param payload body dto.MoveLessonRequest true "Move payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schools/{schoolId}/lessons/move [post]
func (h *LessonHandler) Move(c *gin.Context) {
	var req dto.MoveLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Rejected(c,
			dto.MoveLessonResponse{Success: false, Reason: dto.MoveReasonMissingFields},
			appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, dto.MoveReasonMissingFields))
		return
	}
	result, err := h.mover.Move(c.Request.Context(), c.Param("schoolId"), req)
	if err != nil {
		if result != nil {
			response.Rejected(c, result, err)
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
