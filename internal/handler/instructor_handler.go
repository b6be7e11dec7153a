package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/enrollment-api/internal/middleware"
	"github.com/noah-isme/enrollment-api/internal/models"
	"github.com/noah-isme/enrollment-api/internal/service"
	"github.com/noah-isme/enrollment-api/pkg/response"
)

type rosterService interface {
	Authorize(ctx context.Context, instructorID, classID string) error
	Roster(ctx context.Context, instructorID, classID string) ([]models.Enrollment, error)
	Waitlist(ctx context.Context, instructorID, classID string) ([]models.WaitlistEntry, error)
	Droplist(ctx context.Context, instructorID, classID string) ([]models.DropEntry, error)
	ExportRoster(ctx context.Context, instructorID, classID, format string) (*service.RosterExport, error)
}

type dropService interface {
	Drop(ctx context.Context, cmd service.DropCommand) (*models.DropResult, error)
}

// InstructorHandler exposes the views an instructor has of their classes.
type InstructorHandler struct {
	roster rosterService
	drops  dropService
}

// NewInstructorHandler constructs InstructorHandler.
func NewInstructorHandler(roster rosterService, drops dropService) *InstructorHandler {
	return &InstructorHandler{roster: roster, drops: drops}
}

// Roster godoc
// @Summary Class roster
// @Tags Instructors
// @Produce json
// @Param classId path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /instructors/classes/{classId}/roster [get]
func (h *InstructorHandler) Roster(c *gin.Context) {
	enrollments, err := h.roster.Roster(c.Request.Context(), middleware.Caller(c), c.Param("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, map[string]interface{}{"count": len(enrollments)})
}

// ExportRoster godoc
// @Summary Download class roster
// @Tags Instructors
// @Produce text/csv
// @Produce application/pdf
// @Param classId path string true "Class ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /instructors/classes/{classId}/roster/export [get]
func (h *InstructorHandler) ExportRoster(c *gin.Context) {
	file, err := h.roster.ExportRoster(c.Request.Context(), middleware.Caller(c), c.Param("classId"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

// Waitlist godoc
// @Summary Class waitlist in promotion order
// @Tags Instructors
// @Produce json
// @Param classId path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /instructors/classes/{classId}/waitlist [get]
func (h *InstructorHandler) Waitlist(c *gin.Context) {
	entries, err := h.roster.Waitlist(c.Request.Context(), middleware.Caller(c), c.Param("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, map[string]interface{}{"count": len(entries)})
}

// Droplist godoc
// @Summary Students dropped from the class
// @Tags Instructors
// @Produce json
// @Param classId path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /instructors/classes/{classId}/droplist [get]
func (h *InstructorHandler) Droplist(c *gin.Context) {
	entries, err := h.roster.Droplist(c.Request.Context(), middleware.Caller(c), c.Param("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, map[string]interface{}{"count": len(entries)})
}

// DropStudent godoc
// @Summary Administratively drop a student
// @Tags Instructors
// @Produce json
// @Param classId path string true "Class ID"
// @Param studentId path string true "Student CWID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /instructors/classes/{classId}/students/{studentId} [delete]
func (h *InstructorHandler) DropStudent(c *gin.Context) {
	ctx := c.Request.Context()
	classID := c.Param("classId")
	if err := h.roster.Authorize(ctx, middleware.Caller(c), classID); err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.drops.Drop(ctx, service.DropCommand{
		ClassID:        classID,
		StudentID:      c.Param("studentId"),
		Administrative: true,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}
