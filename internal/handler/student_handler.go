package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/enrollment-api/internal/dto"
	"github.com/noah-isme/enrollment-api/internal/middleware"
	"github.com/noah-isme/enrollment-api/internal/models"
	"github.com/noah-isme/enrollment-api/internal/service"
	appErrors "github.com/noah-isme/enrollment-api/pkg/errors"
	"github.com/noah-isme/enrollment-api/pkg/response"
)

type studentEnrollmentService interface {
	AvailableSeats(ctx context.Context, classID string) (int, error)
	RequestEnrollment(ctx context.Context, classID, studentID string, now time.Time) (*models.EnrollmentOutcome, error)
	Drop(ctx context.Context, cmd service.DropCommand) (*models.DropResult, error)
	RemoveFromWaitlist(ctx context.Context, classID, studentID string) error
	WaitlistPosition(ctx context.Context, classID, studentID string) (int, error)
}

type availableClassLister interface {
	ListAvailable(ctx context.Context, now time.Time) ([]models.ClassAvailability, error)
}

// StudentHandler exposes the student enrollment endpoints. The student is
// the caller identified by the identity middleware.
type StudentHandler struct {
	enrollments studentEnrollmentService
	catalog     availableClassLister
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(enrollments studentEnrollmentService, catalog availableClassLister) *StudentHandler {
	return &StudentHandler{enrollments: enrollments, catalog: catalog}
}

// ListAvailable godoc
// @Summary List classes open for enrollment
// @Tags Students
// @Produce json
// @Param X-CWID header string true "Student CWID"
// @Success 200 {object} response.Envelope
// @Router /classes/available [get]
func (h *StudentHandler) ListAvailable(c *gin.Context) {
	classes, err := h.catalog.ListAvailable(c.Request.Context(), time.Time{})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, map[string]interface{}{"count": len(classes)})
}

// Seats godoc
// @Summary Available seats of a class
// @Tags Students
// @Produce json
// @Param classId path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{classId}/seats [get]
func (h *StudentHandler) Seats(c *gin.Context) {
	classID := c.Param("classId")
	seats, err := h.enrollments.AvailableSeats(c.Request.Context(), classID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.SeatsResponse{ClassID: classID, AvailableSeats: seats})
}

// Enroll godoc
// @Summary Request enrollment in a class
// @Description Seats the student when a seat is free, otherwise places them on the waitlist.
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body dto.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments [post]
func (h *StudentHandler) Enroll(c *gin.Context) {
	var req dto.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid enrollment payload"))
		return
	}
	outcome, err := h.enrollments.RequestEnrollment(c.Request.Context(), req.ClassID, middleware.Caller(c), time.Time{})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, outcome)
}

// Drop godoc
// @Summary Drop a class
// @Tags Students
// @Produce json
// @Param classId path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{classId} [delete]
func (h *StudentHandler) Drop(c *gin.Context) {
	result, err := h.enrollments.Drop(c.Request.Context(), service.DropCommand{
		ClassID:   c.Param("classId"),
		StudentID: middleware.Caller(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// WaitlistPosition godoc
// @Summary Waitlist position of the caller
// @Tags Students
// @Produce json
// @Param classId path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /waitlists/{classId}/position [get]
func (h *StudentHandler) WaitlistPosition(c *gin.Context) {
	classID := c.Param("classId")
	studentID := middleware.Caller(c)
	position, err := h.enrollments.WaitlistPosition(c.Request.Context(), classID, studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.WaitlistPositionResponse{ClassID: classID, StudentID: studentID, Position: position})
}

// LeaveWaitlist godoc
// @Summary Leave a class waitlist
// @Tags Students
// @Param classId path string true "Class ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /waitlists/{classId} [delete]
func (h *StudentHandler) LeaveWaitlist(c *gin.Context) {
	if err := h.enrollments.RemoveFromWaitlist(c.Request.Context(), c.Param("classId"), middleware.Caller(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
