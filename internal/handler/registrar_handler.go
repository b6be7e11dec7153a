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

type catalogService interface {
	CreateCourse(ctx context.Context, req service.CreateCourseRequest) (*models.Course, error)
	ListCourses(ctx context.Context) ([]models.Course, error)
	CreateClass(ctx context.Context, req service.CreateClassRequest) (*models.Class, error)
	GetClass(ctx context.Context, classID string) (*models.Class, error)
	PatchClass(ctx context.Context, classID string, req service.UpdateClassRequest) (*models.Class, error)
	DeleteClass(ctx context.Context, classID string) error
}

type promotionService interface {
	AutoEnrollEnabled() bool
	SetAutoEnroll(ctx context.Context, enabled bool, actor string) (int, error)
	Promote(ctx context.Context, classIDs []string, now time.Time) (int, error)
}

// RegistrarHandler exposes catalog administration and the enrollment
// switches.
type RegistrarHandler struct {
	catalog    catalogService
	promotions promotionService
}

// NewRegistrarHandler constructs RegistrarHandler.
func NewRegistrarHandler(catalog catalogService, promotions promotionService) *RegistrarHandler {
	return &RegistrarHandler{catalog: catalog, promotions: promotions}
}

// CreateCourse godoc
// @Summary Create course
// @Tags Registrar
// @Accept json
// @Produce json
// @Param payload body service.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrar/courses [post]
func (h *RegistrarHandler) CreateCourse(c *gin.Context) {
	var req service.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course payload"))
		return
	}
	course, err := h.catalog.CreateCourse(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// ListCourses godoc
// @Summary List courses
// @Tags Registrar
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /registrar/courses [get]
func (h *RegistrarHandler) ListCourses(c *gin.Context) {
	courses, err := h.catalog.ListCourses(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses)
}

// CreateClass godoc
// @Summary Create class section
// @Tags Registrar
// @Accept json
// @Produce json
// @Param payload body service.CreateClassRequest true "Class payload"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrar/classes [post]
func (h *RegistrarHandler) CreateClass(c *gin.Context) {
	var req service.CreateClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid class payload"))
		return
	}
	class, err := h.catalog.CreateClass(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, class)
}

// GetClass godoc
// @Summary Get class section
// @Tags Registrar
// @Produce json
// @Param classId path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /registrar/classes/{classId} [get]
func (h *RegistrarHandler) GetClass(c *gin.Context) {
	class, err := h.catalog.GetClass(c.Request.Context(), c.Param("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class)
}

// PatchClass godoc
// @Summary Update class section
// @Description A capacity increase promotes waitlisted students when automatic enrollment is on.
// @Tags Registrar
// @Accept json
// @Produce json
// @Param classId path string true "Class ID"
// @Param payload body service.UpdateClassRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrar/classes/{classId} [patch]
func (h *RegistrarHandler) PatchClass(c *gin.Context) {
	var req service.UpdateClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid class payload"))
		return
	}
	class, err := h.catalog.PatchClass(c.Request.Context(), c.Param("classId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class)
}

// DeleteClass godoc
// @Summary Delete class section
// @Tags Registrar
// @Param classId path string true "Class ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /registrar/classes/{classId} [delete]
func (h *RegistrarHandler) DeleteClass(c *gin.Context) {
	if err := h.catalog.DeleteClass(c.Request.Context(), c.Param("classId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// GetAutoEnrollment godoc
// @Summary Automatic enrollment state
// @Tags Registrar
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /registrar/auto-enrollment [get]
func (h *RegistrarHandler) GetAutoEnrollment(c *gin.Context) {
	response.JSON(c, http.StatusOK, dto.AutoEnrollmentResponse{Enabled: h.promotions.AutoEnrollEnabled()})
}

// SetAutoEnrollment godoc
// @Summary Toggle automatic enrollment
// @Description Turning it on promotes waitlisted students in every open class.
// @Tags Registrar
// @Accept json
// @Produce json
// @Param payload body dto.AutoEnrollmentRequest true "Switch"
// @Success 200 {object} response.Envelope
// @Router /registrar/auto-enrollment [put]
func (h *RegistrarHandler) SetAutoEnrollment(c *gin.Context) {
	var req dto.AutoEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid auto-enrollment payload"))
		return
	}
	promoted, err := h.promotions.SetAutoEnroll(c.Request.Context(), *req.Enabled, middleware.Caller(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.AutoEnrollmentResponse{Enabled: *req.Enabled, Promoted: promoted})
}

// Promote godoc
// @Summary Promote waitlisted students
// @Tags Registrar
// @Accept json
// @Produce json
// @Param payload body dto.PromoteRequest true "Classes to promote"
// @Success 200 {object} response.Envelope
// @Router /registrar/promotions [post]
func (h *RegistrarHandler) Promote(c *gin.Context) {
	var req dto.PromoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid promotion payload"))
		return
	}
	promoted, err := h.promotions.Promote(c.Request.Context(), req.ClassIDs, time.Time{})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, models.PromotionResult{Promoted: promoted})
}
