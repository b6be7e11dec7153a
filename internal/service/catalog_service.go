package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/enrollment-api/internal/models"
	appErrors "github.com/noah-isme/enrollment-api/pkg/errors"
)

const availableClassesCacheKey = "catalog:available"

type courseStore interface {
	Create(ctx context.Context, course *models.Course) error
	FindByID(ctx context.Context, id string) (*models.Course, error)
	List(ctx context.Context) ([]models.Course, error)
}

type catalogClassStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Class, error)
	FindForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Class, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, exec sqlx.ExtContext, class *models.Class) error
	SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error
	ListAvailability(ctx context.Context) ([]models.ClassAvailability, error)
}

type seatCounter interface {
	CountByClass(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error)
}

type waitlistClearer interface {
	DeleteByClass(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error)
}

// enrollmentGate is the part of the enrollment engine the catalog needs to
// change classes safely.
type enrollmentGate interface {
	LockClass(classID string) func()
	AutoEnrollEnabled() bool
	PromoteLocked(ctx context.Context, exec sqlx.ExtContext, class *models.Class, now time.Time) (int, error)
	PromotionCommitted(ctx context.Context, classID string, promoted int)
	Rules() EnrollmentRules
}

// CreateCourseRequest describes a new catalog course.
type CreateCourseRequest struct {
	DepartmentCode string `json:"department_code" validate:"required,alphanum,max=8"`
	CourseNo       int    `json:"course_no" validate:"required,gt=0"`
	Title          string `json:"title" validate:"required,max=255"`
}

// CreateClassRequest describes a new class section.
type CreateClassRequest struct {
	CourseID        string    `json:"course_id" validate:"required"`
	SectionNo       int       `json:"section_no" validate:"required,gt=0"`
	AcademicYear    int       `json:"academic_year" validate:"required,gte=2000,lte=2100"`
	Semester        string    `json:"semester" validate:"required,oneof=SP SU FA WI"`
	InstructorID    string    `json:"instructor_id" validate:"required"`
	RoomNumber      string    `json:"room_number" validate:"omitempty,max=32"`
	RoomCapacity    int       `json:"room_capacity" validate:"gte=0"`
	CourseStartDate time.Time `json:"course_start_date" validate:"required"`
	EnrollmentStart time.Time `json:"enrollment_start" validate:"required"`
	EnrollmentEnd   time.Time `json:"enrollment_end" validate:"required,gtefield=EnrollmentStart"`
}

// UpdateClassRequest carries the optional fields of a class patch.
type UpdateClassRequest struct {
	SectionNo       *int       `json:"section_no" validate:"omitempty,gt=0"`
	InstructorID    *string    `json:"instructor_id" validate:"omitempty,min=1"`
	RoomNumber      *string    `json:"room_number" validate:"omitempty,max=32"`
	RoomCapacity    *int       `json:"room_capacity" validate:"omitempty,gte=0"`
	CourseStartDate *time.Time `json:"course_start_date"`
	EnrollmentStart *time.Time `json:"enrollment_start"`
	EnrollmentEnd   *time.Time `json:"enrollment_end"`
}

func (r UpdateClassRequest) patch() models.ClassPatch {
	return models.ClassPatch{
		SectionNo:       r.SectionNo,
		InstructorID:    r.InstructorID,
		RoomNumber:      r.RoomNumber,
		RoomCapacity:    r.RoomCapacity,
		CourseStartDate: r.CourseStartDate,
		EnrollmentStart: r.EnrollmentStart,
		EnrollmentEnd:   r.EnrollmentEnd,
	}
}

// CatalogService manages courses and classes for the registrar and serves
// the student-facing class listing.
type CatalogService struct {
	tx          txRunner
	courses     courseStore
	classes     catalogClassStore
	enrollments seatCounter
	waitlists   waitlistClearer
	gate        enrollmentGate
	cache       *CacheService
	cacheTTL    time.Duration
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewCatalogService constructs CatalogService.
func NewCatalogService(
	tx txRunner,
	courses courseStore,
	classes catalogClassStore,
	enrollments seatCounter,
	waitlists waitlistClearer,
	gate enrollmentGate,
	cache *CacheService,
	cacheTTL time.Duration,
	validate *validator.Validate,
	logger *zap.Logger,
) *CatalogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{
		tx:          tx,
		courses:     courses,
		classes:     classes,
		enrollments: enrollments,
		waitlists:   waitlists,
		gate:        gate,
		cache:       cache,
		cacheTTL:    cacheTTL,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateCourse adds a course to the catalog.
func (s *CatalogService) CreateCourse(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course := &models.Course{DepartmentCode: req.DepartmentCode, CourseNo: req.CourseNo, Title: req.Title}
	if err := s.courses.Create(ctx, course); err != nil {
		return nil, storeErr(err, "failed to create course")
	}
	return course, nil
}

// ListCourses returns every course.
func (s *CatalogService) ListCourses(ctx context.Context) ([]models.Course, error) {
	courses, err := s.courses.List(ctx)
	if err != nil {
		return nil, storeErr(err, "failed to list courses")
	}
	return courses, nil
}

// CreateClass opens a new section of an existing course.
func (s *CatalogService) CreateClass(ctx context.Context, req CreateClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		return nil, lookupErr(err, "course not found", "failed to load course")
	}
	class := &models.Class{
		CourseID:        course.ID,
		DepartmentCode:  course.DepartmentCode,
		CourseNo:        course.CourseNo,
		SectionNo:       req.SectionNo,
		AcademicYear:    req.AcademicYear,
		Semester:        req.Semester,
		InstructorID:    req.InstructorID,
		RoomNumber:      req.RoomNumber,
		RoomCapacity:    req.RoomCapacity,
		CourseStartDate: req.CourseStartDate,
		EnrollmentStart: req.EnrollmentStart,
		EnrollmentEnd:   req.EnrollmentEnd,
	}
	if err := s.classes.Create(ctx, class); err != nil {
		return nil, storeErr(err, "failed to create class")
	}
	s.invalidate(ctx)
	return class, nil
}

// GetClass returns a live class.
func (s *CatalogService) GetClass(ctx context.Context, classID string) (*models.Class, error) {
	class, err := s.classes.FindByID(ctx, nil, classID)
	if err != nil {
		return nil, lookupErr(err, "class not found", "failed to load class")
	}
	return class, nil
}

// PatchClass applies a partial update. Capacity may not drop below the
// current roster. A capacity increase promotes waitlisted students when
// automatic enrollment is on.
func (s *CatalogService) PatchClass(ctx context.Context, classID string, req UpdateClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	var (
		class    *models.Class
		promoted int
	)
	err := func() error {
		unlock := s.gate.LockClass(classID)
		defer unlock()
		return s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
			current, err := s.classes.FindForUpdate(ctx, exec, classID)
			if err != nil {
				return lookupErr(err, "class not found", "failed to load class")
			}
			previous := current.RoomCapacity
			req.patch().Apply(current)
			if current.EnrollmentEnd.Before(current.EnrollmentStart) {
				return appErrors.Clone(appErrors.ErrValidation, "enrollment end precedes enrollment start")
			}
			if current.RoomCapacity < previous {
				enrolled, err := s.enrollments.CountByClass(ctx, exec, classID)
				if err != nil {
					return storeErr(err, "failed to count enrollments")
				}
				if current.RoomCapacity < enrolled {
					return appErrors.Clone(appErrors.ErrConflict, "room capacity below current enrollment")
				}
			}
			if err := s.classes.Update(ctx, exec, current); err != nil {
				return lookupErr(err, "class not found", "failed to update class")
			}
			class = current
			// New seats go to the waitlist before the class lock is released.
			if current.RoomCapacity > previous && s.gate.AutoEnrollEnabled() {
				promoted, err = s.gate.PromoteLocked(ctx, exec, current, s.now())
				if err != nil {
					return err
				}
			}
			return nil
		})
	}()
	if err != nil {
		return nil, txErr(err, "failed to update class")
	}

	if promoted > 0 {
		s.gate.PromotionCommitted(ctx, classID, promoted)
		s.logger.Info("capacity increase promoted waitlist", zap.String("class_id", classID), zap.Int("promoted", promoted))
	}
	s.invalidate(ctx)
	return class, nil
}

// DeleteClass soft deletes a class with no enrolled students and clears its
// waitlist.
func (s *CatalogService) DeleteClass(ctx context.Context, classID string) error {
	unlock := s.gate.LockClass(classID)
	defer unlock()

	var cleared int
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		if _, err := s.classes.FindForUpdate(ctx, exec, classID); err != nil {
			return lookupErr(err, "class not found", "failed to load class")
		}
		enrolled, err := s.enrollments.CountByClass(ctx, exec, classID)
		if err != nil {
			return storeErr(err, "failed to count enrollments")
		}
		if enrolled > 0 {
			return appErrors.Clone(appErrors.ErrConflict, "class still has enrolled students")
		}
		if cleared, err = s.waitlists.DeleteByClass(ctx, exec, classID); err != nil {
			return storeErr(err, "failed to clear waitlist")
		}
		if err := s.classes.SoftDelete(ctx, exec, classID, s.now()); err != nil {
			return lookupErr(err, "class not found", "failed to delete class")
		}
		return nil
	})
	if err != nil {
		return txErr(err, "failed to delete class")
	}
	s.logger.Info("class deleted", zap.String("class_id", classID), zap.Int("waitlist_cleared", cleared))
	s.invalidate(ctx)
	return nil
}

// ListAvailable returns classes whose enrollment window contains now and
// that still accept either a seat or a waitlist entry.
func (s *CatalogService) ListAvailable(ctx context.Context, now time.Time) ([]models.ClassAvailability, error) {
	if now.IsZero() {
		now = s.now()
	}
	var all []models.ClassAvailability
	hit, _ := s.cache.Get(ctx, availableClassesCacheKey, &all)
	if !hit {
		var err error
		all, err = s.classes.ListAvailability(ctx)
		if err != nil {
			return nil, storeErr(err, "failed to list classes")
		}
		_ = s.cache.Set(ctx, availableClassesCacheKey, all, s.cacheTTL)
	}

	capacity := s.gate.Rules().WaitlistCapacity
	available := make([]models.ClassAvailability, 0, len(all))
	for _, class := range all {
		if !class.WindowOpen(now) {
			continue
		}
		if class.AvailableSeats > 0 || class.WaitlistCount < capacity {
			available = append(available, class)
		}
	}
	return available, nil
}

func (s *CatalogService) invalidate(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, catalogCachePattern)
}
