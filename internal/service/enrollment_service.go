package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/enrollment-api/internal/models"
	"github.com/noah-isme/enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/enrollment-api/pkg/errors"
)

const catalogCachePattern = "catalog:*"

type txRunner interface {
	WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error
}

type classStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Class, error)
	FindForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Class, error)
	ListOpenWithWaitlist(ctx context.Context, exec sqlx.ExtContext, cutoff time.Time) ([]string, error)
}

type enrollmentStore interface {
	CountByClass(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error)
	Exists(ctx context.Context, exec sqlx.ExtContext, classID, studentID string) (bool, error)
	Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error
	Delete(ctx context.Context, exec sqlx.ExtContext, classID, studentID string) (bool, error)
}

type waitlistStore interface {
	LockStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) error
	CountByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) (int, error)
	CountByClass(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error)
	Create(ctx context.Context, exec sqlx.ExtContext, entry *models.WaitlistEntry) error
	Delete(ctx context.Context, exec sqlx.ExtContext, classID, studentID string) (bool, error)
	Head(ctx context.Context, exec sqlx.ExtContext, classID string, limit int) ([]models.WaitlistEntry, error)
	Position(ctx context.Context, exec sqlx.ExtContext, classID, studentID string) (int, error)
}

type droplistWriter interface {
	Create(ctx context.Context, exec sqlx.ExtContext, entry *models.DropEntry) error
}

type configurationStore interface {
	Get(ctx context.Context, key string) (*models.Configuration, error)
	Upsert(ctx context.Context, exec sqlx.ExtContext, cfg *models.Configuration) error
}

// EnrollmentRules holds the waitlist limits.
type EnrollmentRules struct {
	WaitlistCapacity       int
	MaxWaitlistsPerStudent int
	OpenClassGrace         time.Duration
}

// DefaultEnrollmentRules returns the registrar's standing limits.
func DefaultEnrollmentRules() EnrollmentRules {
	return EnrollmentRules{
		WaitlistCapacity:       15,
		MaxWaitlistsPerStudent: 3,
		OpenClassGrace:         14 * 24 * time.Hour,
	}
}

// EnrollmentRequest identifies a student asking for a seat.
type EnrollmentRequest struct {
	ClassID   string `json:"class_id" validate:"required"`
	StudentID string `json:"student_id" validate:"required"`
}

// EnrollmentService owns seat accounting, waitlist admission, promotion and
// drops. Every mutation on a class runs under that class's lock and inside a
// single transaction. Waitlist admissions also take the student's lock, always
// after the class lock.
type EnrollmentService struct {
	tx          txRunner
	classes     classStore
	enrollments enrollmentStore
	waitlists   waitlistStore
	droplists   droplistWriter
	configs     configurationStore
	rules       EnrollmentRules
	validator   *validator.Validate
	metrics     *MetricsService
	cache       *CacheService
	logger      *zap.Logger
	now         func() time.Time

	locks      *keyedLocks
	students   *keyedLocks
	toggleMu   sync.Mutex
	autoEnroll atomic.Bool
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(
	tx txRunner,
	classes classStore,
	enrollments enrollmentStore,
	waitlists waitlistStore,
	droplists droplistWriter,
	configs configurationStore,
	rules EnrollmentRules,
	validate *validator.Validate,
	metrics *MetricsService,
	cache *CacheService,
	logger *zap.Logger,
) *EnrollmentService {
	defaults := DefaultEnrollmentRules()
	if rules.WaitlistCapacity <= 0 {
		rules.WaitlistCapacity = defaults.WaitlistCapacity
	}
	if rules.MaxWaitlistsPerStudent <= 0 {
		rules.MaxWaitlistsPerStudent = defaults.MaxWaitlistsPerStudent
	}
	if rules.OpenClassGrace <= 0 {
		rules.OpenClassGrace = defaults.OpenClassGrace
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		tx:          tx,
		classes:     classes,
		enrollments: enrollments,
		waitlists:   waitlists,
		droplists:   droplists,
		configs:     configs,
		rules:       rules,
		validator:   validate,
		metrics:     metrics,
		cache:       cache,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		locks:       newKeyedLocks(),
		students:    newKeyedLocks(),
	}
}

// Rules exposes the active waitlist limits.
func (s *EnrollmentService) Rules() EnrollmentRules {
	return s.rules
}

// LockClass takes the class lock used by every seat-changing operation.
func (s *EnrollmentService) LockClass(classID string) func() {
	return s.locks.Lock(classID)
}

// AvailableSeats returns room capacity minus current enrollment. The value
// can be negative when capacity was lowered below an existing roster.
func (s *EnrollmentService) AvailableSeats(ctx context.Context, classID string) (int, error) {
	if strings.TrimSpace(classID) == "" {
		return 0, appErrors.Clone(appErrors.ErrValidation, "class id is required")
	}
	var seats int
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		class, err := s.classes.FindByID(ctx, exec, classID)
		if err != nil {
			return lookupErr(err, "class not found", "failed to load class")
		}
		enrolled, err := s.enrollments.CountByClass(ctx, exec, classID)
		if err != nil {
			return storeErr(err, "failed to count enrollments")
		}
		seats = class.RoomCapacity - enrolled
		return nil
	})
	if err != nil {
		return 0, txErr(err, "failed to read available seats")
	}
	return seats, nil
}

// RequestEnrollment seats the student when a seat is free and otherwise
// tries to place them on the class waitlist.
func (s *EnrollmentService) RequestEnrollment(ctx context.Context, classID, studentID string, now time.Time) (*models.EnrollmentOutcome, error) {
	req := EnrollmentRequest{ClassID: classID, StudentID: studentID}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment request")
	}
	if now.IsZero() {
		now = s.now()
	}
	now = now.UTC()

	unlock := s.locks.Lock(classID)
	defer unlock()

	// Released after commit so the next admission sees this one's entry.
	unlockStudent := func() {}
	defer func() { unlockStudent() }()

	var outcome *models.EnrollmentOutcome
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		class, err := s.classes.FindForUpdate(ctx, exec, classID)
		if err != nil {
			return lookupErr(err, "class not found", "failed to load class")
		}
		if !class.WindowOpen(now) {
			return appErrors.Clone(appErrors.ErrWindowClosed, "")
		}

		enrolled, err := s.enrollments.Exists(ctx, exec, classID, studentID)
		if err != nil {
			return storeErr(err, "failed to check enrollment")
		}
		if enrolled {
			return appErrors.Clone(appErrors.ErrConflict, "student already enrolled in class")
		}

		taken, err := s.enrollments.CountByClass(ctx, exec, classID)
		if err != nil {
			return storeErr(err, "failed to count enrollments")
		}
		if class.RoomCapacity-taken > 0 {
			enrollment := &models.Enrollment{ClassID: classID, StudentID: studentID, EnrollmentDate: now}
			if err := s.enrollments.Create(ctx, exec, enrollment); err != nil {
				return storeErr(err, "failed to create enrollment")
			}
			outcome = &models.EnrollmentOutcome{Status: models.EnrollmentStatusSeated, ClassID: classID, StudentID: studentID, At: now}
			return nil
		}

		position, err := s.waitlists.Position(ctx, exec, classID, studentID)
		if err != nil {
			return storeErr(err, "failed to check waitlist")
		}
		if position > 0 {
			return appErrors.Clone(appErrors.ErrConflict, "student already on class waitlist")
		}
		unlockStudent = s.students.Lock(studentID)
		if err := s.waitlists.LockStudent(ctx, exec, studentID); err != nil {
			return storeErr(err, "failed to lock student waitlists")
		}
		held, err := s.waitlists.CountByStudent(ctx, exec, studentID)
		if err != nil {
			return storeErr(err, "failed to count student waitlists")
		}
		if held >= s.rules.MaxWaitlistsPerStudent {
			return appErrors.Clone(appErrors.ErrWaitlistLimitExceeded, "")
		}
		queued, err := s.waitlists.CountByClass(ctx, exec, classID)
		if err != nil {
			return storeErr(err, "failed to count class waitlist")
		}
		if queued >= s.rules.WaitlistCapacity {
			return appErrors.Clone(appErrors.ErrWaitlistFull, "")
		}

		entry := &models.WaitlistEntry{ClassID: classID, StudentID: studentID, WaitlistDate: now}
		if err := s.waitlists.Create(ctx, exec, entry); err != nil {
			return storeErr(err, "failed to add waitlist entry")
		}
		position, err = s.waitlists.Position(ctx, exec, classID, studentID)
		if err != nil {
			return storeErr(err, "failed to read waitlist position")
		}
		outcome = &models.EnrollmentOutcome{
			Status:           models.EnrollmentStatusWaitlisted,
			ClassID:          classID,
			StudentID:        studentID,
			At:               now,
			WaitlistPosition: position,
		}
		return nil
	})
	if err != nil {
		err = txErr(err, "failed to process enrollment request")
		s.metrics.RecordEnrollmentOutcome(strings.ToLower(appErrors.FromError(err).Code))
		return nil, err
	}

	s.metrics.RecordEnrollmentOutcome(strings.ToLower(string(outcome.Status)))
	s.invalidateCatalog(ctx)
	return outcome, nil
}

// WaitlistPosition returns the 1-based rank of the student on the class
// waitlist.
func (s *EnrollmentService) WaitlistPosition(ctx context.Context, classID, studentID string) (int, error) {
	if err := s.validator.Struct(EnrollmentRequest{ClassID: classID, StudentID: studentID}); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid waitlist lookup")
	}
	position, err := s.waitlists.Position(ctx, nil, classID, studentID)
	if err != nil {
		return 0, storeErr(err, "failed to read waitlist position")
	}
	if position == 0 {
		return 0, appErrors.Clone(appErrors.ErrNotFound, "student is not on the class waitlist")
	}
	return position, nil
}

func (s *EnrollmentService) invalidateCatalog(ctx context.Context) {
	// Errors are logged by the cache service.
	_ = s.cache.Invalidate(ctx, catalogCachePattern)
}

// lookupErr turns a missing row into NotFound and anything else into a
// store failure.
func lookupErr(err error, notFound, failure string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return storeErr(err, failure)
}

func storeErr(err error, message string) error {
	if errors.Is(err, repository.ErrDuplicate) {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "record already exists")
	}
	return appErrors.Store(err, message)
}

// txErr keeps typed errors raised inside a transaction and wraps the rest,
// such as begin or commit failures.
func txErr(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return storeErr(err, message)
}
