package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/enrollment-api/internal/models"
	appErrors "github.com/noah-isme/enrollment-api/pkg/errors"
)

// DropCommand describes a seat being given up. Administrative drops are
// made by the instructor of the class.
type DropCommand struct {
	ClassID        string `validate:"required"`
	StudentID      string `validate:"required"`
	Administrative bool
	Now            time.Time
}

// Drop removes the student's seat and records it on the droplist. When
// automatic enrollment is on, the freed seat is filled from the waitlist in
// the same transaction.
func (s *EnrollmentService) Drop(ctx context.Context, cmd DropCommand) (*models.DropResult, error) {
	if err := s.validator.Struct(cmd); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid drop request")
	}
	now := cmd.Now
	if now.IsZero() {
		now = s.now()
	}
	now = now.UTC()

	unlock := s.locks.Lock(cmd.ClassID)
	defer unlock()

	result := &models.DropResult{
		ClassID:        cmd.ClassID,
		StudentID:      cmd.StudentID,
		Administrative: cmd.Administrative,
		DroppedAt:      now,
	}
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		class, err := s.classes.FindForUpdate(ctx, exec, cmd.ClassID)
		if err != nil {
			return lookupErr(err, "class not found", "failed to load class")
		}
		removed, err := s.enrollments.Delete(ctx, exec, cmd.ClassID, cmd.StudentID)
		if err != nil {
			return storeErr(err, "failed to delete enrollment")
		}
		if !removed {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		entry := &models.DropEntry{
			ClassID:        cmd.ClassID,
			StudentID:      cmd.StudentID,
			DropDate:       now,
			Administrative: cmd.Administrative,
		}
		if err := s.droplists.Create(ctx, exec, entry); err != nil {
			return storeErr(err, "failed to record drop")
		}
		if !s.autoEnroll.Load() {
			return nil
		}
		promoted, err := s.promoteLocked(ctx, exec, class, now)
		if err != nil {
			return err
		}
		result.Promoted = promoted
		return nil
	})
	if err != nil {
		return nil, txErr(err, "failed to drop enrollment")
	}

	s.metrics.RecordDrop(cmd.Administrative)
	s.logger.Info("enrollment dropped",
		zap.String("class_id", cmd.ClassID),
		zap.String("student_id", cmd.StudentID),
		zap.Bool("administrative", cmd.Administrative),
	)
	if result.Promoted > 0 {
		s.afterPromotion(ctx, cmd.ClassID, result.Promoted)
	} else {
		s.invalidateCatalog(ctx)
	}
	return result, nil
}

// RemoveFromWaitlist takes the student off the class waitlist. Nothing is
// written to the droplist.
func (s *EnrollmentService) RemoveFromWaitlist(ctx context.Context, classID, studentID string) error {
	if err := s.validator.Struct(EnrollmentRequest{ClassID: classID, StudentID: studentID}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid waitlist removal")
	}

	unlock := s.locks.Lock(classID)
	defer unlock()

	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		removed, err := s.waitlists.Delete(ctx, exec, classID, studentID)
		if err != nil {
			return storeErr(err, "failed to remove waitlist entry")
		}
		if !removed {
			return appErrors.Clone(appErrors.ErrNotFound, "student is not on the class waitlist")
		}
		return nil
	})
	if err != nil {
		return txErr(err, "failed to remove waitlist entry")
	}
	s.invalidateCatalog(ctx)
	return nil
}
