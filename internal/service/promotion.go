package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/enrollment-api/internal/models"
	appErrors "github.com/noah-isme/enrollment-api/pkg/errors"
)

const autoEnrollDescription = "Promote waitlisted students automatically when seats open"

// Promote fills open seats from the waitlists of the given classes. Unknown,
// deleted and repeated class ids are skipped. It returns the number of
// students promoted across all classes.
func (s *EnrollmentService) Promote(ctx context.Context, classIDs []string, now time.Time) (int, error) {
	if now.IsZero() {
		now = s.now()
	}
	now = now.UTC()

	seen := make(map[string]struct{}, len(classIDs))
	total := 0
	for _, classID := range classIDs {
		if classID == "" {
			continue
		}
		if _, ok := seen[classID]; ok {
			continue
		}
		seen[classID] = struct{}{}

		promoted, err := s.promoteClass(ctx, classID, now)
		if err != nil {
			return total, err
		}
		total += promoted
	}
	return total, nil
}

func (s *EnrollmentService) promoteClass(ctx context.Context, classID string, now time.Time) (int, error) {
	unlock := s.locks.Lock(classID)
	defer unlock()

	var promoted int
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		class, err := s.classes.FindForUpdate(ctx, exec, classID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return storeErr(err, "failed to load class")
		}
		promoted, err = s.promoteLocked(ctx, exec, class, now)
		return err
	})
	if err != nil {
		return 0, txErr(err, "failed to promote waitlist")
	}
	s.afterPromotion(ctx, classID, promoted)
	return promoted, nil
}

// promoteLocked moves students from the head of the waitlist into free
// seats. The caller holds the class lock and the transaction. Entries for
// students who already hold a seat are discarded without using a slot.
func (s *EnrollmentService) promoteLocked(ctx context.Context, exec sqlx.ExtContext, class *models.Class, now time.Time) (int, error) {
	enrolled, err := s.enrollments.CountByClass(ctx, exec, class.ID)
	if err != nil {
		return 0, storeErr(err, "failed to count enrollments")
	}
	slots := class.RoomCapacity - enrolled
	promoted := 0
	for slots > 0 {
		head, err := s.waitlists.Head(ctx, exec, class.ID, slots)
		if err != nil {
			return 0, storeErr(err, "failed to read waitlist")
		}
		if len(head) == 0 {
			break
		}
		for _, entry := range head {
			if _, err := s.waitlists.Delete(ctx, exec, class.ID, entry.StudentID); err != nil {
				return 0, storeErr(err, "failed to remove waitlist entry")
			}
			seated, err := s.enrollments.Exists(ctx, exec, class.ID, entry.StudentID)
			if err != nil {
				return 0, storeErr(err, "failed to check enrollment")
			}
			if seated {
				continue
			}
			enrollment := &models.Enrollment{ClassID: class.ID, StudentID: entry.StudentID, EnrollmentDate: now}
			if err := s.enrollments.Create(ctx, exec, enrollment); err != nil {
				return 0, storeErr(err, "failed to create enrollment")
			}
			promoted++
			slots--
		}
	}
	return promoted, nil
}

// PromoteLocked fills free seats of a class from its waitlist inside the
// caller's transaction. The caller must hold the class lock from LockClass
// and report a committed result through PromotionCommitted.
func (s *EnrollmentService) PromoteLocked(ctx context.Context, exec sqlx.ExtContext, class *models.Class, now time.Time) (int, error) {
	if now.IsZero() {
		now = s.now()
	}
	return s.promoteLocked(ctx, exec, class, now.UTC())
}

// PromotionCommitted records promotions made through PromoteLocked once
// their transaction has committed.
func (s *EnrollmentService) PromotionCommitted(ctx context.Context, classID string, promoted int) {
	s.afterPromotion(ctx, classID, promoted)
}

func (s *EnrollmentService) afterPromotion(ctx context.Context, classID string, promoted int) {
	if promoted == 0 {
		return
	}
	s.metrics.RecordPromotions(promoted)
	s.logger.Info("waitlist promoted", zap.String("class_id", classID), zap.Int("promoted", promoted))
	s.invalidateCatalog(ctx)
}

// AutoEnrollEnabled reports whether drops promote from the waitlist.
func (s *EnrollmentService) AutoEnrollEnabled() bool {
	return s.autoEnroll.Load()
}

// SetAutoEnroll persists the automatic enrollment switch. Turning it on
// promotes every open class that has students waiting and returns how many
// were seated.
func (s *EnrollmentService) SetAutoEnroll(ctx context.Context, enabled bool, actor string) (int, error) {
	s.toggleMu.Lock()
	defer s.toggleMu.Unlock()

	description := autoEnrollDescription
	cfg := &models.Configuration{
		Key:         models.ConfigKeyAutomaticEnrollment,
		Value:       strconv.FormatBool(enabled),
		Type:        models.ConfigurationTypeBoolean,
		Description: &description,
	}
	if actor != "" {
		cfg.UpdatedBy = &actor
	}
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		return s.configs.Upsert(ctx, exec, cfg)
	})
	if err != nil {
		return 0, txErr(err, "failed to store automatic enrollment setting")
	}

	previous := s.autoEnroll.Swap(enabled)
	s.metrics.SetAutoEnroll(enabled)
	s.logger.Info("automatic enrollment updated",
		zap.Bool("enabled", enabled),
		zap.Bool("previous", previous),
		zap.String("actor", actor),
	)
	if !enabled || previous {
		return 0, nil
	}

	now := s.now()
	classIDs, err := s.classes.ListOpenWithWaitlist(ctx, nil, s.openCutoff(now))
	if err != nil {
		return 0, storeErr(err, "failed to list open classes")
	}
	total := 0
	for _, classID := range classIDs {
		promoted, err := s.promoteClass(ctx, classID, now)
		if err != nil {
			return total, err
		}
		total += promoted
	}
	s.logger.Info("automatic enrollment sweep finished", zap.Int("classes", len(classIDs)), zap.Int("promoted", total))
	return total, nil
}

// openCutoff is the earliest course start date still open at now. The grace
// period counts whole UTC days, so every class starting on the cutoff day
// qualifies regardless of its start time.
func (s *EnrollmentService) openCutoff(now time.Time) time.Time {
	return now.UTC().Add(-s.rules.OpenClassGrace).Truncate(24 * time.Hour)
}

// LoadAutoEnroll restores the switch from the configuration table. When no
// value is stored the fallback applies.
func (s *EnrollmentService) LoadAutoEnroll(ctx context.Context, fallback bool) error {
	s.toggleMu.Lock()
	defer s.toggleMu.Unlock()

	cfg, err := s.configs.Get(ctx, models.ConfigKeyAutomaticEnrollment)
	if err != nil {
		s.autoEnroll.Store(fallback)
		s.metrics.SetAutoEnroll(fallback)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return storeErr(err, "failed to load automatic enrollment setting")
	}
	enabled, err := strconv.ParseBool(cfg.Value)
	if err != nil {
		s.autoEnroll.Store(fallback)
		s.metrics.SetAutoEnroll(fallback)
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "stored automatic enrollment value is not a boolean")
	}
	s.autoEnroll.Store(enabled)
	s.metrics.SetAutoEnroll(enabled)
	return nil
}
