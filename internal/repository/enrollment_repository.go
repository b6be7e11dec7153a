package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/enrollment-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// CountByClass returns the number of seats taken in a class.
func (r *EnrollmentRepository) CountByClass(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error) {
	target := pick(r.db, exec)
	query := target.Rebind(`SELECT COUNT(*) FROM enrollments WHERE class_id = ?`)
	var count int
	if err := sqlx.GetContext(ctx, target, &count, query, classID); err != nil {
		return 0, fmt.Errorf("count enrollments: %w", err)
	}
	return count, nil
}

// Exists reports whether the student holds a seat in the class.
func (r *EnrollmentRepository) Exists(ctx context.Context, exec sqlx.ExtContext, classID, studentID string) (bool, error) {
	target := pick(r.db, exec)
	query := target.Rebind(`SELECT 1 FROM enrollments WHERE class_id = ? AND student_id = ? LIMIT 1`)
	var exists int
	if err := sqlx.GetContext(ctx, target, &exists, query, classID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrollmentDate.IsZero() {
		enrollment.EnrollmentDate = time.Now()
	}
	enrollment.EnrollmentDate = enrollment.EnrollmentDate.UTC()
	const query = `INSERT INTO enrollments (id, class_id, student_id, enrollment_date)
VALUES (:id, :class_id, :student_id, :enrollment_date)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, enrollment); err != nil {
		return insertErr("create enrollment", err)
	}
	return nil
}

// Delete removes the seat held by a student. It reports false when there was
// nothing to remove.
func (r *EnrollmentRepository) Delete(ctx context.Context, exec sqlx.ExtContext, classID, studentID string) (bool, error) {
	target := pick(r.db, exec)
	query := target.Rebind(`DELETE FROM enrollments WHERE class_id = ? AND student_id = ?`)
	result, err := target.ExecContext(ctx, query, classID, studentID)
	if err != nil {
		return false, fmt.Errorf("delete enrollment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("enrollment rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListByClass returns the roster of a class in enrollment order.
func (r *EnrollmentRepository) ListByClass(ctx context.Context, classID string) ([]models.Enrollment, error) {
	query := r.db.Rebind(`SELECT id, class_id, student_id, enrollment_date FROM enrollments
WHERE class_id = ? ORDER BY enrollment_date ASC, student_id ASC`)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, classID); err != nil {
		return nil, fmt.Errorf("list class enrollments: %w", err)
	}
	return enrollments, nil
}
