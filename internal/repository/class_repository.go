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

const classColumns = `id, course_id, department_code, course_no, section_no, academic_year, semester,
instructor_id, room_number, room_capacity, course_start_date, enrollment_start, enrollment_end,
created_at, updated_at, deleted_at`

// ClassRepository handles persistence of class sections.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// FindByID returns a live (not soft-deleted) class.
func (r *ClassRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Class, error) {
	target := pick(r.db, exec)
	query := target.Rebind(`SELECT ` + classColumns + ` FROM classes WHERE id = ? AND deleted_at IS NULL`)
	var class models.Class
	if err := sqlx.GetContext(ctx, target, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// FindForUpdate loads a live class and, where the driver supports it, locks
// its row until the surrounding transaction ends. Every seat-changing
// operation goes through here first so writers on one class serialize.
func (r *ClassRepository) FindForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Class, error) {
	target := pick(r.db, exec)
	query := target.Rebind(`SELECT ` + classColumns + ` FROM classes WHERE id = ? AND deleted_at IS NULL` + lockClause(target))
	var class models.Class
	if err := sqlx.GetContext(ctx, target, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// Create persists a new class.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	class.CreatedAt = now
	class.UpdatedAt = now
	class.CourseStartDate = class.CourseStartDate.UTC()
	class.EnrollmentStart = class.EnrollmentStart.UTC()
	class.EnrollmentEnd = class.EnrollmentEnd.UTC()

	const query = `INSERT INTO classes (id, course_id, department_code, course_no, section_no, academic_year, semester,
instructor_id, room_number, room_capacity, course_start_date, enrollment_start, enrollment_end, created_at, updated_at)
VALUES (:id, :course_id, :department_code, :course_no, :section_no, :academic_year, :semester,
:instructor_id, :room_number, :room_capacity, :course_start_date, :enrollment_start, :enrollment_end, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, class); err != nil {
		return insertErr("create class", err)
	}
	return nil
}

// Update writes the mutable columns of a class.
func (r *ClassRepository) Update(ctx context.Context, exec sqlx.ExtContext, class *models.Class) error {
	target := pick(r.db, exec)
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET section_no = :section_no, instructor_id = :instructor_id, room_number = :room_number,
room_capacity = :room_capacity, course_start_date = :course_start_date, enrollment_start = :enrollment_start,
enrollment_end = :enrollment_end, updated_at = :updated_at
WHERE id = :id AND deleted_at IS NULL`
	result, err := sqlx.NamedExecContext(ctx, target, query, class)
	if err != nil {
		return insertErr("update class", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("class rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SoftDelete hides a class from every read path while keeping its history.
func (r *ClassRepository) SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error {
	target := pick(r.db, exec)
	query := target.Rebind(`UPDATE classes SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`)
	result, err := target.ExecContext(ctx, query, at.UTC(), at.UTC(), id)
	if err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("class rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListAvailability returns every live class with its enrollment and
// waitlist counters.
func (r *ClassRepository) ListAvailability(ctx context.Context) ([]models.ClassAvailability, error) {
	const query = `SELECT c.id, c.course_id, c.department_code, c.course_no, c.section_no, c.academic_year, c.semester,
c.instructor_id, c.room_number, c.room_capacity, c.course_start_date, c.enrollment_start, c.enrollment_end,
c.created_at, c.updated_at, c.deleted_at,
(SELECT COUNT(*) FROM enrollments e WHERE e.class_id = c.id) AS enrolled_count,
(SELECT COUNT(*) FROM waitlists w WHERE w.class_id = c.id) AS waitlist_count
FROM classes c
WHERE c.deleted_at IS NULL
ORDER BY c.department_code ASC, c.course_no ASC, c.section_no ASC`
	var classes []models.ClassAvailability
	if err := r.db.SelectContext(ctx, &classes, query); err != nil {
		return nil, fmt.Errorf("list class availability: %w", err)
	}
	for i := range classes {
		classes[i].AvailableSeats = classes[i].RoomCapacity - classes[i].EnrolledCount
	}
	return classes, nil
}

// ListOpenWithWaitlist returns live classes that started no earlier than
// cutoff and still have somebody queued.
func (r *ClassRepository) ListOpenWithWaitlist(ctx context.Context, exec sqlx.ExtContext, cutoff time.Time) ([]string, error) {
	target := pick(r.db, exec)
	query := target.Rebind(`SELECT c.id FROM classes c
WHERE c.deleted_at IS NULL AND c.course_start_date >= ?
AND EXISTS (SELECT 1 FROM waitlists w WHERE w.class_id = c.id)
ORDER BY c.id ASC`)
	var ids []string
	if err := sqlx.SelectContext(ctx, target, &ids, query, cutoff.UTC()); err != nil {
		return nil, fmt.Errorf("list open classes: %w", err)
	}
	return ids, nil
}
