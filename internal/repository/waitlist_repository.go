package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/enrollment-api/internal/models"
)

const waitlistOrder = `ORDER BY waitlist_date ASC, seq ASC`

// WaitlistRepository persists waitlist entries. Entries are ordered by
// waitlist date with the insertion sequence as tie-break.
type WaitlistRepository struct {
	db *sqlx.DB
}

// NewWaitlistRepository constructs the repository.
func NewWaitlistRepository(db *sqlx.DB) *WaitlistRepository {
	return &WaitlistRepository{db: db}
}

// LockStudent serializes waitlist admissions for one student until the
// surrounding transaction ends. PostgreSQL takes a transaction-scoped
// advisory lock; SQLite already runs one writer at a time.
func (r *WaitlistRepository) LockStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) error {
	target := pick(r.db, exec)
	if target.DriverName() != "postgres" {
		return nil
	}
	if _, err := target.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, studentID); err != nil {
		return fmt.Errorf("lock student waitlists: %w", err)
	}
	return nil
}

// CountByStudent returns how many waitlists a student is queued on.
func (r *WaitlistRepository) CountByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) (int, error) {
	target := pick(r.db, exec)
	query := target.Rebind(`SELECT COUNT(*) FROM waitlists WHERE student_id = ?`)
	var count int
	if err := sqlx.GetContext(ctx, target, &count, query, studentID); err != nil {
		return 0, fmt.Errorf("count student waitlists: %w", err)
	}
	return count, nil
}

// CountByClass returns the length of a class waitlist.
func (r *WaitlistRepository) CountByClass(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error) {
	target := pick(r.db, exec)
	query := target.Rebind(`SELECT COUNT(*) FROM waitlists WHERE class_id = ?`)
	var count int
	if err := sqlx.GetContext(ctx, target, &count, query, classID); err != nil {
		return 0, fmt.Errorf("count class waitlist: %w", err)
	}
	return count, nil
}

// Create appends a student to a class waitlist and fills in the assigned
// sequence number.
func (r *WaitlistRepository) Create(ctx context.Context, exec sqlx.ExtContext, entry *models.WaitlistEntry) error {
	target := pick(r.db, exec)
	if entry.WaitlistDate.IsZero() {
		entry.WaitlistDate = time.Now()
	}
	entry.WaitlistDate = entry.WaitlistDate.UTC()
	query := target.Rebind(`INSERT INTO waitlists (class_id, student_id, waitlist_date) VALUES (?, ?, ?) RETURNING seq`)
	if err := target.QueryRowxContext(ctx, query, entry.ClassID, entry.StudentID, entry.WaitlistDate).Scan(&entry.Seq); err != nil {
		return insertErr("create waitlist entry", err)
	}
	return nil
}

// Delete removes a student from a class waitlist. It reports false when the
// student was not queued.
func (r *WaitlistRepository) Delete(ctx context.Context, exec sqlx.ExtContext, classID, studentID string) (bool, error) {
	target := pick(r.db, exec)
	query := target.Rebind(`DELETE FROM waitlists WHERE class_id = ? AND student_id = ?`)
	result, err := target.ExecContext(ctx, query, classID, studentID)
	if err != nil {
		return false, fmt.Errorf("delete waitlist entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("waitlist rows affected: %w", err)
	}
	return affected > 0, nil
}

// Head returns up to limit entries from the front of a class waitlist.
func (r *WaitlistRepository) Head(ctx context.Context, exec sqlx.ExtContext, classID string, limit int) ([]models.WaitlistEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	target := pick(r.db, exec)
	query := target.Rebind(`SELECT seq, class_id, student_id, waitlist_date FROM waitlists
WHERE class_id = ? ` + waitlistOrder + ` LIMIT ?`)
	var entries []models.WaitlistEntry
	if err := sqlx.SelectContext(ctx, target, &entries, query, classID, limit); err != nil {
		return nil, fmt.Errorf("select waitlist head: %w", err)
	}
	return entries, nil
}

// Position returns the 1-based rank of a student on a class waitlist, or 0
// when the student is not queued.
func (r *WaitlistRepository) Position(ctx context.Context, exec sqlx.ExtContext, classID, studentID string) (int, error) {
	target := pick(r.db, exec)
	query := target.Rebind(`SELECT COUNT(*) FROM waitlists w
JOIN waitlists me ON me.class_id = w.class_id
WHERE me.class_id = ? AND me.student_id = ?
AND (w.waitlist_date < me.waitlist_date OR (w.waitlist_date = me.waitlist_date AND w.seq <= me.seq))`)
	var position int
	if err := sqlx.GetContext(ctx, target, &position, query, classID, studentID); err != nil {
		return 0, fmt.Errorf("waitlist position: %w", err)
	}
	return position, nil
}

// ListByClass returns a class waitlist in promotion order.
func (r *WaitlistRepository) ListByClass(ctx context.Context, classID string) ([]models.WaitlistEntry, error) {
	query := r.db.Rebind(`SELECT seq, class_id, student_id, waitlist_date FROM waitlists WHERE class_id = ? ` + waitlistOrder)
	var entries []models.WaitlistEntry
	if err := r.db.SelectContext(ctx, &entries, query, classID); err != nil {
		return nil, fmt.Errorf("list class waitlist: %w", err)
	}
	return entries, nil
}

// DeleteByClass empties a class waitlist and returns how many entries went.
func (r *WaitlistRepository) DeleteByClass(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error) {
	target := pick(r.db, exec)
	query := target.Rebind(`DELETE FROM waitlists WHERE class_id = ?`)
	result, err := target.ExecContext(ctx, query, classID)
	if err != nil {
		return 0, fmt.Errorf("clear class waitlist: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("waitlist rows affected: %w", err)
	}
	return int(affected), nil
}
