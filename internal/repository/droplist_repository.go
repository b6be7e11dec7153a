package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/enrollment-api/internal/models"
)

// DroplistRepository appends to and reads the drop audit log.
type DroplistRepository struct {
	db *sqlx.DB
}

// NewDroplistRepository constructs the repository.
func NewDroplistRepository(db *sqlx.DB) *DroplistRepository {
	return &DroplistRepository{db: db}
}

// Create appends a drop record.
func (r *DroplistRepository) Create(ctx context.Context, exec sqlx.ExtContext, entry *models.DropEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.DropDate.IsZero() {
		entry.DropDate = time.Now()
	}
	entry.DropDate = entry.DropDate.UTC()
	const query = `INSERT INTO droplists (id, class_id, student_id, drop_date, administrative)
VALUES (:id, :class_id, :student_id, :drop_date, :administrative)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, entry); err != nil {
		return fmt.Errorf("create droplist entry: %w", err)
	}
	return nil
}

// ListByClass returns the drops recorded for a class, newest first.
func (r *DroplistRepository) ListByClass(ctx context.Context, classID string) ([]models.DropEntry, error) {
	query := r.db.Rebind(`SELECT id, class_id, student_id, drop_date, administrative FROM droplists
WHERE class_id = ? ORDER BY drop_date DESC, id ASC`)
	var entries []models.DropEntry
	if err := r.db.SelectContext(ctx, &entries, query, classID); err != nil {
		return nil, fmt.Errorf("list droplist: %w", err)
	}
	return entries, nil
}
