package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/studiva/automation-api/internal/models"
)

// ClassRepository manages persistence for class records. Enrollment
// counts are derived from the students table on every read.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a ClassRepository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// FindByID fetches a class with its current enrollment count.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.ClassDetail, error) {
	const query = `SELECT c.id, c.name, c.grade, c.subject_ids, c.max_capacity, c.created_at, c.updated_at,
        (SELECT COUNT(*) FROM students s WHERE s.class_id = c.id) AS enrolled_count
        FROM classes c WHERE c.id = $1`
	var detail models.ClassDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns classes with enrollment counts, ordered by name.
func (r *ClassRepository) List(ctx context.Context, limit int) ([]models.ClassDetail, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	const query = `SELECT c.id, c.name, c.grade, c.subject_ids, c.max_capacity, c.created_at, c.updated_at,
        (SELECT COUNT(*) FROM students s WHERE s.class_id = c.id) AS enrolled_count
        FROM classes c ORDER BY c.name ASC LIMIT $1`
	var classes []models.ClassDetail
	if err := r.db.SelectContext(ctx, &classes, query, limit); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return classes, nil
}

// ListByIDs returns the classes matching the provided IDs, with
// enrollment counts.
func (r *ClassRepository) ListByIDs(ctx context.Context, ids []string) ([]models.ClassDetail, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `SELECT c.id, c.name, c.grade, c.subject_ids, c.max_capacity, c.created_at, c.updated_at,
        (SELECT COUNT(*) FROM students s WHERE s.class_id = c.id) AS enrolled_count
        FROM classes c WHERE c.id = ANY($1)`
	var classes []models.ClassDetail
	if err := r.db.SelectContext(ctx, &classes, query, pq.StringArray(ids)); err != nil {
		return nil, fmt.Errorf("list classes by ids: %w", err)
	}
	return classes, nil
}

// AppendSubject pushes a subject ID onto the class's subject list
// within the provided executor. The push is unconditional.
func (r *ClassRepository) AppendSubject(ctx context.Context, exec sqlx.ExtContext, classID, subjectID string) error {
	const query = `UPDATE classes SET subject_ids = array_append(subject_ids, $2), updated_at = $3 WHERE id = $1`
	if _, err := exec.ExecContext(ctx, query, classID, subjectID, time.Now().UTC()); err != nil {
		return fmt.Errorf("append subject: %w", err)
	}
	return nil
}
