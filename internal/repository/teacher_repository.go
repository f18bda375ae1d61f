package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/studiva/automation-api/internal/models"
)

// TeacherRepository manages persistence for teacher records.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs a TeacherRepository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// FindByID fetches a teacher by ID.
func (r *TeacherRepository) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	const query = `SELECT id, full_name, subject, subject_ids, class_ids, active, created_at, updated_at
        FROM teachers WHERE id = $1`
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, id); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// ListActive returns active teachers ordered by name, capped at limit.
func (r *TeacherRepository) ListActive(ctx context.Context, limit int) ([]models.Teacher, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	const query = `SELECT id, full_name, subject, subject_ids, class_ids, active, created_at, updated_at
        FROM teachers WHERE active = true ORDER BY full_name ASC LIMIT $1`
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query, limit); err != nil {
		return nil, fmt.Errorf("list active teachers: %w", err)
	}
	return teachers, nil
}

// AppendClass pushes a class ID onto the teacher's class list within
// the provided executor. The push is unconditional.
func (r *TeacherRepository) AppendClass(ctx context.Context, exec sqlx.ExtContext, teacherID, classID string) error {
	const query = `UPDATE teachers SET class_ids = array_append(class_ids, $2), updated_at = $3 WHERE id = $1`
	if _, err := exec.ExecContext(ctx, query, teacherID, classID, time.Now().UTC()); err != nil {
		return fmt.Errorf("append class: %w", err)
	}
	return nil
}
