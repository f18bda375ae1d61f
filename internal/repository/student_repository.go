package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/studiva/automation-api/internal/models"
)

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID fetches a student by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, full_name, age, grade, parent_id, class_id, active, created_at, updated_at
        FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// ListActive returns active students, newest first, capped at limit.
func (r *StudentRepository) ListActive(ctx context.Context, limit int) ([]models.Student, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	const query = `SELECT id, full_name, age, grade, parent_id, class_id, active, created_at, updated_at
        FROM students WHERE active = true ORDER BY created_at DESC LIMIT $1`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, limit); err != nil {
		return nil, fmt.Errorf("list active students: %w", err)
	}
	return students, nil
}

// ListByIDs returns the students matching the provided IDs.
func (r *StudentRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Student, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `SELECT id, full_name, age, grade, parent_id, class_id, active, created_at, updated_at
        FROM students WHERE id = ANY($1)`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, pq.StringArray(ids)); err != nil {
		return nil, fmt.Errorf("list students by ids: %w", err)
	}
	return students, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, full_name, age, grade, parent_id, class_id, active, created_at, updated_at)
        VALUES (:id, :full_name, :age, :grade, :parent_id, :class_id, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// SetClass assigns a student to a class within the provided executor.
func (r *StudentRepository) SetClass(ctx context.Context, exec sqlx.ExtContext, studentID, classID string) error {
	const query = `UPDATE students SET class_id = $2, updated_at = $3 WHERE id = $1`
	if _, err := exec.ExecContext(ctx, query, studentID, classID, time.Now().UTC()); err != nil {
		return fmt.Errorf("set student class: %w", err)
	}
	return nil
}

// SetParent links a student to a parent within the provided executor.
func (r *StudentRepository) SetParent(ctx context.Context, exec sqlx.ExtContext, studentID, parentID string) error {
	const query = `UPDATE students SET parent_id = $2, updated_at = $3 WHERE id = $1`
	if _, err := exec.ExecContext(ctx, query, studentID, parentID, time.Now().UTC()); err != nil {
		return fmt.Errorf("set student parent: %w", err)
	}
	return nil
}
