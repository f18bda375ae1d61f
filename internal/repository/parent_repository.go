package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studiva/automation-api/internal/models"
)

// ParentRepository manages persistence for parent records.
type ParentRepository struct {
	db *sqlx.DB
}

// NewParentRepository constructs a ParentRepository.
func NewParentRepository(db *sqlx.DB) *ParentRepository {
	return &ParentRepository{db: db}
}

// FindByID fetches a parent by ID.
func (r *ParentRepository) FindByID(ctx context.Context, id string) (*models.Parent, error) {
	const query = `SELECT id, full_name, email, children_ids, created_at, updated_at
        FROM parents WHERE id = $1`
	var parent models.Parent
	if err := r.db.GetContext(ctx, &parent, query, id); err != nil {
		return nil, err
	}
	return &parent, nil
}

// List returns parents ordered by name, capped at limit.
func (r *ParentRepository) List(ctx context.Context, limit int) ([]models.Parent, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	const query = `SELECT id, full_name, email, children_ids, created_at, updated_at
        FROM parents ORDER BY full_name ASC LIMIT $1`
	var parents []models.Parent
	if err := r.db.SelectContext(ctx, &parents, query, limit); err != nil {
		return nil, fmt.Errorf("list parents: %w", err)
	}
	return parents, nil
}

// Create inserts a new parent record.
func (r *ParentRepository) Create(ctx context.Context, parent *models.Parent) error {
	if parent.ID == "" {
		parent.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if parent.CreatedAt.IsZero() {
		parent.CreatedAt = now
	}
	parent.UpdatedAt = now
	if parent.ChildrenIDs == nil {
		parent.ChildrenIDs = []string{}
	}
	const query = `INSERT INTO parents (id, full_name, email, children_ids, created_at, updated_at)
        VALUES (:id, :full_name, :email, :children_ids, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, parent); err != nil {
		return fmt.Errorf("create parent: %w", err)
	}
	return nil
}

// AppendChild pushes a child ID onto the parent's children list within
// the provided executor. The push is unconditional: appending an ID
// that is already present duplicates it.
func (r *ParentRepository) AppendChild(ctx context.Context, exec sqlx.ExtContext, parentID, childID string) error {
	const query = `UPDATE parents SET children_ids = array_append(children_ids, $2), updated_at = $3 WHERE id = $1`
	if _, err := exec.ExecContext(ctx, query, parentID, childID, time.Now().UTC()); err != nil {
		return fmt.Errorf("append child: %w", err)
	}
	return nil
}
