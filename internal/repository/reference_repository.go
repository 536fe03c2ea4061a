package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ReferenceRepository answers exists-by-id questions for the entities a
// timetable references. The entities themselves are managed elsewhere.
type ReferenceRepository struct {
	db *sqlx.DB
}

// NewReferenceRepository constructs a ReferenceRepository.
func NewReferenceRepository(db *sqlx.DB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

func (r *ReferenceRepository) exists(ctx context.Context, table, id string) (bool, error) {
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE id = $1 LIMIT 1", table)
	var found int
	if err := r.db.GetContext(ctx, &found, query, id); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check %s id: %w", table, err)
	}
	return true, nil
}

// TeacherExists reports whether a teacher row exists.
func (r *ReferenceRepository) TeacherExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, "teachers", id)
}

// ClassroomExists reports whether a classroom row exists.
func (r *ReferenceRepository) ClassroomExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, "classrooms", id)
}

// SubjectExists reports whether a subject row exists.
func (r *ReferenceRepository) SubjectExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, "subjects", id)
}

// ClassExists reports whether a class row exists.
func (r *ReferenceRepository) ClassExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, "classes", id)
}

// ClassGroupExists reports whether a class group row exists.
func (r *ReferenceRepository) ClassGroupExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, "class_groups", id)
}

// TermExists reports whether a term row exists.
func (r *ReferenceRepository) TermExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, "terms", id)
}
