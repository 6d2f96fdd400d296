package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coursedesk/sales-assistant/internal/domain/course"
)

const (
	listCoursesSQL = `SELECT id, name, category, original_price, current_price, status
		FROM courses WHERE status = 'active' ORDER BY id`

	getCourseByIDSQL = `SELECT id, name, category, original_price, current_price, status
		FROM courses WHERE id = $1`

	getCoursesByIDsSQL = `SELECT id, name, category, original_price, current_price, status
		FROM courses WHERE id = ANY($1)`

	upsertCourseSQL = `INSERT INTO courses (id, name, category, original_price, current_price, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			original_price = EXCLUDED.original_price,
			current_price = EXCLUDED.current_price,
			status = EXCLUDED.status,
			updated_at = now()`
)

var _ course.Repository = (*CourseRepository)(nil)

// CourseRepository implements course.Repository backed by PostgreSQL.
type CourseRepository struct {
	pool *pgxpool.Pool
}

// NewCourseRepository returns a CourseRepository that uses the given pool.
func NewCourseRepository(pool *pgxpool.Pool) *CourseRepository {
	return &CourseRepository{pool: pool}
}

// List returns all active courses ordered by id.
func (r *CourseRepository) List(ctx context.Context) ([]course.Course, error) {
	rows, err := r.pool.Query(ctx, listCoursesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing courses: %w", err)
	}
	return pgx.CollectRows(rows, scanCourse)
}

// GetByID returns a single course by its identifier.
func (r *CourseRepository) GetByID(ctx context.Context, id string) (*course.Course, error) {
	rows, err := r.pool.Query(ctx, getCourseByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting course %q: %w", id, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCourse)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, course.ErrNotFound
		}
		return nil, fmt.Errorf("getting course %q: %w", id, err)
	}
	return &c, nil
}

// GetByIDs returns courses matching any of the given ids.
func (r *CourseRepository) GetByIDs(ctx context.Context, ids []string) ([]course.Course, error) {
	rows, err := r.pool.Query(ctx, getCoursesByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting courses by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanCourse)
}

// Upsert inserts or updates a course by id. Intended for seeding.
func (r *CourseRepository) Upsert(ctx context.Context, c course.Course) error {
	_, err := r.pool.Exec(ctx, upsertCourseSQL,
		c.ID, c.Name, c.Category, c.OriginalPrice, c.CurrentPrice, string(c.Status),
	)
	if err != nil {
		return fmt.Errorf("upserting course %q: %w", c.ID, err)
	}
	return nil
}

func scanCourse(row pgx.CollectableRow) (course.Course, error) {
	var (
		c      course.Course
		status string
	)
	err := row.Scan(&c.ID, &c.Name, &c.Category, &c.OriginalPrice, &c.CurrentPrice, &status)
	c.Status = course.Status(status)
	return c, err
}
