package cache

import (
	"context"

	"github.com/coursedesk/sales-assistant/internal/domain/course"
)

var _ course.Repository = (*CourseRepository)(nil)

// CourseRepository decorates a course.Repository with read-through caching.
// Course data changes rarely, so single-course and full-list reads are cached;
// batch lookups assemble from per-course entries and fall back to the
// underlying repository for the misses.
type CourseRepository struct {
	inner course.Repository
	cache *Cache
}

// NewCourseRepository wraps inner with the given cache.
func NewCourseRepository(inner course.Repository, cache *Cache) *CourseRepository {
	return &CourseRepository{inner: inner, cache: cache}
}

// List returns all active courses, served from cache when possible.
func (r *CourseRepository) List(ctx context.Context) ([]course.Course, error) {
	var cached []course.Course
	if r.cache.Get(ctx, "list", &cached) {
		return cached, nil
	}

	courses, err := r.inner.List(ctx)
	if err != nil {
		return nil, err
	}
	r.cache.Set(ctx, "list", courses)
	return courses, nil
}

// GetByID returns a single course, served from cache when possible.
func (r *CourseRepository) GetByID(ctx context.Context, id string) (*course.Course, error) {
	var cached course.Course
	if r.cache.Get(ctx, id, &cached) {
		return &cached, nil
	}

	crs, err := r.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.Set(ctx, id, crs)
	return crs, nil
}

// GetByIDs returns the courses matching ids. Cached entries are used where
// present; the rest come from the underlying repository in one batch. Ids
// that match nothing are silently absent, mirroring the inner contract.
func (r *CourseRepository) GetByIDs(ctx context.Context, ids []string) ([]course.Course, error) {
	found := make(map[string]course.Course, len(ids))
	var missing []string
	for _, id := range ids {
		var cached course.Course
		if r.cache.Get(ctx, id, &cached) {
			found[id] = cached
		} else {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		fetched, err := r.inner.GetByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, crs := range fetched {
			found[crs.ID] = crs
			r.cache.Set(ctx, crs.ID, crs)
		}
	}

	out := make([]course.Course, 0, len(found))
	for _, id := range ids {
		if crs, ok := found[id]; ok {
			out = append(out, crs)
			delete(found, id)
		}
	}
	return out, nil
}
