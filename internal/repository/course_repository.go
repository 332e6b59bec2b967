package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/routine-api/internal/models"
)

// CourseRepository reads the course catalogue used for routine generation.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs a course repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// ListForScheduling returns every course resolved with its department,
// semester and optional teacher. A NULL room is returned as an empty string.
func (r *CourseRepository) ListForScheduling(ctx context.Context) ([]models.Course, error) {
	const query = `SELECT c.id, c.code, c.name, c.course_type, c.credits, c.teacher_id, t.name AS teacher_name,
COALESCE(c.room_number, '') AS room_number, c.department_id, d.name AS department_name,
c.semester_id, s.name AS semester_name, c.created_at
FROM courses c
JOIN departments d ON d.id = c.department_id
JOIN semesters s ON s.id = c.semester_id
LEFT JOIN teachers t ON t.id = c.teacher_id
ORDER BY c.created_at ASC, c.id ASC`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query); err != nil {
		return nil, fmt.Errorf("list courses for scheduling: %w", err)
	}
	return courses, nil
}
