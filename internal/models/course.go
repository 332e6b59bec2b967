package models

import "time"

// CourseType distinguishes lecture courses from laboratory courses.
type CourseType string

const (
	CourseTypeTheory CourseType = "Theory"
	CourseTypeLab    CourseType = "Lab"
)

// Course is a schedulable course together with its resolved teacher, department and semester.
type Course struct {
	ID             string     `db:"id" json:"id"`
	Code           string     `db:"code" json:"code"`
	Name           string     `db:"name" json:"name"`
	CourseType     CourseType `db:"course_type" json:"course_type"`
	Credits        int        `db:"credits" json:"credits"`
	TeacherID      *string    `db:"teacher_id" json:"teacher_id,omitempty"`
	TeacherName    *string    `db:"teacher_name" json:"teacher_name,omitempty"`
	RoomNumber     string     `db:"room_number" json:"room_number"`
	DepartmentID   string     `db:"department_id" json:"department_id"`
	DepartmentName string     `db:"department_name" json:"department_name"`
	SemesterID     string     `db:"semester_id" json:"semester_id"`
	SemesterName   string     `db:"semester_name" json:"semester_name"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// IsLab reports whether the course is a laboratory course.
func (c *Course) IsLab() bool {
	return c.CourseType == CourseTypeLab
}

// HasTeacher reports whether a teacher is assigned to the course.
func (c *Course) HasTeacher() bool {
	return c.TeacherID != nil && *c.TeacherID != ""
}

// HasRoom reports whether a room is assigned to the course.
func (c *Course) HasRoom() bool {
	return c.RoomNumber != ""
}

// TimeSlot is one period of the teaching day. StartTime only orders slots.
type TimeSlot struct {
	ID        string `db:"id" json:"id"`
	Label     string `db:"label" json:"label"`
	StartTime string `db:"start_time" json:"start_time"`
	EndTime   string `db:"end_time" json:"end_time"`
}
