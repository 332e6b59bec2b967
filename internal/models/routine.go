package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// RoutineRunStatus marks the outcome of a generation run.
type RoutineRunStatus string

const (
	RoutineRunStatusCompleted RoutineRunStatus = "Completed"
)

// RoutineEntry is a persisted (day, time slot, course) cell of the weekly routine.
type RoutineEntry struct {
	ID         string    `db:"id" json:"id"`
	RunID      string    `db:"run_id" json:"run_id"`
	Day        string    `db:"day" json:"day"`
	TimeSlotID string    `db:"time_slot_id" json:"time_slot_id"`
	CourseID   string    `db:"course_id" json:"course_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// RoutineView is a routine entry joined with its course, slot and cohort details.
type RoutineView struct {
	ID             string     `db:"id" json:"id"`
	Day            string     `db:"day" json:"day"`
	TimeSlotID     string     `db:"time_slot_id" json:"time_slot_id"`
	SlotLabel      string     `db:"slot_label" json:"slot_label"`
	StartTime      string     `db:"start_time" json:"start_time"`
	EndTime        string     `db:"end_time" json:"end_time"`
	CourseID       string     `db:"course_id" json:"course_id"`
	CourseCode     string     `db:"course_code" json:"course_code"`
	CourseName     string     `db:"course_name" json:"course_name"`
	CourseType     CourseType `db:"course_type" json:"course_type"`
	TeacherID      *string    `db:"teacher_id" json:"teacher_id,omitempty"`
	TeacherName    *string    `db:"teacher_name" json:"teacher_name,omitempty"`
	RoomNumber     string     `db:"room_number" json:"room_number"`
	DepartmentID   string     `db:"department_id" json:"department_id"`
	DepartmentName string     `db:"department_name" json:"department_name"`
	SemesterID     string     `db:"semester_id" json:"semester_id"`
	SemesterName   string     `db:"semester_name" json:"semester_name"`
}

// RoutineFilter narrows routine listings to a cohort, a teacher or a day.
type RoutineFilter struct {
	DepartmentID string
	SemesterID   string
	TeacherID    string
	Day          string
}

// RoutineRun records the summary of one generation run.
type RoutineRun struct {
	ID            string           `db:"id" json:"id"`
	Strategy      string           `db:"strategy" json:"strategy"`
	Seed          int64            `db:"seed" json:"seed"`
	FellBack      bool             `db:"fell_back" json:"fell_back"`
	Status        RoutineRunStatus `db:"status" json:"status"`
	TotalSessions int              `db:"total_sessions" json:"total_sessions"`
	Scheduled     int              `db:"scheduled" json:"scheduled"`
	Dropped       int              `db:"dropped" json:"dropped"`
	SlotsFilled   int              `db:"slots_filled" json:"slots_filled"`
	Diagnostics   types.JSONText   `db:"diagnostics" json:"diagnostics"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
}
