package dto

import (
	"time"

	"github.com/noah-isme/routine-api/internal/models"
)

// GenerateRoutineRequest triggers a full routine regeneration.
type GenerateRoutineRequest struct {
	Strategy string `json:"strategy" validate:"omitempty,oneof=greedy backtracking"`
	Seed     *int64 `json:"seed"`
	Async    bool   `json:"async"`
	DryRun   bool   `json:"dryRun"`
}

// GenerateRoutineResponse summarises a generation run.
type GenerateRoutineResponse struct {
	Status               string   `json:"status" yaml:"status"`
	RunID                string   `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Strategy             string   `json:"strategy" yaml:"strategy"`
	Seed                 int64    `json:"seed" yaml:"seed"`
	FellBack             bool     `json:"fell_back" yaml:"fell_back"`
	TotalSessionsNeeded  int      `json:"total_sessions_needed" yaml:"total_sessions_needed"`
	SessionsScheduled    int      `json:"sessions_scheduled" yaml:"sessions_scheduled"`
	DroppedSessionsCount int      `json:"dropped_sessions_count" yaml:"dropped_sessions_count"`
	DroppedSessions      []string `json:"dropped_sessions" yaml:"dropped_sessions"`
	SlotsFilled          int      `json:"slots_filled" yaml:"slots_filled"`
	DryRun               bool     `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
	Message              string   `json:"message" yaml:"message"`
}

// RoutineJobStatus enumerates async generation states.
type RoutineJobStatus string

const (
	RoutineJobQueued    RoutineJobStatus = "QUEUED"
	RoutineJobRunning   RoutineJobStatus = "RUNNING"
	RoutineJobCompleted RoutineJobStatus = "COMPLETED"
	RoutineJobFailed    RoutineJobStatus = "FAILED"
)

// RoutineJobResponse reports the state of an enqueued generation.
type RoutineJobResponse struct {
	JobID      string                   `json:"job_id"`
	Status     RoutineJobStatus         `json:"status"`
	Result     *GenerateRoutineResponse `json:"result,omitempty"`
	Error      string                   `json:"error,omitempty"`
	EnqueuedAt time.Time                `json:"enqueued_at"`
	UpdatedAt  time.Time                `json:"updated_at"`
}

// RoutineQuery captures routine listing filters from the query string.
type RoutineQuery struct {
	DepartmentID string `form:"departmentId"`
	SemesterID   string `form:"semesterId"`
	TeacherID    string `form:"teacherId"`
	Day          string `form:"day"`
}

// Filter converts the query into a repository filter.
func (q RoutineQuery) Filter() models.RoutineFilter {
	return models.RoutineFilter{
		DepartmentID: q.DepartmentID,
		SemesterID:   q.SemesterID,
		TeacherID:    q.TeacherID,
		Day:          q.Day,
	}
}

// RoutineExportFormat selects the export renderer.
type RoutineExportFormat string

const (
	RoutineExportCSV RoutineExportFormat = "csv"
	RoutineExportPDF RoutineExportFormat = "pdf"
)

// RoutineExportRow is one CSV line of an exported routine.
type RoutineExportRow struct {
	Day        string `csv:"day"`
	Slot       string `csv:"slot"`
	StartTime  string `csv:"start_time"`
	EndTime    string `csv:"end_time"`
	CourseCode string `csv:"course_code"`
	CourseName string `csv:"course_name"`
	CourseType string `csv:"course_type"`
	Teacher    string `csv:"teacher"`
	Room       string `csv:"room"`
	Department string `csv:"department"`
	Semester   string `csv:"semester"`
}

// RoutineExport is a rendered routine document.
type RoutineExport struct {
	Filename    string
	ContentType string
	Content     []byte
}
