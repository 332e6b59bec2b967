package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/routine-api/internal/models"
)

var weekdays = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday"}

func TestRoutineRepositoryLockDeleteInsertInTx(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRoutineRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).
		WithArgs(routineLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM routines")).
		WillReturnResult(sqlmock.NewResult(0, 12))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO routines")).
		WithArgs(sqlmock.AnyArg(), "run-1", "Sunday", "ts-1", "c-1", sqlmock.AnyArg(),
			sqlmock.AnyArg(), "run-1", "Sunday", "ts-2", "c-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := db.BeginTxx(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, repo.Lock(ctx, tx))
	removed, err := repo.DeleteAll(ctx, tx)
	require.NoError(t, err)
	assert.EqualValues(t, 12, removed)

	entries := []models.RoutineEntry{
		{RunID: "run-1", Day: "Sunday", TimeSlotID: "ts-1", CourseID: "c-1"},
		{RunID: "run-1", Day: "Sunday", TimeSlotID: "ts-2", CourseID: "c-1"},
	}
	require.NoError(t, repo.BulkCreate(ctx, tx, entries))
	assert.NotEmpty(t, entries[0].ID)
	assert.False(t, entries[1].CreatedAt.IsZero())

	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoutineRepositoryBulkCreateEmpty(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRoutineRepository(db)

	require.NoError(t, repo.BulkCreate(context.Background(), nil, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func routineViewColumns() []string {
	return []string{"id", "day", "time_slot_id", "slot_label", "start_time", "end_time", "course_id", "course_code", "course_name", "course_type",
		"teacher_id", "teacher_name", "room_number", "department_id", "department_name", "semester_id", "semester_name"}
}

func TestRoutineRepositoryListWithFilter(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRoutineRepository(db)

	rows := sqlmock.NewRows(routineViewColumns()).
		AddRow("r-1", "Sunday", "ts-1", "1st", "08:00", "08:50", "c-1", "CSE101", "Programming", "Theory",
			"t-1", "Dr. Rahman", "R101", "d-1", "CSE", "s-1", "1st")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE c.department_id = $1 AND c.semester_id = $2 AND LOWER(r.day) = $3 ORDER BY array_position($4::text[], r.day)")).
		WithArgs("d-1", "s-1", "sunday", pq.Array(weekdays)).
		WillReturnRows(rows)

	views, err := repo.List(context.Background(), models.RoutineFilter{DepartmentID: "d-1", SemesterID: "s-1", Day: "Sunday"}, weekdays)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Programming", views[0].CourseName)
	require.NotNil(t, views[0].TeacherName)
	assert.Equal(t, "Dr. Rahman", *views[0].TeacherName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoutineRepositoryListByTeacher(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRoutineRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE c.teacher_id = $1 ORDER BY array_position($2::text[], r.day)")).
		WithArgs("t-9", pq.Array(weekdays)).
		WillReturnRows(sqlmock.NewRows(routineViewColumns()))

	views, err := repo.List(context.Background(), models.RoutineFilter{TeacherID: "t-9"}, weekdays)
	require.NoError(t, err)
	assert.Empty(t, views)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoutineRepositoryListFollowsConfiguredWeek(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRoutineRepository(db)
	week := []string{"Saturday", "Sunday", "Monday", "Tuesday", "Wednesday", "Thursday"}

	rows := sqlmock.NewRows(routineViewColumns()).
		AddRow("r-1", "Saturday", "ts-1", "1st", "08:00", "08:50", "c-1", "CSE101", "Programming", "Theory",
			nil, nil, "", "d-1", "CSE", "s-1", "1st")
	mock.ExpectQuery(regexp.QuoteMeta("FROM routines r")).
		WithArgs(pq.Array(week)).
		WillReturnRows(rows)

	views, err := repo.List(context.Background(), models.RoutineFilter{}, week)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Saturday", views[0].Day)
	assert.Nil(t, views[0].TeacherName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoutineRunRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRoutineRunRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO routine_runs")).
		WithArgs(sqlmock.AnyArg(), "greedy", int64(42), false, "Completed", 10, 9, 1, 12, types.JSONText(`[]`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	run := &models.RoutineRun{Strategy: "greedy", Seed: 42, TotalSessions: 10, Scheduled: 9, Dropped: 1, SlotsFilled: 12}
	require.NoError(t, repo.Create(context.Background(), nil, run))
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, models.RoutineRunStatusCompleted, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoutineRunRepositoryLatest(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRoutineRunRepository(db)

	rows := sqlmock.NewRows([]string{"id", "strategy", "seed", "fell_back", "status", "total_sessions", "scheduled", "dropped", "slots_filled", "diagnostics", "created_at"}).
		AddRow("run-1", "backtracking", 7, true, "Completed", 4, 3, 1, 5, []byte(`["Physics Lab (Round 2) - Failed. Reasons: {Batch Busy: 2}"]`), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM routine_runs ORDER BY created_at DESC LIMIT 1")).WillReturnRows(rows)

	run, err := repo.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.True(t, run.FellBack)
	assert.Contains(t, run.Diagnostics.String(), "Physics Lab")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoutineRunRepositoryLatestEmpty(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRoutineRunRepository(db)

	mock.ExpectQuery("FROM routine_runs").WillReturnError(sql.ErrNoRows)

	_, err := repo.Latest(context.Background())
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
