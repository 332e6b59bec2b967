package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/routine-api/internal/dto"
	"github.com/noah-isme/routine-api/internal/models"
	"github.com/noah-isme/routine-api/internal/scheduler"
	appErrors "github.com/noah-isme/routine-api/pkg/errors"
)

type courseReaderStub struct {
	courses []models.Course
	err     error
}

func (s *courseReaderStub) ListForScheduling(ctx context.Context) ([]models.Course, error) {
	return s.courses, s.err
}

type slotReaderStub struct {
	slots []models.TimeSlot
	err   error
}

func (s *slotReaderStub) ListOrdered(ctx context.Context) ([]models.TimeSlot, error) {
	return s.slots, s.err
}

type routineStoreStub struct {
	locked    int
	deleted   int
	entries   []models.RoutineEntry
	views     []models.RoutineView
	listCalls int
	listDays  []string
	bulkErr   error
	listErr   error
}

func (s *routineStoreStub) Lock(ctx context.Context, exec sqlx.ExtContext) error {
	s.locked++
	return nil
}

func (s *routineStoreStub) DeleteAll(ctx context.Context, exec sqlx.ExtContext) (int64, error) {
	s.deleted++
	return int64(len(s.entries)), nil
}

func (s *routineStoreStub) BulkCreate(ctx context.Context, exec sqlx.ExtContext, entries []models.RoutineEntry) error {
	if s.bulkErr != nil {
		return s.bulkErr
	}
	s.entries = append([]models.RoutineEntry(nil), entries...)
	return nil
}

func (s *routineStoreStub) List(ctx context.Context, filter models.RoutineFilter, days []string) ([]models.RoutineView, error) {
	s.listCalls++
	s.listDays = days
	return s.views, s.listErr
}

type runStoreStub struct {
	created   []*models.RoutineRun
	latest    *models.RoutineRun
	latestErr error
}

func (s *runStoreStub) Create(ctx context.Context, exec sqlx.ExtContext, run *models.RoutineRun) error {
	s.created = append(s.created, run)
	return nil
}

func (s *runStoreStub) Latest(ctx context.Context) (*models.RoutineRun, error) {
	return s.latest, s.latestErr
}

// memoryCacheRepo is an in-process stand-in for the Redis cache repository.
type memoryCacheRepo struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{items: make(map[string][]byte)}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	raw, ok := m.items[key]
	m.mu.Unlock()
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.items[key] = raw
	m.mu.Unlock()
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.items {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.items, key)
		}
	}
	return nil
}

type txMock struct {
	db *sqlx.DB
}

func (t *txMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

func newTxMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &txMock{db: sqlx.NewDb(db, "sqlmock")}, mock
}

type routineFixture struct {
	service *RoutineService
	courses *courseReaderStub
	slots   *slotReaderStub
	store   *routineStoreStub
	runs    *runStoreStub
	cache   *memoryCacheRepo
	metrics *MetricsService
	mock    sqlmock.Sqlmock
}

func newRoutineFixture(t *testing.T, cfg RoutineServiceConfig) *routineFixture {
	t.Helper()
	tx, mock := newTxMock(t)
	f := &routineFixture{
		courses: &courseReaderStub{courses: sampleCourses()},
		slots:   &slotReaderStub{slots: sampleSlots(4)},
		store:   &routineStoreStub{},
		runs:    &runStoreStub{},
		cache:   newMemoryCacheRepo(),
		metrics: NewMetricsService(),
		mock:    mock,
	}
	cache := NewCacheService(f.cache, f.metrics, time.Minute, nil, true)
	f.service = NewRoutineService(f.courses, f.slots, f.store, f.runs, tx, cache, f.metrics, nil, nil, cfg)
	f.service.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return f
}

func sampleCourses() []models.Course {
	teacher := "teacher-1"
	teacherName := "Dr. Rahman"
	return []models.Course{
		{ID: "c-1", Code: "CSE101", Name: "Programming", CourseType: models.CourseTypeTheory, Credits: 2,
			TeacherID: &teacher, TeacherName: &teacherName, RoomNumber: "R101",
			DepartmentID: "d-1", DepartmentName: "CSE", SemesterID: "s-1", SemesterName: "1st"},
		{ID: "c-2", Code: "CSE102", Name: "Programming Lab", CourseType: models.CourseTypeLab, Credits: 2,
			RoomNumber: "LAB1", DepartmentID: "d-1", DepartmentName: "CSE", SemesterID: "s-1", SemesterName: "1st"},
	}
}

func sampleSlots(n int) []models.TimeSlot {
	starts := []string{"08:00", "09:00", "10:00", "11:00", "12:00", "13:00"}
	slots := make([]models.TimeSlot, 0, n)
	for i := 0; i < n; i++ {
		slots = append(slots, models.TimeSlot{
			ID:        "ts-" + string(rune('1'+i)),
			Label:     string(rune('1'+i)) + "th",
			StartTime: starts[i],
			EndTime:   strings.Replace(starts[i], ":00", ":50", 1),
		})
	}
	return slots
}

func int64Ptr(v int64) *int64 { return &v }

func TestRoutineServiceGenerateCommitsRoutine(t *testing.T) {
	f := newRoutineFixture(t, RoutineServiceConfig{Enabled: true})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	resp, err := f.service.Generate(context.Background(), dto.GenerateRoutineRequest{Seed: int64Ptr(42)})
	require.NoError(t, err)

	assert.Equal(t, "Completed", resp.Status)
	assert.Equal(t, "greedy", resp.Strategy)
	assert.EqualValues(t, 42, resp.Seed)
	assert.Equal(t, 3, resp.TotalSessionsNeeded)
	assert.Equal(t, 3, resp.SessionsScheduled)
	assert.Equal(t, 0, resp.DroppedSessionsCount)
	assert.Empty(t, resp.DroppedSessions)
	assert.Equal(t, 4, resp.SlotsFilled)
	assert.Equal(t, routineGeneratedMsg, resp.Message)
	assert.NotEmpty(t, resp.RunID)

	assert.Equal(t, 1, f.store.locked)
	assert.Equal(t, 1, f.store.deleted)
	require.Len(t, f.store.entries, 4)
	for _, entry := range f.store.entries {
		assert.Equal(t, resp.RunID, entry.RunID)
	}
	require.Len(t, f.runs.created, 1)
	run := f.runs.created[0]
	assert.Equal(t, resp.RunID, run.ID)
	assert.JSONEq(t, `[]`, run.Diagnostics.String())
	assert.Equal(t, 4, run.SlotsFilled)

	assert.EqualValues(t, 1, f.metrics.Snapshot().RoutineRuns)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRoutineServiceGenerateReportsDroppedSessions(t *testing.T) {
	f := newRoutineFixture(t, RoutineServiceConfig{Enabled: true, Days: []string{"Sunday"}})
	f.slots.slots = sampleSlots(1)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	resp, err := f.service.Generate(context.Background(), dto.GenerateRoutineRequest{Seed: int64Ptr(1)})
	require.NoError(t, err)

	assert.Equal(t, "Completed", resp.Status)
	assert.Equal(t, resp.TotalSessionsNeeded, resp.SessionsScheduled+resp.DroppedSessionsCount)
	require.NotZero(t, resp.DroppedSessionsCount)
	assert.Contains(t, strings.Join(resp.DroppedSessions, "\n"), "Programming Lab (Round 1) - Failed. Reasons: {Not Enough Slots: 1}")

	var diagnostics []string
	require.NoError(t, json.Unmarshal(f.runs.created[0].Diagnostics, &diagnostics))
	assert.Equal(t, resp.DroppedSessions, diagnostics)
}

func TestRoutineServiceGenerateIsDeterministicForSeed(t *testing.T) {
	f := newRoutineFixture(t, RoutineServiceConfig{Enabled: true, Days: []string{"Sunday", "Monday"}})
	f.slots.slots = sampleSlots(2)

	first, err := f.service.Generate(context.Background(), dto.GenerateRoutineRequest{Seed: int64Ptr(9), DryRun: true})
	require.NoError(t, err)
	second, err := f.service.Generate(context.Background(), dto.GenerateRoutineRequest{Seed: int64Ptr(9), DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRoutineServiceGenerateRejectsRequests(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		f := newRoutineFixture(t, RoutineServiceConfig{Enabled: false})
		_, err := f.service.Generate(context.Background(), dto.GenerateRoutineRequest{})
		assert.Equal(t, appErrors.ErrSchedulerDisabled.Code, appErrors.FromError(err).Code)
	})

	t.Run("unknown strategy", func(t *testing.T) {
		f := newRoutineFixture(t, RoutineServiceConfig{Enabled: true})
		_, err := f.service.Generate(context.Background(), dto.GenerateRoutineRequest{Strategy: "annealing"})
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	})

	t.Run("no time slots", func(t *testing.T) {
		f := newRoutineFixture(t, RoutineServiceConfig{Enabled: true})
		f.slots.slots = nil
		_, err := f.service.Generate(context.Background(), dto.GenerateRoutineRequest{})
		assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
		assert.ErrorIs(t, err, scheduler.ErrNoTimeSlots)
		assert.Zero(t, f.store.deleted)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("negative credits", func(t *testing.T) {
		f := newRoutineFixture(t, RoutineServiceConfig{Enabled: true})
		f.courses.courses[0].Credits = -1
		_, err := f.service.Generate(context.Background(), dto.GenerateRoutineRequest{})
		assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
		assert.Zero(t, f.store.deleted)
	})

	t.Run("course load failure", func(t *testing.T) {
		f := newRoutineFixture(t, RoutineServiceConfig{Enabled: true})
		f.courses.err = errors.New("db down")
		_, err := f.service.Generate(context.Background(), dto.GenerateRoutineRequest{})
		assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
		assert.EqualValues(t, 1, f.metrics.Snapshot().RoutineFailures)
	})
}

func TestRoutineServiceGenerateDryRunSkipsPersistence(t *testing.T) {
	f := newRoutineFixture(t, RoutineServiceConfig{Enabled: true, Strategy: scheduler.StrategyBacktracking})

	resp, err := f.service.Generate(context.Background(), dto.GenerateRoutineRequest{DryRun: true, Seed: int64Ptr(3)})
	require.NoError(t, err)
	assert.True(t, resp.DryRun)
	assert.Empty(t, resp.RunID)
	assert.Equal(t, "backtracking", resp.Strategy)
	assert.Zero(t, f.store.locked)
	assert.Empty(t, f.runs.created)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRoutineServiceGenerateRollsBackOnStoreFailure(t *testing.T) {
	f := newRoutineFixture(t, RoutineServiceConfig{Enabled: true})
	f.store.bulkErr = errors.New("insert failed")
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.service.Generate(context.Background(), dto.GenerateRoutineRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
	assert.Empty(t, f.runs.created)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRoutineServiceListCachesAndGenerateInvalidates(t *testing.T) {
	f := newRoutineFixture(t, RoutineServiceConfig{Enabled: true})
	f.store.views = []models.RoutineView{{ID: "r-1", Day: "Sunday", CourseName: "Programming"}}
	filter := models.RoutineFilter{DepartmentID: "d-1", SemesterID: "s-1"}

	views, hit, err := f.service.List(context.Background(), filter)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, views, 1)

	views, hit, err = f.service.List(context.Background(), filter)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "Programming", views[0].CourseName)
	assert.Equal(t, 1, f.store.listCalls)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	_, err = f.service.Generate(context.Background(), dto.GenerateRoutineRequest{})
	require.NoError(t, err)

	_, hit, err = f.service.List(context.Background(), filter)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, f.store.listCalls)
}

func TestRoutineServiceListRejectsUnknownDay(t *testing.T) {
	f := newRoutineFixture(t, RoutineServiceConfig{Enabled: true})

	_, _, err := f.service.List(context.Background(), models.RoutineFilter{Day: "Saturday"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, _, err = f.service.List(context.Background(), models.RoutineFilter{Day: "monday"})
	assert.NoError(t, err)
}

func TestRoutineServiceListUsesConfiguredWeek(t *testing.T) {
	week := []string{"Saturday", "Sunday", "Monday", "Tuesday", "Wednesday", "Thursday"}
	f := newRoutineFixture(t, RoutineServiceConfig{Enabled: true, Days: week})

	_, _, err := f.service.List(context.Background(), models.RoutineFilter{Day: "saturday"})
	require.NoError(t, err)
	assert.Equal(t, week, f.store.listDays)

	f = newRoutineFixture(t, RoutineServiceConfig{Enabled: true})
	_, _, err = f.service.List(context.Background(), models.RoutineFilter{})
	require.NoError(t, err)
	assert.Equal(t, scheduler.DefaultDays, f.store.listDays)
}

func TestRoutineServiceLatestRun(t *testing.T) {
	f := newRoutineFixture(t, RoutineServiceConfig{Enabled: true})
	f.runs.latestErr = sql.ErrNoRows

	_, err := f.service.LatestRun(context.Background())
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	f.runs.latestErr = nil
	f.runs.latest = &models.RoutineRun{ID: "run-9", Strategy: "greedy"}
	run, err := f.service.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-9", run.ID)
}

func TestRoutineServiceExport(t *testing.T) {
	f := newRoutineFixture(t, RoutineServiceConfig{Enabled: true})
	teacherName := "Dr. Rahman"
	f.store.views = []models.RoutineView{
		{ID: "r-1", Day: "Sunday", TimeSlotID: "ts-1", SlotLabel: "1th", StartTime: "08:00", EndTime: "08:50",
			CourseCode: "CSE101", CourseName: "Programming", CourseType: models.CourseTypeTheory, TeacherName: &teacherName,
			RoomNumber: "R101", DepartmentName: "CSE", SemesterName: "1st"},
	}

	csvExport, err := f.service.Export(context.Background(), models.RoutineFilter{}, dto.RoutineExportCSV)
	require.NoError(t, err)
	assert.Equal(t, "routine-20260301.csv", csvExport.Filename)
	assert.Equal(t, "text/csv", csvExport.ContentType)
	content := string(csvExport.Content)
	assert.True(t, strings.HasPrefix(content, "day,slot,start_time,end_time,course_code,course_name,course_type,teacher,room,department,semester"))
	assert.Contains(t, content, "Sunday,1th,08:00,08:50,CSE101,Programming,Theory,Dr. Rahman,R101,CSE,1st")

	pdfExport, err := f.service.Export(context.Background(), models.RoutineFilter{DepartmentID: "d-1"}, "PDF")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", pdfExport.ContentType)
	assert.True(t, strings.HasPrefix(string(pdfExport.Content), "%PDF"))

	_, err = f.service.Export(context.Background(), models.RoutineFilter{}, "xlsx")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRoutineServiceBuildGridPlacesCells(t *testing.T) {
	f := newRoutineFixture(t, RoutineServiceConfig{Enabled: true, Days: []string{"Sunday", "Monday"}})
	slots := sampleSlots(2)
	views := []models.RoutineView{
		{Day: "Monday", TimeSlotID: "ts-2", CourseCode: "CSE101", RoomNumber: "R101", DepartmentName: "CSE", SemesterName: "1st"},
		{Day: "Monday", TimeSlotID: "ts-2", CourseCode: "EEE201", DepartmentName: "EEE", SemesterName: "3rd"},
		{Day: "Friday", TimeSlotID: "ts-1", CourseCode: "IGNORED"},
	}

	grid := f.service.buildGrid(models.RoutineFilter{}, slots, views)
	require.Len(t, grid.Rows, 2)
	assert.Equal(t, "Monday", grid.Rows[1].Label)
	assert.Empty(t, grid.Rows[0].Cells[0])
	assert.Equal(t, "CSE101 (R101)\nCSE 1st\n\nEEE201\nEEE 3rd", grid.Rows[1].Cells[1])
	assert.Equal(t, "Class Routine", grid.Title)
}
