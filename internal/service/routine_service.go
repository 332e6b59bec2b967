package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/routine-api/internal/dto"
	"github.com/noah-isme/routine-api/internal/models"
	"github.com/noah-isme/routine-api/internal/scheduler"
	appErrors "github.com/noah-isme/routine-api/pkg/errors"
	"github.com/noah-isme/routine-api/pkg/export"
)

const (
	routineViewCachePrefix = "routine:view"
	routineRunCacheKey     = "routine:run:latest"
	routineGeneratedMsg    = "Routine generated with Credit and Lab Constraints."
)

type routineCourseReader interface {
	ListForScheduling(ctx context.Context) ([]models.Course, error)
}

type routineSlotReader interface {
	ListOrdered(ctx context.Context) ([]models.TimeSlot, error)
}

type routineStore interface {
	Lock(ctx context.Context, exec sqlx.ExtContext) error
	DeleteAll(ctx context.Context, exec sqlx.ExtContext) (int64, error)
	BulkCreate(ctx context.Context, exec sqlx.ExtContext, entries []models.RoutineEntry) error
	List(ctx context.Context, filter models.RoutineFilter, days []string) ([]models.RoutineView, error)
}

type routineRunStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, run *models.RoutineRun) error
	Latest(ctx context.Context) (*models.RoutineRun, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// RoutineServiceConfig governs routine generation and views.
type RoutineServiceConfig struct {
	Enabled        bool
	Strategy       scheduler.Strategy
	BacktrackLimit int
	// Seed fixes the shuffle for every run when non-zero.
	Seed        int64
	Days        []string
	CacheTTL    time.Duration
	ExportTitle string
}

// RoutineService generates, stores and renders the weekly class routine.
type RoutineService struct {
	courses   routineCourseReader
	slots     routineSlotReader
	routines  routineStore
	runs      routineRunStore
	tx        txProvider
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       RoutineServiceConfig
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	now       func() time.Time
}

// NewRoutineService wires routine dependencies. cache and metrics may be nil.
func NewRoutineService(
	courses routineCourseReader,
	slots routineSlotReader,
	routines routineStore,
	runs routineRunStore,
	tx txProvider,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg RoutineServiceConfig,
) *RoutineService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Strategy == "" {
		cfg.Strategy = scheduler.StrategyGreedy
	}
	if len(cfg.Days) == 0 {
		cfg.Days = scheduler.DefaultDays
	}
	if cfg.ExportTitle == "" {
		cfg.ExportTitle = "Class Routine"
	}
	return &RoutineService{
		courses:   courses,
		slots:     slots,
		routines:  routines,
		runs:      runs,
		tx:        tx,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Prepare checks a generation request and rewrites its strategy to the
// canonical name. An empty strategy stays empty and resolves to the
// configured default at run time.
func (s *RoutineService) Prepare(req dto.GenerateRoutineRequest) (dto.GenerateRoutineRequest, error) {
	if !s.cfg.Enabled {
		return req, appErrors.ErrSchedulerDisabled
	}
	if req.Strategy != "" {
		parsed, err := scheduler.ParseStrategy(req.Strategy)
		if err != nil {
			return req, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}
		req.Strategy = string(parsed)
	}
	if err := s.validator.Struct(req); err != nil {
		return req, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid routine generation payload")
	}
	return req, nil
}

// Generate regenerates the whole routine from the current catalogue. The
// placement work happens in memory; the stored routine is replaced in a
// single transaction only once a result exists.
func (s *RoutineService) Generate(ctx context.Context, req dto.GenerateRoutineRequest) (*dto.GenerateRoutineResponse, error) {
	req, err := s.Prepare(req)
	if err != nil {
		return nil, err
	}

	strategy := s.cfg.Strategy
	if req.Strategy != "" {
		strategy = scheduler.Strategy(req.Strategy)
	}
	seed := s.resolveSeed(req.Seed)
	start := time.Now()

	courses, err := s.courses.ListForScheduling(ctx)
	if err != nil {
		s.metrics.ObserveRoutineRun(string(strategy), RoutineOutcomeFailed, time.Since(start), 0, 0, false)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load courses")
	}
	slots, err := s.slots.ListOrdered(ctx)
	if err != nil {
		s.metrics.ObserveRoutineRun(string(strategy), RoutineOutcomeFailed, time.Since(start), 0, 0, false)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load time slots")
	}

	s.logger.Info("routine generation started",
		zap.String("strategy", string(strategy)),
		zap.Int64("seed", seed),
		zap.Int("courses", len(courses)),
		zap.Int("time_slots", len(slots)),
		zap.Bool("dry_run", req.DryRun),
	)

	engine := scheduler.NewEngine(scheduler.Config{Days: s.cfg.Days, Strategy: strategy, BacktrackLimit: s.cfg.BacktrackLimit})
	result, err := engine.Generate(courses, slots, rand.New(rand.NewSource(seed)))
	if err != nil {
		s.metrics.ObserveRoutineRun(string(strategy), RoutineOutcomeFailed, time.Since(start), 0, 0, false)
		if errors.Is(err, scheduler.ErrNoTimeSlots) || errors.Is(err, scheduler.ErrNegativeCredits) {
			return nil, appErrors.Wrap(err, appErrors.ErrPreconditionFailed.Code, appErrors.ErrPreconditionFailed.Status, err.Error())
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate routine")
	}

	resp := summarise(result, seed)
	if req.DryRun {
		resp.DryRun = true
		s.metrics.ObserveRoutineRun(string(strategy), RoutineOutcomeDryRun, time.Since(start), resp.SessionsScheduled, resp.DroppedSessionsCount, result.FellBack)
		return resp, nil
	}

	run := &models.RoutineRun{
		ID:            uuid.NewString(),
		Strategy:      string(result.Strategy),
		Seed:          seed,
		FellBack:      result.FellBack,
		Status:        models.RoutineRunStatusCompleted,
		TotalSessions: result.Total,
		Scheduled:     result.Scheduled,
		Dropped:       len(result.Dropped),
		SlotsFilled:   len(result.Placements),
		CreatedAt:     s.now(),
	}
	if err := s.commit(ctx, run, result, resp.DroppedSessions); err != nil {
		s.metrics.ObserveRoutineRun(string(strategy), RoutineOutcomeFailed, time.Since(start), 0, 0, false)
		s.logger.Error("routine commit failed", zap.String("run_id", run.ID), zap.Error(err))
		return nil, err
	}
	resp.RunID = run.ID

	if err := s.cache.Invalidate(ctx, routineViewCachePrefix+":*"); err != nil {
		s.logger.Warn("failed to invalidate routine views", zap.Error(err))
	}
	if err := s.cache.Invalidate(ctx, routineRunCacheKey); err != nil {
		s.logger.Warn("failed to invalidate latest run", zap.Error(err))
	}

	elapsed := time.Since(start)
	s.metrics.ObserveRoutineRun(string(strategy), RoutineOutcomeCompleted, elapsed, resp.SessionsScheduled, resp.DroppedSessionsCount, result.FellBack)
	s.logger.Info("routine generation finished",
		zap.String("run_id", run.ID),
		zap.String("strategy", string(result.Strategy)),
		zap.Bool("fell_back", result.FellBack),
		zap.Int("steps", result.Steps),
		zap.Int("total", result.Total),
		zap.Int("scheduled", result.Scheduled),
		zap.Int("dropped", len(result.Dropped)),
		zap.Duration("elapsed", elapsed),
	)
	return resp, nil
}

func (s *RoutineService) commit(ctx context.Context, run *models.RoutineRun, result scheduler.Result, diagnostics []string) (err error) {
	if s.tx == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	payload, err := json.Marshal(diagnostics)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode run diagnostics")
	}
	run.Diagnostics = types.JSONText(payload)

	entries := make([]models.RoutineEntry, 0, len(result.Placements))
	for _, placement := range result.Placements {
		entries = append(entries, models.RoutineEntry{
			RunID:      run.ID,
			Day:        placement.Day,
			TimeSlotID: placement.Slot.ID,
			CourseID:   placement.Course.ID,
			CreatedAt:  run.CreatedAt,
		})
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.routines.Lock(ctx, tx); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock routine")
	}
	removed, err := s.routines.DeleteAll(ctx, tx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear previous routine")
	}
	if err = s.routines.BulkCreate(ctx, tx, entries); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store routine")
	}
	if err = s.runs.Create(ctx, tx, run); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record routine run")
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit routine transaction")
	}

	s.logger.Debug("routine replaced", zap.String("run_id", run.ID), zap.Int64("removed", removed), zap.Int("inserted", len(entries)))
	return nil
}

// List returns the stored routine narrowed by filter. The boolean reports a cache hit.
func (s *RoutineService) List(ctx context.Context, filter models.RoutineFilter) ([]models.RoutineView, bool, error) {
	if filter.Day != "" && !s.knownDay(filter.Day) {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("day must be one of %s", strings.Join(s.cfg.Days, ", ")))
	}

	key := cacheKey(routineViewCachePrefix, filter.DepartmentID, filter.SemesterID, filter.TeacherID, filter.Day)
	var cached []models.RoutineView
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, true, nil
	}

	views, err := s.routines.List(ctx, filter, s.cfg.Days)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list routine")
	}
	if views == nil {
		views = []models.RoutineView{}
	}
	_ = s.cache.Set(ctx, key, views, s.cfg.CacheTTL)
	return views, false, nil
}

// LatestRun returns the most recent generation run.
func (s *RoutineService) LatestRun(ctx context.Context) (*models.RoutineRun, error) {
	var cached models.RoutineRun
	if hit, err := s.cache.Get(ctx, routineRunCacheKey, &cached); err == nil && hit {
		return &cached, nil
	}

	run, err := s.runs.Latest(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "routine has not been generated yet")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load latest routine run")
	}
	_ = s.cache.Set(ctx, routineRunCacheKey, run, s.cfg.CacheTTL)
	return run, nil
}

// Export renders the filtered routine as CSV rows or as a day-by-slot PDF grid.
func (s *RoutineService) Export(ctx context.Context, filter models.RoutineFilter, format dto.RoutineExportFormat) (*dto.RoutineExport, error) {
	format = dto.RoutineExportFormat(strings.ToLower(string(format)))
	if format == "" {
		format = dto.RoutineExportCSV
	}
	if format != dto.RoutineExportCSV && format != dto.RoutineExportPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	views, _, err := s.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	stamp := s.now().Format("20060102")

	if format == dto.RoutineExportCSV {
		rows := make([]dto.RoutineExportRow, 0, len(views))
		for _, view := range views {
			rows = append(rows, dto.RoutineExportRow{
				Day:        view.Day,
				Slot:       view.SlotLabel,
				StartTime:  view.StartTime,
				EndTime:    view.EndTime,
				CourseCode: view.CourseCode,
				CourseName: view.CourseName,
				CourseType: string(view.CourseType),
				Teacher:    derefString(view.TeacherName),
				Room:       view.RoomNumber,
				Department: view.DepartmentName,
				Semester:   view.SemesterName,
			})
		}
		content, err := s.csv.Render(rows)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render routine csv")
		}
		return &dto.RoutineExport{Filename: "routine-" + stamp + ".csv", ContentType: "text/csv", Content: content}, nil
	}

	slots, err := s.slots.ListOrdered(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load time slots")
	}
	if len(slots) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no time slots configured")
	}
	content, err := s.pdf.Render(s.buildGrid(filter, slots, views))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render routine pdf")
	}
	return &dto.RoutineExport{Filename: "routine-" + stamp + ".pdf", ContentType: "application/pdf", Content: content}, nil
}

func (s *RoutineService) buildGrid(filter models.RoutineFilter, slots []models.TimeSlot, views []models.RoutineView) export.Grid {
	columns := make([]string, len(slots))
	column := make(map[string]int, len(slots))
	for i, slot := range slots {
		columns[i] = strings.TrimSpace(fmt.Sprintf("%s %s-%s", slot.Label, slot.StartTime, slot.EndTime))
		column[slot.ID] = i
	}

	rows := make([]export.GridRow, len(s.cfg.Days))
	row := make(map[string]int, len(s.cfg.Days))
	for i, day := range s.cfg.Days {
		rows[i] = export.GridRow{Label: day, Cells: make([]string, len(slots))}
		row[strings.ToLower(day)] = i
	}

	for _, view := range views {
		r, okRow := row[strings.ToLower(view.Day)]
		c, okCol := column[view.TimeSlotID]
		if !okRow || !okCol {
			continue
		}
		cell := gridCell(view, filter)
		if rows[r].Cells[c] != "" {
			rows[r].Cells[c] += "\n\n"
		}
		rows[r].Cells[c] += cell
	}

	return export.Grid{
		Title:    s.cfg.ExportTitle,
		Subtitle: gridSubtitle(filter, views),
		Corner:   "Day",
		Columns:  columns,
		Rows:     rows,
	}
}

// gridCell omits whatever the filter already pins down.
func gridCell(view models.RoutineView, filter models.RoutineFilter) string {
	lines := []string{view.CourseCode}
	if view.RoomNumber != "" {
		lines[0] += " (" + view.RoomNumber + ")"
	}
	if filter.TeacherID == "" && view.TeacherName != nil {
		lines = append(lines, *view.TeacherName)
	}
	if filter.DepartmentID == "" || filter.SemesterID == "" {
		lines = append(lines, view.DepartmentName+" "+view.SemesterName)
	}
	return strings.Join(lines, "\n")
}

func gridSubtitle(filter models.RoutineFilter, views []models.RoutineView) string {
	if len(views) == 0 {
		return ""
	}
	var parts []string
	if filter.DepartmentID != "" {
		parts = append(parts, views[0].DepartmentName)
	}
	if filter.SemesterID != "" {
		parts = append(parts, views[0].SemesterName)
	}
	if filter.TeacherID != "" {
		parts = append(parts, derefString(views[0].TeacherName))
	}
	return strings.Join(parts, " / ")
}

func (s *RoutineService) resolveSeed(requested *int64) int64 {
	switch {
	case requested != nil:
		return *requested
	case s.cfg.Seed != 0:
		return s.cfg.Seed
	default:
		return time.Now().UnixNano()
	}
}

func (s *RoutineService) knownDay(day string) bool {
	for _, candidate := range s.cfg.Days {
		if strings.EqualFold(candidate, day) {
			return true
		}
	}
	return false
}

func summarise(result scheduler.Result, seed int64) *dto.GenerateRoutineResponse {
	return &dto.GenerateRoutineResponse{
		Status:               string(models.RoutineRunStatusCompleted),
		Strategy:             string(result.Strategy),
		Seed:                 seed,
		FellBack:             result.FellBack,
		TotalSessionsNeeded:  result.Total,
		SessionsScheduled:    result.Scheduled,
		DroppedSessionsCount: len(result.Dropped),
		DroppedSessions:      result.Diagnostics(),
		SlotsFilled:          len(result.Placements),
		Message:              routineGeneratedMsg,
	}
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
