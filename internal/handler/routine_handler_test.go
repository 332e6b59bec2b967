package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/routine-api/internal/dto"
	"github.com/noah-isme/routine-api/internal/middleware"
	"github.com/noah-isme/routine-api/internal/models"
	appErrors "github.com/noah-isme/routine-api/pkg/errors"
)

type routineServiceMock struct {
	generateReq  dto.GenerateRoutineRequest
	generateResp *dto.GenerateRoutineResponse
	generateErr  error

	listFilter models.RoutineFilter
	listResp   []models.RoutineView
	listHit    bool

	latest    *models.RoutineRun
	latestErr error

	exportFilter models.RoutineFilter
	exportFormat dto.RoutineExportFormat
	exportErr    error
}

func (m *routineServiceMock) Generate(ctx context.Context, req dto.GenerateRoutineRequest) (*dto.GenerateRoutineResponse, error) {
	m.generateReq = req
	return m.generateResp, m.generateErr
}

func (m *routineServiceMock) List(ctx context.Context, filter models.RoutineFilter) ([]models.RoutineView, bool, error) {
	m.listFilter = filter
	return m.listResp, m.listHit, nil
}

func (m *routineServiceMock) LatestRun(ctx context.Context) (*models.RoutineRun, error) {
	return m.latest, m.latestErr
}

func (m *routineServiceMock) Export(ctx context.Context, filter models.RoutineFilter, format dto.RoutineExportFormat) (*dto.RoutineExport, error) {
	m.exportFilter = filter
	m.exportFormat = format
	if m.exportErr != nil {
		return nil, m.exportErr
	}
	return &dto.RoutineExport{Filename: "routine-20260301.csv", ContentType: "text/csv", Content: []byte("day,slot\n")}, nil
}

type routineJobsMock struct {
	enqueued []dto.GenerateRoutineRequest
	status   *dto.RoutineJobResponse
	err      error
}

func (m *routineJobsMock) Enqueue(ctx context.Context, req dto.GenerateRoutineRequest) (*dto.RoutineJobResponse, error) {
	m.enqueued = append(m.enqueued, req)
	if m.err != nil {
		return nil, m.err
	}
	return &dto.RoutineJobResponse{JobID: "job-1", Status: dto.RoutineJobQueued}, nil
}

func (m *routineJobsMock) Status(ctx context.Context, id string) (*dto.RoutineJobResponse, error) {
	if m.status == nil || m.status.JobID != id {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "routine job not found")
	}
	return m.status, nil
}

func strPtr(v string) *string { return &v }

func newRoutineContext(method, target string, body []byte, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		c.Request.Header.Set("Content-Type", "application/json")
	}
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var envelope map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func TestRoutineHandlerGenerateSync(t *testing.T) {
	svc := &routineServiceMock{generateResp: &dto.GenerateRoutineResponse{Status: "Completed", SessionsScheduled: 20}}
	handler := NewRoutineHandler(svc, &routineJobsMock{})
	c, rec := newRoutineContext(http.MethodPost, "/routine/generate", []byte(`{"strategy":"backtracking","seed":7}`), nil)

	handler.Generate(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "backtracking", svc.generateReq.Strategy)
	require.NotNil(t, svc.generateReq.Seed)
	assert.EqualValues(t, 7, *svc.generateReq.Seed)
	data := decodeEnvelope(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, "Completed", data["status"])
}

func TestRoutineHandlerGenerateWithoutBody(t *testing.T) {
	svc := &routineServiceMock{generateResp: &dto.GenerateRoutineResponse{Status: "Completed"}}
	handler := NewRoutineHandler(svc, nil)
	c, rec := newRoutineContext(http.MethodPost, "/routine/generate", nil, nil)

	handler.Generate(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, svc.generateReq.Strategy)
}

func TestRoutineHandlerGenerateAsync(t *testing.T) {
	svc := &routineServiceMock{}
	jobs := &routineJobsMock{}
	handler := NewRoutineHandler(svc, jobs)
	c, rec := newRoutineContext(http.MethodPost, "/routine/generate", []byte(`{"async":true}`), nil)

	handler.Generate(c)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, jobs.enqueued, 1)
	data := decodeEnvelope(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, "job-1", data["job_id"])

	c, rec = newRoutineContext(http.MethodPost, "/routine/generate", []byte(`{"async":true}`), nil)
	NewRoutineHandler(svc, nil).Generate(c)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRoutineHandlerGenerateErrors(t *testing.T) {
	handler := NewRoutineHandler(&routineServiceMock{}, nil)
	c, rec := newRoutineContext(http.MethodPost, "/routine/generate", []byte(`{"strategy":`), nil)
	handler.Generate(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc := &routineServiceMock{generateErr: appErrors.Clone(appErrors.ErrPreconditionFailed, "no time slots configured")}
	c, rec = newRoutineContext(http.MethodPost, "/routine/generate", []byte(`{}`), nil)
	NewRoutineHandler(svc, nil).Generate(c)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
}

func TestRoutineHandlerJobStatus(t *testing.T) {
	jobs := &routineJobsMock{status: &dto.RoutineJobResponse{JobID: "job-1", Status: dto.RoutineJobRunning}}
	handler := NewRoutineHandler(&routineServiceMock{}, jobs)

	c, rec := newRoutineContext(http.MethodGet, "/routine/jobs/job-1", nil, nil)
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}
	handler.JobStatus(c)
	require.Equal(t, http.StatusOK, rec.Code)

	c, rec = newRoutineContext(http.MethodGet, "/routine/jobs/other", nil, nil)
	c.Params = gin.Params{{Key: "id", Value: "other"}}
	handler.JobStatus(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutineHandlerListScopesStudents(t *testing.T) {
	svc := &routineServiceMock{listResp: []models.RoutineView{{ID: "r-1", Day: "Sunday"}}, listHit: true}
	handler := NewRoutineHandler(svc, nil)
	claims := &models.JWTClaims{UserID: "u-1", Role: models.RoleStudent, DepartmentID: strPtr("d-1"), SemesterID: strPtr("s-1")}
	c, rec := newRoutineContext(http.MethodGet, "/routine?departmentId=d-9&teacherId=t-9&day=Sunday", nil, claims)

	handler.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.RoutineFilter{DepartmentID: "d-1", SemesterID: "s-1", Day: "Sunday"}, svc.listFilter)
	meta := decodeEnvelope(t, rec)["meta"].(map[string]interface{})
	assert.Equal(t, true, meta["cache_hit"])
}

func TestRoutineHandlerListRequiresClaims(t *testing.T) {
	handler := NewRoutineHandler(&routineServiceMock{}, nil)
	c, rec := newRoutineContext(http.MethodGet, "/routine", nil, nil)
	handler.List(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestScopeRoutineFilter(t *testing.T) {
	teacher := &models.JWTClaims{Role: models.RoleTeacher, TeacherID: strPtr("t-1")}
	filter, err := scopeRoutineFilter(teacher, models.RoutineFilter{Day: "Monday"})
	require.NoError(t, err)
	assert.Equal(t, models.RoutineFilter{TeacherID: "t-1", Day: "Monday"}, filter)

	filter, err = scopeRoutineFilter(teacher, models.RoutineFilter{DepartmentID: "d-1", SemesterID: "s-1"})
	require.NoError(t, err)
	assert.Equal(t, models.RoutineFilter{DepartmentID: "d-1", SemesterID: "s-1"}, filter)

	admin := &models.JWTClaims{Role: models.RoleAdmin}
	filter, err = scopeRoutineFilter(admin, models.RoutineFilter{})
	require.NoError(t, err)
	assert.Equal(t, models.RoutineFilter{}, filter)

	_, err = scopeRoutineFilter(&models.JWTClaims{Role: models.RoleStudent}, models.RoutineFilter{})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestRoutineHandlerLatestRun(t *testing.T) {
	svc := &routineServiceMock{latest: &models.RoutineRun{ID: "run-1", Status: models.RoutineRunStatusCompleted}}
	c, rec := newRoutineContext(http.MethodGet, "/routine/runs/latest", nil, nil)
	NewRoutineHandler(svc, nil).LatestRun(c)
	require.Equal(t, http.StatusOK, rec.Code)

	svc = &routineServiceMock{latestErr: appErrors.Clone(appErrors.ErrNotFound, "no routine has been generated yet")}
	c, rec = newRoutineContext(http.MethodGet, "/routine/runs/latest", nil, nil)
	NewRoutineHandler(svc, nil).LatestRun(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutineHandlerExport(t *testing.T) {
	svc := &routineServiceMock{}
	claims := &models.JWTClaims{Role: models.RoleAdmin}
	c, rec := newRoutineContext(http.MethodGet, "/routine/export?format=CSV&teacherId=t-1", nil, claims)

	NewRoutineHandler(svc, nil).Export(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.RoutineExportCSV, svc.exportFormat)
	assert.Equal(t, "t-1", svc.exportFilter.TeacherID)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "routine-20260301.csv")
	assert.Equal(t, "day,slot\n", rec.Body.String())

	svc = &routineServiceMock{exportErr: appErrors.Clone(appErrors.ErrValidation, "unsupported export format")}
	c, rec = newRoutineContext(http.MethodGet, "/routine/export?format=xlsx", nil, claims)
	NewRoutineHandler(svc, nil).Export(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
