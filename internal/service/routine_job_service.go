package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/routine-api/internal/dto"
	appErrors "github.com/noah-isme/routine-api/pkg/errors"
	"github.com/noah-isme/routine-api/pkg/jobs"
)

const (
	routineJobType      = "routine.generate"
	routineJobKeyPrefix = "routine-job"
)

type routineGenerator interface {
	Prepare(req dto.GenerateRoutineRequest) (dto.GenerateRoutineRequest, error)
	Generate(ctx context.Context, req dto.GenerateRoutineRequest) (*dto.GenerateRoutineResponse, error)
}

type jobQueue interface {
	Enqueue(job jobs.Job) error
}

// RoutineJobConfig tunes async generation.
type RoutineJobConfig struct {
	Workers    int
	MaxRetries int
	StatusTTL  time.Duration
}

// RoutineJobService runs routine generation in the background. Job states
// live in Redis when caching is enabled and in process memory otherwise.
type RoutineJobService struct {
	generator  routineGenerator
	queue      jobQueue
	cache      *CacheService
	memory     *jobStatusStore
	statusTTL  time.Duration
	maxRetries int
	logger     *zap.Logger
	now        func() time.Time
}

// NewRoutineJobService wires the job service. Call Queue().Start to begin processing.
func NewRoutineJobService(generator routineGenerator, cache *CacheService, logger *zap.Logger, cfg RoutineJobConfig) (*RoutineJobService, *jobs.Queue) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = time.Hour
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	svc := &RoutineJobService{
		generator:  generator,
		cache:      cache,
		memory:     newJobStatusStore(cfg.StatusTTL),
		statusTTL:  cfg.StatusTTL,
		maxRetries: cfg.MaxRetries,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	queue := jobs.NewQueue("routine-generation", svc.Handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logger,
	})
	svc.queue = queue
	return svc, queue
}

// Enqueue validates the request and schedules it for background generation.
func (s *RoutineJobService) Enqueue(ctx context.Context, req dto.GenerateRoutineRequest) (*dto.RoutineJobResponse, error) {
	req, err := s.generator.Prepare(req)
	if err != nil {
		return nil, err
	}
	req.Async = false

	now := s.now()
	status := &dto.RoutineJobResponse{
		JobID:      uuid.NewString(),
		Status:     dto.RoutineJobQueued,
		EnqueuedAt: now,
		UpdatedAt:  now,
	}
	s.save(ctx, status)

	if err := s.queue.Enqueue(jobs.Job{ID: status.JobID, Type: routineJobType, Payload: req, Enqueued: now}); err != nil {
		s.discard(ctx, status.JobID)
		if errors.Is(err, jobs.ErrQueueFull) {
			return nil, appErrors.ErrQueueFull
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue routine generation")
	}
	s.logger.Info("routine generation queued", zap.String("job_id", status.JobID), zap.String("strategy", req.Strategy))
	return status, nil
}

// Status returns the current state of a queued generation.
func (s *RoutineJobService) Status(ctx context.Context, id string) (*dto.RoutineJobResponse, error) {
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "job id is required")
	}
	var status dto.RoutineJobResponse
	if hit, err := s.cache.Get(ctx, cacheKey(routineJobKeyPrefix, id), &status); err == nil && hit {
		return &status, nil
	}
	if stored, ok := s.memory.Get(id); ok {
		return &stored, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "routine job not found")
}

// Handle processes one queued generation. Server-side failures are retried
// up to the configured limit; request errors fail the job immediately.
func (s *RoutineJobService) Handle(ctx context.Context, job jobs.Job) error {
	req, ok := job.Payload.(dto.GenerateRoutineRequest)
	if !ok {
		return fmt.Errorf("routine job %s: unexpected payload %T", job.ID, job.Payload)
	}
	status, err := s.Status(ctx, job.ID)
	if err != nil {
		status = &dto.RoutineJobResponse{JobID: job.ID, EnqueuedAt: job.Enqueued}
	}

	status.Status = dto.RoutineJobRunning
	status.Error = ""
	status.UpdatedAt = s.now()
	s.save(ctx, status)

	result, genErr := s.generator.Generate(ctx, req)
	status.UpdatedAt = s.now()
	if genErr != nil {
		appErr := appErrors.FromError(genErr)
		status.Error = appErr.Message
		if appErr.Status >= http.StatusInternalServerError && appErr.Status != appErrors.ErrSchedulerDisabled.Status && job.Attempt < s.maxRetries {
			status.Status = dto.RoutineJobQueued
			s.save(ctx, status)
			return jobs.Retryable(genErr)
		}
		status.Status = dto.RoutineJobFailed
		s.save(ctx, status)
		return genErr
	}

	status.Status = dto.RoutineJobCompleted
	status.Result = result
	s.save(ctx, status)
	return nil
}

// discard drops a status that was saved for a job the queue refused.
func (s *RoutineJobService) discard(ctx context.Context, id string) {
	s.memory.Delete(id)
	if err := s.cache.Invalidate(ctx, cacheKey(routineJobKeyPrefix, id)); err != nil {
		s.logger.Warn("failed to drop routine job status", zap.String("job_id", id), zap.Error(err))
	}
}

func (s *RoutineJobService) save(ctx context.Context, status *dto.RoutineJobResponse) {
	s.memory.Save(*status)
	if err := s.cache.Set(ctx, cacheKey(routineJobKeyPrefix, status.JobID), status, s.statusTTL); err != nil {
		s.logger.Warn("failed to persist routine job status", zap.String("job_id", status.JobID), zap.Error(err))
	}
}

type jobStatusStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]dto.RoutineJobResponse
}

func newJobStatusStore(ttl time.Duration) *jobStatusStore {
	return &jobStatusStore{
		ttl:   ttl,
		items: make(map[string]dto.RoutineJobResponse),
	}
}

func (s *jobStatusStore) Save(status dto.RoutineJobResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[status.JobID] = status
	for id, item := range s.items {
		if time.Since(item.UpdatedAt) > s.ttl {
			delete(s.items, id)
		}
	}
}

func (s *jobStatusStore) Get(id string) (dto.RoutineJobResponse, bool) {
	s.mu.RLock()
	status, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return dto.RoutineJobResponse{}, false
	}
	if time.Since(status.UpdatedAt) > s.ttl {
		s.Delete(id)
		return dto.RoutineJobResponse{}, false
	}
	return status, true
}

func (s *jobStatusStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}
