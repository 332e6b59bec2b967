package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/routine-api/internal/repository"
	"github.com/noah-isme/routine-api/internal/scheduler"
	"github.com/noah-isme/routine-api/internal/service"
	"github.com/noah-isme/routine-api/pkg/cache"
	"github.com/noah-isme/routine-api/pkg/config"
	"github.com/noah-isme/routine-api/pkg/database"
	"github.com/noah-isme/routine-api/pkg/jobs"
)

// App holds the wired service layer shared by the API server and routinectl.
type App struct {
	DB      *sqlx.DB
	Redis   *redis.Client
	Metrics *service.MetricsService
	Cache   *service.CacheService
	Auth    *service.AuthService
	Routine *service.RoutineService
	Jobs    *service.RoutineJobService
	Queue   *jobs.Queue
}

// New connects to Postgres and, when enabled, Redis, then wires repositories
// and services. The returned queue is not started.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	strategy, err := scheduler.ParseStrategy(cfg.Scheduler.Strategy)
	if err != nil {
		return nil, fmt.Errorf("scheduler config: %w", err)
	}
	days, err := normaliseDays(cfg.Scheduler.Days)
	if err != nil {
		return nil, fmt.Errorf("scheduler config: %w", err)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	}

	validate := validator.New()
	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(
		repository.NewCacheRepository(redisClient, logger),
		metrics,
		cfg.Routine.CacheTTL,
		logger,
		redisClient != nil,
	)

	authSvc := service.NewAuthService(repository.NewUserRepository(db), validate, logger, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	routineSvc := service.NewRoutineService(
		repository.NewCourseRepository(db),
		repository.NewTimeSlotRepository(db),
		repository.NewRoutineRepository(db),
		repository.NewRoutineRunRepository(db),
		db,
		cacheSvc,
		metrics,
		validate,
		logger,
		service.RoutineServiceConfig{
			Enabled:        cfg.Scheduler.Enabled,
			Strategy:       strategy,
			BacktrackLimit: cfg.Scheduler.BacktrackLimit,
			Seed:           cfg.Scheduler.Seed,
			Days:           days,
			CacheTTL:       cfg.Routine.CacheTTL,
			ExportTitle:    cfg.Routine.ExportTitle,
		},
	)

	jobSvc, queue := service.NewRoutineJobService(routineSvc, cacheSvc, logger, service.RoutineJobConfig{
		Workers:    cfg.Scheduler.AsyncWorkers,
		MaxRetries: 2,
		StatusTTL:  cfg.Scheduler.JobTTL,
	})

	return &App{
		DB:      db,
		Redis:   redisClient,
		Metrics: metrics,
		Cache:   cacheSvc,
		Auth:    authSvc,
		Routine: routineSvc,
		Jobs:    jobSvc,
		Queue:   queue,
	}, nil
}

// Close stops the queue and releases connections.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Queue != nil {
		a.Queue.Stop()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}

// normaliseDays title-cases configured day names and rejects duplicates.
func normaliseDays(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(raw))
	days := make([]string, 0, len(raw))
	for _, day := range raw {
		day = strings.TrimSpace(day)
		if day == "" {
			continue
		}
		day = strings.ToUpper(day[:1]) + strings.ToLower(day[1:])
		if _, dup := seen[day]; dup {
			return nil, fmt.Errorf("day %q listed twice", day)
		}
		seen[day] = struct{}{}
		days = append(days, day)
	}
	return days, nil
}
