package handler

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/routine-api/internal/middleware"
	"github.com/noah-isme/routine-api/internal/models"
	"github.com/noah-isme/routine-api/internal/service"
	"github.com/noah-isme/routine-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/routine-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/routine-api/pkg/middleware/requestid"
)

// RouterConfig carries everything the HTTP layer needs.
type RouterConfig struct {
	APIPrefix      string
	AllowedOrigins []string
	EnableDocs     bool
	Logger         *zap.Logger
	Metrics        *service.MetricsService
	Tokens         middleware.TokenValidator
	Auth           *AuthHandler
	Routine        *RoutineHandler
	Observability  *MetricsHandler
}

// NewRouter assembles the gin engine with global middleware and all routes.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(cfg.Logger))
	r.Use(corsmiddleware.New(cfg.AllowedOrigins))
	r.Use(middleware.Metrics(cfg.Metrics))

	r.GET("/health", cfg.Observability.Health)
	r.GET("/ready", cfg.Observability.Ready)
	r.GET("/metrics", cfg.Observability.Prometheus)

	if cfg.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", cfg.Auth.Login)

	secured := api.Group("")
	secured.Use(middleware.JWT(cfg.Tokens))
	secured.GET("/auth/me", cfg.Auth.Me)

	admins := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)

	routine := secured.Group("/routine")
	routine.GET("", cfg.Routine.List)
	routine.GET("/runs/latest", cfg.Routine.LatestRun)
	routine.POST("/generate", admins, cfg.Routine.Generate)
	routine.GET("/jobs/:id", admins, cfg.Routine.JobStatus)
	routine.GET("/export", admins, cfg.Routine.Export)

	secured.GET("/metrics/summary", admins, cfg.Observability.Summary)

	return r
}
