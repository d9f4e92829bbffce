package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/handler"
	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/pkg/cache"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/database"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-timetable-api/pkg/storage"
)

const lockPrefix = "timetable:lock:"

// App holds every long lived dependency of the server and the CLI.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *sqlx.DB
	Redis   *redis.Client
	Metrics *service.MetricsService

	Timetables *service.TimetableService
	Grids      *service.TimetableQueryService
	Exports    *service.TimetableExportService
	Moves      *service.LessonMoveService

	cacheRepo *repository.CacheRepository
	queue     *jobs.Queue
	stop      context.CancelFunc
}

// New connects to Postgres and (when enabled) Redis and wires the services.
func New(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*App, error) {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, continuing without cache and distributed lock", zap.Error(err))
		redisClient = nil
	}
	return Wire(cfg, logr, db, redisClient), nil
}

// Wire builds the services on top of existing connections. redisClient may be nil.
func Wire(cfg *config.Config, logr *zap.Logger, db *sqlx.DB, redisClient *redis.Client) *App {
	metrics := service.NewMetricsService()
	validate := validator.New()

	schools := repository.NewSchoolRepository(db)
	classes := repository.NewClassRepository(db)
	teachers := repository.NewTeacherRepository(db)
	timeslots := repository.NewTimeSlotRepository(db)
	schedules := repository.NewScheduleRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Scheduler.CacheTTL, logr, redisClient != nil)
	lock := service.NewSchoolLock(cache.NewLocker(redisClient, lockPrefix), cfg.Scheduler.LockTTL, 0, metrics, logr)

	timetables := service.NewTimetableService(
		service.TimetableRepositories{
			Schools:   schools,
			Classes:   classes,
			Teachers:  teachers,
			Subjects:  repository.NewSubjectRepository(db),
			Workloads: repository.NewWorkloadRepository(db),
			TimeSlots: timeslots,
			Schedules: schedules,
			Runs:      repository.NewTimetableRunRepository(db),
		},
		db,
		scheduler.NewEngine(scheduler.DefaultWeights, logr),
		lock,
		cacheSvc,
		metrics,
		validate,
		logr,
		service.TimetableConfig{
			DefaultAttempts:    cfg.Scheduler.DefaultAttempts,
			MaxAttempts:        cfg.Scheduler.MaxAttempts,
			DefaultWorkingDays: cfg.Scheduler.DefaultWorkingDays,
			AsyncRetries:       cfg.Scheduler.AsyncRetries,
		},
	)
	grids := service.NewTimetableQueryService(schools, classes, teachers, timeslots, schedules, cacheSvc, cfg.Scheduler.CacheTTL, cfg.Scheduler.DefaultWorkingDays, logr)
	exports := service.NewTimetableExportService(grids, classes, teachers, logr)
	if cfg.Export.SigningSecret != "" {
		files, err := storage.NewLocalStorage(cfg.Export.Dir)
		if err != nil {
			logr.Warn("export links disabled", zap.Error(err))
		} else {
			exports.WithLinks(files, storage.NewSignedURLSigner(cfg.Export.SigningSecret, cfg.Export.LinkTTL), service.ExportLinkConfig{
				APIPrefix: cfg.APIPrefix,
				RetainFor: cfg.Export.RetainFor,
			})
		}
	}
	moves := service.NewLessonMoveService(schools, classes, timeslots, schedules, lock, db, cacheSvc, metrics, validate, cfg.Scheduler.DefaultWorkingDays, logr)

	return &App{
		Config:     cfg,
		Logger:     logr,
		DB:         db,
		Redis:      redisClient,
		Metrics:    metrics,
		Timetables: timetables,
		Grids:      grids,
		Exports:    exports,
		Moves:      moves,
		cacheRepo:  cacheRepo,
	}
}

// StartWorkers enables async generation and the export janitor. Queue retries match the service's retry budget.
func (a *App) StartWorkers(ctx context.Context) {
	if a.stop != nil {
		return
	}
	ctx, a.stop = context.WithCancel(ctx)
	go a.cleanExports(ctx, time.Hour)

	if !a.Config.Scheduler.Enabled {
		return
	}
	a.queue = jobs.NewQueue("timetable", a.Timetables.HandleJob, jobs.QueueConfig{
		Workers:    a.Config.Scheduler.AsyncWorkers,
		MaxRetries: a.Config.Scheduler.AsyncRetries,
		RetryDelay: a.Config.Scheduler.AsyncRetryDelay,
		Logger:     a.Logger,
	})
	a.queue.Start(ctx)
	a.Timetables.AttachQueue(a.queue)
}

func (a *App) cleanExports(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Exports.Cleanup(); err != nil {
				a.Logger.Warn("export cleanup failed", zap.Error(err))
			}
		}
	}
}

// Router builds the HTTP surface.
func (a *App) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.Logger))
	r.Use(corsmiddleware.New(a.Config.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.Metrics))

	checks := map[string]handler.Pinger{"postgres": a.DB}
	if a.Redis != nil {
		checks["redis"] = handler.PingFunc(a.cacheRepo.Ping)
	}
	metricsHandler := handler.NewMetricsHandler(a.Metrics, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.GET("/metrics/summary", metricsHandler.Summary)

	if a.Config.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	timetables := handler.NewTimetableHandler(a.Timetables, a.Grids, a.Exports)
	lessons := handler.NewLessonHandler(a.Moves)

	r.GET(a.Config.APIPrefix+"/exports/:token", timetables.Download)

	school := r.Group(a.Config.APIPrefix + "/schools/:schoolId")
	school.Use(middleware.WithResponseMeta())
	{
		tt := school.Group("/timetable")
		tt.POST("/generate", timetables.Generate)
		tt.GET("/jobs/:jobId", timetables.Job)
		tt.GET("/runs", timetables.Runs)
		tt.GET("/unplaced", timetables.Unplaced)
		tt.GET("/classes/:classId", timetables.ClassTimetable)
		tt.GET("/classes/:classId/export", timetables.ExportClass)
		tt.GET("/teachers/:teacherId", timetables.TeacherTimetable)
		tt.GET("/teachers/:teacherId/export", timetables.ExportTeacher)
		tt.POST("/classes/:classId/export-link", timetables.PublishClass)
		tt.POST("/teachers/:teacherId/export-link", timetables.PublishTeacher)

		school.POST("/lessons/move", lessons.Move)
	}
	return r
}

// Close stops workers and releases connections.
func (a *App) Close() {
	if a.stop != nil {
		a.stop()
	}
	if a.queue != nil {
		a.queue.Stop()
	}
	if a.cacheRepo != nil {
		if err := a.cacheRepo.Close(); err != nil {
			a.Logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn("close postgres", zap.Error(err))
		}
	}
}
