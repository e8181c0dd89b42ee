package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	_ "github.com/noah-isme/course-admin-api/api/swagger"
	"github.com/noah-isme/course-admin-api/internal/handler"
	"github.com/noah-isme/course-admin-api/internal/repository"
	"github.com/noah-isme/course-admin-api/internal/service"
	"github.com/noah-isme/course-admin-api/pkg/cache"
	"github.com/noah-isme/course-admin-api/pkg/config"
	"github.com/noah-isme/course-admin-api/pkg/database"
	"github.com/noah-isme/course-admin-api/pkg/logger"
	"github.com/noah-isme/course-admin-api/pkg/storage"
)

// @title Course Admin API
// @version 1.0.0
// @description Administration backend for courses, students, enrollments and course reports.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if cfg.Migrations.AutoRun {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := database.Migrate(ctx, db, logr)
		cancel()
		if err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	store, err := newObjectStore(cfg.Storage, logr)
	if err != nil {
		logr.Fatal("failed to init storage", zap.Error(err))
	}

	metricsSvc := service.NewMetricsService()
	cacheSvc := newCacheService(context.Background(), cfg, metricsSvc, logr)

	deps := buildHandlers(cfg, db, store, cacheSvc, metricsSvc, logr)

	r := gin.New()
	registerRoutes(r, cfg, deps, metricsSvc, logr)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newObjectStore(cfg config.StorageConfig, logr *zap.Logger) (storage.ObjectStore, error) {
	if cfg.Driver == config.StorageDriverMinIO {
		return storage.NewMinIOStore(cfg, logr)
	}
	return storage.NewLocalStorage(cfg.LocalDir)
}

// newCacheService falls back to a disabled cache when redis is off or unreachable.
func newCacheService(ctx context.Context, cfg *config.Config, metrics *service.MetricsService, logr *zap.Logger) *service.CacheService {
	if !cfg.Redis.Enabled {
		return service.NewCacheService(nil, metrics, cfg.Dashboard.CacheTTL, logr, false)
	}
	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, dashboard cache disabled", zap.Error(err))
		return service.NewCacheService(nil, metrics, cfg.Dashboard.CacheTTL, logr, false)
	}
	repo := repository.NewCacheRepository(client, logr)
	return service.NewCacheService(repo, metrics, cfg.Dashboard.CacheTTL, logr, true)
}

type handlers struct {
	auth        *handler.AuthHandler
	courses     *handler.CourseHandler
	students    *handler.StudentHandler
	enrollments *handler.EnrollmentHandler
	reports     *handler.ReportHandler
	dashboard   *handler.DashboardHandler
	metrics     *handler.MetricsHandler
	tokens      *service.AuthService
}

func buildHandlers(cfg *config.Config, db *sqlx.DB, store storage.ObjectStore, cacheSvc *service.CacheService, metricsSvc *service.MetricsService, logr *zap.Logger) handlers {
	validate := service.NewValidator()

	courseRepo := repository.NewCourseRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	reportRepo := repository.NewReportRepository(db)
	dashboardRepo := repository.NewDashboardRepository(db)
	userRepo := repository.NewUserRepository(db)

	enrollmentSvc := service.NewEnrollmentService(service.EnrollmentServiceParams{
		Enrollments: enrollmentRepo,
		Courses:     courseRepo,
		Students:    studentRepo,
		Cache:       cacheSvc,
		Metrics:     metricsSvc,
		Validator:   validate,
		Logger:      logr,
	})
	courseSvc := service.NewCourseService(courseRepo, reportRepo, cacheSvc, validate, logr)
	studentSvc := service.NewStudentService(service.StudentServiceParams{
		Students:    studentRepo,
		Courses:     courseRepo,
		Enrollments: enrollmentSvc,
		Store:       store,
		Images: service.NewImageProcessor(service.ImagePolicy{
			MaxBytes:     cfg.Uploads.MaxImageBytes,
			AllowedTypes: cfg.Uploads.AllowedImageMIMEs,
			MaxDimension: cfg.Uploads.MaxImageDimension,
		}),
		Cache:     cacheSvc,
		Metrics:   metricsSvc,
		Validator: validate,
		Logger:    logr,
	})
	reportSvc := service.NewReportService(service.ReportServiceParams{
		Reports:     reportRepo,
		Courses:     courseRepo,
		Students:    studentRepo,
		Enrollments: enrollmentRepo,
		Cache:       cacheSvc,
		Metrics:     metricsSvc,
		Validator:   validate,
		Logger:      logr,
	})
	dashboardSvc := service.NewDashboardService(service.DashboardServiceParams{
		Totals:      dashboardRepo,
		Enrollments: enrollmentRepo,
		Courses:     courseRepo,
		Reports:     reportRepo,
		Cache:       cacheSvc,
		Logger:      logr,
		Config:      service.DashboardServiceConfig{CacheTTL: cfg.Dashboard.CacheTTL},
	})
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := authSvc.Bootstrap(ctx, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword, cfg.Bootstrap.AdminName); err != nil {
		logr.Fatal("failed to bootstrap administrator", zap.Error(err))
	}

	return handlers{
		auth:        handler.NewAuthHandler(authSvc),
		courses:     handler.NewCourseHandler(courseSvc, enrollmentSvc),
		students:    handler.NewStudentHandler(studentSvc, enrollmentSvc, cfg.Uploads.MaxImageBytes),
		enrollments: handler.NewEnrollmentHandler(enrollmentSvc),
		reports:     handler.NewReportHandler(reportSvc),
		dashboard:   handler.NewDashboardHandler(dashboardSvc),
		metrics:     handler.NewMetricsHandler(metricsSvc, db),
		tokens:      authSvc,
	}
}
