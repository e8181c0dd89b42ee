package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/course-admin-api/internal/middleware"
	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/internal/service"
	"github.com/noah-isme/course-admin-api/pkg/config"
	"github.com/noah-isme/course-admin-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/course-admin-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/course-admin-api/pkg/middleware/requestid"
)

func registerRoutes(r *gin.Engine, cfg *config.Config, h handlers, metricsSvc *service.MetricsService, logr *zap.Logger) {
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", h.auth.Login)

	secured := api.Group("")
	secured.Use(middleware.JWT(h.tokens))
	secured.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin))

	secured.GET("/auth/me", h.auth.Me)

	courses := secured.Group("/courses")
	courses.GET("", h.courses.List)
	courses.POST("", h.courses.Create)
	courses.GET("/:id", h.courses.Get)
	courses.PUT("/:id", h.courses.Update)
	courses.DELETE("/:id", h.courses.Delete)
	courses.GET("/:id/enrollments", h.courses.Enrollments)
	courses.GET("/:id/enrollment-form", h.courses.EnrollmentForm)

	students := secured.Group("/students")
	students.GET("", h.students.List)
	students.POST("", h.students.Create)
	students.GET("/:id", h.students.Get)
	students.PUT("/:id", h.students.Update)
	students.DELETE("/:id", h.students.Delete)
	students.PUT("/:id/courses", h.students.SyncCourses)

	enrollments := secured.Group("/enrollments")
	enrollments.POST("", h.enrollments.Enroll)
	enrollments.PATCH("/:id", h.enrollments.Update)

	reports := secured.Group("/reports")
	reports.GET("", h.reports.List)
	reports.GET("/overview", h.reports.Overview)
	reports.POST("", h.reports.Generate)
	reports.GET("/:id", h.reports.Get)
	reports.PUT("/:id", h.reports.Update)
	reports.DELETE("/:id", h.reports.Delete)
	reports.GET("/:id/export", h.reports.Export)

	dashboard := secured.Group("/dashboard")
	dashboard.GET("", h.dashboard.Admin)
	dashboard.GET("/:courseId", h.dashboard.Course)
}
