package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-admin-api/internal/dto"
	"github.com/noah-isme/course-admin-api/internal/models"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
)

type dashboardTotalsRepository interface {
	Totals(ctx context.Context) (*dto.DashboardTotals, error)
}

type dashboardEnrollmentRepository interface {
	CountsByCourse(ctx context.Context) ([]models.CourseEnrollmentCount, error)
	StatusBreakdown(ctx context.Context, courseID string) ([]dto.EnrollmentStatusCount, error)
}

type dashboardCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type dashboardReportCounter interface {
	CountByCourse(ctx context.Context, courseID string) (int, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL time.Duration
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Totals      dashboardTotalsRepository
	Enrollments dashboardEnrollmentRepository
	Courses     dashboardCourseRepository
	Reports     dashboardReportCounter
	Cache       *CacheService
	Logger      *zap.Logger
	Config      DashboardServiceConfig
}

// DashboardService composes admin and per course summaries.
type DashboardService struct {
	totals      dashboardTotalsRepository
	enrollments dashboardEnrollmentRepository
	courses     dashboardCourseRepository
	reports     dashboardReportCounter
	cache       *CacheService
	logger      *zap.Logger
	now         func() time.Time
	cfg         DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		totals:      params.Totals,
		enrollments: params.Enrollments,
		courses:     params.Courses,
		reports:     params.Reports,
		cache:       params.Cache,
		logger:      logger,
		now:         time.Now,
		cfg:         cfg,
	}
}

// Admin returns the admin summary and indicates cache utilisation.
func (s *DashboardService) Admin(ctx context.Context) (*dto.AdminDashboardResponse, bool, error) {
	var cached dto.AdminDashboardResponse
	if s.tryCache(ctx, adminDashboardKey, &cached) {
		return &cached, true, nil
	}

	totals, err := s.totals.Totals(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load dashboard totals")
	}
	counts, err := s.enrollments.CountsByCourse(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	if counts == nil {
		counts = []models.CourseEnrollmentCount{}
	}
	summary := &dto.AdminDashboardResponse{
		Totals:           *totals,
		EnrollmentCounts: counts,
		GeneratedAt:      s.now().UTC(),
	}
	s.persistCache(ctx, adminDashboardKey, summary)
	return summary, false, nil
}

// Course returns the summary of a single course.
func (s *DashboardService) Course(ctx context.Context, courseID string) (*dto.CourseDashboardResponse, bool, error) {
	key := courseDashboardKey(courseID)
	var cached dto.CourseDashboardResponse
	if s.tryCache(ctx, key, &cached) {
		return &cached, true, nil
	}

	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	rows, err := s.enrollments.StatusBreakdown(ctx, courseID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load status breakdown")
	}
	reports, err := s.reports.CountByCourse(ctx, courseID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count reports")
	}

	summary := &dto.CourseDashboardResponse{
		Course: *course,
		StatusBreakdown: map[string]int{
			string(models.EnrollmentStatusActive):    0,
			string(models.EnrollmentStatusCompleted): 0,
			string(models.EnrollmentStatusInactive):  0,
		},
		ReportCount: reports,
		GeneratedAt: s.now().UTC(),
	}
	for _, row := range rows {
		summary.StatusBreakdown[row.Status] += row.Count
		summary.TotalEnrollments += row.Count
		summary.GradedCount += row.Graded
	}
	s.persistCache(ctx, key, summary)
	return summary, false, nil
}

// tryCache reports a hit; read errors fall through to a fresh computation.
func (s *DashboardService) tryCache(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	hit, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		return false
	}
	return hit
}

func (s *DashboardService) persistCache(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.String("key", key), zap.Error(err))
	}
}
