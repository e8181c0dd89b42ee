package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/internal/repository"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
	"github.com/noah-isme/course-admin-api/pkg/export"
)

type reportRepository interface {
	Create(ctx context.Context, report *models.Report) error
	FindByID(ctx context.Context, id string) (*models.ReportDetail, error)
	List(ctx context.Context, filter models.ReportFilter) ([]models.ReportDetail, int, error)
	UpdateType(ctx context.Context, id, reportType string) error
	Delete(ctx context.Context, id string) error
}

type reportCourseSource interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ListWithStudents(ctx context.Context) ([]models.CourseWithStudents, error)
}

type reportStudentSource interface {
	ListAll(ctx context.Context) ([]models.Student, error)
	CoursesByStudents(ctx context.Context, studentIDs []string) (map[string][]models.Course, error)
}

type reportEnrollmentSource interface {
	CountsByCourse(ctx context.Context) ([]models.CourseEnrollmentCount, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentWithStudent, error)
}

// ReportServiceParams groups constructor dependencies.
type ReportServiceParams struct {
	Reports     reportRepository
	Courses     reportCourseSource
	Students    reportStudentSource
	Enrollments reportEnrollmentSource
	Cache       *CacheService
	Metrics     *MetricsService
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// ReportService records course reports and produces enrollment aggregates.
type ReportService struct {
	reports     reportRepository
	courses     reportCourseSource
	students    reportStudentSource
	enrollments reportEnrollmentSource
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	render      func(format, base string, data export.Dataset) (*export.Document, error)
}

// NewReportService constructs the report service.
func NewReportService(params ReportServiceParams) *ReportService {
	validate := params.Validator
	if validate == nil {
		validate = NewValidator()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		reports:     params.Reports,
		courses:     params.Courses,
		students:    params.Students,
		enrollments: params.Enrollments,
		cache:       params.Cache,
		metrics:     params.Metrics,
		validator:   validate,
		logger:      logger,
		render:      export.Render,
	}
}

// Generate records a report for a course on behalf of actor.
func (s *ReportService) Generate(ctx context.Context, req models.GenerateReportRequest, actor models.Identity) (*models.ReportDetail, error) {
	if err := validateStruct(s.validator, req, "invalid report payload"); err != nil {
		return nil, err
	}
	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fieldError("invalid report payload", "course_id", "exists", "course does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	generatedBy := strings.TrimSpace(actor.FullName)
	if generatedBy == "" {
		generatedBy = actor.Email
	}
	report := &models.Report{
		ReportType:  strings.TrimSpace(req.ReportType),
		GeneratedAt: parseDate(req.GeneratedAt),
		GeneratedBy: generatedBy,
		CourseID:    course.ID,
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report")
	}
	s.cache.InvalidateDashboards(ctx)
	s.logger.Info("report generated", zap.String("report_id", report.ID), zap.String("course_id", course.ID), zap.String("actor", actor.UserID))
	return &models.ReportDetail{Report: *report, CourseName: course.CourseName}, nil
}

// Get returns a report with its course name.
func (s *ReportService) Get(ctx context.Context, id string) (*models.ReportDetail, error) {
	report, err := s.reports.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report")
	}
	return report, nil
}

// List returns reports matching filter.
func (s *ReportService) List(ctx context.Context, filter models.ReportFilter) ([]models.ReportDetail, *models.Pagination, error) {
	reports, total, err := s.reports.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reports")
	}
	return reports, newPagination(filter.Page, filter.PageSize, total), nil
}

// Update changes the report type. Author, date and course are fixed once generated.
func (s *ReportService) Update(ctx context.Context, id string, req models.UpdateReportRequest) (*models.ReportDetail, error) {
	if err := validateStruct(s.validator, req, "invalid report payload"); err != nil {
		return nil, err
	}
	if err := s.reports.UpdateType(ctx, id, strings.TrimSpace(req.ReportType)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update report")
	}
	return s.Get(ctx, id)
}

// Delete removes a report.
func (s *ReportService) Delete(ctx context.Context, id string) error {
	if err := s.reports.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete report")
	}
	s.cache.InvalidateDashboards(ctx)
	return nil
}

// EnrollmentCounts lists every course with its enrollment count, ordered by course name.
func (s *ReportService) EnrollmentCounts(ctx context.Context) ([]models.CourseEnrollmentCount, error) {
	counts, err := s.enrollments.CountsByCourse(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	if counts == nil {
		counts = []models.CourseEnrollmentCount{}
	}
	return counts, nil
}

// AggregateEnrollmentCounts maps course name to enrollment count. Courses
// without enrollments appear with zero and courses sharing a name are summed.
func (s *ReportService) AggregateEnrollmentCounts(ctx context.Context) (map[string]int, error) {
	counts, err := s.EnrollmentCounts(ctx)
	if err != nil {
		return nil, err
	}
	return totalsByCourseName(counts), nil
}

func totalsByCourseName(counts []models.CourseEnrollmentCount) map[string]int {
	result := make(map[string]int, len(counts))
	for _, row := range counts {
		result[row.CourseName] += row.Count
	}
	return result
}

// Overview gathers students with their courses, courses with their students
// and enrollment counts, both per course and totalled by course name.
func (s *ReportService) Overview(ctx context.Context) (*models.ReportOverview, error) {
	students, err := s.students.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	ids := make([]string, 0, len(students))
	for _, student := range students {
		ids = append(ids, student.ID)
	}
	memberships, err := s.students.CoursesByStudents(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student courses")
	}
	withCourses := make([]models.StudentWithCourses, 0, len(students))
	for _, student := range students {
		courses := memberships[student.ID]
		if courses == nil {
			courses = []models.Course{}
		}
		withCourses = append(withCourses, models.StudentWithCourses{Student: student, Courses: courses})
	}

	courses, err := s.courses.ListWithStudents(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	if courses == nil {
		courses = []models.CourseWithStudents{}
	}
	counts, err := s.EnrollmentCounts(ctx)
	if err != nil {
		return nil, err
	}
	return &models.ReportOverview{
		Students:         withCourses,
		Courses:          courses,
		EnrollmentCounts: counts,
		EnrollmentTotals: totalsByCourseName(counts),
	}, nil
}

// Export renders the roster of the report's course in the requested format.
func (s *ReportService) Export(ctx context.Context, id, format string) (*export.Document, error) {
	report, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	roster, err := s.enrollments.ListByCourse(ctx, report.CourseID)
	if err != nil {
		if errors.Is(err, repository.ErrDanglingReference) {
			s.logger.Error("export roster references missing student", zap.String("report_id", id), zap.String("course_id", report.CourseID), zap.Error(err))
			s.metrics.RecordIntegrityFault("enrollment_student")
			return nil, appErrors.Wrap(err, appErrors.ErrIntegrity.Code, appErrors.ErrIntegrity.Status, appErrors.ErrIntegrity.Message)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course roster")
	}

	dataset := export.Dataset{
		Title: fmt.Sprintf("%s - %s", report.ReportType, report.CourseName),
		Notes: []string{
			fmt.Sprintf("Generated by %s on %s", report.GeneratedBy, report.GeneratedAt.Format(dateLayout)),
			fmt.Sprintf("Enrollments: %d", len(roster)),
		},
		Headers: []string{"Name", "Email", "Phone", "Date of Birth", "Enrolled", "Status", "Grade"},
		Rows:    make([]map[string]string, 0, len(roster)),
	}
	for _, row := range roster {
		grade := ""
		if row.Grade != nil {
			grade = *row.Grade
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Name":          row.Student.Name,
			"Email":         row.Student.Email,
			"Phone":         row.Student.Phone,
			"Date of Birth": row.Student.DateOfBirth.Format(dateLayout),
			"Enrolled":      row.EnrollmentDate.Format(dateLayout),
			"Status":        string(row.Status),
			"Grade":         grade,
		})
	}

	base := fmt.Sprintf("report_%s_%s", exportSlug(report.CourseName), time.Now().UTC().Format("20060102"))
	doc, err := s.render(format, base, dataset)
	if err != nil {
		if errors.Is(err, export.ErrUnsupportedFormat) {
			return nil, fieldError("invalid export request", "format", "oneof", "format must be one of csv pdf")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report export")
	}
	return doc, nil
}

func exportSlug(value string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case b.Len() > 0 && !strings.HasSuffix(b.String(), "_"):
			b.WriteByte('_')
		}
	}
	slug := strings.TrimSuffix(b.String(), "_")
	if slug == "" {
		return "course"
	}
	return slug
}
