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
)

type enrollmentRepository interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentWithStudent, error)
	CourseIDsByStudent(ctx context.Context, studentID string) ([]string, error)
	Sync(ctx context.Context, studentID string, add []*models.Enrollment, removeCourseIDs []string) error
	DeleteByStudent(ctx context.Context, studentID string) (int64, error)
	Update(ctx context.Context, enrollment *models.Enrollment) error
}

type courseLookup interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ExistingIDs(ctx context.Context, ids []string) ([]string, error)
}

type studentLookup interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ListAll(ctx context.Context) ([]models.Student, error)
}

// EnrollmentServiceParams groups constructor dependencies.
type EnrollmentServiceParams struct {
	Enrollments enrollmentRepository
	Courses     courseLookup
	Students    studentLookup
	Cache       *CacheService
	Metrics     *MetricsService
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// EnrollmentService manages the links between students and courses.
type EnrollmentService struct {
	enrollments enrollmentRepository
	courses     courseLookup
	students    studentLookup
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewEnrollmentService constructs the enrollment service.
func NewEnrollmentService(params EnrollmentServiceParams) *EnrollmentService {
	validate := params.Validator
	if validate == nil {
		validate = NewValidator()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		enrollments: params.Enrollments,
		courses:     params.Courses,
		students:    params.Students,
		cache:       params.Cache,
		metrics:     params.Metrics,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// Enroll links a student to a course. It never mutates the student or the course.
// A student may be enrolled in the same course more than once; each enrollment
// keeps its own date, status and snapshot.
func (s *EnrollmentService) Enroll(ctx context.Context, req models.EnrollRequest) (*models.Enrollment, error) {
	if err := validateStruct(s.validator, req, "invalid enrollment payload"); err != nil {
		return nil, err
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fieldError("invalid enrollment payload", "course_id", "exists", "course does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fieldError("invalid enrollment payload", "student_id", "exists", "student does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	enrollment := &models.Enrollment{
		StudentID:      req.StudentID,
		CourseID:       req.CourseID,
		EnrollmentDate: parseDate(req.EnrollmentDate),
		Status:         models.EnrollmentStatus(req.Status),
		Grade:          normaliseGrade(req.Grade),
		Name:           strings.TrimSpace(req.Name),
		Email:          normaliseEmail(req.Email),
		Phone:          strings.TrimSpace(req.Phone),
		DateOfBirth:    parseDate(req.DateOfBirth),
	}
	if err := s.enrollments.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	s.metrics.RecordEnrollments(string(enrollment.Status), 1)
	s.cache.InvalidateDashboards(ctx)
	return enrollment, nil
}

// ListForCourse returns the course roster ordered by enrollment date, each entry
// with its live student. A roster row whose student is gone is an integrity fault.
func (s *EnrollmentService) ListForCourse(ctx context.Context, courseID string) (*models.CourseEnrollments, error) {
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	roster, err := s.enrollments.ListByCourse(ctx, courseID)
	if err != nil {
		if errors.Is(err, repository.ErrDanglingReference) {
			s.logger.Error("enrollment references missing student", zap.String("course_id", courseID), zap.Error(err))
			s.metrics.RecordIntegrityFault("enrollment_student")
			return nil, appErrors.Wrap(err, appErrors.ErrIntegrity.Code, appErrors.ErrIntegrity.Status, appErrors.ErrIntegrity.Message)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	if roster == nil {
		roster = []models.EnrollmentWithStudent{}
	}
	return &models.CourseEnrollments{Course: *course, Enrollments: roster}, nil
}

// SyncStudentCourses reconciles the student's memberships to exactly courseIDs.
// New links start active, dated today, with a snapshot of the live student.
// An empty courseIDs detaches the student from every course.
func (s *EnrollmentService) SyncStudentCourses(ctx context.Context, studentID string, courseIDs []string) error {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if len(courseIDs) == 0 {
		return s.DetachAll(ctx, studentID)
	}
	target, err := ensureCoursesExist(ctx, s.courses, courseIDs)
	if err != nil {
		return err
	}
	current, err := s.enrollments.CourseIDsByStudent(ctx, studentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student enrollments")
	}

	add, remove := diffMemberships(current, target)
	if len(add) == 0 && len(remove) == 0 {
		return nil
	}
	today := s.today()
	enrollments := make([]*models.Enrollment, 0, len(add))
	for _, courseID := range add {
		enrollments = append(enrollments, snapshotEnrollment(student, courseID, today))
	}
	if err := s.enrollments.Sync(ctx, studentID, enrollments, remove); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sync enrollments")
	}
	s.logger.Info("student courses synced", zap.String("student_id", studentID), zap.Int("added", len(add)), zap.Int("removed", len(remove)))
	s.metrics.RecordEnrollments(string(models.EnrollmentStatusActive), len(add))
	s.cache.InvalidateDashboards(ctx)
	return nil
}

// DetachAll removes every enrollment of the student. Student deletion does the
// same inside its own transaction so the record and its links go together.
func (s *EnrollmentService) DetachAll(ctx context.Context, studentID string) error {
	removed, err := s.enrollments.DeleteByStudent(ctx, studentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to detach enrollments")
	}
	if removed > 0 {
		s.logger.Info("student enrollments detached", zap.String("student_id", studentID), zap.Int64("removed", removed))
		s.cache.InvalidateDashboards(ctx)
	}
	return nil
}

// UpdateEnrollment changes status and/or grade. Any status may follow any other.
func (s *EnrollmentService) UpdateEnrollment(ctx context.Context, id string, req models.UpdateEnrollmentRequest) (*models.Enrollment, error) {
	if err := validateStruct(s.validator, req, "invalid enrollment payload"); err != nil {
		return nil, err
	}
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if req.Status != nil {
		enrollment.Status = models.EnrollmentStatus(*req.Status)
	}
	if req.ClearGrade {
		enrollment.Grade = nil
	} else if req.Grade != nil {
		enrollment.Grade = normaliseGrade(req.Grade)
	}
	if err := s.enrollments.Update(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
	}
	s.cache.InvalidateDashboards(ctx)
	return enrollment, nil
}

// EnrollmentForm returns the course with every student that may be enrolled.
func (s *EnrollmentService) EnrollmentForm(ctx context.Context, courseID string) (*models.EnrollmentForm, error) {
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	students, err := s.students.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	if students == nil {
		students = []models.Student{}
	}
	return &models.EnrollmentForm{Course: *course, Students: students}, nil
}

func (s *EnrollmentService) loadCourse(ctx context.Context, courseID string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

func (s *EnrollmentService) today() time.Time {
	now := s.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// ensureCoursesExist dedupes ids and rejects any that do not reference a course.
func ensureCoursesExist(ctx context.Context, courses courseLookup, courseIDs []string) ([]string, error) {
	ids := dedupe(courseIDs)
	if len(ids) == 0 {
		return ids, nil
	}
	found, err := courses.ExistingIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check courses")
	}
	known := make(map[string]struct{}, len(found))
	for _, id := range found {
		known[id] = struct{}{}
	}
	var details []appErrors.FieldError
	for i, id := range ids {
		if _, ok := known[id]; !ok {
			details = append(details, appErrors.FieldError{
				Field:   fmt.Sprintf("course_ids[%d]", i),
				Rule:    "exists",
				Message: fmt.Sprintf("course %s does not exist", id),
			})
		}
	}
	if len(details) > 0 {
		return nil, appErrors.Validation("unknown courses", details...)
	}
	return ids, nil
}

func diffMemberships(current, target []string) (add, remove []string) {
	currentSet := make(map[string]struct{}, len(current))
	for _, id := range current {
		currentSet[id] = struct{}{}
	}
	targetSet := make(map[string]struct{}, len(target))
	for _, id := range target {
		targetSet[id] = struct{}{}
		if _, ok := currentSet[id]; !ok {
			add = append(add, id)
		}
	}
	for _, id := range current {
		if _, ok := targetSet[id]; !ok {
			remove = append(remove, id)
		}
	}
	return add, remove
}

func snapshotEnrollment(student *models.Student, courseID string, date time.Time) *models.Enrollment {
	return &models.Enrollment{
		StudentID:      student.ID,
		CourseID:       courseID,
		EnrollmentDate: date,
		Status:         models.EnrollmentStatusActive,
		Name:           student.Name,
		Email:          student.Email,
		Phone:          student.Phone,
		DateOfBirth:    student.DateOfBirth,
	}
}

func normaliseGrade(grade *string) *string {
	if grade == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*grade)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
