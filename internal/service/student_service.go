package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/internal/repository"
	"github.com/noah-isme/course-admin-api/pkg/database"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
	"github.com/noah-isme/course-admin-api/pkg/storage"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student, enrollments []*models.Enrollment) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string, beforeCommit func(context.Context) error) error
	CoursesByStudents(ctx context.Context, studentIDs []string) (map[string][]models.Course, error)
}

type courseSyncer interface {
	SyncStudentCourses(ctx context.Context, studentID string, courseIDs []string) error
}

type objectStore interface {
	Put(ctx context.Context, namespace string, data []byte, contentType string) (string, error)
	Exists(ctx context.Context, ref string) (bool, error)
	Delete(ctx context.Context, ref string) error
}

// StudentServiceParams groups constructor dependencies.
type StudentServiceParams struct {
	Students    studentRepository
	Courses     courseLookup
	Enrollments courseSyncer
	Store       objectStore
	Images      *ImageProcessor
	Cache       *CacheService
	Metrics     *MetricsService
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// StudentService handles the student lifecycle including stored profile images.
type StudentService struct {
	repo        studentRepository
	courses     courseLookup
	enrollments courseSyncer
	store       objectStore
	images      *ImageProcessor
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewStudentService constructs the student service.
func NewStudentService(params StudentServiceParams) *StudentService {
	validate := params.Validator
	if validate == nil {
		validate = NewValidator()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	images := params.Images
	if images == nil {
		images = NewImageProcessor(DefaultImagePolicy())
	}
	return &StudentService{
		repo:        params.Students,
		courses:     params.Courses,
		enrollments: params.Enrollments,
		store:       params.Store,
		images:      images,
		cache:       params.Cache,
		metrics:     params.Metrics,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// List returns students with their courses and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentWithCourses, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	result, err := s.withCourses(ctx, students)
	if err != nil {
		return nil, nil, err
	}
	return result, newPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a student with their courses.
func (s *StudentService) Get(ctx context.Context, id string) (*models.StudentWithCourses, error) {
	student, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	result, err := s.withCourses(ctx, []models.Student{*student})
	if err != nil {
		return nil, err
	}
	return &result[0], nil
}

// Create validates the profile, stores the optional image and inserts the
// student with its initial enrollments. A storage failure aborts before any row
// is written; a failed insert removes the image it stored.
func (s *StudentService) Create(ctx context.Context, profile models.StudentProfile, image *models.ImageUpload) (*models.StudentWithCourses, error) {
	if err := validateStruct(s.validator, profile, "invalid student payload"); err != nil {
		return nil, err
	}
	email := normaliseEmail(profile.Email)
	if err := s.ensureEmailAvailable(ctx, email, ""); err != nil {
		return nil, err
	}
	courseIDs, err := ensureCoursesExist(ctx, s.courses, profile.CourseIDs)
	if err != nil {
		return nil, err
	}
	prepared, err := s.prepareImage(image)
	if err != nil {
		return nil, err
	}

	student := &models.Student{
		Name:        strings.TrimSpace(profile.Name),
		Email:       email,
		Phone:       strings.TrimSpace(profile.Phone),
		DateOfBirth: parseDate(profile.DateOfBirth),
	}
	if prepared != nil {
		ref, err := s.putImage(ctx, prepared)
		if err != nil {
			return nil, err
		}
		student.ProfileImage = &ref
	}

	today := s.today()
	enrollments := make([]*models.Enrollment, 0, len(courseIDs))
	for _, courseID := range courseIDs {
		enrollments = append(enrollments, snapshotEnrollment(student, courseID, today))
	}

	if err := s.repo.Create(ctx, student, enrollments); err != nil {
		if student.ProfileImage != nil {
			s.discardImage(ctx, *student.ProfileImage)
		}
		if database.IsUniqueViolation(err, "students_email_key") {
			return nil, emailTakenError()
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	s.metrics.RecordEnrollments(string(models.EnrollmentStatusActive), len(enrollments))
	s.cache.InvalidateDashboards(ctx)
	s.logger.Info("student created", zap.String("student_id", student.ID), zap.Int("courses", len(enrollments)))
	return s.Get(ctx, student.ID)
}

// Update modifies a student. Email uniqueness ignores the student's own record.
// Non-nil CourseIDs replace the memberships; a new image replaces the old one.
func (s *StudentService) Update(ctx context.Context, id string, profile models.StudentProfile, image *models.ImageUpload) (*models.StudentWithCourses, error) {
	if err := validateStruct(s.validator, profile, "invalid student payload"); err != nil {
		return nil, err
	}
	student, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	email := normaliseEmail(profile.Email)
	if err := s.ensureEmailAvailable(ctx, email, id); err != nil {
		return nil, err
	}
	if profile.CourseIDs != nil {
		if _, err := ensureCoursesExist(ctx, s.courses, profile.CourseIDs); err != nil {
			return nil, err
		}
	}
	prepared, err := s.prepareImage(image)
	if err != nil {
		return nil, err
	}

	previousImage := student.ProfileImage
	student.Name = strings.TrimSpace(profile.Name)
	student.Email = email
	student.Phone = strings.TrimSpace(profile.Phone)
	student.DateOfBirth = parseDate(profile.DateOfBirth)
	if prepared != nil {
		ref, err := s.putImage(ctx, prepared)
		if err != nil {
			return nil, err
		}
		student.ProfileImage = &ref
	}

	if err := s.repo.Update(ctx, student); err != nil {
		if prepared != nil {
			s.discardImage(ctx, *student.ProfileImage)
		}
		if database.IsUniqueViolation(err, "students_email_key") {
			return nil, emailTakenError()
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	if prepared != nil && previousImage != nil {
		s.discardImage(ctx, *previousImage)
	}
	if profile.CourseIDs != nil {
		if err := s.enrollments.SyncStudentCourses(ctx, id, profile.CourseIDs); err != nil {
			return nil, err
		}
	}
	s.cache.InvalidateDashboards(ctx)
	return s.Get(ctx, id)
}

// Delete detaches the student's enrollments, removes the stored image and deletes
// the record. Row deletes and the image delete share one transaction that only
// commits once the image is gone, so a storage fault leaves everything in place.
// If the commit itself fails after the image was removed the record keeps a
// dangling image reference; that case is logged as an integrity fault.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	student, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	imageRemoved := false
	removeImage := func(ctx context.Context) error {
		if student.ProfileImage == nil || s.store == nil {
			return nil
		}
		ref := *student.ProfileImage
		exists, err := s.store.Exists(ctx, ref)
		if err != nil {
			s.metrics.RecordStorageFault("exists")
			return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to check profile image")
		}
		if !exists {
			s.logger.Warn("profile image already missing", zap.String("student_id", id), zap.String("ref", ref))
			return nil
		}
		if err := s.store.Delete(ctx, ref); err != nil {
			s.metrics.RecordStorageFault("delete")
			return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to delete profile image")
		}
		imageRemoved = true
		return nil
	}

	if err := s.repo.Delete(ctx, id, removeImage); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		case errors.Is(err, appErrors.ErrStorage):
			return err
		case errors.Is(err, repository.ErrCommitFailed) && imageRemoved:
			s.logger.Error("student delete not committed after image removal",
				zap.String("student_id", id), zap.String("ref", *student.ProfileImage), zap.Error(err))
			s.metrics.RecordIntegrityFault("student_image")
			return appErrors.Wrap(err, appErrors.ErrIntegrity.Code, appErrors.ErrIntegrity.Status, appErrors.ErrIntegrity.Message)
		default:
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
		}
	}
	s.logger.Info("student deleted", zap.String("student_id", id))
	s.cache.InvalidateDashboards(ctx)
	return nil
}

func (s *StudentService) load(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

func (s *StudentService) withCourses(ctx context.Context, students []models.Student) ([]models.StudentWithCourses, error) {
	ids := make([]string, 0, len(students))
	for _, student := range students {
		ids = append(ids, student.ID)
	}
	courses, err := s.repo.CoursesByStudents(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student courses")
	}
	result := make([]models.StudentWithCourses, 0, len(students))
	for _, student := range students {
		list := courses[student.ID]
		if list == nil {
			list = []models.Course{}
		}
		result = append(result, models.StudentWithCourses{Student: student, Courses: list})
	}
	return result, nil
}

func (s *StudentService) ensureEmailAvailable(ctx context.Context, email, excludeID string) error {
	taken, err := s.repo.ExistsByEmail(ctx, email, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate email")
	}
	if taken {
		return emailTakenError()
	}
	return nil
}

func (s *StudentService) prepareImage(image *models.ImageUpload) (*PreparedImage, error) {
	if image == nil {
		return nil, nil
	}
	return s.images.Prepare(image)
}

func (s *StudentService) putImage(ctx context.Context, image *PreparedImage) (string, error) {
	if s.store == nil {
		return "", appErrors.Clone(appErrors.ErrStorage, "object storage is not configured")
	}
	ref, err := s.store.Put(ctx, storage.NamespaceStudentImages, image.Data, image.ContentType)
	if err != nil {
		s.metrics.RecordStorageFault("put")
		return "", appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to store profile image")
	}
	s.metrics.RecordImageStored()
	return ref, nil
}

// discardImage removes an image no row points at; failures leave an orphan that is only logged.
func (s *StudentService) discardImage(ctx context.Context, ref string) {
	if s.store == nil {
		return
	}
	if err := s.store.Delete(ctx, ref); err != nil {
		s.metrics.RecordStorageFault("delete")
		s.logger.Warn("orphaned profile image", zap.String("ref", ref), zap.Error(err))
	}
}

func (s *StudentService) today() time.Time {
	now := s.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func emailTakenError() error {
	return fieldError("invalid student payload", "email", "unique", "has already been taken")
}
