package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/noah-isme/course-admin-api/internal/dto"
	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/internal/repository"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
)

var fixedNow = time.Date(2024, 3, 1, 15, 4, 5, 0, time.UTC)

// memDB is an in-memory stand-in for the relational store shared by the repository fakes.
type memDB struct {
	courses     map[string]models.Course
	students    map[string]models.Student
	enrollments map[string]models.Enrollment
	reports     map[string]models.Report
	seq         int
	failCommit  bool
}

func newMemDB() *memDB {
	return &memDB{
		courses:     map[string]models.Course{},
		students:    map[string]models.Student{},
		enrollments: map[string]models.Enrollment{},
		reports:     map[string]models.Report{},
	}
}

func (db *memDB) nextID(prefix string) string {
	db.seq++
	return fmt.Sprintf("%s-%d", prefix, db.seq)
}

func (db *memDB) addCourse(id, name string) models.Course {
	course := models.Course{ID: id, CourseName: name, CreatedAt: fixedNow, UpdatedAt: fixedNow}
	db.courses[id] = course
	return course
}

func (db *memDB) addStudent(id, name, email string) models.Student {
	student := models.Student{
		ID:          id,
		Name:        name,
		Email:       email,
		Phone:       "555-0100",
		DateOfBirth: time.Date(2004, 5, 6, 0, 0, 0, 0, time.UTC),
		CreatedAt:   fixedNow,
		UpdatedAt:   fixedNow,
	}
	db.students[id] = student
	return student
}

func (db *memDB) studentCourseIDs(studentID string) []string {
	var ids []string
	seen := map[string]bool{}
	for _, e := range db.enrollments {
		if e.StudentID == studentID && !seen[e.CourseID] {
			seen[e.CourseID] = true
			ids = append(ids, e.CourseID)
		}
	}
	sort.Strings(ids)
	return ids
}

func (db *memDB) insertEnrollment(e *models.Enrollment) error {
	if e.ID == "" {
		e.ID = db.nextID("enrollment")
	}
	e.CreatedAt = fixedNow
	e.UpdatedAt = fixedNow
	db.enrollments[e.ID] = *e
	return nil
}

func (db *memDB) Totals(context.Context) (*dto.DashboardTotals, error) {
	return &dto.DashboardTotals{
		Courses:     len(db.courses),
		Students:    len(db.students),
		Enrollments: len(db.enrollments),
		Reports:     len(db.reports),
	}, nil
}

func sortedCourses(db *memDB) []models.Course {
	result := make([]models.Course, 0, len(db.courses))
	for _, c := range db.courses {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CourseName == result[j].CourseName {
			return result[i].ID < result[j].ID
		}
		return result[i].CourseName < result[j].CourseName
	})
	return result
}

func sortedStudents(db *memDB) []models.Student {
	result := make([]models.Student, 0, len(db.students))
	for _, s := range db.students {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

type memCourseRepo struct{ db *memDB }

func (r memCourseRepo) List(_ context.Context, _ models.CourseFilter) ([]models.Course, int, error) {
	courses := sortedCourses(r.db)
	return courses, len(courses), nil
}

func (r memCourseRepo) ListAll(context.Context) ([]models.Course, error) {
	return sortedCourses(r.db), nil
}

func (r memCourseRepo) FindByID(_ context.Context, id string) (*models.Course, error) {
	course, ok := r.db.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &course, nil
}

func (r memCourseRepo) ExistingIDs(_ context.Context, ids []string) ([]string, error) {
	var found []string
	for _, id := range ids {
		if _, ok := r.db.courses[id]; ok {
			found = append(found, id)
		}
	}
	return found, nil
}

func (r memCourseRepo) Create(_ context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = r.db.nextID("course")
	}
	course.CreatedAt = fixedNow
	course.UpdatedAt = fixedNow
	r.db.courses[course.ID] = *course
	return nil
}

func (r memCourseRepo) Update(_ context.Context, course *models.Course) error {
	if _, ok := r.db.courses[course.ID]; !ok {
		return sql.ErrNoRows
	}
	r.db.courses[course.ID] = *course
	return nil
}

func (r memCourseRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.db.courses[id]; !ok {
		return sql.ErrNoRows
	}
	for key, e := range r.db.enrollments {
		if e.CourseID == id {
			delete(r.db.enrollments, key)
		}
	}
	delete(r.db.courses, id)
	return nil
}

func (r memCourseRepo) ListWithStudents(context.Context) ([]models.CourseWithStudents, error) {
	result := []models.CourseWithStudents{}
	for _, course := range sortedCourses(r.db) {
		students := []models.Student{}
		for _, student := range sortedStudents(r.db) {
			for _, id := range r.db.studentCourseIDs(student.ID) {
				if id == course.ID {
					students = append(students, student)
				}
			}
		}
		result = append(result, models.CourseWithStudents{Course: course, Students: students})
	}
	return result, nil
}

type memStudentRepo struct{ db *memDB }

func (r memStudentRepo) List(_ context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	var result []models.Student
	for _, student := range sortedStudents(r.db) {
		if filter.Search != "" && !strings.Contains(strings.ToLower(student.Name+" "+student.Email), strings.ToLower(filter.Search)) {
			continue
		}
		result = append(result, student)
	}
	return result, len(result), nil
}

func (r memStudentRepo) ListAll(context.Context) ([]models.Student, error) {
	return sortedStudents(r.db), nil
}

func (r memStudentRepo) FindByID(_ context.Context, id string) (*models.Student, error) {
	student, ok := r.db.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &student, nil
}

func (r memStudentRepo) ExistsByEmail(_ context.Context, email, excludeID string) (bool, error) {
	for _, student := range r.db.students {
		if strings.EqualFold(student.Email, email) && student.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (r memStudentRepo) Create(_ context.Context, student *models.Student, enrollments []*models.Enrollment) error {
	if student.ID == "" {
		student.ID = r.db.nextID("student")
	}
	student.CreatedAt = fixedNow
	student.UpdatedAt = fixedNow
	r.db.students[student.ID] = *student
	for _, e := range enrollments {
		e.StudentID = student.ID
		if err := r.db.insertEnrollment(e); err != nil {
			return err
		}
	}
	return nil
}

func (r memStudentRepo) Update(_ context.Context, student *models.Student) error {
	if _, ok := r.db.students[student.ID]; !ok {
		return sql.ErrNoRows
	}
	r.db.students[student.ID] = *student
	return nil
}

func (r memStudentRepo) Delete(ctx context.Context, id string, beforeCommit func(context.Context) error) error {
	if _, ok := r.db.students[id]; !ok {
		return sql.ErrNoRows
	}
	if beforeCommit != nil {
		if err := beforeCommit(ctx); err != nil {
			return err
		}
	}
	if r.db.failCommit {
		return fmt.Errorf("%w: connection reset", repository.ErrCommitFailed)
	}
	for key, e := range r.db.enrollments {
		if e.StudentID == id {
			delete(r.db.enrollments, key)
		}
	}
	delete(r.db.students, id)
	return nil
}

func (r memStudentRepo) CoursesByStudents(_ context.Context, ids []string) (map[string][]models.Course, error) {
	result := make(map[string][]models.Course, len(ids))
	for _, id := range ids {
		for _, courseID := range r.db.studentCourseIDs(id) {
			result[id] = append(result[id], r.db.courses[courseID])
		}
	}
	return result, nil
}

type memEnrollmentRepo struct{ db *memDB }

func (r memEnrollmentRepo) Create(_ context.Context, e *models.Enrollment) error {
	return r.db.insertEnrollment(e)
}

func (r memEnrollmentRepo) FindByID(_ context.Context, id string) (*models.Enrollment, error) {
	e, ok := r.db.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (r memEnrollmentRepo) ListByCourse(_ context.Context, courseID string) ([]models.EnrollmentWithStudent, error) {
	var result []models.EnrollmentWithStudent
	for _, e := range r.db.enrollments {
		if e.CourseID != courseID {
			continue
		}
		student, ok := r.db.students[e.StudentID]
		if !ok {
			return nil, fmt.Errorf("%w: enrollment %s", repository.ErrDanglingReference, e.ID)
		}
		result = append(result, models.EnrollmentWithStudent{Enrollment: e, Student: student})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].EnrollmentDate.Equal(result[j].EnrollmentDate) {
			return result[i].ID < result[j].ID
		}
		return result[i].EnrollmentDate.Before(result[j].EnrollmentDate)
	})
	return result, nil
}

func (r memEnrollmentRepo) CourseIDsByStudent(_ context.Context, studentID string) ([]string, error) {
	return r.db.studentCourseIDs(studentID), nil
}

func (r memEnrollmentRepo) Sync(_ context.Context, studentID string, add []*models.Enrollment, remove []string) error {
	drop := make(map[string]bool, len(remove))
	for _, id := range remove {
		drop[id] = true
	}
	for key, e := range r.db.enrollments {
		if e.StudentID == studentID && drop[e.CourseID] {
			delete(r.db.enrollments, key)
		}
	}
	for _, e := range add {
		if err := r.db.insertEnrollment(e); err != nil {
			return err
		}
	}
	return nil
}

func (r memEnrollmentRepo) DeleteByStudent(_ context.Context, studentID string) (int64, error) {
	var removed int64
	for key, e := range r.db.enrollments {
		if e.StudentID == studentID {
			delete(r.db.enrollments, key)
			removed++
		}
	}
	return removed, nil
}

func (r memEnrollmentRepo) Update(_ context.Context, e *models.Enrollment) error {
	if _, ok := r.db.enrollments[e.ID]; !ok {
		return sql.ErrNoRows
	}
	r.db.enrollments[e.ID] = *e
	return nil
}

func (r memEnrollmentRepo) CountsByCourse(context.Context) ([]models.CourseEnrollmentCount, error) {
	result := []models.CourseEnrollmentCount{}
	for _, course := range sortedCourses(r.db) {
		count := 0
		for _, e := range r.db.enrollments {
			if e.CourseID == course.ID {
				count++
			}
		}
		result = append(result, models.CourseEnrollmentCount{CourseID: course.ID, CourseName: course.CourseName, Count: count})
	}
	return result, nil
}

func (r memEnrollmentRepo) StatusBreakdown(_ context.Context, courseID string) ([]dto.EnrollmentStatusCount, error) {
	byStatus := map[string]*dto.EnrollmentStatusCount{}
	for _, e := range r.db.enrollments {
		if e.CourseID != courseID {
			continue
		}
		row, ok := byStatus[string(e.Status)]
		if !ok {
			row = &dto.EnrollmentStatusCount{Status: string(e.Status)}
			byStatus[string(e.Status)] = row
		}
		row.Count++
		if e.Grade != nil {
			row.Graded++
		}
	}
	var result []dto.EnrollmentStatusCount
	for _, row := range byStatus {
		result = append(result, *row)
	}
	return result, nil
}

type memReportRepo struct{ db *memDB }

func (r memReportRepo) Create(_ context.Context, report *models.Report) error {
	if report.ID == "" {
		report.ID = r.db.nextID("report")
	}
	report.CreatedAt = fixedNow
	report.UpdatedAt = fixedNow
	r.db.reports[report.ID] = *report
	return nil
}

func (r memReportRepo) FindByID(_ context.Context, id string) (*models.ReportDetail, error) {
	report, ok := r.db.reports[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.ReportDetail{Report: report, CourseName: r.db.courses[report.CourseID].CourseName}, nil
}

func (r memReportRepo) List(_ context.Context, filter models.ReportFilter) ([]models.ReportDetail, int, error) {
	var result []models.ReportDetail
	for _, report := range r.db.reports {
		if filter.CourseID != "" && report.CourseID != filter.CourseID {
			continue
		}
		result = append(result, models.ReportDetail{Report: report, CourseName: r.db.courses[report.CourseID].CourseName})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, len(result), nil
}

func (r memReportRepo) UpdateType(_ context.Context, id, reportType string) error {
	report, ok := r.db.reports[id]
	if !ok {
		return sql.ErrNoRows
	}
	report.ReportType = reportType
	r.db.reports[id] = report
	return nil
}

func (r memReportRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.db.reports[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.db.reports, id)
	return nil
}

func (r memReportRepo) CountByCourse(_ context.Context, courseID string) (int, error) {
	count := 0
	for _, report := range r.db.reports {
		if report.CourseID == courseID {
			count++
		}
	}
	return count, nil
}

// fakeObjectStore keeps objects in memory and can fail individual operations.
type fakeObjectStore struct {
	objects   map[string][]byte
	seq       int
	putErr    error
	existsErr error
	deleteErr error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}}
}

func (s *fakeObjectStore) Put(_ context.Context, namespace string, data []byte, _ string) (string, error) {
	if s.putErr != nil {
		return "", s.putErr
	}
	s.seq++
	ref := fmt.Sprintf("%s/object-%d", namespace, s.seq)
	s.objects[ref] = append([]byte(nil), data...)
	return ref, nil
}

func (s *fakeObjectStore) Exists(_ context.Context, ref string) (bool, error) {
	if s.existsErr != nil {
		return false, s.existsErr
	}
	_, ok := s.objects[ref]
	return ok, nil
}

func (s *fakeObjectStore) Delete(_ context.Context, ref string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.objects, ref)
	return nil
}

// memCache is a CacheRepository that round-trips values through JSON.
type memCache struct {
	entries map[string][]byte
	gets    int
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}}
}

func (c *memCache) Get(_ context.Context, key string, dest interface{}) error {
	c.gets++
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return nil
}

func (c *memCache) DeleteByPattern(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

type serviceFixture struct {
	db          *memDB
	store       *fakeObjectStore
	cache       *memCache
	courses     *CourseService
	students    *StudentService
	enrollments *EnrollmentService
	reports     *ReportService
	dashboard   *DashboardService
	metrics     *MetricsService
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	db := newMemDB()
	store := newFakeObjectStore()
	cacheRepo := newMemCache()
	cache := NewCacheService(cacheRepo, nil, time.Minute, nil, true)
	metrics := NewMetricsService()

	courseRepo := memCourseRepo{db: db}
	studentRepo := memStudentRepo{db: db}
	enrollmentRepo := memEnrollmentRepo{db: db}
	reportRepo := memReportRepo{db: db}

	enrollments := NewEnrollmentService(EnrollmentServiceParams{
		Enrollments: enrollmentRepo,
		Courses:     courseRepo,
		Students:    studentRepo,
		Cache:       cache,
	})
	enrollments.now = func() time.Time { return fixedNow }

	students := NewStudentService(StudentServiceParams{
		Students:    studentRepo,
		Courses:     courseRepo,
		Enrollments: enrollments,
		Store:       store,
		Images:      NewImageProcessor(ImagePolicy{MaxDimension: 64}),
		Cache:       cache,
	})
	students.now = func() time.Time { return fixedNow }

	dashboard := NewDashboardService(DashboardServiceParams{
		Totals:      db,
		Enrollments: enrollmentRepo,
		Courses:     courseRepo,
		Reports:     reportRepo,
		Cache:       cache,
	})
	dashboard.now = func() time.Time { return fixedNow }

	return &serviceFixture{
		db:          db,
		store:       store,
		cache:       cacheRepo,
		courses:     NewCourseService(courseRepo, reportRepo, cache, nil, nil),
		students:    students,
		enrollments: enrollments,
		reports: NewReportService(ReportServiceParams{
			Reports:     reportRepo,
			Courses:     courseRepo,
			Students:    studentRepo,
			Enrollments: enrollmentRepo,
			Cache:       cache,
			Metrics:     metrics,
		}),
		dashboard: dashboard,
		metrics:   metrics,
	}
}

func requireAppError(t *testing.T, err error, target *appErrors.Error) *appErrors.Error {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %s, got %v", target.Code, err)
	}
	return appErrors.FromError(err)
}
