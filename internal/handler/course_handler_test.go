package handler

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-admin-api/internal/models"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
)

type fakeCourseService struct {
	filter models.CourseFilter
	err    error
}

func (f *fakeCourseService) List(_ context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	f.filter = filter
	return []models.Course{{ID: "c1", CourseName: "Algebra"}}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: 1}, nil
}

func (f *fakeCourseService) Get(_ context.Context, id string) (*models.Course, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Course{ID: id}, nil
}

func (f *fakeCourseService) Create(_ context.Context, req models.CreateCourseRequest) (*models.Course, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Course{ID: "c1", CourseName: req.CourseName}, nil
}

func (f *fakeCourseService) Update(_ context.Context, id string, req models.UpdateCourseRequest) (*models.Course, error) {
	return &models.Course{ID: id, CourseName: req.CourseName}, f.err
}

func (f *fakeCourseService) Delete(context.Context, string) error { return f.err }

type fakeRosterService struct{ err error }

func (f *fakeRosterService) ListForCourse(_ context.Context, courseID string) (*models.CourseEnrollments, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.CourseEnrollments{Course: models.Course{ID: courseID}, Enrollments: []models.EnrollmentWithStudent{}}, nil
}

func (f *fakeRosterService) EnrollmentForm(_ context.Context, courseID string) (*models.EnrollmentForm, error) {
	return &models.EnrollmentForm{Course: models.Course{ID: courseID}, Students: []models.Student{}}, f.err
}

func TestCourseHandlerListPassesPagination(t *testing.T) {
	svc := &fakeCourseService{}
	h := NewCourseHandler(svc, &fakeRosterService{})

	c, rec := newTestContext(http.MethodGet, "/courses?search=alg&page=2&limit=5&sort=course_name&order=desc", nil)
	h.List(c)

	assertStatus(t, rec, http.StatusOK)
	assert.Equal(t, models.CourseFilter{Search: "alg", Page: 2, PageSize: 5, SortBy: "course_name", SortOrder: "desc"}, svc.filter)
	envelope := decodeEnvelope(t, rec)
	require.NotNil(t, envelope.Pagination)
	assert.Equal(t, 1, envelope.Pagination.TotalCount)
}

func TestCourseHandlerCreateValidationDetails(t *testing.T) {
	svc := &fakeCourseService{err: appErrors.Validation("invalid course payload", appErrors.FieldError{Field: "course_name", Rule: "required", Message: "is required"})}
	h := NewCourseHandler(svc, &fakeRosterService{})

	c, rec := newTestContext(http.MethodPost, "/courses", strings.NewReader(`{}`))
	h.Create(c)

	assertStatus(t, rec, http.StatusBadRequest)
	envelope := decodeEnvelope(t, rec)
	require.Len(t, envelope.Error.Details, 1)
	assert.Equal(t, "course_name", envelope.Error.Details[0].Field)
}

func TestCourseHandlerEnrollmentsIntegrityFaultIsGeneric(t *testing.T) {
	h := NewCourseHandler(&fakeCourseService{}, &fakeRosterService{err: appErrors.Wrap(assert.AnError, appErrors.ErrIntegrity.Code, appErrors.ErrIntegrity.Status, appErrors.ErrIntegrity.Message)})

	c, rec := newTestContext(http.MethodGet, "/courses/c1/enrollments", nil)
	c.AddParam("id", "c1")
	h.Enrollments(c)

	assertStatus(t, rec, http.StatusInternalServerError)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, "INTEGRITY_FAULT", envelope.Error.Code)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}

func TestCourseHandlerDelete(t *testing.T) {
	h := NewCourseHandler(&fakeCourseService{}, &fakeRosterService{})
	c, _ := newTestContext(http.MethodDelete, "/courses/c1", nil)
	c.AddParam("id", "c1")
	h.Delete(c)
	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
}
