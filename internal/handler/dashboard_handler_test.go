package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/course-admin-api/internal/dto"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
)

type fakeDashboardSrv struct {
	adminResp  *dto.AdminDashboardResponse
	adminHit   bool
	courseErr  error
	lastCourse string
}

func (f *fakeDashboardSrv) Admin(context.Context) (*dto.AdminDashboardResponse, bool, error) {
	return f.adminResp, f.adminHit, nil
}

func (f *fakeDashboardSrv) Course(_ context.Context, courseID string) (*dto.CourseDashboardResponse, bool, error) {
	f.lastCourse = courseID
	if f.courseErr != nil {
		return nil, false, f.courseErr
	}
	return &dto.CourseDashboardResponse{}, false, nil
}

func TestDashboardHandlerAdminSuccess(t *testing.T) {
	h := NewDashboardHandler(&fakeDashboardSrv{
		adminResp: &dto.AdminDashboardResponse{Totals: dto.DashboardTotals{Courses: 2}},
		adminHit:  true,
	})

	c, rec := newTestContext(http.MethodGet, "/dashboard", nil)
	h.Admin(c)

	assertStatus(t, rec, http.StatusOK)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, true, envelope.Meta["cache_hit"])
	assert.Contains(t, envelope.Meta, "processing_time_ms")
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Contains(t, string(envelope.Data), `"courses":2`)
}

func TestDashboardHandlerCourseNotFound(t *testing.T) {
	svc := &fakeDashboardSrv{courseErr: appErrors.Clone(appErrors.ErrNotFound, "course not found")}
	h := NewDashboardHandler(svc)

	c, rec := newTestContext(http.MethodGet, "/dashboard/c9", nil)
	c.AddParam("courseId", "c9")
	h.Course(c)

	assertStatus(t, rec, http.StatusNotFound)
	assert.Equal(t, "c9", svc.lastCourse)
}
