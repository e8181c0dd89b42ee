package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-admin-api/internal/models"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
)

func TestDashboardServiceAdmin_ComposesAndCaches(t *testing.T) {
	f := newServiceFixture(t)
	f.db.addCourse("3", "Algebra")
	f.db.addCourse("4", "Biology")
	f.db.addStudent("7", "Ada Lovelace", "ada@example.com")
	ctx := context.Background()
	require.NoError(t, f.enrollments.SyncStudentCourses(ctx, "7", []string{"3"}))

	summary, cached, err := f.dashboard.Admin(ctx)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, summary.Totals.Courses)
	assert.Equal(t, 1, summary.Totals.Students)
	assert.Equal(t, 1, summary.Totals.Enrollments)
	require.Len(t, summary.EnrollmentCounts, 2)
	assert.Equal(t, 0, summary.EnrollmentCounts[1].Count)

	again, cached, err := f.dashboard.Admin(ctx)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, summary.Totals, again.Totals)

	require.NoError(t, f.enrollments.SyncStudentCourses(ctx, "7", []string{"3", "4"}))
	fresh, cached, err := f.dashboard.Admin(ctx)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, fresh.Totals.Enrollments)
}

func TestDashboardServiceCourseBreakdown(t *testing.T) {
	f := newServiceFixture(t)
	f.db.addCourse("3", "Algebra")
	f.db.addStudent("7", "Ada Lovelace", "ada@example.com")
	f.db.addStudent("8", "Alan Turing", "alan@example.com")
	ctx := context.Background()

	_, err := f.enrollments.Enroll(ctx, enrollRequest("7", "3"))
	require.NoError(t, err)
	req := enrollRequest("8", "3")
	req.Status = "completed"
	grade := "B+"
	req.Grade = &grade
	_, err = f.enrollments.Enroll(ctx, req)
	require.NoError(t, err)
	f.db.reports["r1"] = models.Report{ID: "r1", CourseID: "3"}

	summary, cached, err := f.dashboard.Course(ctx, "3")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, summary.TotalEnrollments)
	assert.Equal(t, 1, summary.StatusBreakdown["active"])
	assert.Equal(t, 1, summary.StatusBreakdown["completed"])
	assert.Equal(t, 0, summary.StatusBreakdown["inactive"])
	assert.Equal(t, 1, summary.GradedCount)
	assert.Equal(t, 1, summary.ReportCount)

	_, cached, err = f.dashboard.Course(ctx, "3")
	require.NoError(t, err)
	assert.True(t, cached)
}

func TestDashboardServiceCourseNotFound(t *testing.T) {
	f := newServiceFixture(t)
	_, _, err := f.dashboard.Course(context.Background(), "missing")
	requireAppError(t, err, appErrors.ErrNotFound)
}

func TestDashboardServiceWithoutCache(t *testing.T) {
	db := newMemDB()
	db.addCourse("3", "Algebra")
	svc := NewDashboardService(DashboardServiceParams{
		Totals:      db,
		Enrollments: memEnrollmentRepo{db: db},
		Courses:     memCourseRepo{db: db},
		Reports:     memReportRepo{db: db},
	})

	summary, cached, err := svc.Admin(context.Background())
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 1, summary.Totals.Courses)
}
