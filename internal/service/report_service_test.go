package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-admin-api/internal/models"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
	"github.com/noah-isme/course-admin-api/pkg/export"
)

var testActor = models.Identity{UserID: "u1", Email: "admin@example.com", FullName: "Site Admin", Role: models.RoleAdmin}

func TestReportServiceGenerateCapturesActor(t *testing.T) {
	f := newServiceFixture(t)
	f.db.addCourse("3", "Algebra")
	ctx := context.Background()

	report, err := f.reports.Generate(ctx, models.GenerateReportRequest{ReportType: "Roster", GeneratedAt: "2024-03-01", CourseID: "3"}, testActor)
	require.NoError(t, err)
	assert.Equal(t, "Site Admin", report.GeneratedBy)
	assert.Equal(t, "Algebra", report.CourseName)
	assert.Equal(t, "2024-03-01", report.GeneratedAt.Format(dateLayout))

	anonymous := models.Identity{UserID: "u2", Email: "ops@example.com"}
	report, err = f.reports.Generate(ctx, models.GenerateReportRequest{ReportType: "Roster", GeneratedAt: "2024-03-02", CourseID: "3"}, anonymous)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", report.GeneratedBy)
}

func TestReportServiceGenerateValidation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.reports.Generate(ctx, models.GenerateReportRequest{ReportType: "Roster", GeneratedAt: "2024-03-01", CourseID: "missing"}, testActor)
	appErr := requireAppError(t, err, appErrors.ErrValidation)
	assert.Equal(t, "course_id", appErr.Details[0].Field)

	_, err = f.reports.Generate(ctx, models.GenerateReportRequest{CourseID: "3"}, testActor)
	appErr = requireAppError(t, err, appErrors.ErrValidation)
	assert.Len(t, appErr.Details, 2)
	assert.Empty(t, f.db.reports)
}

func TestReportServiceUpdateAndDelete(t *testing.T) {
	f := newServiceFixture(t)
	f.db.addCourse("3", "Algebra")
	ctx := context.Background()

	report, err := f.reports.Generate(ctx, models.GenerateReportRequest{ReportType: "Roster", GeneratedAt: "2024-03-01", CourseID: "3"}, testActor)
	require.NoError(t, err)

	updated, err := f.reports.Update(ctx, report.ID, models.UpdateReportRequest{ReportType: "Grades"})
	require.NoError(t, err)
	assert.Equal(t, "Grades", updated.ReportType)
	assert.Equal(t, "Site Admin", updated.GeneratedBy)

	list, pagination, err := f.reports.List(ctx, models.ReportFilter{CourseID: "3"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, pagination.TotalCount)

	require.NoError(t, f.reports.Delete(ctx, report.ID))
	_, err = f.reports.Get(ctx, report.ID)
	requireAppError(t, err, appErrors.ErrNotFound)
	requireAppError(t, f.reports.Delete(ctx, report.ID), appErrors.ErrNotFound)
	_, err = f.reports.Update(ctx, report.ID, models.UpdateReportRequest{ReportType: "Grades"})
	requireAppError(t, err, appErrors.ErrNotFound)
}

func TestReportServiceAggregateIncludesEmptyCourses(t *testing.T) {
	f := newServiceFixture(t)
	f.db.addCourse("3", "Algebra")
	f.db.addCourse("4", "Biology")
	f.db.addCourse("5", "Biology")
	f.db.addStudent("7", "Ada Lovelace", "ada@example.com")
	f.db.addStudent("8", "Alan Turing", "alan@example.com")
	ctx := context.Background()

	require.NoError(t, f.enrollments.SyncStudentCourses(ctx, "7", []string{"4", "5"}))
	require.NoError(t, f.enrollments.SyncStudentCourses(ctx, "8", []string{"4"}))

	counts, err := f.reports.AggregateEnrollmentCounts(ctx)
	require.NoError(t, err)
	count, ok := counts["Algebra"]
	assert.True(t, ok)
	assert.Equal(t, 0, count)
	assert.Equal(t, 3, counts["Biology"])

	ordered, err := f.reports.EnrollmentCounts(ctx)
	require.NoError(t, err)
	require.Len(t, ordered, 3)
	assert.Equal(t, "Algebra", ordered[0].CourseName)
}

func TestReportServiceOverview(t *testing.T) {
	f := newServiceFixture(t)
	f.db.addCourse("3", "Algebra")
	f.db.addCourse("4", "Biology")
	f.db.addStudent("7", "Ada Lovelace", "ada@example.com")
	require.NoError(t, f.enrollments.SyncStudentCourses(context.Background(), "7", []string{"3"}))

	overview, err := f.reports.Overview(context.Background())
	require.NoError(t, err)
	require.Len(t, overview.Students, 1)
	assert.Len(t, overview.Students[0].Courses, 1)
	require.Len(t, overview.Courses, 2)
	assert.Len(t, overview.Courses[0].Students, 1)
	assert.Empty(t, overview.Courses[1].Students)
	assert.Len(t, overview.EnrollmentCounts, 2)
	assert.Equal(t, map[string]int{"Algebra": 1, "Biology": 0}, overview.EnrollmentTotals)
}

func TestReportServiceExportCSV(t *testing.T) {
	f := newServiceFixture(t)
	f.db.addCourse("3", "Algebra & Geometry")
	f.db.addStudent("7", "Ada Lovelace", "ada@example.com")
	ctx := context.Background()
	_, err := f.enrollments.Enroll(ctx, enrollRequest("7", "3"))
	require.NoError(t, err)
	report, err := f.reports.Generate(ctx, models.GenerateReportRequest{ReportType: "Roster", GeneratedAt: "2024-03-01", CourseID: "3"}, testActor)
	require.NoError(t, err)

	doc, err := f.reports.Export(ctx, report.ID, "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", doc.ContentType)
	assert.Contains(t, doc.Filename, "report_algebra_geometry_")

	reader := csv.NewReader(bytes.NewReader(doc.Data))
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Ada Lovelace", records[1][0])
	assert.Equal(t, "active", records[1][5])

	pdf, err := f.reports.Export(ctx, report.ID, "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", pdf.ContentType)
	assert.True(t, bytes.HasPrefix(pdf.Data, []byte("%PDF")))

	_, err = f.reports.Export(ctx, report.ID, "xlsx")
	requireAppError(t, err, appErrors.ErrValidation)
}

func TestReportServiceExportDanglingStudentIsIntegrityFault(t *testing.T) {
	f := newServiceFixture(t)
	f.db.addCourse("3", "Algebra")
	f.db.addStudent("7", "Ada Lovelace", "ada@example.com")
	ctx := context.Background()
	_, err := f.enrollments.Enroll(ctx, enrollRequest("7", "3"))
	require.NoError(t, err)
	report, err := f.reports.Generate(ctx, models.GenerateReportRequest{ReportType: "Roster", GeneratedAt: "2024-03-01", CourseID: "3"}, testActor)
	require.NoError(t, err)
	delete(f.db.students, "7")

	_, err = f.reports.Export(ctx, report.ID, "csv")
	requireAppError(t, err, appErrors.ErrIntegrity)
	assert.Contains(t, scrape(t, f.metrics), `integrity_faults_total{kind="enrollment_student"} 1`)
}

func TestReportServiceExportRenderFailureIsInternal(t *testing.T) {
	f := newServiceFixture(t)
	f.db.addCourse("3", "Algebra")
	ctx := context.Background()
	report, err := f.reports.Generate(ctx, models.GenerateReportRequest{ReportType: "Roster", GeneratedAt: "2024-03-01", CourseID: "3"}, testActor)
	require.NoError(t, err)

	f.reports.render = func(string, string, export.Dataset) (*export.Document, error) {
		return nil, errors.New("pdf: font not found")
	}
	_, err = f.reports.Export(ctx, report.ID, "pdf")
	requireAppError(t, err, appErrors.ErrInternal)

	f.reports.render = export.Render
	_, err = f.reports.Export(ctx, report.ID, "docx")
	appErr := requireAppError(t, err, appErrors.ErrValidation)
	require.Len(t, appErr.Details, 1)
	assert.Equal(t, "format", appErr.Details[0].Field)
}

func TestExportSlug(t *testing.T) {
	assert.Equal(t, "algebra_i", exportSlug("  Algebra I "))
	assert.Equal(t, "course", exportSlug("!!!"))
}
