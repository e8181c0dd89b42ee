package models

import "time"

// Report records an admin generated report about a course.
type Report struct {
	ID          string    `db:"id" json:"id"`
	ReportType  string    `db:"report_type" json:"report_type"`
	GeneratedAt time.Time `db:"generated_at" json:"generated_at"`
	GeneratedBy string    `db:"generated_by" json:"generated_by"`
	CourseID    string    `db:"course_id" json:"course_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ReportDetail enriches Report with its course name.
type ReportDetail struct {
	Report
	CourseName string `db:"course_name" json:"course_name"`
}

// ReportFilter provides filters for listing reports.
type ReportFilter struct {
	CourseID   string
	ReportType string
	Page       int
	PageSize   int
	SortOrder  string
}

// GenerateReportRequest payload for creating a report.
type GenerateReportRequest struct {
	ReportType  string `json:"report_type" validate:"required,max=255"`
	GeneratedAt string `json:"generated_at" validate:"required,datetime=2006-01-02"`
	CourseID    string `json:"course_id" validate:"required"`
}

// UpdateReportRequest payload for renaming a report type.
type UpdateReportRequest struct {
	ReportType string `json:"report_type" validate:"required,max=255"`
}

// ReportOverview backs the report index: students with courses, courses with
// students, and enrollment counts per course.
type ReportOverview struct {
	Students         []StudentWithCourses    `json:"students"`
	Courses          []CourseWithStudents    `json:"courses"`
	EnrollmentCounts []CourseEnrollmentCount `json:"enrollment_counts"`
	EnrollmentTotals map[string]int          `json:"enrollment_totals"`
}
