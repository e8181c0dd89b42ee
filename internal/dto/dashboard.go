package dto

import (
	"time"

	"github.com/noah-isme/course-admin-api/internal/models"
)

// AdminDashboardResponse captures the aggregated admin dashboard payload.
type AdminDashboardResponse struct {
	Totals           DashboardTotals                `json:"totals"`
	EnrollmentCounts []models.CourseEnrollmentCount `json:"enrollmentCounts"`
	GeneratedAt      time.Time                      `json:"generatedAt"`
}

// DashboardTotals counts every top level entity.
type DashboardTotals struct {
	Courses     int `json:"courses" db:"courses"`
	Students    int `json:"students" db:"students"`
	Enrollments int `json:"enrollments" db:"enrollments"`
	Reports     int `json:"reports" db:"reports"`
}

// CourseDashboardResponse summarises a single course.
type CourseDashboardResponse struct {
	Course           models.Course  `json:"course"`
	TotalEnrollments int            `json:"totalEnrollments"`
	StatusBreakdown  map[string]int `json:"statusBreakdown"`
	GradedCount      int            `json:"gradedCount"`
	ReportCount      int            `json:"reportCount"`
	GeneratedAt      time.Time      `json:"generatedAt"`
}

// EnrollmentStatusCount is one row of a per status aggregate.
type EnrollmentStatusCount struct {
	Status string `db:"status"`
	Count  int    `db:"total"`
	Graded int    `db:"graded"`
}
