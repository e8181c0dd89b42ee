package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-admin-api/internal/dto"
)

// DashboardRepository computes dashboard aggregates directly in SQL.
type DashboardRepository struct {
	db *sqlx.DB
}

// NewDashboardRepository constructs a DashboardRepository.
func NewDashboardRepository(db *sqlx.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// Totals counts courses, students, enrollments and reports.
func (r *DashboardRepository) Totals(ctx context.Context) (*dto.DashboardTotals, error) {
	const query = `SELECT
	(SELECT COUNT(*) FROM courses) AS courses,
	(SELECT COUNT(*) FROM students) AS students,
	(SELECT COUNT(*) FROM enrollments) AS enrollments,
	(SELECT COUNT(*) FROM reports) AS reports`
	var totals dto.DashboardTotals
	if err := r.db.GetContext(ctx, &totals, query); err != nil {
		return nil, fmt.Errorf("dashboard totals: %w", err)
	}
	return &totals, nil
}
