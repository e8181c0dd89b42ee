package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-admin-api/internal/models"
)

// ReportRepository persists generated report records.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs a ReportRepository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

const reportDetailColumns = "r.id, r.report_type, r.generated_at, r.generated_by, r.course_id, r.created_at, r.updated_at, c.course_name"

// Create inserts a new report.
func (r *ReportRepository) Create(ctx context.Context, report *models.Report) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	report.CreatedAt = now
	report.UpdatedAt = now
	const query = `INSERT INTO reports (id, report_type, generated_at, generated_by, course_id, created_at, updated_at)
        VALUES (:id, :report_type, :generated_at, :generated_by, :course_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, report); err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

// FindByID fetches a report with its course name.
func (r *ReportRepository) FindByID(ctx context.Context, id string) (*models.ReportDetail, error) {
	if !validID(id) {
		return nil, sql.ErrNoRows
	}
	query := fmt.Sprintf("SELECT %s FROM reports r JOIN courses c ON c.id = r.course_id WHERE r.id = $1", reportDetailColumns)
	var report models.ReportDetail
	if err := r.db.GetContext(ctx, &report, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find report: %w", err)
	}
	return &report, nil
}

// List returns reports matching filter, newest first by default.
func (r *ReportRepository) List(ctx context.Context, filter models.ReportFilter) ([]models.ReportDetail, int, error) {
	if filter.CourseID != "" && !validID(filter.CourseID) {
		return []models.ReportDetail{}, 0, nil
	}
	base := "FROM reports r JOIN courses c ON c.id = r.course_id WHERE 1=1"
	var args []interface{}
	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		base += fmt.Sprintf(" AND r.course_id = $%d", len(args))
	}
	if filter.ReportType != "" {
		args = append(args, filter.ReportType)
		base += fmt.Sprintf(" AND r.report_type = $%d", len(args))
	}
	order := sortDirection(filter.SortOrder, "DESC")
	_, size, offset := normalisePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s %s ORDER BY r.generated_at %s, r.created_at %s, r.id ASC LIMIT %d OFFSET %d", reportDetailColumns, base, order, order, size, offset)
	var reports []models.ReportDetail
	if err := r.db.SelectContext(ctx, &reports, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list reports: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count reports: %w", err)
	}
	return reports, total, nil
}

// UpdateType changes the report type.
func (r *ReportRepository) UpdateType(ctx context.Context, id, reportType string) error {
	if !validID(id) {
		return sql.ErrNoRows
	}
	res, err := r.db.ExecContext(ctx, `UPDATE reports SET report_type = $2, updated_at = $3 WHERE id = $1`, id, reportType, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update report: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update report rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a report.
func (r *ReportRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return sql.ErrNoRows
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete report rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountByCourse returns how many reports reference the course.
func (r *ReportRepository) CountByCourse(ctx context.Context, courseID string) (int, error) {
	if !validID(courseID) {
		return 0, nil
	}
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM reports WHERE course_id = $1`, courseID); err != nil {
		return 0, fmt.Errorf("count course reports: %w", err)
	}
	return total, nil
}
