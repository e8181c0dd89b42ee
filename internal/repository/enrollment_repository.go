package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-admin-api/internal/dto"
	"github.com/noah-isme/course-admin-api/internal/models"
)

// EnrollmentRepository handles persistence for student-course links.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs a new repository instance.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = "e.id, e.student_id, e.course_id, e.enrollment_date, e.status, e.grade, e.name, e.email, e.phone, e.date_of_birth, e.created_at, e.updated_at"

const insertEnrollmentQuery = `INSERT INTO enrollments (id, student_id, course_id, enrollment_date, status, grade, name, email, phone, date_of_birth, created_at, updated_at)
        VALUES (:id, :student_id, :course_id, :enrollment_date, :status, :grade, :name, :email, :phone, :date_of_birth, :created_at, :updated_at)`

func insertEnrollment(ctx context.Context, ext sqlx.ExtContext, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now
	if _, err := sqlx.NamedExecContext(ctx, ext, insertEnrollmentQuery, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Create inserts a single enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	return insertEnrollment(ctx, r.db, enrollment)
}

// FindByID fetches an enrollment by ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if !validID(id) {
		return nil, sql.ErrNoRows
	}
	query := fmt.Sprintf("SELECT %s FROM enrollments e WHERE e.id = $1", enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

type enrollmentStudentRow struct {
	models.Enrollment
	StudentRefID     sql.NullString `db:"s_id"`
	StudentName      sql.NullString `db:"s_name"`
	StudentEmail     sql.NullString `db:"s_email"`
	StudentPhone     sql.NullString `db:"s_phone"`
	StudentBirthDate sql.NullTime   `db:"s_date_of_birth"`
	StudentImage     *string        `db:"s_profile_image"`
	StudentCreatedAt sql.NullTime   `db:"s_created_at"`
	StudentUpdatedAt sql.NullTime   `db:"s_updated_at"`
}

// ListByCourse returns the course roster ordered by enrollment date then id,
// each row carrying the live student. A row whose student is missing yields
// ErrDanglingReference.
func (r *EnrollmentRepository) ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentWithStudent, error) {
	if !validID(courseID) {
		return []models.EnrollmentWithStudent{}, nil
	}
	query := fmt.Sprintf(`SELECT %s,
        s.id AS s_id, s.name AS s_name, s.email AS s_email, s.phone AS s_phone, s.date_of_birth AS s_date_of_birth,
        s.profile_image AS s_profile_image, s.created_at AS s_created_at, s.updated_at AS s_updated_at
        FROM enrollments e
        LEFT JOIN students s ON s.id = e.student_id
        WHERE e.course_id = $1
        ORDER BY e.enrollment_date ASC, e.id ASC`, enrollmentColumns)
	var rows []enrollmentStudentRow
	if err := r.db.SelectContext(ctx, &rows, query, courseID); err != nil {
		return nil, fmt.Errorf("list course enrollments: %w", err)
	}

	result := make([]models.EnrollmentWithStudent, 0, len(rows))
	for _, row := range rows {
		if !row.StudentRefID.Valid {
			return nil, fmt.Errorf("enrollment %s references student %s: %w", row.ID, row.StudentID, ErrDanglingReference)
		}
		result = append(result, models.EnrollmentWithStudent{
			Enrollment: row.Enrollment,
			Student: models.Student{
				ID:           row.StudentRefID.String,
				Name:         row.StudentName.String,
				Email:        row.StudentEmail.String,
				Phone:        row.StudentPhone.String,
				DateOfBirth:  row.StudentBirthDate.Time,
				ProfileImage: row.StudentImage,
				CreatedAt:    row.StudentCreatedAt.Time,
				UpdatedAt:    row.StudentUpdatedAt.Time,
			},
		})
	}
	return result, nil
}

// CourseIDsByStudent lists the course IDs a student is enrolled in.
func (r *EnrollmentRepository) CourseIDsByStudent(ctx context.Context, studentID string) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT DISTINCT course_id FROM enrollments WHERE student_id = $1 ORDER BY course_id`, studentID); err != nil {
		return nil, fmt.Errorf("list student course ids: %w", err)
	}
	return ids, nil
}

// Sync inserts add and removes the links to removeCourseIDs for the student in one transaction.
func (r *EnrollmentRepository) Sync(ctx context.Context, studentID string, add []*models.Enrollment, removeCourseIDs []string) (err error) {
	if len(add) == 0 && len(removeCourseIDs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enrollment sync: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if len(removeCourseIDs) > 0 {
		var query string
		var args []interface{}
		query, args, err = sqlx.In(`DELETE FROM enrollments WHERE student_id = ? AND course_id IN (?)`, studentID, removeCourseIDs)
		if err != nil {
			return fmt.Errorf("build enrollment removal: %w", err)
		}
		if _, err = tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("remove enrollments: %w", err)
		}
	}
	for _, enrollment := range add {
		enrollment.StudentID = studentID
		if err = insertEnrollment(ctx, tx, enrollment); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment sync: %w", err)
	}
	return nil
}

// DeleteByStudent removes every enrollment of the student.
func (r *EnrollmentRepository) DeleteByStudent(ctx context.Context, studentID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM enrollments WHERE student_id = $1`, studentID)
	if err != nil {
		return 0, fmt.Errorf("detach enrollments: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("detach enrollments rows: %w", err)
	}
	return affected, nil
}

// Update persists status and grade changes.
func (r *EnrollmentRepository) Update(ctx context.Context, enrollment *models.Enrollment) error {
	enrollment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE enrollments SET status = :status, grade = :grade, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	return nil
}

// CountsByCourse returns the enrollment count of every course, zero included, ordered by course name.
func (r *EnrollmentRepository) CountsByCourse(ctx context.Context) ([]models.CourseEnrollmentCount, error) {
	const query = `SELECT c.id AS course_id, c.course_name, COUNT(e.id) AS enrollment_count
        FROM courses c
        LEFT JOIN enrollments e ON e.course_id = c.id
        GROUP BY c.id, c.course_name
        ORDER BY c.course_name ASC, c.id ASC`
	var counts []models.CourseEnrollmentCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count enrollments by course: %w", err)
	}
	return counts, nil
}

// StatusBreakdown aggregates a course's enrollments per status.
func (r *EnrollmentRepository) StatusBreakdown(ctx context.Context, courseID string) ([]dto.EnrollmentStatusCount, error) {
	const query = `SELECT status, COUNT(*) AS total, COUNT(grade) AS graded
        FROM enrollments
        WHERE course_id = $1
        GROUP BY status
        ORDER BY status`
	var rows []dto.EnrollmentStatusCount
	if err := r.db.SelectContext(ctx, &rows, query, courseID); err != nil {
		return nil, fmt.Errorf("enrollment status breakdown: %w", err)
	}
	return rows, nil
}
