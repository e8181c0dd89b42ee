package models

import "time"

// EnrollmentStatus represents the state of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. Any status may follow any other.
const (
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusInactive  EnrollmentStatus = "inactive"
)

// Valid reports whether s is one of the enumerated statuses.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusActive, EnrollmentStatusCompleted, EnrollmentStatusInactive:
		return true
	}
	return false
}

// Enrollment links one student to one course. Name, Email, Phone and DateOfBirth
// are a snapshot taken at enrollment time and do not follow later student edits.
type Enrollment struct {
	ID             string           `db:"id" json:"id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	CourseID       string           `db:"course_id" json:"course_id"`
	EnrollmentDate time.Time        `db:"enrollment_date" json:"enrollment_date"`
	Status         EnrollmentStatus `db:"status" json:"status"`
	Grade          *string          `db:"grade" json:"grade"`
	Name           string           `db:"name" json:"name"`
	Email          string           `db:"email" json:"email"`
	Phone          string           `db:"phone" json:"phone"`
	DateOfBirth    time.Time        `db:"date_of_birth" json:"date_of_birth"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentWithStudent embeds the live student record next to the enrollment.
type EnrollmentWithStudent struct {
	Enrollment
	Student Student `json:"student"`
}

// CourseEnrollments is the ordered roster of a course.
type CourseEnrollments struct {
	Course      Course                  `json:"course"`
	Enrollments []EnrollmentWithStudent `json:"enrollments"`
}

// EnrollmentForm lists the candidates that can be enrolled in a course.
type EnrollmentForm struct {
	Course   Course    `json:"course"`
	Students []Student `json:"students"`
}

// EnrollRequest payload for enrolling a student in a course.
type EnrollRequest struct {
	CourseID       string  `json:"course_id" validate:"required"`
	StudentID      string  `json:"student_id" validate:"required"`
	EnrollmentDate string  `json:"enrollment_date" validate:"required,datetime=2006-01-02"`
	Status         string  `json:"status" validate:"required,oneof=active completed inactive"`
	Grade          *string `json:"grade" validate:"omitempty,max=16"`
	DateOfBirth    string  `json:"date_of_birth" validate:"required,datetime=2006-01-02"`
	Phone          string  `json:"phone" validate:"required,max=32"`
	Name           string  `json:"name" validate:"required,max=255"`
	Email          string  `json:"email" validate:"required,email,max=255"`
}

// UpdateEnrollmentRequest changes status and/or grade. ClearGrade resets the grade to null.
type UpdateEnrollmentRequest struct {
	Status     *string `json:"status" validate:"omitempty,oneof=active completed inactive"`
	Grade      *string `json:"grade" validate:"omitempty,max=16"`
	ClearGrade bool    `json:"clear_grade"`
}
