package models

import "time"

// Course is a teachable unit students can enroll in.
type Course struct {
	ID          string    `db:"id" json:"id"`
	CourseName  string    `db:"course_name" json:"course_name"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// CourseFilter encapsulates allowed search parameters for listing courses.
type CourseFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// CreateCourseRequest payload for creating a course.
type CreateCourseRequest struct {
	CourseName  string  `json:"course_name" validate:"required,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

// UpdateCourseRequest payload for updating a course.
type UpdateCourseRequest struct {
	CourseName  string  `json:"course_name" validate:"required,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

// CourseEnrollmentCount is the number of enrollments attached to a course.
type CourseEnrollmentCount struct {
	CourseID   string `db:"course_id" json:"course_id"`
	CourseName string `db:"course_name" json:"course_name"`
	Count      int    `db:"enrollment_count" json:"count"`
}

// CourseWithStudents lists the students enrolled in a course.
type CourseWithStudents struct {
	Course
	Students []Student `json:"students"`
}
