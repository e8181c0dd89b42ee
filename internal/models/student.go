package models

import "time"

// Student represents a learner registered with the institution.
type Student struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	Phone        string    `db:"phone" json:"phone"`
	DateOfBirth  time.Time `db:"date_of_birth" json:"date_of_birth"`
	ProfileImage *string   `db:"profile_image" json:"profile_image,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	CourseID  string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// StudentProfile is the editable part of a student record.
// A nil CourseIDs leaves memberships untouched; an empty slice removes them all.
type StudentProfile struct {
	Name        string   `json:"name" form:"name" validate:"required,max=255"`
	Email       string   `json:"email" form:"email" validate:"required,email,max=255"`
	Phone       string   `json:"phone" form:"phone" validate:"required,max=15"`
	DateOfBirth string   `json:"date_of_birth" form:"date_of_birth" validate:"required,datetime=2006-01-02"`
	CourseIDs   []string `json:"course_ids" form:"course_ids" validate:"omitempty,dive,required"`
}

// ImageUpload carries a raw profile image as received from the client.
type ImageUpload struct {
	Filename string
	Data     []byte
}

// StudentWithCourses contains the student with every course they are enrolled in.
type StudentWithCourses struct {
	Student
	Courses []Course `json:"courses"`
}

// SyncCoursesRequest replaces the full set of a student's course memberships.
type SyncCoursesRequest struct {
	CourseIDs []string `json:"course_ids" validate:"dive,required"`
}
