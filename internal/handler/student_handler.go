package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/pkg/response"
)

const profileImageField = "profile_image"

type studentService interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentWithCourses, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.StudentWithCourses, error)
	Create(ctx context.Context, profile models.StudentProfile, image *models.ImageUpload) (*models.StudentWithCourses, error)
	Update(ctx context.Context, id string, profile models.StudentProfile, image *models.ImageUpload) (*models.StudentWithCourses, error)
	Delete(ctx context.Context, id string) error
}

type studentCourseSyncer interface {
	SyncStudentCourses(ctx context.Context, studentID string, courseIDs []string) error
}

// StudentHandler exposes student endpoints.
type StudentHandler struct {
	students       studentService
	syncer         studentCourseSyncer
	maxUploadBytes int64
}

// NewStudentHandler constructs StudentHandler. Uploads are read up to
// maxUploadBytes plus one byte, leaving the size check to image validation.
func NewStudentHandler(students studentService, syncer studentCourseSyncer, maxUploadBytes int64) *StudentHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 2048 * 1024
	}
	return &StudentHandler{students: students, syncer: syncer, maxUploadBytes: maxUploadBytes}
}

// List godoc
// @Summary List students with their courses
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Param search query string false "Search by name or email"
// @Param courseId query string false "Only students enrolled in this course"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param sort query string false "Sort column (name, email, created_at)"
// @Param order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	filter := models.StudentFilter{
		Search:    strings.TrimSpace(c.Query("search")),
		CourseID:  c.Query("courseId"),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	filter.Page, filter.PageSize = pageParams(c)

	students, pagination, err := h.students.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Get godoc
// @Summary Get student with courses
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.students.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Create godoc
// @Summary Create student
// @Description Accepts JSON or multipart/form-data. Multipart requests may carry a profile_image file and repeated course_ids fields.
// @Tags Students
// @Accept json,mpfd
// @Produce json
// @Security BearerAuth
// @Param payload body models.StudentProfile false "Student payload"
// @Param profile_image formData file false "Profile image (jpeg, png, gif, svg)"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	profile, image, err := h.bindProfile(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	student, err := h.students.Create(c.Request.Context(), profile, image)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// Update godoc
// @Summary Update student
// @Description Omitting course_ids leaves memberships untouched; sending an empty list removes them all.
// @Tags Students
// @Accept json,mpfd
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Param payload body models.StudentProfile false "Student payload"
// @Param profile_image formData file false "Replacement profile image"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	profile, image, err := h.bindProfile(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	student, err := h.students.Update(c.Request.Context(), c.Param("id"), profile, image)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Delete godoc
// @Summary Delete student, their enrollments and profile image
// @Tags Students
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	if err := h.students.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SyncCourses godoc
// @Summary Replace the student's course memberships
// @Tags Students
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Param payload body models.SyncCoursesRequest true "Target course ids"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/courses [put]
func (h *StudentHandler) SyncCourses(c *gin.Context) {
	var req models.SyncCoursesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid course selection"))
		return
	}
	if req.CourseIDs == nil {
		req.CourseIDs = []string{}
	}
	id := c.Param("id")
	if err := h.syncer.SyncStudentCourses(c.Request.Context(), id, req.CourseIDs); err != nil {
		response.Error(c, err)
		return
	}
	student, err := h.students.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// bindProfile reads the profile from JSON or a multipart form. For multipart
// bodies course_ids stays nil unless the field is present at all.
func (h *StudentHandler) bindProfile(c *gin.Context) (models.StudentProfile, *models.ImageUpload, error) {
	var profile models.StudentProfile
	if c.ContentType() != binding.MIMEMultipartPOSTForm {
		if err := c.ShouldBindJSON(&profile); err != nil {
			return profile, nil, invalidPayload(err, "invalid student payload")
		}
		return profile, nil, nil
	}

	if err := c.ShouldBindWith(&profile, binding.FormMultipart); err != nil {
		return profile, nil, invalidPayload(err, "invalid student payload")
	}
	profile.CourseIDs = formCourseIDs(c)

	image, err := h.readImage(c)
	if err != nil {
		return profile, nil, err
	}
	return profile, image, nil
}

func formCourseIDs(c *gin.Context) []string {
	form := c.Request.MultipartForm
	if form == nil {
		return nil
	}
	values, present := form.Value["course_ids"]
	if !present {
		values, present = form.Value["course_ids[]"]
	}
	if !present {
		return nil
	}
	ids := make([]string, 0, len(values))
	for _, value := range values {
		for _, id := range strings.Split(value, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func (h *StudentHandler) readImage(c *gin.Context) (*models.ImageUpload, error) {
	header, err := c.FormFile(profileImageField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, invalidPayload(err, "invalid profile image")
	}
	file, err := header.Open()
	if err != nil {
		return nil, invalidPayload(err, "invalid profile image")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		return nil, invalidPayload(err, "invalid profile image")
	}
	return &models.ImageUpload{Filename: header.Filename, Data: data}, nil
}
