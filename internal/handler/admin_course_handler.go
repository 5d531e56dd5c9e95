package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/lms-backend/internal/model"
	"github.com/stemsi/lms-backend/internal/response"
	"github.com/stemsi/lms-backend/internal/service"
	"github.com/stemsi/lms-backend/internal/validator"
)

// CourseHandler handles course authoring.
type CourseHandler struct {
	courseService *service.CourseService
}

func NewCourseHandler(courseService *service.CourseService) *CourseHandler {
	return &CourseHandler{courseService: courseService}
}

// ListCourses godoc
// GET /api/v1/admin/courses
func (h *CourseHandler) ListCourses(c *gin.Context) {
	courses, err := h.courseService.List(c.Request.Context())
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"courses": courses})
}

// GetCourse godoc
// GET /api/v1/admin/courses/:course_id
func (h *CourseHandler) GetCourse(c *gin.Context) {
	courseID, ok := uuidParam(c, "course_id")
	if !ok {
		return
	}
	course, err := h.courseService.Get(c.Request.Context(), courseID)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"course": course})
}

// CreateCourse godoc
// POST /api/v1/admin/courses
func (h *CourseHandler) CreateCourse(c *gin.Context) {
	var req model.CreateCourseRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	course, err := h.courseService.Create(c.Request.Context(), req)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"course": course})
}

// CreateModule godoc
// POST /api/v1/admin/courses/:course_id/modules
func (h *CourseHandler) CreateModule(c *gin.Context) {
	courseID, ok := uuidParam(c, "course_id")
	if !ok {
		return
	}
	var req model.CreateModuleRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	module, err := h.courseService.CreateModule(c.Request.Context(), courseID, req)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"module": module})
}

// CreateContent godoc
// POST /api/v1/admin/courses/:course_id/modules/:module_id/content
func (h *CourseHandler) CreateContent(c *gin.Context) {
	courseID, ok := uuidParam(c, "course_id")
	if !ok {
		return
	}
	moduleID, ok := uuidParam(c, "module_id")
	if !ok {
		return
	}
	var req model.CreateContentRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	item, err := h.courseService.CreateContent(c.Request.Context(), courseID, moduleID, req)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"content": item})
}

func contentParams(c *gin.Context) (courseID, moduleID, contentID uuid.UUID, ok bool) {
	if courseID, ok = uuidParam(c, "course_id"); !ok {
		return
	}
	if moduleID, ok = uuidParam(c, "module_id"); !ok {
		return
	}
	contentID, ok = uuidParam(c, "content_id")
	return
}
