package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/lms-backend/internal/middleware"
	"github.com/stemsi/lms-backend/internal/model"
	"github.com/stemsi/lms-backend/internal/response"
	"github.com/stemsi/lms-backend/internal/service"
	"github.com/stemsi/lms-backend/internal/validator"
)

// LearnerHandler serves the learner portal: the assessment lobby, REST submit and courses.
type LearnerHandler struct {
	assessmentService *service.AssessmentService
	attemptService    *service.AttemptService
	courseService     *service.CourseService
}

// NewLearnerHandler creates a new LearnerHandler.
func NewLearnerHandler(
	assessmentService *service.AssessmentService,
	attemptService *service.AttemptService,
	courseService *service.CourseService,
) *LearnerHandler {
	return &LearnerHandler{
		assessmentService: assessmentService,
		attemptService:    attemptService,
		courseService:     courseService,
	}
}

// ListAssessments godoc
// GET /api/v1/learner/assessments?filter=all|upcoming|completed|practice|graded&q=
func (h *LearnerHandler) ListAssessments(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	filter, err := service.ParseAssessmentFilter(c.Query("filter"))
	if err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
			"filter": "must be one of all, upcoming, completed, practice, graded",
		})
		return
	}

	list, err := h.assessmentService.ListForLearner(c.Request.Context(), claims.UserID, filter, c.Query("q"))
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"assessments": list})
}

// GetAssessment godoc
// GET /api/v1/learner/assessments/:id
// Returns the public payload. Correct answers never leave the server.
func (h *LearnerHandler) GetAssessment(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	payload, err := h.assessmentService.GetPayload(c.Request.Context(), id)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"assessment": payload})
}

// SubmitAssessment godoc
// POST /api/v1/learner/assessments/:id/submit
// Grades a whole answer set for clients that do not hold a session socket.
func (h *LearnerHandler) SubmitAssessment(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req model.SubmitAssessmentRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.attemptService.Submit(c.Request.Context(), claims.UserID, id, req)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"attempt_id": res.AttemptID,
		"score":      res.Score,
		"completed":  res.Completed,
		"feedback":   res.Feedback,
	})
}

// ListCourses godoc
// GET /api/v1/learner/courses
func (h *LearnerHandler) ListCourses(c *gin.Context) {
	courses, err := h.courseService.List(c.Request.Context())
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"courses": courses})
}

// GetCourse godoc
// GET /api/v1/learner/courses/:course_id
func (h *LearnerHandler) GetCourse(c *gin.Context) {
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

// GetModule godoc
// GET /api/v1/learner/courses/:course_id/modules/:module_id
func (h *LearnerHandler) GetModule(c *gin.Context) {
	courseID, ok := uuidParam(c, "course_id")
	if !ok {
		return
	}
	moduleID, ok := uuidParam(c, "module_id")
	if !ok {
		return
	}
	module, err := h.courseService.GetModule(c.Request.Context(), courseID, moduleID)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"module": module})
}

// ModuleAssessments godoc
// GET /api/v1/learner/courses/:course_id/modules/:module_id/assessments
func (h *LearnerHandler) ModuleAssessments(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	courseID, ok := uuidParam(c, "course_id")
	if !ok {
		return
	}
	moduleID, ok := uuidParam(c, "module_id")
	if !ok {
		return
	}
	if _, err := h.courseService.GetModule(c.Request.Context(), courseID, moduleID); err != nil {
		failWith(c, err)
		return
	}

	list, err := h.assessmentService.ListForModule(c.Request.Context(), claims.UserID, moduleID)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"assessments": list})
}

// GetContent godoc
// GET /api/v1/learner/courses/:course_id/modules/:module_id/content/:content_id
func (h *LearnerHandler) GetContent(c *gin.Context) {
	courseID, moduleID, contentID, ok := contentParams(c)
	if !ok {
		return
	}
	item, err := h.courseService.GetContent(c.Request.Context(), courseID, moduleID, contentID)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"content": item})
}

// CompleteContent godoc
// POST /api/v1/learner/courses/:course_id/modules/:module_id/content/:content_id/complete
func (h *LearnerHandler) CompleteContent(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	courseID, moduleID, contentID, ok := contentParams(c)
	if !ok {
		return
	}
	progress, err := h.courseService.MarkCompleted(c.Request.Context(), claims.UserID, courseID, moduleID, contentID)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"progress": progress})
}

// CourseProgress godoc
// GET /api/v1/learner/courses/:course_id/progress
func (h *LearnerHandler) CourseProgress(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	courseID, ok := uuidParam(c, "course_id")
	if !ok {
		return
	}
	progress, err := h.courseService.Progress(c.Request.Context(), claims.UserID, courseID)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"progress": progress})
}
