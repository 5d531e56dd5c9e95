package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/lms-backend/internal/middleware"
	"github.com/stemsi/lms-backend/internal/model"
	"github.com/stemsi/lms-backend/internal/response"
	"github.com/stemsi/lms-backend/internal/service"
	"github.com/stemsi/lms-backend/internal/validator"
)

// AssessmentHandler handles assessment management endpoints.
type AssessmentHandler struct {
	assessmentService *service.AssessmentService
	attemptService    *service.AttemptService
}

// NewAssessmentHandler creates a new AssessmentHandler.
func NewAssessmentHandler(assessmentService *service.AssessmentService, attemptService *service.AttemptService) *AssessmentHandler {
	return &AssessmentHandler{
		assessmentService: assessmentService,
		attemptService:    attemptService,
	}
}

// ListAssessments godoc
// GET /api/v1/admin/assessments?status=DRAFT|PUBLISHED|ARCHIVED&page=&per_page=
func (h *AssessmentHandler) ListAssessments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	var status *model.AssessmentStatus
	if raw := strings.ToUpper(strings.TrimSpace(c.Query("status"))); raw != "" {
		s := model.AssessmentStatus(raw)
		switch s {
		case model.AssessmentStatusDraft, model.AssessmentStatusPublished, model.AssessmentStatusArchived:
			status = &s
		default:
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
				"status": "must be one of DRAFT, PUBLISHED, ARCHIVED",
			})
			return
		}
	}

	list, pagination, err := h.assessmentService.List(c.Request.Context(), status, page, perPage)
	if err != nil {
		failWith(c, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"assessments": list}, pagination)
}

// CreateAssessment godoc
// POST /api/v1/admin/assessments
// Creates a draft assessment with its questions and correct answers.
func (h *AssessmentHandler) CreateAssessment(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateAssessmentRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	a, err := h.assessmentService.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"assessment": a})
}

// GetAssessment godoc
// GET /api/v1/admin/assessments/:id
// Returns the assessment with its questions, correct answers included.
func (h *AssessmentHandler) GetAssessment(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	a, questions, err := h.assessmentService.GetWithQuestions(c.Request.Context(), id)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"assessment": a, "questions": questions})
}

// AddQuestion godoc
// POST /api/v1/admin/assessments/:id/questions
func (h *AssessmentHandler) AddQuestion(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req model.CreateQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	q, err := h.assessmentService.AddQuestion(c.Request.Context(), id, req)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"question": q})
}

// PublishAssessment godoc
// POST /api/v1/admin/assessments/:id/publish
// Publishes an assessment: caches payload + answer key to Redis, changes status.
func (h *AssessmentHandler) PublishAssessment(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.assessmentService.Publish(c.Request.Context(), id); err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "assessment published and cached"})
}

// ArchiveAssessment godoc
// POST /api/v1/admin/assessments/:id/archive
func (h *AssessmentHandler) ArchiveAssessment(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.assessmentService.Archive(c.Request.Context(), id); err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "assessment archived"})
}

// RefreshCache godoc
// POST /api/v1/admin/assessments/:id/refresh-cache
func (h *AssessmentHandler) RefreshCache(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.assessmentService.RefreshCache(c.Request.Context(), id); err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "cache refreshed"})
}

// Results godoc
// GET /api/v1/admin/assessments/:id/results
func (h *AssessmentHandler) Results(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	results, err := h.attemptService.Results(c.Request.Context(), id)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"results": results})
}

// AttemptDetail godoc
// GET /api/v1/admin/attempts/:attempt_id
func (h *AssessmentHandler) AttemptDetail(c *gin.Context) {
	id, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	detail, err := h.attemptService.Detail(c.Request.Context(), id)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": detail})
}
