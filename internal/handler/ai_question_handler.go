package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/lms-backend/internal/model"
	"github.com/stemsi/lms-backend/internal/response"
	"github.com/stemsi/lms-backend/internal/service"
	"github.com/stemsi/lms-backend/internal/validator"
)

// AIQuestionHandler exposes the review queue of generated questions.
type AIQuestionHandler struct {
	aiService *service.AIQuestionService
}

func NewAIQuestionHandler(aiService *service.AIQuestionService) *AIQuestionHandler {
	return &AIQuestionHandler{aiService: aiService}
}

// List godoc
// GET /api/v1/admin/ai-questions?status=pending|approved|rejected|edited
func (h *AIQuestionHandler) List(c *gin.Context) {
	var status *model.AIQuestionStatus
	if raw := strings.ToLower(strings.TrimSpace(c.Query("status"))); raw != "" {
		s := model.AIQuestionStatus(raw)
		switch s {
		case model.AIQuestionPending, model.AIQuestionApproved, model.AIQuestionRejected, model.AIQuestionEdited:
			status = &s
		default:
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
				"status": "must be one of pending, approved, rejected, edited",
			})
			return
		}
	}

	list, err := h.aiService.List(c.Request.Context(), status)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"questions": list})
}

// Get godoc
// GET /api/v1/admin/ai-questions/:id
func (h *AIQuestionHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	q, err := h.aiService.Get(c.Request.Context(), id)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"question": q})
}

// Edit godoc
// PATCH /api/v1/admin/ai-questions/:id
func (h *AIQuestionHandler) Edit(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req model.EditAIQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	q, err := h.aiService.Edit(c.Request.Context(), id, req)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"question": q})
}

// Approve godoc
// POST /api/v1/admin/ai-questions/:id/approve
func (h *AIQuestionHandler) Approve(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req model.ApproveAIQuestionRequest
	if c.Request.ContentLength > 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}
	q, question, err := h.aiService.Approve(c.Request.Context(), id, req)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"ai_question": q, "question": question})
}

// Reject godoc
// POST /api/v1/admin/ai-questions/:id/reject
func (h *AIQuestionHandler) Reject(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	q, err := h.aiService.Reject(c.Request.Context(), id)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"question": q})
}
