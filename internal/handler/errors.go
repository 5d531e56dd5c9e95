package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/lms-backend/internal/model"
	"github.com/stemsi/lms-backend/internal/repository"
	"github.com/stemsi/lms-backend/internal/response"
	"github.com/stemsi/lms-backend/internal/service"
	"github.com/stemsi/lms-backend/internal/session"
)

type errMapping struct {
	target error
	status int
	code   response.ErrCode
}

var errMappings = []errMapping{
	{repository.ErrNotFound, http.StatusNotFound, response.ErrNotFound},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, response.ErrInvalidCredentials},
	{service.ErrSessionAlreadyActive, http.StatusConflict, response.ErrSessionActive},
	{service.ErrNoActiveSession, http.StatusUnauthorized, response.ErrSessionInvalidated},
	{service.ErrSessionInvalidated, http.StatusUnauthorized, response.ErrSessionInvalidated},
	{service.ErrAssessmentNotAvailable, http.StatusNotFound, response.ErrAssessmentNotAvailable},
	{service.ErrAssessmentNotDraft, http.StatusConflict, response.ErrAssessmentNotDraft},
	{service.ErrAssessmentNotPublished, http.StatusConflict, response.ErrAssessmentNotAvailable},
	{service.ErrAssessmentAlreadyArchive, http.StatusConflict, response.ErrConflict},
	{model.ErrNoQuestions, http.StatusBadRequest, response.ErrNoQuestions},
	{service.ErrUnknownAssessmentFilter, http.StatusBadRequest, response.ErrValidation},
	{service.ErrAttemptInProgress, http.StatusConflict, response.ErrAttemptInProgress},
	{service.ErrAttemptAlreadyFinalized, http.StatusConflict, response.ErrAttemptFinalized},
	{service.ErrEmptySubmission, http.StatusBadRequest, response.ErrNothingAnswered},
	{service.ErrInvalidSubmission, http.StatusBadRequest, response.ErrInvalidAnswer},
	{service.ErrAnswerKeyMissing, http.StatusServiceUnavailable, response.ErrGradingUnavailable},
	{service.ErrAIQuestionReviewed, http.StatusConflict, response.ErrAIQuestionReviewed},
	{service.ErrAIQuestionNoTarget, http.StatusBadRequest, response.ErrValidation},
	{service.ErrAIQuestionMalformed, http.StatusBadRequest, response.ErrValidation},
	{session.ErrNothingAnswered, http.StatusBadRequest, response.ErrNothingAnswered},
	{session.ErrInvalidAnswer, http.StatusBadRequest, response.ErrInvalidAnswer},
	{session.ErrUnknownQuestion, http.StatusBadRequest, response.ErrInvalidAnswer},
	{session.ErrNoGradingResponse, http.StatusServiceUnavailable, response.ErrGradingUnavailable},
}

// classify maps a domain error to its HTTP status and code.
func classify(err error) (int, response.ErrCode) {
	for _, m := range errMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, response.ErrInternal
}

// failWith writes the mapped error response.
func failWith(c *gin.Context, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	response.Fail(c, status, code)
}

// uuidParam parses a UUID path parameter, answering 400 when it is malformed.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
