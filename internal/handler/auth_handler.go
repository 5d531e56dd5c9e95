package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/lms-backend/internal/middleware"
	"github.com/stemsi/lms-backend/internal/model"
	"github.com/stemsi/lms-backend/internal/response"
	"github.com/stemsi/lms-backend/internal/service"
	"github.com/stemsi/lms-backend/internal/validator"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService *service.AuthService
	log         zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		log:         log.With().Str("component", "auth_handler").Logger(),
	}
}

// LearnerLogin godoc
// POST /api/v1/auth/learner/login
// Validates email + password, rejects a second active session, returns JWT.
func (h *AuthHandler) LearnerLogin(c *gin.Context) {
	h.login(c, model.RoleLearner)
}

// AdminLogin godoc
// POST /api/v1/auth/admin/login
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	h.login(c, model.RoleAdmin)
}

func (h *AuthHandler) login(c *gin.Context, role model.Role) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.authService.Login(c.Request.Context(), req, role)
	if err != nil {
		h.log.Debug().Err(err).Str("role", string(role)).Msg("Login rejected")
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// Me godoc
// GET /api/v1/auth/me
// Returns the profile of the currently authenticated account.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	user, err := h.authService.Me(c.Request.Context(), claims)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"user": user})
}

// Logout godoc
// POST /api/v1/auth/logout
// Ends the learner's single-device session. Admin tokens simply expire.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.authService.Logout(c.Request.Context(), claims); err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// ResetLearnerSession godoc
// DELETE /api/v1/admin/learners/:learner_id/session
// Lets a learner stuck on another device log in again.
func (h *AuthHandler) ResetLearnerSession(c *gin.Context) {
	learnerID, err := strconv.Atoi(c.Param("learner_id"))
	if err != nil || learnerID <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.authService.ResetLearnerSession(c.Request.Context(), learnerID); err != nil {
		failWith(c, err)
		return
	}

	h.log.Info().Int("learner_id", learnerID).Msg("Learner session reset")
	response.Success(c, http.StatusOK, gin.H{})
}
