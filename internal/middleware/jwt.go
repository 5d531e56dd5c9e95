package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stemsi/lms-backend/internal/model"
	"github.com/stemsi/lms-backend/internal/response"
	"github.com/stemsi/lms-backend/internal/service"
)

const (
	// ContextKeyClaims is the Gin context key for JWT claims.
	ContextKeyClaims = "claims"
)

var errTokenMissing = errors.New("authorization header or token query required")

// TokenValidator parses a signed token into claims.
type TokenValidator interface {
	ValidateToken(tokenStr string) (*service.Claims, error)
}

// RequireLearnerJWT validates a learner JWT from the Authorization header.
func RequireLearnerJWT(auth TokenValidator) gin.HandlerFunc {
	return requireRole(auth, model.RoleLearner, response.ErrLearnerAccessOnly, bearerOrQuery)
}

// RequireAdminJWT validates an admin JWT from the Authorization header.
func RequireAdminJWT(auth TokenValidator) gin.HandlerFunc {
	return requireRole(auth, model.RoleAdmin, response.ErrAdminAccessOnly, bearerOrQuery)
}

// RequireLearnerWSAuth validates a learner JWT from the query param ?token=...
// Used for WebSocket upgrade requests.
func RequireLearnerWSAuth(auth TokenValidator) gin.HandlerFunc {
	return requireRole(auth, model.RoleLearner, response.ErrLearnerAccessOnly, func(c *gin.Context) string {
		return c.Query("token")
	})
}

// RequireJWT validates a token of any role. Pair it with RequireRole.
func RequireJWT(auth TokenValidator) gin.HandlerFunc {
	return requireRole(auth, "", response.ErrForbidden, bearerOrQuery)
}

// GetClaims retrieves the JWT claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.Claims)
	if !ok {
		return nil
	}
	return claims
}

func requireRole(auth TokenValidator, role model.Role, forbidden response.ErrCode, extract func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := extract(c)
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := auth.ValidateToken(tokenStr)
		if err != nil {
			code := response.ErrTokenInvalid
			if errors.Is(err, jwt.ErrTokenExpired) {
				code = response.ErrTokenExpired
			}
			response.AbortFail(c, http.StatusUnauthorized, code)
			return
		}

		if role != "" && claims.Role != role {
			response.AbortFail(c, http.StatusForbidden, forbidden)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

func bearerOrQuery(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	// Fallback for EventSource (SSE) which cannot send headers
	return c.Query("token")
}
