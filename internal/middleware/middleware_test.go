package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stemsi/lms-backend/internal/model"
	"github.com/stemsi/lms-backend/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubValidator map[string]*service.Claims

func (s stubValidator) ValidateToken(tok string) (*service.Claims, error) {
	if tok == "expired" {
		return nil, jwt.ErrTokenExpired
	}
	c, ok := s[tok]
	if !ok {
		return nil, jwt.ErrTokenMalformed
	}
	return c, nil
}

type stubSessions struct{ err error }

func (s stubSessions) ValidateLearnerSession(context.Context, int, string) error { return s.err }

var tokens = stubValidator{
	"learner": {Role: model.RoleLearner, UserID: 1, RegisteredClaims: jwt.RegisteredClaims{ID: "jti-1"}},
	"admin":   {Role: model.RoleAdmin, UserID: 2},
}

func serve(t *testing.T, r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func okHandler(c *gin.Context) { c.String(http.StatusOK, "ok") }

func TestRequireLearnerJWT(t *testing.T) {
	r := gin.New()
	r.GET("/x", RequireLearnerJWT(tokens), okHandler)

	cases := []struct {
		name   string
		header string
		query  string
		status int
		code   string
	}{
		{"missing", "", "", http.StatusUnauthorized, "TOKEN_REQUIRED"},
		{"bad", "Bearer nope", "", http.StatusUnauthorized, "TOKEN_INVALID"},
		{"expired", "Bearer expired", "", http.StatusUnauthorized, "TOKEN_EXPIRED"},
		{"admin", "Bearer admin", "", http.StatusForbidden, "LEARNER_ACCESS_ONLY"},
		{"header", "bearer learner", "", http.StatusOK, ""},
		{"query", "", "learner", http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x?token="+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := serve(t, r, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.code != "" {
				assert.Contains(t, w.Body.String(), tc.code)
			}
		})
	}
}

func TestRequireJWTAndRole(t *testing.T) {
	r := gin.New()
	r.GET("/any", RequireJWT(tokens), RequireRole(model.RoleAdmin, model.RoleLearner), okHandler)
	r.GET("/admin", RequireJWT(tokens), RequireRole(model.RoleAdmin), okHandler)
	r.GET("/ws", RequireLearnerWSAuth(tokens), okHandler)

	req := httptest.NewRequest(http.MethodGet, "/any", nil)
	req.Header.Set("Authorization", "Bearer learner")
	assert.Equal(t, http.StatusOK, serve(t, r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer learner")
	assert.Equal(t, http.StatusForbidden, serve(t, r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer learner")
	assert.Equal(t, http.StatusUnauthorized, serve(t, r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/ws?token=learner", nil)
	assert.Equal(t, http.StatusOK, serve(t, r, req).Code)
}

func TestCheckSingleDeviceSession(t *testing.T) {
	build := func(err error) *gin.Engine {
		r := gin.New()
		r.GET("/x", RequireJWT(tokens), CheckSingleDeviceSession(stubSessions{err: err}), okHandler)
		return r
	}
	req := func(tok string) *http.Request {
		rq := httptest.NewRequest(http.MethodGet, "/x", nil)
		rq.Header.Set("Authorization", "Bearer "+tok)
		return rq
	}

	assert.Equal(t, http.StatusOK, serve(t, build(nil), req("learner")).Code)

	w := serve(t, build(service.ErrSessionInvalidated), req("learner"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "SESSION_INVALIDATED")

	assert.Equal(t, http.StatusOK, serve(t, build(service.ErrSessionInvalidated), req("admin")).Code)
	assert.Equal(t, http.StatusInternalServerError, serve(t, build(io.ErrUnexpectedEOF), req("learner")).Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("a"))

	now = now.Add(10 * time.Minute)
	rl.cleanup()
	rl.mu.Lock()
	assert.Empty(t, rl.visitors)
	rl.mu.Unlock()
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()
	r := gin.New()
	r.POST("/login", rl.Middleware(), okHandler)

	assert.Equal(t, http.StatusOK, serve(t, r, httptest.NewRequest(http.MethodPost, "/login", nil)).Code)
	w := serve(t, r, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestBrotli(t *testing.T) {
	big := strings.Repeat("assessment ", 500)
	r := gin.New()
	r.Use(BrotliWithConfig(BrotliConfig{MinLength: 100, SkipPrefixes: []string{"/raw"}}))
	r.GET("/big", func(c *gin.Context) { c.String(http.StatusOK, big) })
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "tiny") })
	r.GET("/raw/big", func(c *gin.Context) { c.String(http.StatusOK, big) })

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Accept-Encoding", "gzip, br;q=1.0")
		return serve(t, r, req)
	}

	w := get("/big")
	require.Equal(t, "br", w.Header().Get("Content-Encoding"))
	decoded, err := io.ReadAll(brotli.NewReader(bytes.NewReader(w.Body.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, big, string(decoded))

	w = get("/small")
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, "tiny", w.Body.String())

	w = get("/raw/big")
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, big, w.Body.String())
}

func TestCacheHeaders(t *testing.T) {
	r := gin.New()
	r.GET("/c", CacheControl(300), okHandler)
	r.GET("/n", NoStore(), okHandler)

	assert.Equal(t, "private, max-age=300", serve(t, r, httptest.NewRequest(http.MethodGet, "/c", nil)).Header().Get("Cache-Control"))
	assert.Equal(t, "no-store", serve(t, r, httptest.NewRequest(http.MethodGet, "/n", nil)).Header().Get("Cache-Control"))
}
