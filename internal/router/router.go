package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/lms-backend/internal/config"
	"github.com/stemsi/lms-backend/internal/handler"
	"github.com/stemsi/lms-backend/internal/middleware"
	"github.com/stemsi/lms-backend/internal/model"
	"github.com/stemsi/lms-backend/internal/response"
	"github.com/stemsi/lms-backend/internal/service"
)

// Course content bodies change rarely once published.
const contentMaxAge = 300

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth       *handler.AuthHandler
	Learner    *handler.LearnerHandler
	Assessment *handler.AssessmentHandler
	Course     *handler.CourseHandler
	AIQuestion *handler.AIQuestionHandler
	Session    *handler.SessionHandler
	Monitor    *handler.MonitorHandler
	System     *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// The returned limiter must be stopped on shutdown.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) (*gin.Engine, *middleware.RateLimiter) {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())

	// WebSocket upgrades must reach the handler with an unwrapped writer.
	brotliConfig := middleware.DefaultBrotliConfig
	brotliConfig.SkipPrefixes = []string{"/ws/"}
	router.Use(middleware.BrotliWithConfig(brotliConfig))

	router.GET("/health", handlers.System.Health)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	authLimiter := middleware.NewRateLimiter(cfg.AuthRateLimitMin, time.Minute)
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/learner/login", authLimiter.Middleware(), handlers.Auth.LearnerLogin)
		auth.POST("/admin/login", authLimiter.Middleware(), handlers.Auth.AdminLogin)

		session := auth.Group("")
		session.Use(
			middleware.RequireJWT(authService),
			middleware.CheckSingleDeviceSession(authService),
			middleware.RequireRole(model.RoleLearner, model.RoleAdmin),
			middleware.NoStore(),
		)
		session.GET("/me", handlers.Auth.Me)
		session.POST("/logout", handlers.Auth.Logout)
	}

	// ─── 2. Learner Group (JWT + Single Device) ────────────────────────
	learnerAPI := router.Group("/api/v1/learner")
	learnerAPI.Use(
		middleware.RequireLearnerJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
		middleware.NoStore(),
	)
	{
		learnerAPI.GET("/assessments", handlers.Learner.ListAssessments)
		learnerAPI.GET("/assessments/:id", handlers.Learner.GetAssessment)
		learnerAPI.POST("/assessments/:id/submit", handlers.Learner.SubmitAssessment)

		learnerAPI.GET("/courses", handlers.Learner.ListCourses)
		learnerAPI.GET("/courses/:course_id", handlers.Learner.GetCourse)
		learnerAPI.GET("/courses/:course_id/progress", handlers.Learner.CourseProgress)
		learnerAPI.GET("/courses/:course_id/modules/:module_id", handlers.Learner.GetModule)
		learnerAPI.GET("/courses/:course_id/modules/:module_id/assessments", handlers.Learner.ModuleAssessments)
		learnerAPI.GET("/courses/:course_id/modules/:module_id/content/:content_id", middleware.CacheControl(contentMaxAge), handlers.Learner.GetContent)
		learnerAPI.POST("/courses/:course_id/modules/:module_id/content/:content_id/complete", handlers.Learner.CompleteContent)
	}

	// ─── 3. WebSocket Group (Learner WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		middleware.RequireLearnerWSAuth(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		ws.GET("/learner/assessments/:id/session", handlers.Session.AssessmentSession)
	}

	// ─── 4. Admin Group ────────────────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		adminAPI.GET("/assessments", handlers.Assessment.ListAssessments)
		adminAPI.POST("/assessments", handlers.Assessment.CreateAssessment)
		adminAPI.GET("/assessments/:id", handlers.Assessment.GetAssessment)
		adminAPI.POST("/assessments/:id/questions", handlers.Assessment.AddQuestion)
		adminAPI.POST("/assessments/:id/publish", handlers.Assessment.PublishAssessment)
		adminAPI.POST("/assessments/:id/archive", handlers.Assessment.ArchiveAssessment)
		adminAPI.POST("/assessments/:id/refresh-cache", handlers.Assessment.RefreshCache)
		adminAPI.GET("/assessments/:id/results", handlers.Assessment.Results)
		adminAPI.GET("/assessments/:id/monitor", handlers.Monitor.MonitorAssessmentSSE)
		adminAPI.GET("/attempts/:attempt_id", handlers.Assessment.AttemptDetail)

		adminAPI.GET("/courses", handlers.Course.ListCourses)
		adminAPI.POST("/courses", handlers.Course.CreateCourse)
		adminAPI.GET("/courses/:course_id", handlers.Course.GetCourse)
		adminAPI.POST("/courses/:course_id/modules", handlers.Course.CreateModule)
		adminAPI.POST("/courses/:course_id/modules/:module_id/content", handlers.Course.CreateContent)

		aiGroup := adminAPI.Group("/ai-questions")
		{
			aiGroup.GET("", handlers.AIQuestion.List)
			aiGroup.GET("/:id", handlers.AIQuestion.Get)
			aiGroup.PATCH("/:id", handlers.AIQuestion.Edit)
			aiGroup.PUT("/:id", handlers.AIQuestion.Edit)
			aiGroup.POST("/:id/approve", handlers.AIQuestion.Approve)
			aiGroup.POST("/:id/reject", handlers.AIQuestion.Reject)
		}

		adminAPI.POST("/learners/:learner_id/reset-session", handlers.Auth.ResetLearnerSession)
		adminAPI.GET("/system/metrics", handlers.System.SystemMetricsSSE)
	}

	return router, authLimiter
}
