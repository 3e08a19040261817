package handlers

import (
	"net/http"
	"time"

	"github.com/SAP-F-2025/evaluation-access-service/internal/services"
	"github.com/SAP-F-2025/evaluation-access-service/internal/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	AllowedOrigins []string
	// TokenParser verifies bearer tokens; nil trusts the X-User-ID header
	TokenParser TokenParser
}

type HandlerManager struct {
	accessHandler     *AccessHandler
	attemptHandler    *AttemptHandler
	courseHandler     *CourseHandler
	evaluationHandler *EvaluationHandler
	adminHandler      *AdminHandler

	logger utils.Logger
	cfg    RouterConfig
}

func NewHandlerManager(
	coordinator *services.AccessCoordinator,
	reports *services.ReportService,
	logger utils.Logger,
	cfg RouterConfig,
) *HandlerManager {
	return &HandlerManager{
		accessHandler:     NewAccessHandler(coordinator, logger),
		attemptHandler:    NewAttemptHandler(coordinator, logger),
		courseHandler:     NewCourseHandler(coordinator.Versions(), logger),
		evaluationHandler: NewEvaluationHandler(coordinator, logger),
		adminHandler:      NewAdminHandler(coordinator, reports, logger),
		logger:            logger,
		cfg:               cfg,
	}
}

// NewRouter builds a gin engine with the shared middleware and all routes
func (hm *HandlerManager) NewRouter() *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		utils.RequestID(),
		utils.LoggerMiddleware(hm.logger),
		utils.ContextLogger(hm.logger),
		cors.New(hm.corsConfig()),
	)
	hm.SetupRoutes(router)
	return router
}

func (hm *HandlerManager) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", utils.RequestIDHeader, userIDHeader, userRoleHeader},
		ExposeHeaders: []string{utils.RequestIDHeader, "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	origins := hm.cfg.AllowedOrigins
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", HealthCheck)

	v1 := router.Group("/api/v1")
	v1.Use(AuthMiddleware(hm.cfg.TokenParser, hm.logger), RequestInfo())
	{
		evaluations := v1.Group("/evaluations")
		{
			evaluations.POST("", RequireRole(RoleInstructor), hm.evaluationHandler.CreateEvaluation)
			evaluations.GET("/:evaluation_id", hm.evaluationHandler.GetEvaluation)
			evaluations.PUT("/:evaluation_id", RequireRole(RoleInstructor), hm.evaluationHandler.UpdateEvaluation)

			evaluations.GET("/:evaluation_id/access", hm.accessHandler.GetAccess)
			evaluations.GET("/:evaluation_id/access/countdown", hm.accessHandler.GetCountdown)
			evaluations.POST("/:evaluation_id/token", hm.accessHandler.IssueToken)
		}

		attempts := v1.Group("/attempts")
		{
			attempts.POST("/start", hm.attemptHandler.StartAttempt)
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)
			attempts.PUT("/:id/answers", hm.attemptHandler.RecordAnswer)
			attempts.POST("/:id/activity", hm.attemptHandler.ReportActivity)
			attempts.POST("/:id/submit", hm.attemptHandler.SubmitAttempt)
			attempts.POST("/:id/grade", hm.attemptHandler.GradeAttempt)
			attempts.POST("/:id/complete", RequireRole(RoleInstructor), hm.attemptHandler.CompleteAttempt)
		}

		courses := v1.Group("/courses")
		{
			courses.POST("/:id/versions", RequireRole(RoleInstructor), hm.courseHandler.CreateVersion)
			courses.GET("/:id/versions/current", hm.courseHandler.GetCurrentVersion)
			courses.GET("/:id/versions/:version_id/content-for-student", hm.courseHandler.GetContentForStudent)
			courses.GET("/:id/updates", hm.courseHandler.CheckForUpdates)
			courses.POST("/:id/enroll", hm.courseHandler.Enroll)
			courses.POST("/:id/enrollment/upgrade", hm.courseHandler.UpgradeEnrollment)
		}

		admin := v1.Group("/admin", RequireRole(RoleAdmin))
		{
			admin.POST("/evaluations/:evaluation_id/students/:student_id/lock", hm.adminHandler.LockStudent)
			admin.POST("/evaluations/:evaluation_id/students/:student_id/unlock", hm.adminHandler.UnlockStudent)
			admin.GET("/evaluations/:evaluation_id/summary", hm.adminHandler.GetSummary)
			admin.GET("/evaluations/:evaluation_id/report.xlsx", hm.adminHandler.ExportReport)
		}
	}
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "evaluation-access-service",
	})
}
