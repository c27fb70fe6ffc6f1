package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/prepnest/attempt-backend/internal/config"
	"github.com/prepnest/attempt-backend/internal/handler"
	"github.com/prepnest/attempt-backend/internal/middleware"
	"github.com/prepnest/attempt-backend/internal/response"
	"github.com/prepnest/attempt-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attempt *handler.AttemptHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list; otherwise
	// allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// ─── Request ID ────────────────────────────────────────────────────
	router.Use(response.RequestIDMiddleware())

	// ─── Health ────────────────────────────────────────────────────────
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── Candidate API ─────────────────────────────────────────────────
	api := router.Group("/api/v1")
	api.Use(middleware.RequireCandidateJWT(authService))
	{
		api.POST("/exams/:exam_id/attempt", handlers.Attempt.StartAttempt)
		api.GET("/attempts", handlers.Attempt.History)
		api.GET("/attempts/:attempt_id/state", handlers.Attempt.GetState)
		api.GET("/attempts/:attempt_id/record", handlers.Attempt.GetRecord)
		api.POST("/attempts/:attempt_id/rules-ack", handlers.Attempt.AcknowledgeRules)
		// REST fallbacks for clients whose event stream is down.
		api.POST("/attempts/:attempt_id/answer", handlers.Attempt.SaveAnswer)
		api.POST("/attempts/:attempt_id/review", handlers.Attempt.SetReview)
		api.POST("/attempts/:attempt_id/submit", handlers.Attempt.Submit)
	}

	// ─── WebSocket ─────────────────────────────────────────────────────
	wsGroup := router.Group("/ws/v1")
	wsGroup.Use(middleware.RequireCandidateWSAuth(authService))
	{
		wsGroup.GET("/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	return router
}
