package handler

import (
	"net/http"

	"shifttrack/middleware"
	"shifttrack/model"
	"shifttrack/services"
	"shifttrack/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	Sessions     *SessionHandler
	Presence     *PresenceHandler
	Admin        *AdminHandler
	Health       *HealthHandler
	Verifier     *services.TokenVerifier
	CORSOrigins  []string
	MaxBodyBytes int64
}

func NewRouter(deps RouterDeps) *gin.Engine {
	utils.InitValidator()

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(middleware.EnhancedRecoveryMiddleware())
	router.Use(middleware.RequestTracingMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORSMiddleware(deps.CORSOrigins))
	if deps.MaxBodyBytes > 0 {
		router.Use(middleware.RequestSizeLimiter(deps.MaxBodyBytes))
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if deps.Health != nil {
		router.GET("/health", deps.Health.Health)
	}

	// Public routes (no authentication required)
	public := router.Group("/api/session")
	{
		public.POST("/beacon", deps.Sessions.Beacon)
	}

	// Protected routes (authentication required)
	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(deps.Verifier))
	{
		sessions := protected.Group("/session")
		{
			sessions.POST("/start", deps.Sessions.Start)
			sessions.POST("/activity", deps.Sessions.Activity)
			sessions.POST("/end", deps.Sessions.End)
			sessions.GET("/stream", deps.Presence.Stream)

			dashboard := sessions.Group("")
			dashboard.Use(middleware.RequireRole(model.RoleAdmin, model.RoleTeamLead))
			{
				dashboard.GET("/active", deps.Presence.ListActive)
				dashboard.GET("/logs", deps.Presence.Logs)
				dashboard.GET("/stats", deps.Presence.Stats)
				dashboard.GET("/alerts", deps.Presence.Alerts)
			}
		}

		admin := protected.Group("/admin")
		admin.Use(middleware.RequireRole(model.RoleAdmin))
		{
			admin.POST("/daily-close", deps.Admin.DailyClose)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	return router
}
