package v1

import (
	"go_lpp/api/v1/agents"
	"go_lpp/api/v1/auth"
	"go_lpp/api/v1/customers"
	"go_lpp/api/v1/devices"
	"go_lpp/api/v1/middleware"
	"go_lpp/api/v1/policies"
	"go_lpp/api/v1/stats"
	internalauth "go_lpp/internal/auth"
	"go_lpp/internal/config"
	"go_lpp/internal/distrib"
	"go_lpp/internal/enroll"
	"go_lpp/internal/httpx"
	"go_lpp/internal/policyset"
	"go_lpp/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SetupRouter sets up the API v1 routes.
//
// Admin routes sit behind the session JWT middleware. Agent routes are open:
// agents identify themselves by agent id and the endpoints are tolerant of
// unresolved identities by design.
func SetupRouter(r *gin.Engine, st *store.Store, gate internalauth.Gate, cfg *config.Config, logger *logrus.Entry) {
	policySvc := policyset.NewService(st, logger)
	enrollSvc := enroll.NewService(st, logger, cfg.AgentVersion)
	distribSvc := distrib.NewService(st, logger)

	policiesHandler := policies.NewHandler(policySvc)
	customersHandler := customers.NewHandler(policySvc)
	devicesHandler := devices.NewHandler(enrollSvc)
	agentsHandler := agents.NewHandler(enrollSvc, distribSvc, cfg, logger)
	statsHandler := stats.NewHandler(st)

	v1 := r.Group("/api/v1")
	{
		// Public routes (no authentication required)
		v1.GET("/ping", pingHandler)

		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", auth.LoginHandler(gate, cfg))
		}

		// Agent-facing routes: open by design, see handler docs
		agentsGroup := v1.Group("/agents")
		{
			agentsGroup.POST("/enroll", agentsHandler.Enroll)
			agentsGroup.GET("/:id/effective-policy", agentsHandler.EffectivePolicy)
			agentsGroup.POST("/:id/heartbeat", agentsHandler.Heartbeat)
			agentsGroup.POST("/results", agentsHandler.IngestResults)
		}

		// Protected routes (authentication required)
		protected := v1.Group("")
		protected.Use(middleware.AuthRequired())
		{
			protected.GET("/me", meHandler)
			protected.GET("/stats", statsHandler.Get)

			policiesGroup := protected.Group("/policies")
			{
				policiesGroup.GET("", policiesHandler.List)
				policiesGroup.POST("", policiesHandler.Create)
				policiesGroup.POST("/:id/delete", policiesHandler.Delete)
			}

			customersGroup := protected.Group("/customers")
			{
				customersGroup.GET("", customersHandler.List)
				customersGroup.POST("", customersHandler.Create)
				customersGroup.GET("/:id", customersHandler.Get)
				customersGroup.POST("/:id/delete", customersHandler.Delete)
				customersGroup.GET("/:id/policies", customersHandler.GetPolicies)
				customersGroup.PUT("/:id/policies", customersHandler.SetPolicies)
				customersGroup.POST("/:id/policies", customersHandler.ApplyDelta)
			}

			devicesGroup := protected.Group("/devices")
			{
				devicesGroup.GET("", devicesHandler.List)
				devicesGroup.POST("", devicesHandler.Create)
			}

			protected.POST("/enroll/token", agentsHandler.CreateToken)
			protected.POST("/agents/map", agentsHandler.MapAgent)
		}
	}
}

// pingHandler handles the ping request using unified response
func pingHandler(c *gin.Context) {
	httpx.OK(c, gin.H{
		"pong": true,
	})
}

// meHandler returns current user information
func meHandler(c *gin.Context) {
	username, _ := c.Get("username")
	role, _ := c.Get("role")

	httpx.OK(c, gin.H{
		"username": username,
		"role":     role,
	})
}
