package main

import (
	"alert-dialer/internal/auth"
	"alert-dialer/internal/gateway"
	"alert-dialer/internal/httpapi"
	"alert-dialer/internal/orchestrator"
	"alert-dialer/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, authManager *auth.Manager, engine *orchestrator.Engine, gw gateway.DeliveryGateway) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if err := gw.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(503, gin.H{"status": "degraded", "provider": gw.Name()})
			return
		}
		c.JSON(200, gin.H{"status": "ready", "provider": gw.Name()})
	})

	// Provider webhooks (public).
	// NOTE: These endpoints should be protected by Twilio signature validation in production.
	{
		wh := gateway.WebhookHandlers{
			Sink:      engine,
			Snapshots: engine,
		}
		tw := r.Group("/webhooks/twilio")
		{
			tw.POST("/voice/answer", wh.HandleVoiceAnswer)
			tw.POST("/voice/status", wh.HandleVoiceStatus)
			tw.POST("/voice/gather", wh.HandleGather)
			tw.POST("/sms/status", wh.HandleSMSStatus)
		}
	}

	h := httpapi.Handlers{
		Auth:   authManager,
		Engine: engine,
	}

	// AUTH routes (token issuance).
	// NOTE: This is a placeholder login route; real credential validation is not implemented.
	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(authManager))
	{
		// Identity echo for debugging operator tokens.
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(200, gin.H{"user_id": uid, "role": role})
		})

		// RUN routes
		runGroup := v1.Group("/runs")
		{
			runGroup.POST("", rbac.RequireAnyRole(rbac.RoleDispatcher), h.StartRun)
			runGroup.GET("/:run_id", rbac.RequireAnyRole(rbac.RoleDispatcher, rbac.RoleViewer), h.GetRun)
			runGroup.GET("/:run_id/attempts", rbac.RequireAnyRole(rbac.RoleDispatcher, rbac.RoleViewer), h.ListRunAttempts)
			runGroup.POST("/:run_id/cancel", rbac.RequireAnyRole(rbac.RoleDispatcher), h.CancelRun)
		}

		// Single-contact operations
		dispatcherOnly := rbac.RequireAnyRole(rbac.RoleDispatcher)
		v1.POST("/dial", dispatcherOnly, h.DialSingle)
		v1.POST("/text", dispatcherOnly, h.TextSingle)
		v1.POST("/custom", dispatcherOnly, h.SendCustom)
	}
}
