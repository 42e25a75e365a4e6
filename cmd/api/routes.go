package main

import (
	"amora-platform/internal/httpapi"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc, adminIDs []string) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.POST("/webhooks/razorpay", h.RazorpayWebhook)

	v1 := r.Group("/v1")

	// AUTH routes (token issuance).
	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.Refresh)
	}

	// Everything below requires an access token.
	api := v1.Group("")
	api.Use(authMW)
	{
		api.GET("/me", h.Me)
		api.PUT("/me", h.UpdateProfile)
		api.POST("/presence/heartbeat", h.Heartbeat)

		users := api.Group("/users")
		{
			users.GET("", h.Discover)
			users.GET("/:user_id", h.GetUser)
			users.POST("/:user_id/block", h.Block)
			users.DELETE("/:user_id/block", h.Unblock)
		}

		coinsGroup := api.Group("/coins")
		{
			coinsGroup.GET("/balance", h.GetBalance)
			coinsGroup.GET("/ledger", h.GetLedger)
		}

		calls := api.Group("/calls")
		{
			calls.POST("", h.StartCall)
			calls.GET("/:call_id", h.GetCall)
			calls.PATCH("/:call_id/status", h.SetCallStatus)
			calls.POST("/:call_id/token", h.RTCToken)
		}

		messages := api.Group("/messages")
		{
			messages.POST("", h.SendMessage)
			messages.GET("/:user_id", h.Conversation)
		}

		topups := api.Group("/topups")
		{
			topups.GET("/packs", h.ListPacks)
			topups.POST("", h.CreateTopup)
			topups.GET("", h.ListTopups)
		}

		reports := api.Group("/reports")
		{
			reports.GET("/calls", h.CallsReport)
			reports.GET("/coins", h.SpendReport)
		}

		api.GET("/ws", h.Connect)

		admin := api.Group("/admin")
		admin.Use(httpapi.RequireAdmin(adminIDs))
		{
			admin.POST("/coins/adjust", h.AdminAdjustCoins)
			admin.POST("/users/:user_id/certify", h.AdminCertify)
		}
	}
}
