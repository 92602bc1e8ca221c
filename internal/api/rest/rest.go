package rest

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler) {
	// Health check endpoint (no version prefix)
	router.GET("/health", handler.HealthCheck)

	// API v1 routes (public read access)
	v1 := router.Group("/api/v1")
	{
		// Token endpoints
		v1.GET("/tokens", handler.ListTokens)
		v1.GET("/tokens/:address", handler.GetToken)
		v1.GET("/tokens/:address/holders", handler.ListHolders)
		v1.GET("/tokens/:address/swaps", handler.ListSwaps)
		v1.GET("/tokens/:address/fees", handler.ListFeeCollections)

		// Wallet endpoints
		v1.GET("/wallets/:address/flags", handler.GetWalletFlags)
	}
}
