package http

import (
	"github.com/gin-gonic/gin"
	"github.com/layer-3/defai/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter sets up the Gin router
func SetupRouter(handlers *Handlers, limiter *RateLimiter, m *metrics.Metrics) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), RequestID())

	// Session routes
	auth := router.Group("/auth")
	{
		auth.POST("/connect", handlers.Connect)
		auth.POST("/disconnect", handlers.Disconnect)
		auth.GET("/session", handlers.Session)
	}

	// Protected API routes
	api := router.Group("/api")
	if limiter != nil {
		api.Use(limiter.Limit())
	}
	api.Use(AuthMiddleware(handlers.svc.Tokens, handlers.svc.Auth))
	{
		api.POST("/ai_request", handlers.AIRequest)
		api.POST("/wallet/create", handlers.CreateWallet)
		api.GET("/wallet/info", handlers.WalletInfo)
		api.GET("/authorizers", handlers.Authorizers)
		api.POST("/authorizers/max_amount", handlers.SetMaxAmount)
	}

	// Event stream for the session owner; no rate limit since it is long-lived
	router.GET("/events", AuthMiddleware(handlers.svc.Tokens, handlers.svc.Auth), handlers.Events)

	if m != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	return router
}
