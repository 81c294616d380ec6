package controllers

import (
	"net/http"

	"bootkeeper/internal/middleware"
	"bootkeeper/internal/models"
	"bootkeeper/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

/**
 * Build the router attached to the fast listener
 * @param {*services.Supervisor} s - Supervisor whose state is exposed
 * @param {models.VersionResponse} version - Build information
 * @returns {http.Handler} Gin engine, unmatched paths go to the reverse proxy
 */
func NewRouter(s *services.Supervisor, version models.VersionResponse) http.Handler {
	router := gin.New()
	router.RedirectTrailingSlash = false
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.MetricsMiddleware())

	NewAPIController(s, version).RegisterRoutes(router)
	NewWorkflowController(s.Workflows()).RegisterRoutes(router)

	router.NoRoute(gin.WrapH(s.Proxy()))
	return router
}

// NewProxyRouter serves /metrics and forwards everything else to handler.
func NewProxyRouter(handler http.Handler) http.Handler {
	router := gin.New()
	router.RedirectTrailingSlash = false
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.MetricsMiddleware())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.NoRoute(gin.WrapH(handler))
	return router
}
