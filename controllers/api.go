package controllers

import (
	"net/http"

	"bootkeeper/internal/models"
	"bootkeeper/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type APIController struct {
	supervisor *services.Supervisor
	version    models.VersionResponse
}

/**
 * Create new API controller instance
 * @param {*services.Supervisor} supervisor - Running supervisor
 * @param {models.VersionResponse} version - Build information reported by /api/version
 * @returns {*APIController} New API controller instance
 */
func NewAPIController(supervisor *services.Supervisor, version models.VersionResponse) *APIController {
	version.Mode = supervisor.Config().Settings.Mode
	return &APIController{
		supervisor: supervisor,
		version:    version,
	}
}

/**
 * Register supervisor diagnostics routes to Gin engine
 * @param {*gin.Engine} r - Gin router instance
 * @description
 * - /api/version, /api/supervisor/status, /api/supervisor/processes
 * - /metrics served by the prometheus handler
 * - Liveness paths are answered by the fast listener before the router is reached
 */
func (a *APIController) RegisterRoutes(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/version", a.Version)
	api.GET("/supervisor/status", a.Status)
	api.GET("/supervisor/processes", a.ListProcesses)
}

// Version reports build information
//
//	@Summary		Version
//	@Tags			System
//	@Produce		json
//	@Success		200	{object}	models.VersionResponse
//	@Router			/api/version [get]
func (a *APIController) Version(c *gin.Context) {
	c.JSON(http.StatusOK, a.version)
}

// Status reports roles, services and their health
//
//	@Summary		Supervisor status
//	@Description	Resolved ports, launched processes and the latest health record of every role
//	@Tags			Supervisor
//	@Produce		json
//	@Success		200	{object}	models.SupervisorStatus
//	@Router			/api/supervisor/status [get]
func (a *APIController) Status(c *gin.Context) {
	c.JSON(http.StatusOK, a.supervisor.Status())
}

// ListProcesses returns the persisted process registry
//
//	@Summary		List processes
//	@Description	Every process recorded by this supervisor or the CLI, including detached workflows
//	@Tags			Supervisor
//	@Produce		json
//	@Success		200	{array}		models.ProcessDetail
//	@Failure		500	{object}	models.ErrorResponse
//	@Router			/api/supervisor/processes [get]
func (a *APIController) ListProcesses(c *gin.Context) {
	list, err := a.supervisor.Store().ListProcesses()
	if err != nil {
		c.JSON(http.StatusInternalServerError, &models.ErrorResponse{
			Code:  "registry.read_failed",
			Error: err.Error(),
		})
		return
	}
	if list == nil {
		list = []models.ProcessDetail{}
	}
	c.JSON(http.StatusOK, list)
}
