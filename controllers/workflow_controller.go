package controllers

import (
	"errors"
	"net/http"

	"bootkeeper/internal/models"
	"bootkeeper/services"

	"github.com/gin-gonic/gin"
)

type WorkflowController struct {
	manager *services.WorkflowManager
}

func NewWorkflowController(manager *services.WorkflowManager) *WorkflowController {
	return &WorkflowController{
		manager: manager,
	}
}

/**
 * Register workflow routes to Gin engine
 * @param {*gin.Engine} r - Gin router instance
 * @description
 * - Mirrors the start/stop/stop-all/status CLI commands
 */
func (w *WorkflowController) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/supervisor/workflows")
	api.GET("", w.ListWorkflows)
	api.POST("/stop-all", w.StopAll)
	api.GET("/:name", w.GetWorkflow)
	api.POST("/:name/start", w.StartWorkflow)
	api.POST("/:name/stop", w.StopWorkflow)
}

func (w *WorkflowController) fail(c *gin.Context, code string, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, services.ErrWorkflowNotFound) {
		status = http.StatusNotFound
		code = "workflow.notexist"
	}
	c.JSON(status, &models.ErrorResponse{
		Code:  code,
		Error: err.Error(),
	})
}

// ListWorkflows lists every configured workflow
//
//	@Summary		List workflows
//	@Tags			Workflows
//	@Produce		json
//	@Success		200	{array}		models.WorkflowDetail
//	@Failure		500	{object}	models.ErrorResponse
//	@Router			/api/supervisor/workflows [get]
func (w *WorkflowController) ListWorkflows(c *gin.Context) {
	list, err := w.manager.StatusAll(c.Request.Context())
	if err != nil {
		w.fail(c, "workflow.status_failed", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetWorkflow reports one workflow without changing it
//
//	@Summary		Get workflow
//	@Tags			Workflows
//	@Produce		json
//	@Param			name	path		string	true	"Workflow name"
//	@Success		200		{object}	models.WorkflowDetail
//	@Failure		404		{object}	models.ErrorResponse
//	@Router			/api/supervisor/workflows/{name} [get]
func (w *WorkflowController) GetWorkflow(c *gin.Context) {
	rec, err := w.manager.Status(c.Request.Context(), c.Param("name"))
	if err != nil {
		w.fail(c, "workflow.status_failed", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// StartWorkflow starts a workflow, a running one is left alone
//
//	@Summary		Start workflow
//	@Tags			Workflows
//	@Produce		json
//	@Param			name	path		string	true	"Workflow name"
//	@Success		200		{object}	models.WorkflowDetail
//	@Failure		404		{object}	models.ErrorResponse
//	@Failure		500		{object}	models.ErrorResponse
//	@Router			/api/supervisor/workflows/{name}/start [post]
func (w *WorkflowController) StartWorkflow(c *gin.Context) {
	rec, err := w.manager.Start(c.Request.Context(), c.Param("name"))
	if err != nil {
		w.fail(c, "workflow.start_failed", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// StopWorkflow stops a workflow and its matching strays
//
//	@Summary		Stop workflow
//	@Tags			Workflows
//	@Produce		json
//	@Param			name	path		string	true	"Workflow name"
//	@Success		200		{object}	models.WorkflowDetail
//	@Failure		404		{object}	models.ErrorResponse
//	@Failure		500		{object}	models.ErrorResponse
//	@Router			/api/supervisor/workflows/{name}/stop [post]
func (w *WorkflowController) StopWorkflow(c *gin.Context) {
	rec, err := w.manager.Stop(c.Request.Context(), c.Param("name"))
	if err != nil {
		w.fail(c, "workflow.stop_failed", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// StopAll stops every workflow
//
//	@Summary		Stop all workflows
//	@Tags			Workflows
//	@Produce		json
//	@Success		200	{array}		models.WorkflowDetail
//	@Failure		500	{object}	models.ErrorResponse
//	@Router			/api/supervisor/workflows/stop-all [post]
func (w *WorkflowController) StopAll(c *gin.Context) {
	list, err := w.manager.StopAll(c.Request.Context())
	if err != nil {
		w.fail(c, "workflow.stop_failed", err)
		return
	}
	c.JSON(http.StatusOK, list)
}
