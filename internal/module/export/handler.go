package export

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reelforge/server/internal/shared/response"
)

// Handler exposes the export HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates a new export handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the export routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/exports", h.Create)
	r.GET("/exports/:job_id", h.Get)
}

// Create handles POST /v1/exports.
func (h *Handler) Create(c *gin.Context) {
	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	job, err := h.service.Enqueue(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusAccepted, job)
}

// Get handles GET /v1/exports/:job_id.
func (h *Handler) Get(c *gin.Context) {
	id, err := parseJobID(c.Param("job_id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	job, err := h.service.GetStatus(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}
