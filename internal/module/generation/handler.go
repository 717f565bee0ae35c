package generation

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reelforge/server/internal/shared/response"
)

// Handler exposes the generation HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates a new generation handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the generation routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/generations", h.Create)
}

// Create handles POST /v1/generations.
func (h *Handler) Create(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	resp, err := h.service.Generate(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}
