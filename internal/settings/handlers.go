package settings

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler exposes toggles over HTTP. Writes sit behind the admin
// middleware installed by the server.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts read endpoints on public and the write endpoint on
// admin.
func (h *Handler) RegisterRoutes(public, admin *gin.RouterGroup) {
	public.GET("/settings", h.list)
	public.GET("/settings/:key", h.get)
	admin.PUT("/settings/:key", h.set)
}

func (h *Handler) list(c *gin.Context) {
	toggles, err := h.svc.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": toggles})
}

func (h *Handler) get(c *gin.Context) {
	toggle, err := h.svc.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toggle)
}

type setRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) set(c *gin.Context) {
	var req setRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	toggle, err := h.svc.Set(c.Request.Context(), c.Param("key"), req.Enabled, c.GetString("userID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toggle)
}
