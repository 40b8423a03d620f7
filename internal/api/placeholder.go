package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// PlaceholderHandler serves gray SVG placeholders for logs without a meal
// photo.
type PlaceholderHandler struct{}

// NewPlaceholderHandler creates a PlaceholderHandler.
func NewPlaceholderHandler() *PlaceholderHandler {
	return &PlaceholderHandler{}
}

// RegisterRoutes mounts the placeholder endpoints.
func (h *PlaceholderHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/placeholder/:width/:height", h.Placeholder)
	router.GET("/placeholder/:width", h.Placeholder)
}

// Placeholder renders an SVG of the requested dimensions.
func (h *PlaceholderHandler) Placeholder(c *gin.Context) {
	width := dimension(c.Param("width"), 400)
	height := dimension(c.Param("height"), 300)

	svg := fmt.Sprintf(`<svg width="%d" height="%d" xmlns="http://www.w3.org/2000/svg">
  <rect width="100%%" height="100%%" fill="#f3f4f6"/>
  <text x="50%%" y="50%%" font-family="Arial, sans-serif" font-size="16" fill="#6b7280" text-anchor="middle" dy=".3em">%d × %d</text>
</svg>`, width, height, width, height)

	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Data(http.StatusOK, "image/svg+xml", []byte(svg))
}

func dimension(raw string, def int) int {
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 || v > 4096 {
		return def
	}
	return v
}
