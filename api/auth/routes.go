package auth

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers auth routes. requireAuth guards /me.
func RegisterRoutes(router *gin.RouterGroup, h *Handler, requireAuth gin.HandlerFunc) {
	router.POST("/register", h.Register)
	router.POST("/login", h.Login)
	router.GET("/me", requireAuth, h.Me)
}
