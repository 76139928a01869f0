package users

import (
	"github.com/gin-gonic/gin"
	"github.com/killallgit/annotation-api/api/types"
)

// RegisterRoutes registers admin user management routes
func RegisterRoutes(router *gin.RouterGroup, deps *types.Dependencies) {
	router.GET("", List(deps))
	router.PUT("/:id/role", SetRole(deps))
	router.PUT("/:id/active", SetActive(deps))
}
