package labels

import (
	"github.com/gin-gonic/gin"
	"github.com/killallgit/annotation-api/api/types"
)

// RegisterProjectRoutes registers label routes nested under /projects
func RegisterProjectRoutes(router *gin.RouterGroup, deps *types.Dependencies) {
	router.GET("/:id/labels", List(deps))
	router.POST("/:id/labels", Create(deps))
}

// RegisterRoutes registers routes addressing a single label
func RegisterRoutes(router *gin.RouterGroup, deps *types.Dependencies) {
	router.GET("/:id", Get(deps))
	router.PUT("/:id", Update(deps))
	router.DELETE("/:id", Delete(deps))
}
