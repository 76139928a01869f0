package reports

import (
	"github.com/gin-gonic/gin"
	"github.com/killallgit/annotation-api/api/types"
)

// RegisterProjectRoutes registers batch job routes nested under /projects
func RegisterProjectRoutes(router *gin.RouterGroup, deps *types.Dependencies) {
	router.POST("/:id/export", Export(deps))
	router.POST("/:id/statistics", Statistics(deps))
	router.POST("/:id/batch-review", BatchReview(deps))
}

// RegisterMaintenanceRoutes registers admin maintenance routes
func RegisterMaintenanceRoutes(router *gin.RouterGroup, deps *types.Dependencies) {
	router.POST("/cleanup", Cleanup(deps))
}
