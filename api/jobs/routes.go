package jobs

import (
	"github.com/gin-gonic/gin"
	"github.com/killallgit/annotation-api/api/types"
)

// RegisterRoutes registers job status routes
func RegisterRoutes(router *gin.RouterGroup, deps *types.Dependencies) {
	router.GET("/:id", GetJob(deps))
}
