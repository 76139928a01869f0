package annotations

import (
	"github.com/gin-gonic/gin"
	"github.com/killallgit/annotation-api/api/types"
)

// RegisterRoutes registers annotation routes
func RegisterRoutes(router *gin.RouterGroup, deps *types.Dependencies) {
	router.GET("", ListAnnotations(deps))
	router.POST("", CreateAnnotation(deps))
	router.GET("/:id", GetAnnotation(deps))
	router.PUT("/:id", UpdateAnnotation(deps))
	router.DELETE("/:id", DeleteAnnotation(deps))
	router.POST("/:id/review", ReviewAnnotation(deps))
}
