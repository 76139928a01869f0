package media

import (
	"github.com/gin-gonic/gin"
	"github.com/killallgit/annotation-api/api/types"
)

// RegisterRoutes registers media routes. upload guards the upload route with
// its own body limit and rate limit.
func RegisterRoutes(router *gin.RouterGroup, deps *types.Dependencies, upload ...gin.HandlerFunc) {
	router.POST("/upload", append(upload, Upload(deps))...)
	router.GET("", List(deps))
	router.GET("/:id", Get(deps))
	router.DELETE("/:id", Delete(deps))

	router.POST("/:id/reprocess", Reprocess(deps))
	router.POST("/:id/frames", Frames(deps))
	router.POST("/:id/segments", CreateSegment(deps))
	router.GET("/:id/segments", ListSegments(deps))
	router.POST("/:id/waveform", Waveform(deps))
}
