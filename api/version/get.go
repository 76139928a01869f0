package version

import (
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"
)

// Info describes the running build
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
}

// Get handles version requests
// @Summary Version
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/version [get]
func Get(info Info) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":        "Annotation API",
			"description": "Media annotation and review platform",
			"version":     info.Version,
			"git_commit":  info.GitCommit,
			"build_time":  info.BuildTime,
			"go_version":  runtime.Version(),
		})
	}
}
