package projects

import (
	"github.com/gin-gonic/gin"
	"github.com/killallgit/annotation-api/api/types"
)

// RegisterRoutes registers project and membership routes
func RegisterRoutes(router *gin.RouterGroup, deps *types.Dependencies) {
	router.GET("", List(deps))
	router.POST("", Create(deps))
	router.GET("/:id", Get(deps))
	router.PUT("/:id", Update(deps))
	router.DELETE("/:id", Delete(deps))

	router.GET("/:id/members", ListMembers(deps))
	router.POST("/:id/members", AddMember(deps))
	router.PUT("/:id/members/:user_id", UpdateMember(deps))
	router.DELETE("/:id/members/:user_id", RemoveMember(deps))
}
