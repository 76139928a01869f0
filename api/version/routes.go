package version

import (
	"time"

	cache "github.com/chenyahui/gin-cache"
	"github.com/chenyahui/gin-cache/persist"
	"github.com/gin-gonic/gin"
)

const cacheTTL = time.Minute

// RegisterRoutes registers version routes. The response never changes for the
// life of the process so it is served from an in-memory response cache.
func RegisterRoutes(router gin.IRoutes, info Info) {
	store := persist.NewMemoryStore(cacheTTL)
	router.GET("/version", cache.CacheByRequestURI(store, cacheTTL), Get(info))
}
