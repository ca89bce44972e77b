// Package keepalive exposes a minimal HTTP liveness probe so hosting
// platforms that ping the process keep it awake.
package keepalive

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Run serves GET /healthz on the given port. Blocks; run it in its own
// goroutine.
func Run(port string) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router.Run(":" + port)
}
