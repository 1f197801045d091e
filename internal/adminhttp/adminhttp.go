// Package adminhttp implements the admin/debug HTTP surface (§8 supplement):
// GET /sessions listing active per-client peers and GET /debug/vars exposing
// the expvar counters, grounded on the teacher's handleDevicesGin — same
// gin.H{"count": ..., ...} response shape, generalized from "devices" to
// "sessions" since this pipeline has no separate ADB device layer.
package adminhttp

import (
	"expvar"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SessionLister backs GET /sessions. wrtcpeer.Registry satisfies this.
type SessionLister interface {
	ListClientIDs() []string
}

// NewRouter builds the gin.Engine serving the admin surface. Kept separate
// from the server's main HTTP mux (signaling upgrade) so it can be
// bound to its own listener or mounted under a path prefix, matching the
// teacher's habit of keeping the Gin routes in their own file away from the
// stdlib mux main.go otherwise uses.
func NewRouter(sessions SessionLister) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/sessions", func(c *gin.Context) {
		ids := sessions.ListClientIDs()
		c.JSON(http.StatusOK, gin.H{
			"sessions": ids,
			"count":    len(ids),
		})
	})

	r.GET("/debug/vars", gin.WrapH(expvar.Handler()))

	return r
}
