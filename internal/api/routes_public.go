package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/energizer-project/combatlens/internal/util"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "combatlens",
		"version": s.deps.Version,
	})
}

// handleSystem returns host information, process resource usage, the
// decode pipeline and decoder counters and health check results.
func (s *Server) handleSystem(c *gin.Context) {
	resp := gin.H{
		"system":    util.GetSystemInfo(),
		"resources": util.GetResourceUsage(s.cfg.GetStorage().LogDirectory),
		"clients":   s.hub.Clients(),
	}
	if s.deps.Pipeline != nil {
		resp["pipeline"] = s.deps.Pipeline.Stats()
	}
	if s.deps.Tracker != nil {
		resp["instance"] = s.deps.Tracker.Status()
	}
	if s.deps.Decoder != nil {
		resp["decoder"] = gin.H{
			"decoded":  s.deps.Decoder.Decoded(),
			"failures": s.deps.Decoder.Failures(),
		}
	}
	if s.deps.Health != nil {
		resp["health"] = s.deps.Health.Status()
	}
	c.JSON(http.StatusOK, resp)
}
