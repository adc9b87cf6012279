package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smash64-online/netcheck/internal/scheduler"
	"github.com/smash64-online/netcheck/internal/util"
)

// handlePing returns a health check response with host details.
func (s *Server) handlePing(c *gin.Context) {
	body := gin.H{
		"status":  "ok",
		"service": "netcheck",
		"version": util.Version,
		"system":  util.GetSystemInfo(),
	}
	// zero window compares against the previous call
	if load, err := util.GetLoad(0); err == nil {
		body["load"] = load
	}
	c.JSON(http.StatusOK, body)
}

// handleMonitor returns the latest result of every monitor target.
func (s *Server) handleMonitor(c *gin.Context) {
	if s.monitor == nil {
		c.JSON(http.StatusOK, gin.H{
			"enabled": false,
			"targets": []scheduler.TargetStatus{},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"enabled": true,
		"targets": s.monitor.Status(),
	})
}
