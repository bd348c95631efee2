package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GET /api/v1/system/status
func (s *Server) getSystemStatus(c *gin.Context) {
	status := s.lm.GetCurrentStatus(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"system":            status,
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

// POST /api/v1/system/reload-directory
func (s *Server) reloadDirectory(c *gin.Context) {
	if err := s.lm.ReloadDirectory(c.Request.Context()); err != nil {
		s.respondError(c, "SYSTEM", err)
		return
	}
	// cached location listings are stale now
	s.cache.Flush()

	c.JSON(http.StatusOK, gin.H{
		"message":   "Location directory reloaded",
		"locations": len(s.lm.Directory().Locations()),
	})
}
