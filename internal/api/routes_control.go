package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type pauseRequest struct {
	Paused *bool `json:"paused" binding:"required"`
}

// handleClear resets all statistics and opens a new session. With save=1
// the closing session goes through the persistence gate.
func (s *Server) handleClear(c *gin.Context) {
	save := c.Query("save") == "1" || c.Query("save") == "true"

	persisted, err := s.deps.Stats.ClearAll(save)
	if err != nil {
		log.Error().Err(err).Msg("API: clear failed to persist session")
		c.JSON(http.StatusInternalServerError, gin.H{"code": 1, "msg": "failed to persist session"})
		return
	}

	log.Info().Bool("save", save).Bool("persisted", persisted).Msg("API: statistics cleared")
	c.JSON(http.StatusOK, gin.H{
		"code":      0,
		"msg":       "statistics cleared",
		"persisted": persisted,
	})
}

// handleGetPause reports whether stat recording is paused.
func (s *Server) handleGetPause(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"code": 0, "paused": s.deps.Stats.Paused()})
}

// handleSetPause pauses or resumes stat recording.
func (s *Server) handleSetPause(c *gin.Context) {
	var req pauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 1, "msg": "body must be {\"paused\": bool}"})
		return
	}

	s.deps.Stats.SetPaused(*req.Paused)
	c.JSON(http.StatusOK, gin.H{"code": 0, "paused": s.deps.Stats.Paused()})
}
