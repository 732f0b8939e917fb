package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/combatlens/internal/config"
	"github.com/energizer-project/combatlens/internal/events"
)

type engineUpdate struct {
	Key   string      `json:"key" binding:"required"`
	Value interface{} `json:"value"`
}

// handleGetConfig returns the current configuration.
func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"capture": s.cfg.GetCapture(),
		"engine":  s.cfg.GetEngine(),
		"storage": s.cfg.GetStorage(),
		"timers":  s.cfg.GetTimers(),
		"api":     s.cfg.GetAPI(),
	})
}

// handleSetEngine updates one engine threshold, validates the result and
// saves it. Rejected values leave the configuration untouched.
func (s *Server) handleSetEngine(c *gin.Context) {
	var req engineUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	previous := s.cfg.GetEngine()
	if err := s.cfg.UpdateEngineField(req.Key, req.Value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if result := config.Validate(s.cfg); !result.IsValid() {
		s.cfg.SetEngine(previous)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "invalid engine configuration",
			"errors": result.Errors,
		})
		return
	}

	if err := s.cfg.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save config"})
		return
	}

	s.eventBus.Emit(c.Request.Context(), events.Event{
		Type:   events.EventConfigChanged,
		Source: "api",
		Payload: events.ConfigChangedPayload{
			Section: "engine",
			Key:     req.Key,
			Value:   req.Value,
		},
	})

	log.Info().Str("key", req.Key).Interface("value", req.Value).Msg("API: engine setting updated")

	c.JSON(http.StatusOK, gin.H{
		"status": "updated",
		"engine": s.cfg.GetEngine(),
	})
}
