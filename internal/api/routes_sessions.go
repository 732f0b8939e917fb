package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/combatlens/internal/db"
)

func (s *Server) requireSessions(c *gin.Context) bool {
	if s.deps.Sessions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": 1, "msg": "session storage disabled"})
		return false
	}
	return true
}

// handleListSessions returns stored sessions, newest first.
func (s *Server) handleListSessions(c *gin.Context) {
	if !s.requireSessions(c) {
		return
	}
	list, err := s.deps.Sessions.ListSessions()
	if err != nil {
		log.Error().Err(err).Msg("API: failed to list sessions")
		c.JSON(http.StatusInternalServerError, gin.H{"code": 1, "msg": "failed to list sessions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":     0,
		"sessions": list,
		"total":    len(list),
	})
}

// handleGetSession returns one stored session with its snapshot.
func (s *Server) handleGetSession(c *gin.Context) {
	if !s.requireSessions(c) {
		return
	}
	rec, err := s.deps.Sessions.GetSession(c.Param("id"))
	if err != nil {
		s.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": rec})
}

// handleDeleteSession removes a stored session.
func (s *Server) handleDeleteSession(c *gin.Context) {
	if !s.requireSessions(c) {
		return
	}
	id := c.Param("id")
	if err := s.deps.Sessions.DeleteSession(id); err != nil {
		s.sessionError(c, err)
		return
	}
	log.Info().Str("session", id).Msg("API: session deleted")
	c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "session deleted"})
}

// handleHistory lists the stored sessions a player qualified for.
// ?limit= caps the result, default 50.
func (s *Server) handleHistory(c *gin.Context) {
	if !s.requireSessions(c) {
		return
	}
	uid, ok := parseUID(c)
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"code": 1, "msg": "invalid limit"})
			return
		}
		limit = n
	}
	list, err := s.deps.Sessions.PlayerHistory(uid, limit)
	if err != nil {
		s.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "uid": uid, "sessions": list, "total": len(list)})
}

func (s *Server) sessionError(c *gin.Context, err error) {
	if errors.Is(err, db.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"code": 1, "msg": "session not found"})
		return
	}
	log.Error().Err(err).Msg("API: session storage error")
	c.JSON(http.StatusInternalServerError, gin.H{"code": 1, "msg": "session storage error"})
}
