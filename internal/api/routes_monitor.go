package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func parseUID(c *gin.Context) (uint64, bool) {
	uid, err := strconv.ParseUint(c.Param("uid"), 10, 64)
	if err != nil || uid == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": 1, "msg": "invalid uid"})
		return 0, false
	}
	return uid, true
}

// handleData returns the live user summaries with the current session.
func (s *Server) handleData(c *gin.Context) {
	resp := gin.H{
		"code":    0,
		"user":    s.deps.Stats.AllUsersSummary(),
		"session": s.deps.Stats.CurrentSession(),
		"paused":  s.deps.Stats.Paused(),
	}
	if s.deps.Tracker != nil {
		resp["instance"] = s.deps.Tracker.Status()
	}
	c.JSON(http.StatusOK, resp)
}

// handleEnemies returns the enemy cache.
func (s *Server) handleEnemies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code":  0,
		"enemy": s.deps.Stats.AllEnemies(),
	})
}

// handleUsers returns the uids of live users.
func (s *Server) handleUsers(c *gin.Context) {
	uids := s.deps.Stats.UserIDs()
	c.JSON(http.StatusOK, gin.H{
		"code":  0,
		"users": uids,
		"total": len(uids),
	})
}

// handleSkill returns the skill breakdown of one user.
func (s *Server) handleSkill(c *gin.Context) {
	uid, ok := parseUID(c)
	if !ok {
		return
	}
	report, found := s.deps.Stats.UserSkills(uid)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"code": 1, "msg": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": report})
}

// handleModules returns the last module loadout seen for a user.
func (s *Server) handleModules(c *gin.Context) {
	uid, ok := parseUID(c)
	if !ok {
		return
	}
	if s.deps.Modules == nil {
		c.JSON(http.StatusNotFound, gin.H{"code": 1, "msg": "no module data"})
		return
	}
	loadout, found := s.deps.Modules.Get(uid)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"code": 1, "msg": "no module data"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": loadout})
}
