package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.agent.Status())
}

func (s *Server) handlePause(c *gin.Context) {
	var body struct {
		Reason string `json:"reason"`
	}
	// Body is optional, a bare POST pauses with a generic reason
	_ = c.ShouldBindJSON(&body)
	if body.Reason == "" {
		body.Reason = "paused via API"
	}

	s.agent.Pause(body.Reason)
	c.JSON(http.StatusOK, gin.H{"paused": true, "reason": body.Reason})
}

func (s *Server) handleResume(c *gin.Context) {
	status := s.agent.Status()
	if status.KillSwitchTriggered {
		c.JSON(http.StatusConflict, gin.H{
			"error": "kill-switch has fired, restart the process to trade again",
		})
		return
	}

	s.agent.Resume()
	c.JSON(http.StatusOK, gin.H{"paused": false})
}

func (s *Server) handleStop(c *gin.Context) {
	s.agent.Stop()
	c.JSON(http.StatusOK, gin.H{"stopping": true})
}

func (s *Server) handleDecisions(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusOK, gin.H{"decisions": []interface{}{}, "journal_enabled": false})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := s.journal.RecentDecisions(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("Decision history query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "decision history unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": records, "journal_enabled": true})
}

func (s *Server) handleKillSwitch(c *gin.Context) {
	c.JSON(http.StatusOK, s.agent.KillSwitchStats())
}

func (s *Server) handleBreakers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"breakers": s.agent.BreakerStats()})
}

func (s *Server) handleUpdateUniverse(c *gin.Context) {
	var body struct {
		Assets []string `json:"assets" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "assets list is required"})
		return
	}

	if err := s.agent.UpdateUniverse(body.Assets); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"universe": body.Assets})
}
