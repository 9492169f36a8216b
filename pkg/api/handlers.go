package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"wabot/pkg/health"
	"wabot/pkg/state"
)

const broadcastHeader = "*Broadcast Message*\n\n"

func (s *Server) handleHealth(c *gin.Context) {
	stats := health.Collect()
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"uptime":    s.state.Uptime(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"system": gin.H{
			"cpuPercent": stats.CPUPercent,
			"memPercent": stats.MemPercent,
			"memUsedMb":  stats.MemUsedMB,
		},
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	snap := s.state.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"isActive":      s.state.IsActive(),
		"uptime":        s.state.Uptime(),
		"totalUsers":    s.state.UserCount(),
		"totalCommands": snap.TotalCommands,
		"commandsToday": snap.CommandsToday,
		"startTime":     snap.StartTime.UTC().Format(time.RFC3339),
	})
}

type toggleRequest struct {
	// Pointer so an absent field is distinguishable from false. A non-bool
	// value fails JSON binding and yields a 400.
	Status *bool `json:"status"`
}

func (s *Server) handleToggle(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "status must be a boolean",
		})
		return
	}

	s.state.SetActive(*req.Status)

	word := "deactivated"
	if *req.Status {
		word = "activated"
	}
	s.state.Activity().Record(state.ActivityToggle, "bot "+word+" via control plane")
	s.log.InfoWith("active flag toggled", "active", *req.Status)

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"newStatus": *req.Status,
		"message":   "Bot " + word,
	})
}

func (s *Server) handleUsers(c *gin.Context) {
	users := s.state.Users()
	c.JSON(http.StatusOK, gin.H{
		"users": users,
		"total": len(users),
	})
}

type broadcastRequest struct {
	Message      string `json:"message"`
	TargetUserID string `json:"targetUserId"`
}

func (s *Server) handleBroadcast(c *gin.Context) {
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "message is required",
		})
		return
	}

	sess := s.state.Session()
	if sess == nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "no live session",
		})
		return
	}

	targets := s.state.UserIDs()
	if req.TargetUserID != "" {
		targets = []string{req.TargetUserID}
	}

	body := broadcastHeader + req.Message

	sent, failed := 0, 0
	for _, id := range targets {
		if err := sess.SendText(c.Request.Context(), id, body); err != nil {
			failed++
			s.log.WarnWith("broadcast send failed", "target", id, "error", err)
			continue
		}
		sent++
	}

	s.state.Activity().Record(state.ActivityBroadcast,
		fmt.Sprintf("broadcast to %d recipients (%d failed)", sent, failed))

	c.JSON(http.StatusOK, gin.H{
		"success":     failed == 0,
		"sentCount":   sent,
		"failedCount": failed,
		"message":     fmt.Sprintf("Broadcast sent to %d users", sent),
	})
}

func (s *Server) handleActivity(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	entries := s.state.Activity().Recent(limit)
	c.JSON(http.StatusOK, gin.H{
		"activities": entries,
		"total":      len(entries),
	})
}
