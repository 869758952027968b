package api

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tradecrew/tradecrew/internal/training"
)

var startTime = time.Now()

// Root handler
func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "TradeCrew API",
		"version": s.version,
		"status":  "running",
		"time":    time.Now().UTC(),
	})
}

// handleGetHealth is a lightweight liveness check
func (s *Server) handleGetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// handleGetStatus returns system status including the outcome-labeled
// record count that gates retraining
func (s *Server) handleGetStatus(c *gin.Context) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	storeStatus := "healthy"
	outcomeReady := 0
	if s.store != nil {
		count, err := s.store.CountOutcomeReady(c.Request.Context())
		if err != nil {
			storeStatus = "unhealthy"
			log.Warn().Err(err).Msg("Decision store health check failed")
		} else {
			outcomeReady = count
		}
	} else {
		storeStatus = "not_configured"
	}

	systemStatus := "healthy"
	if storeStatus == "unhealthy" {
		systemStatus = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    systemStatus,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(startTime).Seconds(),
		"version":   s.version,
		"mode":      s.mode,
		"components": gin.H{
			"decision_store": gin.H{
				"status":                storeStatus,
				"outcome_ready_records": outcomeReady,
			},
			"websocket": gin.H{
				"clients": s.hub.ClientCount(),
			},
		},
		"system": gin.H{
			"goroutines": runtime.NumGoroutine(),
			"go_version": runtime.Version(),
			"alloc_mb":   memStats.Alloc / 1024 / 1024,
		},
	})
}

// handleListDecisions returns outcome-labeled decision log records,
// newest last (insertion order is timestamp ascending)
func (s *Server) handleListDecisions(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision store not configured"})
		return
	}

	records, err := s.store.ListEligible(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list decisions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list decisions"})
		return
	}

	if agentID := c.Query("agent_id"); agentID != "" {
		filtered := records[:0]
		for _, record := range records {
			if record.AgentID == agentID {
				filtered = append(filtered, record)
			}
		}
		records = filtered
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		if limit < len(records) {
			records = records[len(records)-limit:]
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"decisions": records,
		"count":     len(records),
	})
}

// handleCountOutcomes returns the retraining readiness counter
func (s *Server) handleCountOutcomes(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision store not configured"})
		return
	}

	count, err := s.store.CountOutcomeReady(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to count outcome-ready records")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count records"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"outcome_ready_records": count})
}

// handleTrainingStatus reports the trainer agent run state
func (s *Server) handleTrainingStatus(c *gin.Context) {
	if s.trainer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trainer not configured"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"agent_id":       training.TrainerAgentID,
		"running":        s.trainer.Running(),
		"failure_streak": s.trainer.FailureStreak(),
	})
}

// handleGetAdapter returns the latest registry record for an agent at a
// given stage (champion by default)
func (s *Server) handleGetAdapter(c *gin.Context) {
	if s.registry == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "adapter registry not configured"})
		return
	}

	agentID := c.Param("agent_id")
	stage := c.DefaultQuery("stage", training.StageChampion)

	record, err := s.registry.LatestForAgent(agentID, stage)
	if err != nil {
		log.Error().Err(err).Str("agent_id", agentID).Msg("Failed to read adapter registry")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read adapter registry"})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":    "no adapter found",
			"agent_id": agentID,
			"stage":    stage,
		})
		return
	}

	c.JSON(http.StatusOK, record)
}
