package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Conceptual-Machines/jam-api/internal/jam"
	"github.com/Conceptual-Machines/jam-api/internal/logger"
	"github.com/Conceptual-Machines/jam-api/internal/models"
)

// JamHandler exposes the jam session commands over HTTP. Every command
// funnels into the orchestrator's scheduler queue; the push channel
// carries the resulting events.
type JamHandler struct {
	orch *jam.Orchestrator
}

// NewJamHandler creates a jam command handler
func NewJamHandler(orch *jam.Orchestrator) *JamHandler {
	return &JamHandler{orch: orch}
}

type startRequest struct {
	Agents []string `json:"agents"`
	Mode   string   `json:"mode"`
}

type directiveRequest struct {
	Text        string `json:"text" binding:"required"`
	TargetAgent string `json:"targetAgent"`
}

type presetRequest struct {
	PresetID string `json:"presetId" binding:"required"`
}

// Start begins a jam session
func (h *JamHandler) Start(c *gin.Context) {
	var req startRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	agents := make([]models.AgentID, 0, len(req.Agents))
	for _, raw := range req.Agents {
		id := models.AgentID(raw)
		if _, ok := models.MetaFor(id); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown agent: " + raw})
			return
		}
		agents = append(agents, id)
	}

	mode := models.ModeAutonomousOpening
	switch req.Mode {
	case "", string(models.ModeAutonomousOpening):
	case string(models.ModeStagedSilent):
		mode = models.ModeStagedSilent
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown start mode: " + req.Mode})
		return
	}

	if err := h.orch.Start(agents, mode); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"jamState": h.orch.Snapshot()})
}

// Stop ends the current jam session
func (h *JamHandler) Stop(c *gin.Context) {
	if err := h.orch.Stop(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// Directive enqueues a boss directive. The command is accepted
// immediately; outcomes arrive as push-channel events.
func (h *JamHandler) Directive(c *gin.Context) {
	var req directiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	target := models.AgentID(req.TargetAgent)
	if req.TargetAgent != "" {
		if _, ok := models.MetaFor(target); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown agent: " + req.TargetAgent})
			return
		}
	}

	h.orch.Directive(req.Text, target)

	fields := logger.WithContext(c)
	fields["targeted"] = req.TargetAgent != ""
	logger.Info("Directive queued", fields)

	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

// SetPreset applies a genre preset to a staged-silent session
func (h *JamHandler) SetPreset(c *gin.Context) {
	var req presetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.orch.SetPreset(req.PresetID); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jamState": h.orch.Snapshot()})
}

// AudioFeedback records what the renderer is actually producing
func (h *JamHandler) AudioFeedback(c *gin.Context) {
	var snapshot models.AudioFeedback
	if err := c.ShouldBindJSON(&snapshot); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if snapshot.CapturedAt.IsZero() {
		snapshot.CapturedAt = time.Now()
	}

	h.orch.AudioFeedback(snapshot)
	c.JSON(http.StatusAccepted, gin.H{"status": "recorded"})
}

// State returns the current session snapshot
func (h *JamHandler) State(c *gin.Context) {
	snap := h.orch.Snapshot()
	if snap == nil {
		c.JSON(http.StatusOK, gin.H{"running": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": true, "jamState": snap})
}
