package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conceptual-Machines/jam-api/internal/api"
	"github.com/Conceptual-Machines/jam-api/internal/config"
	"github.com/Conceptual-Machines/jam-api/internal/jam"
	"github.com/Conceptual-Machines/jam-api/internal/llm"
	"github.com/Conceptual-Machines/jam-api/internal/models"
)

// stubRunner answers every turn with a fixed valid response, standing in
// for the CLI subprocess.
type stubRunner struct{}

func (stubRunner) RunTurn(_ context.Context, _ *llm.Session, _ string) (*models.AgentResponse, llm.TurnStats, error) {
	return &models.AgentResponse{
		Pattern:  `s("bd*4")`,
		Thoughts: "keeping it steady",
	}, llm.TurnStats{DurationMs: 5}, nil
}

func newTestServer(t *testing.T) (*gin.Engine, *jam.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	presets, err := jam.LoadPresets()
	require.NoError(t, err)

	orch := jam.NewOrchestrator(jam.Config{
		Runner:       stubRunner{},
		DefaultModel: "gpt-5-mini",
		Presets:      presets,
	})
	t.Cleanup(orch.Close)

	cfg := &config.Config{AllowedOrigins: []string{"*"}}
	return api.SetupRouter(orch, nil, cfg), orch
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	router, _ := newTestServer(t)

	w := doJSON(router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])

	ledger, ok := body["usage_ledger"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "disabled", ledger["status"])
}

func TestStateBeforeStart(t *testing.T) {
	router, _ := newTestServer(t)

	w := doJSON(router, http.MethodGet, "/api/v1/jam/state", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["running"])
}

func TestStartRejectsUnknownAgent(t *testing.T) {
	router, _ := newTestServer(t)

	w := doJSON(router, http.MethodPost, "/api/v1/jam/start",
		`{"agents": ["theremin"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown agent")
}

func TestStartRejectsUnknownMode(t *testing.T) {
	router, _ := newTestServer(t)

	w := doJSON(router, http.MethodPost, "/api/v1/jam/start",
		`{"mode": "freeform"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown start mode")
}

func TestStagedSessionLifecycle(t *testing.T) {
	router, orch := newTestServer(t)

	w := doJSON(router, http.MethodPost, "/api/v1/jam/start",
		`{"agents": ["drums", "bass"], "mode": "staged_silent"}`)
	require.Equal(t, http.StatusOK, w.Code)

	snap := orch.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, 0, snap.RoundNumber)
	assert.Empty(t, snap.ActivatedAgents)

	// Second start conflicts with the running session.
	w = doJSON(router, http.MethodPost, "/api/v1/jam/start",
		`{"agents": ["drums"], "mode": "staged_silent"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Preset applies while nothing has been activated yet.
	w = doJSON(router, http.MethodPost, "/api/v1/jam/preset",
		`{"presetId": "house-classic"}`)
	require.Equal(t, http.StatusOK, w.Code)

	snap = orch.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, "house", snap.MusicalContext.Genre)
	assert.Equal(t, 124, snap.MusicalContext.BPM)

	// A targeted directive activates the target and runs its turn.
	w = doJSON(router, http.MethodPost, "/api/v1/jam/directive",
		`{"text": "give me a four on the floor", "targetAgent": "drums"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	snap = orch.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, []models.AgentID{models.AgentDrums}, snap.ActivatedAgents)
	assert.Equal(t, `s("bd*4")`, snap.Agents[models.AgentDrums].CurrentPattern)

	w = doJSON(router, http.MethodPost, "/api/v1/jam/stop", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, orch.Snapshot())
}

func TestDirectiveRequiresText(t *testing.T) {
	router, _ := newTestServer(t)

	w := doJSON(router, http.MethodPost, "/api/v1/jam/directive", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDirectiveRejectsUnknownTarget(t *testing.T) {
	router, _ := newTestServer(t)

	w := doJSON(router, http.MethodPost, "/api/v1/jam/directive",
		`{"text": "faster", "targetAgent": "kazoo"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPresetRejectsUnknownID(t *testing.T) {
	router, _ := newTestServer(t)

	w := doJSON(router, http.MethodPost, "/api/v1/jam/start",
		`{"mode": "staged_silent"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodPost, "/api/v1/jam/preset",
		`{"presetId": "polka-extreme"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAudioFeedbackAccepted(t *testing.T) {
	router, _ := newTestServer(t)

	w := doJSON(router, http.MethodPost, "/api/v1/jam/audio",
		`{"summary": "kick-heavy, sparse highs", "rms": 0.4}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
}
