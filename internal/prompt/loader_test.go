package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conceptual-Machines/jam-api/internal/models"
)

func TestLoadPersona(t *testing.T) {
	loader := NewLoader("gpt-5-mini")

	persona, err := loader.LoadPersona(models.AgentDrums)
	require.NoError(t, err)

	assert.Equal(t, models.AgentDrums, persona.Agent)
	assert.Equal(t, "Drummer", persona.Name)
	// Frontmatter never leaks into the prompt.
	assert.False(t, strings.HasPrefix(persona.SystemPrompt, "---"))
	assert.NotContains(t, persona.SystemPrompt, "model:")
	// Shared policy and DSL reference ride on every persona.
	assert.Contains(t, persona.SystemPrompt, "# Band policy")
	assert.Contains(t, persona.SystemPrompt, "# Pattern language reference")
}

func TestLoadPersona_UnknownAgent(t *testing.T) {
	loader := NewLoader("gpt-5-mini")
	_, err := loader.LoadPersona(models.AgentID("theremin"))
	assert.Error(t, err)
}

func TestLoadAll(t *testing.T) {
	loader := NewLoader("gpt-5-mini")
	agents := []models.AgentID{models.AgentDrums, models.AgentBass, models.AgentMelody, models.AgentChords}

	personas, err := loader.LoadAll(agents)
	require.NoError(t, err)
	assert.Len(t, personas, 4)
	for _, agent := range agents {
		assert.NotEmpty(t, personas[agent].SystemPrompt)
	}
}

func TestSplitFrontmatter(t *testing.T) {
	tests := []struct {
		name          string
		raw           string
		expectedModel string
		expectedBody  string
	}{
		{
			name:          "frontmatter with model",
			raw:           "---\nname: Drummer\nmodel: gpt-5\n---\nbody text",
			expectedModel: "gpt-5",
			expectedBody:  "body text",
		},
		{
			name:         "no frontmatter",
			raw:          "just a persona body",
			expectedBody: "just a persona body",
		},
		{
			name:         "unterminated frontmatter treated as body",
			raw:          "---\nname: Drummer\nbody without closing fence",
			expectedBody: "---\nname: Drummer\nbody without closing fence",
		},
		{
			name:         "malformed yaml treated as body",
			raw:          "---\n{not yaml\n---\nbody",
			expectedBody: "---\n{not yaml\n---\nbody",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm, body := splitFrontmatter(tt.raw)
			assert.Equal(t, tt.expectedModel, fm.Model)
			assert.Equal(t, tt.expectedBody, body)
		})
	}
}

func TestSupportedModel(t *testing.T) {
	assert.True(t, supportedModel("gpt-5"))
	assert.True(t, supportedModel("Claude-sonnet-4"))
	assert.True(t, supportedModel("gemini-2.5-pro"))
	assert.False(t, supportedModel("llama-70b"))
	assert.False(t, supportedModel(""))
}
