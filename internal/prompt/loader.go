// Package prompt loads persona system prompts and builds the per-turn
// prompts sent to agent subprocesses. All outputs are deterministic for
// equal inputs.
package prompt

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Conceptual-Machines/jam-api/internal/logger"
	"github.com/Conceptual-Machines/jam-api/internal/models"
	"github.com/Conceptual-Machines/jam-api/pkg/embedded"
)

// supportedModelFamilies gates per-persona model overrides. An override
// naming anything else is ignored in favor of the default model.
var supportedModelFamilies = []string{"gpt-", "o3", "o4", "claude-", "gemini-"}

// Persona is one agent's loaded system prompt plus its resolved model.
type Persona struct {
	Agent        models.AgentID
	Name         string
	Model        string
	SystemPrompt string
}

// frontmatter is the optional YAML header at the top of a persona file.
type frontmatter struct {
	Name  string `yaml:"name"`
	Model string `yaml:"model"`
}

// Loader reads persona and reference files once at session start.
type Loader struct {
	DefaultModel string
}

// NewLoader creates a persona loader with the given default model.
func NewLoader(defaultModel string) *Loader {
	return &Loader{DefaultModel: defaultModel}
}

// LoadPersona builds the full system prompt for one agent: persona body,
// then the shared policy and DSL reference appended verbatim.
func (l *Loader) LoadPersona(agent models.AgentID) (*Persona, error) {
	meta, ok := models.MetaFor(agent)
	if !ok {
		return nil, fmt.Errorf("unknown agent %q", agent)
	}
	raw, ok := embedded.Personas[meta.PersonaFile]
	if !ok {
		return nil, fmt.Errorf("no persona file for agent %q", agent)
	}

	fm, body := splitFrontmatter(string(raw))

	model := l.DefaultModel
	if fm.Model != "" {
		if supportedModel(fm.Model) {
			model = fm.Model
		} else {
			logger.Warn("Persona model override ignored", logger.Fields{
				"agent": string(agent),
				"model": fm.Model,
			})
		}
	}

	name := meta.Name
	if fm.Name != "" {
		name = fm.Name
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(body))
	sb.WriteString("\n\n")
	sb.WriteString(strings.TrimSpace(string(embedded.SharedPolicyMd)))
	sb.WriteString("\n\n")
	sb.WriteString(strings.TrimSpace(string(embedded.PatternDSLMd)))

	return &Persona{
		Agent:        agent,
		Name:         name,
		Model:        model,
		SystemPrompt: sb.String(),
	}, nil
}

// LoadAll loads personas for the given agents, failing fast on the
// first missing or unreadable file.
func (l *Loader) LoadAll(agents []models.AgentID) (map[models.AgentID]*Persona, error) {
	personas := make(map[models.AgentID]*Persona, len(agents))
	for _, agent := range agents {
		persona, err := l.LoadPersona(agent)
		if err != nil {
			return nil, err
		}
		personas[agent] = persona
	}
	return personas, nil
}

// splitFrontmatter separates an optional leading YAML block delimited
// by "---" lines from the persona body. A malformed block is treated
// as body text.
func splitFrontmatter(raw string) (frontmatter, string) {
	var fm frontmatter

	trimmed := strings.TrimLeft(raw, "\n")
	if !strings.HasPrefix(trimmed, "---\n") {
		return fm, raw
	}
	rest := trimmed[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return fm, raw
	}
	header := rest[:end]
	body := rest[end+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")

	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return frontmatter{}, raw
	}
	return fm, body
}

func supportedModel(model string) bool {
	lower := strings.ToLower(model)
	for _, family := range supportedModelFamilies {
		if strings.HasPrefix(lower, family) {
			return true
		}
	}
	return false
}
