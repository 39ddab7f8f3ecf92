package jam

import (
	"encoding/json"
	"fmt"

	"github.com/Conceptual-Machines/jam-api/internal/models"
	"github.com/Conceptual-Machines/jam-api/pkg/embedded"
)

// LoadPresets parses the embedded genre preset catalog.
func LoadPresets() ([]models.JamPreset, error) {
	var presets []models.JamPreset
	if err := json.Unmarshal(embedded.PresetsJSON, &presets); err != nil {
		return nil, fmt.Errorf("failed to parse preset catalog: %w", err)
	}
	return presets, nil
}
