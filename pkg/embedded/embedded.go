package embedded

import (
	_ "embed"
)

// Embed persona and reference files. These are read once at session
// start and immutable thereafter.
//
//go:embed personas/drummer.md
var PersonaDrummerMd []byte

//go:embed personas/bassist.md
var PersonaBassistMd []byte

//go:embed personas/melody.md
var PersonaMelodyMd []byte

//go:embed personas/chords.md
var PersonaChordsMd []byte

//go:embed personas/shared_policy.md
var SharedPolicyMd []byte

//go:embed personas/pattern_dsl.md
var PatternDSLMd []byte

//go:embed data/presets.json
var PresetsJSON []byte

// Personas maps a persona file key to its embedded contents.
var Personas = map[string][]byte{
	"drummer": PersonaDrummerMd,
	"bassist": PersonaBassistMd,
	"melody":  PersonaMelodyMd,
	"chords":  PersonaChordsMd,
}
