package musictheory

import (
	"fmt"
	"strings"
)

// QualityMajor and QualityMinor are the two supported key qualities.
const (
	QualityMajor = "major"
	QualityMinor = "minor"
)

var (
	sharpChromatic = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
	flatChromatic  = []string{"C", "Db", "D", "Eb", "E", "F", "Gb", "G", "Ab", "A", "Bb", "B"}

	majorIntervals = []int{0, 2, 4, 5, 7, 9, 11}
	minorIntervals = []int{0, 2, 3, 5, 7, 8, 10}

	// Natural-root keys that conventionally spell with flats.
	flatBiasedKeys = map[string]bool{
		"F major": true,
		"D minor": true,
		"G minor": true,
		"C minor": true,
		"F minor": true,
	}
)

// Key is a parsed musical key: a normalized root plus a quality.
type Key struct {
	Root    string
	Quality string
}

// Name returns the human-readable key name, e.g. "F# minor".
func (k Key) Name() string {
	return k.Root + " " + k.Quality
}

// NormalizeRoot uppercases the note letter and lowercases the accidental.
// Returns an error for anything that is not a pitch-class name.
func NormalizeRoot(root string) (string, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return "", fmt.Errorf("empty root")
	}
	normalized := strings.ToUpper(root[:1])
	if len(root) > 1 {
		accidental := strings.ToLower(root[1:])
		if accidental != "b" && accidental != "#" {
			return "", fmt.Errorf("invalid accidental in root %q", root)
		}
		normalized += accidental
	}
	if chromaticIndex(normalized) < 0 {
		return "", fmt.Errorf("unknown root %q", root)
	}
	return normalized, nil
}

// ParseKey parses a key name like "G major", "f# min" or "Bb" (quality
// defaults to major). Returns an error when the root is not a valid
// pitch class.
func ParseKey(name string) (Key, error) {
	fields := strings.Fields(strings.TrimSpace(name))
	if len(fields) == 0 {
		return Key{}, fmt.Errorf("empty key name")
	}

	root, err := NormalizeRoot(fields[0])
	if err != nil {
		return Key{}, err
	}

	quality := QualityMajor
	if len(fields) > 1 {
		switch strings.ToLower(fields[1]) {
		case "major", "maj":
			quality = QualityMajor
		case "minor", "min":
			quality = QualityMinor
		default:
			return Key{}, fmt.Errorf("unknown quality %q", fields[1])
		}
	}

	return Key{Root: root, Quality: quality}, nil
}

// Scale derives the 7-note scale for the key. Flat spelling is used for
// flat roots and for the conventional flat-biased natural keys (F major,
// D/G/C/F minor); sharp spelling otherwise.
func (k Key) Scale() []string {
	chromatic := sharpChromatic
	if strings.HasSuffix(k.Root, "b") || flatBiasedKeys[k.Name()] {
		chromatic = flatChromatic
	}

	rootIdx := chromaticIndex(k.Root)
	if rootIdx < 0 {
		return nil
	}

	intervals := majorIntervals
	if k.Quality == QualityMinor {
		intervals = minorIntervals
	}

	scale := make([]string, 0, len(intervals))
	for _, interval := range intervals {
		scale = append(scale, chromatic[(rootIdx+interval)%12])
	}
	return scale
}

// FallbackProgression returns a minimal diatonic 4-chord progression for
// the key: I-vi-IV-V for major, i-VI-III-VII for minor. It gives the jam
// valid chords immediately after a modulation.
func (k Key) FallbackProgression() []string {
	scale := k.Scale()
	if len(scale) != 7 {
		return nil
	}
	if k.Quality == QualityMinor {
		return []string{scale[0] + "m", scale[5], scale[2], scale[6]}
	}
	return []string{scale[0], scale[5] + "m", scale[3], scale[4]}
}

// chromaticIndex returns the pitch-class index for a normalized root, or
// -1 when the root is not a valid note name.
func chromaticIndex(root string) int {
	for i, note := range sharpChromatic {
		if note == root {
			return i
		}
	}
	for i, note := range flatChromatic {
		if note == root {
			return i
		}
	}
	return -1
}
