package analysis

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Persona is the MemoryLoader node's output: tone, taboo list, catchphrases,
// and slang for one room_id, loaded from a YAML file on disk. A missing
// file yields a zero-value Persona, never an error.
type Persona struct {
	Tone         string   `yaml:"tone"`
	Taboos       []string `yaml:"taboos"`
	Catchphrases []string `yaml:"catchphrases"`
	Slang        []string `yaml:"slang"`
}

// IsEmpty reports whether no persona data is set, used by the
// AnalysisGenerator prompt and the Summary node's style profile to decide
// whether to mention style guidance at all.
func (p Persona) IsEmpty() bool {
	return p.Tone == "" && len(p.Taboos) == 0 && len(p.Catchphrases) == 0 && len(p.Slang) == 0
}

// PersonaLoader loads the persisted persona file for a room_id.
type PersonaLoader struct {
	// RootDir holds one "<room_id>.yaml" file per room with known persona
	// data. Optional; if empty, every room loads an empty Persona.
	RootDir string
}

// Load reads "<RootDir>/<roomID>.yaml" and parses it. A missing file (or an
// unset RootDir) returns an empty Persona with no error. A malformed file is
// still surfaced as an error — corrupt data isn't silently equivalent to
// "no data".
func (l PersonaLoader) Load(roomID string) (Persona, error) {
	if l.RootDir == "" {
		return Persona{}, nil
	}

	path := filepath.Join(l.RootDir, roomID+".yaml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Persona{}, nil
	}
	if err != nil {
		return Persona{}, err
	}

	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Persona{}, err
	}
	return p, nil
}
