package speech

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed voices.yaml
var builtinVoices []byte

type Voice struct {
	Key     string `yaml:"key" json:"id"`
	VoiceID string `yaml:"voice_id" json:"voice_id"`
	Name    string `yaml:"name" json:"name"`
	Gender  string `yaml:"gender" json:"gender"`
	Accent  string `yaml:"accent" json:"accent"`
}

// Catalog maps friendly voice keys and names to provider voice ids.
type Catalog struct {
	Default string  `yaml:"default"`
	Voices  []Voice `yaml:"voices"`
}

// DefaultCatalog returns the catalog compiled into the binary.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(builtinVoices)
	if err != nil {
		panic(fmt.Sprintf("builtin voice catalog: %v", err))
	}
	return c
}

// LoadCatalog reads a catalog file, falling back to the builtin one when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read voice catalog: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse voice catalog: %w", err)
	}
	if len(c.Voices) == 0 {
		return nil, fmt.Errorf("voice catalog has no voices")
	}
	if c.Default == "" {
		c.Default = c.Voices[0].Key
	}
	if _, ok := c.byKey(c.Default); !ok {
		return nil, fmt.Errorf("default voice %q is not in the catalog", c.Default)
	}
	return &c, nil
}

func (c *Catalog) byKey(key string) (Voice, bool) {
	for _, v := range c.Voices {
		if v.Key == key {
			return v, true
		}
	}
	return Voice{}, false
}

// Resolve turns a catalog key, a raw provider id, or a display name into a
// provider voice id. An explicit voiceID always wins over voiceName.
func (c *Catalog) Resolve(voiceID, voiceName string) string {
	if voiceID != "" {
		if v, ok := c.byKey(voiceID); ok {
			return v.VoiceID
		}
		return voiceID
	}
	if voiceName != "" {
		for _, v := range c.Voices {
			if v.Name == voiceName {
				return v.VoiceID
			}
		}
	}
	v, _ := c.byKey(c.Default)
	return v.VoiceID
}
