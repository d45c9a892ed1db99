package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile overrides the session settings of a talk run. Zero fields keep
// the defaults.
type Profile struct {
	Mode        string   `yaml:"mode,omitempty" json:"mode,omitempty"`
	UserName    string   `yaml:"user_name,omitempty" json:"userName,omitempty"`
	Voice       string   `yaml:"voice,omitempty" json:"voice,omitempty"`
	Language    string   `yaml:"language,omitempty" json:"language,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	// Prompts is a directory of template overrides.
	Prompts string `yaml:"prompts,omitempty" json:"prompts,omitempty"`
}

// LoadProfile loads a profile from a YAML or JSON file
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	var p Profile
	if err := ParseProfile(data, path, &p); err != nil {
		return nil, err
	}
	if p.Prompts != "" && !filepath.IsAbs(p.Prompts) {
		p.Prompts = filepath.Join(filepath.Dir(path), p.Prompts)
	}
	return &p, nil
}

// ParseProfile parses data based on file extension or content
func ParseProfile(data []byte, filename string, v any) error {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		// Try YAML first, then JSON
		if err := yaml.Unmarshal(data, v); err != nil {
			if err2 := json.Unmarshal(data, v); err2 != nil {
				return fmt.Errorf("failed to parse file (tried YAML and JSON)")
			}
		}
	}
	return nil
}
