package params

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
)

// Styles is the fixed set of style identifiers the generators understand.
var Styles = []string{"da_funk", "around_world", "harder_better"}

func IsStyle(s string) bool { return slices.Contains(Styles, s) }

// Settings are the last-used invocation parameters, remembered between runs.
type Settings struct {
	Style string `json:"style"`
	Tempo int    `json:"tempo"`
	Bars  int    `json:"bars"`
}

func DefaultSettings() Settings {
	return Settings{Style: Styles[0], Tempo: 128, Bars: 16}
}

// SettingsPath returns ~/.config/riffgpt/settings.json
func SettingsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "riffgpt", "settings.json"), nil
}

// LoadSettings reads settings from path, or returns defaults if not found.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return Settings{}, err
	}
	s := DefaultSettings()
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Save writes the settings to path, creating parent directories.
func (s Settings) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
