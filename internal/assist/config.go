package assist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ProviderConfig defines runtime-selectable assist provider settings.
type ProviderConfig struct {
	Provider string            `json:"provider"` // "rule" | "openai"
	Endpoint string            `json:"endpoint"` // base URL for OpenAI-compatible APIs
	Model    string            `json:"model"`
	APIKey   string            `json:"api_key"`
	Extra    map[string]string `json:"extra"`
}

// Settings is the persisted assist settings state.
type Settings struct {
	Active ProviderConfig `json:"active"`
}

// DefaultSettings targets the offline rule provider, which needs no
// credentials.
func DefaultSettings() Settings {
	return Settings{
		Active: ProviderConfig{
			Provider: "rule",
			Extra:    map[string]string{},
		},
	}
}

// LoadSettings loads settings from path. A missing file yields the defaults;
// any other read/parse error is returned.
func LoadSettings(path string) (Settings, error) {
	if path == "" {
		return Settings{}, errors.New("empty settings path")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return Settings{}, fmt.Errorf("stat settings file: %w", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings file: %w", err)
	}
	var s Settings
	if err := json.Unmarshal(b, &s); err != nil {
		return Settings{}, fmt.Errorf("unmarshal settings: %w", err)
	}
	if s.Active.Provider == "" {
		s.Active.Provider = "rule"
	}
	if s.Active.Extra == nil {
		s.Active.Extra = map[string]string{}
	}
	return s, nil
}

// SaveSettings saves settings to path, creating parent directories if
// needed.
func SaveSettings(path string, s Settings) error {
	if path == "" {
		return errors.New("empty settings path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mk settings dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
