package vision

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed config/*.yaml
var configFiles embed.FS

// ModelConfig selects the primary/fallback model pair and the generation
// settings shared by both attempts.
type ModelConfig struct {
	Primary    string `yaml:"primary"`
	Fallback   string `yaml:"fallback"`
	Generation struct {
		Temperature     float32 `yaml:"temperature"`
		MaxOutputTokens int32   `yaml:"max_output_tokens"`
	} `yaml:"generation"`
}

// LoadModelConfig loads the embedded model configuration.
func LoadModelConfig() (*ModelConfig, error) {
	data, err := configFiles.ReadFile("config/models.yaml")
	if err != nil {
		return nil, fmt.Errorf("read model config: %w", err)
	}

	var cfg ModelConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal model config: %w", err)
	}

	if cfg.Primary == "" || cfg.Fallback == "" {
		return nil, fmt.Errorf("model config must name a primary and a fallback model")
	}

	return &cfg, nil
}
