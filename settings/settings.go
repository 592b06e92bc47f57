package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"wavebind/logger"
)

const DefaultNodeType = "WaveSpeedAI Task Create"

// Default returns the configuration used for any key config.toml leaves out.
func Default() Config {
	return Config{
		Catalog: CatalogConfig{
			Url:             "http://127.0.0.1:8188",
			CacheTTLSeconds: 300,
			TimeoutSeconds:  10,
		},
		Engine: EngineConfig{
			Slots:       20,
			HistorySize: 5,
			NodeType:    DefaultNodeType,
		},
		Task: TaskConfig{
			Url:            "https://api.wavespeed.ai",
			TimeoutSeconds: 60,
			MaxWaitSeconds: 300,
			PollSeconds:    5,
			Retries:        3,
		},
		Store: StoreConfig{
			Path:       "wavebind.db",
			MergeHours: 24,
		},
		Logging: logger.Config{
			Level:  logger.LevelInfo,
			Format: "text",
		},
	}
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(c)
}

// LoadConfig decodes configPath over the defaults and validates the result.
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	// Get absolute path for better error messages
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		absPath = configPath
	}

	if _, err := toml.DecodeFile(configPath, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", absPath, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// LoadOrDefault loads configPath when it exists and falls back to Default otherwise.
func LoadOrDefault(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := Default()
		return &config, nil
	}
	return LoadConfig(configPath)
}
