package settings

import (
	"time"

	"wavebind/logger"
)

type (
	Config struct {
		Catalog CatalogConfig `toml:"catalog" validate:"required"`
		Engine  EngineConfig  `toml:"engine" validate:"required"`
		Store   StoreConfig   `toml:"store"`
		ComfyUi ComfyUiConfig `toml:"comfyui"`
		Task    TaskConfig    `toml:"wavespeed" validate:"required"`
		Logging logger.Config `toml:"logging" validate:"required"`
	}

	CatalogConfig struct {
		Url             string `toml:"url" validate:"required,url"`
		CacheTTLSeconds int    `toml:"cacheTTLSeconds" validate:"gte=0"`
		TimeoutSeconds  int    `toml:"timeoutSeconds" validate:"gte=1"`
	}

	EngineConfig struct {
		Slots       int    `toml:"slots" validate:"gte=1,lte=20"`
		HistorySize int    `toml:"historySize" validate:"gte=1"`
		NodeType    string `toml:"nodeType" validate:"required"`
	}

	StoreConfig struct {
		Path         string `toml:"path"`
		MaxValueSize int    `toml:"maxValueSize" validate:"gte=0"`
		MergeHours   int    `toml:"mergeHours" validate:"gte=0"`
	}

	TaskConfig struct {
		Url            string `toml:"url" validate:"required,url"`
		ApiKey         string `toml:"apiKey"`
		TimeoutSeconds int    `toml:"timeoutSeconds" validate:"gte=1"`
		MaxWaitSeconds int    `toml:"maxWaitSeconds" validate:"gte=30,lte=1800"`
		PollSeconds    int    `toml:"pollSeconds" validate:"gte=1,lte=30"`
		Retries        int    `toml:"retries" validate:"gte=0,lte=10"`
	}

	ComfyUiConfig struct {
		Url      string `toml:"url" validate:"omitempty,url"`
		Port     string `toml:"port"`
		ClientId string `toml:"clientId"`
	}
)

// CacheTTL is the catalog freshness window.
func (c CatalogConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c CatalogConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c TaskConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MaxWait bounds how long a submitted task is polled for.
func (c TaskConfig) MaxWait() time.Duration {
	return time.Duration(c.MaxWaitSeconds) * time.Second
}

func (c TaskConfig) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}
