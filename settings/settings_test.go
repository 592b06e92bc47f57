package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	config := Default()
	require.NoError(t, config.Validate())
	assert.Equal(t, 20, config.Engine.Slots)
	assert.Equal(t, 5, config.Engine.HistorySize)
	assert.Equal(t, "WaveSpeedAI Task Create", config.Engine.NodeType)
	assert.Equal(t, float64(300), config.Catalog.CacheTTL().Seconds())
	assert.Equal(t, "https://api.wavespeed.ai", config.Task.Url)
	assert.Equal(t, float64(300), config.Task.MaxWait().Seconds())
	assert.Equal(t, float64(5), config.Task.PollInterval().Seconds())
}

func TestLoadConfigTaskBounds(t *testing.T) {
	path := writeConfig(t, `
[wavespeed]
apiKey = "secret"
pollSeconds = 2
`)
	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "secret", config.Task.ApiKey)
	assert.Equal(t, 2, config.Task.PollSeconds)
	assert.Equal(t, 300, config.Task.MaxWaitSeconds)

	path = writeConfig(t, `
[wavespeed]
maxWaitSeconds = 10
`)
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[catalog]
url = "http://comfy.local:8188"

[engine]
slots = 8

[logging]
level = "debug"
format = "json"
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://comfy.local:8188", config.Catalog.Url)
	assert.Equal(t, 300, config.Catalog.CacheTTLSeconds)
	assert.Equal(t, 8, config.Engine.Slots)
	assert.Equal(t, 5, config.Engine.HistorySize)
	assert.Equal(t, "json", config.Logging.Format)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
[engine]
slots = 40
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoadConfigParseError(t *testing.T) {
	path := writeConfig(t, `[catalog`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error parsing config file")
}

func TestLoadConfigMissing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)

	config, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, 20, config.Engine.Slots)
}
