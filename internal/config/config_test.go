package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrathskeller/rigger/pkg/spine"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, spine.DefaultConfig(), cfg.SpineOptions())
	assert.Equal(t, 300*time.Second, cfg.Timeout())
	assert.Equal(t, ".png", cfg.EncodeOptions().Extension())
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := Default()
	cfg.Synthesis.MissingPolicy = "skip"
	cfg.Synthesis.ReferenceWidth = 1080
	cfg.Cutout.Workers = 4
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
	assert.Equal(t, spine.PolicySkip, loaded.SpineOptions().MissingPolicy)
	assert.Equal(t, 4, loaded.CutoutOptions().Workers)
}

func TestLoadKeepsDefaultsForMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"output":{"image_format":"webp"}}`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "webp", cfg.Output.ImageFormat)
	assert.Equal(t, "character.zip", cfg.Output.ArchiveName)
	assert.Equal(t, 0.5, cfg.Synthesis.ConfidenceThreshold)
}

func TestLoadErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threshold", func(c *Config) { c.Synthesis.ConfidenceThreshold = 1.5 }},
		{"policy", func(c *Config) { c.Synthesis.MissingPolicy = "guess" }},
		{"hash", func(c *Config) { c.Synthesis.HashMode = "md5" }},
		{"reference width", func(c *Config) { c.Synthesis.ReferenceWidth = -1 }},
		{"workers", func(c *Config) { c.Cutout.Workers = -2 }},
		{"backend", func(c *Config) { c.Pose.Backend = "onnx" }},
		{"timeout", func(c *Config) { c.Pose.TimeoutSeconds = -1 }},
		{"format", func(c *Config) { c.Output.ImageFormat = "jpg" }},
		{"quality", func(c *Config) { c.Output.Quality = 0 }},
		{"archive", func(c *Config) { c.Output.ArchiveName = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("RIGGER_MISSING_POLICY", "zero")
	t.Setenv("RIGGER_REFERENCE_WIDTH", "1080")
	t.Setenv("RIGGER_TIMEOUT_SECONDS", "15")
	t.Setenv("RIGGER_POSE_BACKEND", "ollama")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, "zero", cfg.Synthesis.MissingPolicy)
	assert.Equal(t, 1080.0, cfg.Synthesis.ReferenceWidth)
	assert.Equal(t, 15*time.Second, cfg.Timeout())
	assert.Equal(t, "ollama", cfg.Pose.Backend)
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnvRejectsBadNumbers(t *testing.T) {
	t.Setenv("RIGGER_CONFIDENCE_THRESHOLD", "high")

	err := Default().ApplyEnv()
	assert.ErrorContains(t, err, "RIGGER_CONFIDENCE_THRESHOLD")
}

func TestGetConfigPath(t *testing.T) {
	assert.Equal(t, "config.json", filepath.Base(GetConfigPath()))
}
