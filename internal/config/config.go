package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/wrathskeller/rigger/pkg/cutout"
	"github.com/wrathskeller/rigger/pkg/spine"
	"github.com/wrathskeller/rigger/pkg/types"
)

// Config holds the application configuration
type Config struct {
	Synthesis SynthesisConfig `json:"synthesis"`
	Cutout    CutoutConfig    `json:"cutout"`
	Pose      PoseConfig      `json:"pose"`
	Output    OutputConfig    `json:"output"`
}

// SynthesisConfig holds configuration for skeleton synthesis
type SynthesisConfig struct {
	// half of ReferenceWidth is subtracted from every keypoint x;
	// 0 uses the source image width
	ReferenceWidth      float64 `json:"reference_width"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	MissingPolicy       string  `json:"missing_policy"`
	HashMode            string  `json:"hash_mode"`
	SpineVersion        string  `json:"spine_version"`
}

// CutoutConfig holds configuration for cutout extraction
type CutoutConfig struct {
	Resample bool `json:"resample"`
	Workers  int  `json:"workers"`
}

// PoseConfig holds configuration for the pose and segmentation sources
type PoseConfig struct {
	Backend        string `json:"backend"`
	URL            string `json:"url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	SendSize       int    `json:"send_size"`
	SendQuality    int    `json:"send_quality"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	OutputDir   string `json:"output_dir"`
	ArchiveName string `json:"archive_name"`
	ImageFormat string `json:"image_format"`
	Quality     int    `json:"quality"`
	Lossless    bool   `json:"lossless"`
	Overlay     bool   `json:"overlay"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Synthesis: SynthesisConfig{
			ReferenceWidth:      0,
			ConfidenceThreshold: 0.5,
			MissingPolicy:       string(spine.PolicyAbort),
			HashMode:            string(spine.HashContent),
			SpineVersion:        spine.DefaultVersion,
		},
		Cutout: CutoutConfig{
			Resample: false,
			Workers:  0,
		},
		Pose: PoseConfig{
			Backend:        "file",
			Model:          "qwen2.5vl:7b",
			TimeoutSeconds: 300,
			SendSize:       1024,
			SendQuality:    90,
		},
		Output: OutputConfig{
			OutputDir:   "./output",
			ArchiveName: "character.zip",
			ImageFormat: "png",
			Quality:     90,
			Lossless:    true,
			Overlay:     false,
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Fields missing from
// the file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv loads a .env file if present and overlays RIGGER_* variables
func (c *Config) ApplyEnv() error {
	_ = godotenv.Load()

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	var err error
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" && err == nil {
			n, perr := strconv.Atoi(v)
			if perr != nil {
				err = fmt.Errorf("%s: %w", key, perr)
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok && v != "" && err == nil {
			f, perr := strconv.ParseFloat(v, 64)
			if perr != nil {
				err = fmt.Errorf("%s: %w", key, perr)
				return
			}
			*dst = f
		}
	}

	float("RIGGER_REFERENCE_WIDTH", &c.Synthesis.ReferenceWidth)
	float("RIGGER_CONFIDENCE_THRESHOLD", &c.Synthesis.ConfidenceThreshold)
	str("RIGGER_MISSING_POLICY", &c.Synthesis.MissingPolicy)
	str("RIGGER_HASH_MODE", &c.Synthesis.HashMode)
	str("RIGGER_POSE_BACKEND", &c.Pose.Backend)
	str("RIGGER_POSE_URL", &c.Pose.URL)
	str("RIGGER_MODEL", &c.Pose.Model)
	num("RIGGER_TIMEOUT_SECONDS", &c.Pose.TimeoutSeconds)
	str("RIGGER_OUTPUT_DIR", &c.Output.OutputDir)
	str("RIGGER_IMAGE_FORMAT", &c.Output.ImageFormat)
	return err
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.SpineOptions().Validate(); err != nil {
		return fmt.Errorf("synthesis: %w", err)
	}

	if c.Cutout.Workers < 0 {
		return fmt.Errorf("cutout.workers must not be negative")
	}

	switch c.Pose.Backend {
	case "file", "ollama", "llamacpp":
	default:
		return fmt.Errorf("pose.backend must be file, ollama or llamacpp")
	}

	if c.Pose.TimeoutSeconds < 0 {
		return fmt.Errorf("pose.timeout_seconds must not be negative")
	}

	switch c.Output.ImageFormat {
	case "png", "webp":
	default:
		return fmt.Errorf("output.image_format must be png or webp")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	if c.Output.ArchiveName == "" {
		return fmt.Errorf("output.archive_name cannot be empty")
	}

	return nil
}

// SpineOptions maps the synthesis section onto spine.Config
func (c *Config) SpineOptions() spine.Config {
	return spine.Config{
		ReferenceWidth:      c.Synthesis.ReferenceWidth,
		ConfidenceThreshold: c.Synthesis.ConfidenceThreshold,
		MissingPolicy:       spine.MissingPolicy(c.Synthesis.MissingPolicy),
		HashMode:            spine.HashMode(c.Synthesis.HashMode),
		Version:             c.Synthesis.SpineVersion,
	}
}

// CutoutOptions maps the cutout section onto cutout.Config
func (c *Config) CutoutOptions() cutout.Config {
	return cutout.Config{Resample: c.Cutout.Resample, Workers: c.Cutout.Workers}
}

// EncodeOptions maps the output section onto the cutout image encoding
func (c *Config) EncodeOptions() types.EncodeConfig {
	return types.EncodeConfig{Format: c.Output.ImageFormat, Quality: c.Output.Quality, Lossless: c.Output.Lossless}
}

// Timeout returns the inference timeout
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Pose.TimeoutSeconds) * time.Second
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "rigger", "config.json")
}
