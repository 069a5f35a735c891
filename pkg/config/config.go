// Package config provides configuration loading and management for octvol.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumWorkers specifies how many files are processed concurrently
		NumWorkers int `yaml:"numWorkers"`

		// CropSize is the crop size in mm applied in both scan directions
		CropSize float64 `yaml:"cropSize"`

		// OutputSuffix is appended to the input file name for cropped output
		OutputSuffix string `yaml:"outputSuffix"`
	} `yaml:"processing"`

	// Export parameters
	Export struct {
		// Format is the image format: jpeg, png or tiff
		Format string `yaml:"format"`

		// Gamma is the display exponent applied to raw B-scan intensities
		Gamma float64 `yaml:"gamma"`

		// JPEGQuality is the JPEG encoder quality from 1 to 100
		JPEGQuality int `yaml:"jpegQuality"`

		// MarkScans draws the B-scan positions onto the exported SLO image
		MarkScans bool `yaml:"markScans"`

		// ThicknessRange is the thickness in micrometres mapped to white
		ThicknessRange float64 `yaml:"thicknessRange"`

		// FillGaps interpolates missing thickness samples before export
		FillGaps bool `yaml:"fillGaps"`
	} `yaml:"export"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.NumWorkers = runtime.NumCPU()
	cfg.Processing.CropSize = 6 // ETDRS area
	cfg.Processing.OutputSuffix = "_cropped"

	// Set default export parameters
	cfg.Export.Format = "png"
	cfg.Export.Gamma = 0.25
	cfg.Export.JPEGQuality = 90
	cfg.Export.MarkScans = true
	cfg.Export.ThicknessRange = 500
	cfg.Export.FillGaps = true

	// Set default output parameters
	cfg.Output.Verbose = false

	return cfg
}

// Validate checks the configuration values
func (c *Config) Validate() error {
	if c.Processing.NumWorkers < 1 {
		return fmt.Errorf("processing.numWorkers must be at least 1, got %d", c.Processing.NumWorkers)
	}
	if c.Processing.CropSize <= 0 {
		return fmt.Errorf("processing.cropSize must be positive, got %v", c.Processing.CropSize)
	}
	switch c.Export.Format {
	case "jpeg", "png", "tiff":
	default:
		return fmt.Errorf("export.format must be jpeg, png, or tiff, got %q", c.Export.Format)
	}
	if c.Export.Gamma <= 0 {
		return fmt.Errorf("export.gamma must be positive, got %v", c.Export.Gamma)
	}
	if c.Export.ThicknessRange <= 0 {
		return fmt.Errorf("export.thicknessRange must be positive, got %v", c.Export.ThicknessRange)
	}
	if c.Export.JPEGQuality < 1 || c.Export.JPEGQuality > 100 {
		return fmt.Errorf("export.jpegQuality must be between 1 and 100, got %d", c.Export.JPEGQuality)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
