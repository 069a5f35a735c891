package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Processing.CropSize != 6 {
		t.Errorf("Expected default crop size 6, got %v", cfg.Processing.CropSize)
	}
	if cfg.Processing.NumWorkers < 1 {
		t.Errorf("Expected at least one worker, got %d", cfg.Processing.NumWorkers)
	}
	if cfg.Export.Gamma != 0.25 {
		t.Errorf("Expected gamma 0.25, got %v", cfg.Export.Gamma)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected default config to be valid, got %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Expected defaults for a missing file, got error %v", err)
	}
	if cfg.Processing.CropSize != 6 {
		t.Errorf("Expected default crop size, got %v", cfg.Processing.CropSize)
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "octvol.yaml")

	cfg := DefaultConfig()
	cfg.Processing.CropSize = 3.5
	cfg.Export.Format = "tiff"
	cfg.Output.Verbose = true
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if loaded.Processing.CropSize != 3.5 {
		t.Errorf("Expected crop size 3.5, got %v", loaded.Processing.CropSize)
	}
	if loaded.Export.Format != "tiff" {
		t.Errorf("Expected format tiff, got %s", loaded.Export.Format)
	}
	if !loaded.Output.Verbose {
		t.Error("Expected verbose output")
	}
}

func TestLoadConfigPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	data := "processing:\n  cropSize: 4\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Processing.CropSize != 4 {
		t.Errorf("Expected crop size 4, got %v", cfg.Processing.CropSize)
	}
	if cfg.Export.Format != "png" {
		t.Errorf("Expected default format to survive, got %s", cfg.Export.Format)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":    "processing: [",
		"bad format":  "export:\n  format: gif\n",
		"zero crop":   "processing:\n  cropSize: 0\n",
		"bad quality": "export:\n  jpegQuality: 101\n",
		"bad range":   "export:\n  thicknessRange: 0\n",
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(data), 0644); err != nil {
				t.Fatalf("Failed to write config: %v", err)
			}
			if _, err := LoadConfig(path); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}
