// Package config loads process-wide configuration from YAML and builds
// the zap logger every component is constructed with.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration struct, mirroring the section layout
// (and Load/setDefaults pattern) of the teacher's config package.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Store    StoreConfig    `yaml:"store"`
	Template TemplateConfig `yaml:"template"`
	History  HistoryConfig  `yaml:"history"`
	Camera   CameraConfig   `yaml:"camera"`
}

// AppConfig carries process-identity metadata.
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig carries the collaborator HTTP listener's bind address.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

// LoggingConfig controls zap construction.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Output string `yaml:"output"`
}

// StoreConfig bounds the Image Store. Defaults sourced from the original
// system's ImageConstants.
type StoreConfig struct {
	MaxImages            int `yaml:"max_images"`
	MaxMemoryMB          int `yaml:"max_memory_mb"`
	ThumbnailMaxWidth    int `yaml:"thumbnail_max_width"`
	ThumbnailJPEGQuality int `yaml:"thumbnail_jpeg_quality"`
	EvictionBatchSize    int `yaml:"eviction_batch_size"`
}

// TemplateConfig configures the Template Store's persistence location.
type TemplateConfig struct {
	StoragePath      string  `yaml:"storage_path"`
	DefaultThreshold float64 `yaml:"default_threshold"`
	MaxTemplates     int     `yaml:"max_templates"`
}

// HistoryConfig bounds the History Ring.
type HistoryConfig struct {
	BufferSize              int `yaml:"buffer_size"`
	DefaultTimeIntervalMins int `yaml:"default_time_interval_minutes"`
	DefaultDurationHours    int `yaml:"default_duration_hours"`
}

// CameraConfig configures the collaborator camera-id parsing helper.
type CameraConfig struct {
	DefaultCameraID string `yaml:"default_camera_id"`
}

// Load reads configPath as YAML and fills in defaults for any zero-valued
// field, the way the teacher's config.Load does.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	setDefaults(&cfg)
	return &cfg, nil
}

// setDefaults fills zero-valued fields with the defaults transcribed from
// the original system's core/constants.py.
func setDefaults(cfg *Config) {
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "console"
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}

	if cfg.Store.MaxImages == 0 {
		cfg.Store.MaxImages = 100
	}
	if cfg.Store.MaxMemoryMB == 0 {
		cfg.Store.MaxMemoryMB = 1000
	}
	if cfg.Store.ThumbnailMaxWidth == 0 {
		cfg.Store.ThumbnailMaxWidth = 320
	}
	if cfg.Store.ThumbnailJPEGQuality == 0 {
		cfg.Store.ThumbnailJPEGQuality = 70
	}
	if cfg.Store.EvictionBatchSize == 0 {
		cfg.Store.EvictionBatchSize = 5
	}

	if cfg.Template.StoragePath == "" {
		cfg.Template.StoragePath = "templates"
	}
	if cfg.Template.DefaultThreshold == 0 {
		cfg.Template.DefaultThreshold = 0.8
	}
	if cfg.Template.MaxTemplates == 0 {
		cfg.Template.MaxTemplates = 1000
	}

	if cfg.History.BufferSize == 0 {
		cfg.History.BufferSize = 1000
	}
	if cfg.History.DefaultTimeIntervalMins == 0 {
		cfg.History.DefaultTimeIntervalMins = 5
	}
	if cfg.History.DefaultDurationHours == 0 {
		cfg.History.DefaultDurationHours = 24
	}

	if cfg.Camera.DefaultCameraID == "" {
		cfg.Camera.DefaultCameraID = "test"
	}
}

// MaxBytes converts the configured memory budget to bytes.
func (c StoreConfig) MaxBytes() int64 {
	return int64(c.MaxMemoryMB) * 1024 * 1024
}

// ThumbnailTimeout is the soft latency target mentioned in spec.md §1 for
// thumbnail encoding. Nothing in the module enforces it or logs against it.
const ThumbnailTimeout = 2 * time.Second
