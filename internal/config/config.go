package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/bis0908/naver-blog-image-downloader/internal/fetch"
	"github.com/bis0908/naver-blog-image-downloader/internal/transform"
)

// Config represents the complete configuration for the nbid application.
// It covers all commands (fetch, transform, serve) and supports loading
// from configuration files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir" json:"output_dir"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Image transformation settings
	Transform TransformConfig `mapstructure:"transform" yaml:"transform" json:"transform"`

	// Download settings
	Fetch FetchConfig `mapstructure:"fetch" yaml:"fetch" json:"fetch"`

	// Batch processing settings
	Batch BatchConfig `mapstructure:"batch" yaml:"batch" json:"batch"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
}

// TransformConfig contains randomized transform and save settings.
type TransformConfig struct {
	RandomSize  bool   `mapstructure:"random_size" yaml:"random_size" json:"random_size"`
	RandomAngle bool   `mapstructure:"random_angle" yaml:"random_angle" json:"random_angle"`
	RandomPixel bool   `mapstructure:"random_pixel" yaml:"random_pixel" json:"random_pixel"`
	AddOutline  bool   `mapstructure:"add_outline" yaml:"add_outline" json:"add_outline"`
	JPEGQuality int    `mapstructure:"jpeg_quality" yaml:"jpeg_quality" json:"jpeg_quality"`
	KeepSources bool   `mapstructure:"keep_sources" yaml:"keep_sources" json:"keep_sources"`
	Seed        uint64 `mapstructure:"seed" yaml:"seed" json:"seed"`
}

// FetchConfig contains image download settings.
type FetchConfig struct {
	TimeoutSec     int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	Retries        int    `mapstructure:"retries" yaml:"retries" json:"retries"`
	RetryBackoffMs int    `mapstructure:"retry_backoff_ms" yaml:"retry_backoff_ms" json:"retry_backoff_ms"`
	UserAgent      string `mapstructure:"user_agent" yaml:"user_agent" json:"user_agent"`
	SkipEdgeImages bool   `mapstructure:"skip_edge_images" yaml:"skip_edge_images" json:"skip_edge_images"`
}

// BatchConfig contains batch processing settings.
type BatchConfig struct {
	BaseProgress int `mapstructure:"base_progress" yaml:"base_progress" json:"base_progress"`
	PauseMs      int `mapstructure:"pause_ms" yaml:"pause_ms" json:"pause_ms"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		OutputDir: "downloads",
		LogLevel:  "info",
		Verbose:   false,
		Transform: TransformConfig{
			RandomSize:  true,
			RandomAngle: true,
			RandomPixel: true,
			AddOutline:  true,
			JPEGQuality: transform.DefaultJPEGQuality,
			KeepSources: false,
			Seed:        0,
		},
		Fetch: FetchConfig{
			TimeoutSec:     30,
			Retries:        3,
			RetryBackoffMs: 500,
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			SkipEdgeImages: false,
		},
		Batch: BatchConfig{
			BaseProgress: 0,
			PauseMs:      10,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			TimeoutSec:      60,
			ShutdownTimeout: 10,
		},
	}
}

// TransformOptions converts the transform section to the step flags the
// transformer takes.
func (c *Config) TransformOptions() transform.Options {
	return transform.Options{
		RandomSize:  c.Transform.RandomSize,
		RandomAngle: c.Transform.RandomAngle,
		RandomPixel: c.Transform.RandomPixel,
		AddOutline:  c.Transform.AddOutline,
	}
}

// NewTransformer builds a transformer from the configured seed. A zero
// seed yields a randomly seeded transformer.
func (c *Config) NewTransformer() *transform.Transformer {
	if c.Transform.Seed != 0 {
		return transform.NewSeeded(c.Transform.Seed)
	}
	return transform.New()
}

// NewDownloader builds an image downloader from the fetch section.
func (c *Config) NewDownloader() *fetch.Downloader {
	d := fetch.NewDownloader(
		time.Duration(c.Fetch.TimeoutSec)*time.Second,
		c.Fetch.Retries,
		time.Duration(c.Fetch.RetryBackoffMs)*time.Millisecond,
	)
	return d.WithUserAgent(c.Fetch.UserAgent).WithSkipEdges(c.Fetch.SkipEdgeImages)
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.Transform.JPEGQuality < 1 || c.Transform.JPEGQuality > 100 {
		return fmt.Errorf("invalid jpeg quality: %d (must be between 1 and 100)", c.Transform.JPEGQuality)
	}

	if c.Fetch.TimeoutSec <= 0 {
		return fmt.Errorf("invalid fetch timeout: %d (must be positive)", c.Fetch.TimeoutSec)
	}
	if c.Fetch.Retries < 0 {
		return fmt.Errorf("invalid fetch retries: %d (must not be negative)", c.Fetch.Retries)
	}
	if c.Fetch.RetryBackoffMs < 0 {
		return fmt.Errorf("invalid fetch retry backoff: %d (must not be negative)", c.Fetch.RetryBackoffMs)
	}

	if c.Batch.BaseProgress < 0 || c.Batch.BaseProgress > 99 {
		return fmt.Errorf("invalid base progress: %d (must be between 0 and 99)", c.Batch.BaseProgress)
	}
	if c.Batch.PauseMs < 0 {
		return fmt.Errorf("invalid batch pause: %d (must not be negative)", c.Batch.PauseMs)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid server timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %d (must be positive)", c.Server.ShutdownTimeout)
	}

	return nil
}

// contains checks if a slice contains a string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
