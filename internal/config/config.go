// SPDX-License-Identifier: MIT

// Package config loads and validates the savid service configuration with
// precedence ENV > file > defaults.
package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// AppConfig holds the full runtime configuration of the service.
type AppConfig struct {
	ListenAddr  string `yaml:"listenAddr"`
	MetricsAddr string `yaml:"metricsAddr"` // empty disables the metrics listener

	// DataDir is the root for all media collections. The per-collection
	// directories default to subdirectories of it but may be overridden.
	DataDir     string `yaml:"dataDir"`
	GalleryDir  string `yaml:"galleryDir"`
	PostersDir  string `yaml:"postersDir"`
	UploadsDir  string `yaml:"uploadsDir"`
	SegmentsDir string `yaml:"segmentsDir"`

	// InferenceBase is the base URL of the inference engine collaborator.
	InferenceBase string `yaml:"inferenceBase"`

	// Boundary is the multipart boundary token for streamed frame results.
	Boundary string `yaml:"boundary"`

	LogLevel       string   `yaml:"logLevel"`
	AllowedOrigins []string `yaml:"allowedOrigins"`

	RateLimitRPS   int `yaml:"rateLimitRPS"` // 0 disables rate limiting
	RateLimitBurst int `yaml:"rateLimitBurst"`

	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	Version string `yaml:"-"`
}

func defaults(version string) AppConfig {
	return AppConfig{
		ListenAddr:      ":7263",
		MetricsAddr:     "",
		DataDir:         "/data",
		Boundary:        "frame",
		LogLevel:        "info",
		RateLimitRPS:    0,
		RateLimitBurst:  20,
		ShutdownTimeout: 10 * time.Second,
		Version:         version,
	}
}

// Loader loads configuration from an optional YAML file plus the environment.
type Loader struct {
	path    string
	version string
}

// NewLoader returns a loader for the given config file path. An empty path
// means env+defaults only.
func NewLoader(path, version string) *Loader {
	return &Loader{path: strings.TrimSpace(path), version: version}
}

// Load resolves the effective configuration: defaults, then file, then env.
func (l *Loader) Load() (AppConfig, error) {
	cfg := defaults(l.version)

	if l.path != "" {
		if err := mergeFile(&cfg, l.path); err != nil {
			return AppConfig{}, fmt.Errorf("config file %s: %w", l.path, err)
		}
	}

	mergeEnv(&cfg)
	cfg.applyDerivedDirs()

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c *AppConfig) applyDerivedDirs() {
	if c.GalleryDir == "" {
		c.GalleryDir = filepath.Join(c.DataDir, "gallery")
	}
	if c.PostersDir == "" {
		c.PostersDir = filepath.Join(c.DataDir, "posters")
	}
	if c.UploadsDir == "" {
		c.UploadsDir = filepath.Join(c.DataDir, "uploads")
	}
	if c.SegmentsDir == "" {
		c.SegmentsDir = filepath.Join(c.DataDir, "segments")
	}
}

// Validate checks the configuration for values the daemon cannot start with.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("listen address is empty")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data dir is empty")
	}
	if strings.TrimSpace(c.Boundary) == "" {
		return fmt.Errorf("stream boundary token is empty")
	}
	if strings.ContainsAny(c.Boundary, "\r\n ") {
		return fmt.Errorf("stream boundary token %q contains whitespace", c.Boundary)
	}
	if c.InferenceBase != "" {
		u, err := url.Parse(c.InferenceBase)
		if err != nil {
			return fmt.Errorf("invalid inference base URL %q: %w", c.InferenceBase, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("unsupported inference base URL scheme %q", u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("inference base URL %q is missing host", c.InferenceBase)
		}
	}
	return nil
}

func mergeEnv(c *AppConfig) {
	c.ListenAddr = ParseString("SAVI_LISTEN", c.ListenAddr)
	c.MetricsAddr = ParseString("SAVI_METRICS_ADDR", c.MetricsAddr)
	c.DataDir = ParseString("SAVI_DATA", c.DataDir)
	c.GalleryDir = ParseString("SAVI_GALLERY_DIR", c.GalleryDir)
	c.PostersDir = ParseString("SAVI_POSTERS_DIR", c.PostersDir)
	c.UploadsDir = ParseString("SAVI_UPLOADS_DIR", c.UploadsDir)
	c.SegmentsDir = ParseString("SAVI_SEGMENTS_DIR", c.SegmentsDir)
	c.InferenceBase = ParseString("SAVI_INFERENCE_BASE", c.InferenceBase)
	c.Boundary = ParseString("SAVI_STREAM_BOUNDARY", c.Boundary)
	c.LogLevel = ParseString("SAVI_LOG_LEVEL", c.LogLevel)
	c.RateLimitRPS = ParseInt("SAVI_RATE_LIMIT_RPS", c.RateLimitRPS)
	c.RateLimitBurst = ParseInt("SAVI_RATE_LIMIT_BURST", c.RateLimitBurst)
	c.ShutdownTimeout = ParseDuration("SAVI_SHUTDOWN_TIMEOUT", c.ShutdownTimeout)

	if origins := ParseString("SAVI_ALLOWED_ORIGINS", ""); origins != "" {
		c.AllowedOrigins = splitCSV(origins)
	}
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
