// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// mergeFile overlays values from a YAML config file onto cfg. A missing file
// is not an error; the loader then runs on env+defaults alone.
func mergeFile(cfg *AppConfig, path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path is operator-supplied configuration
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read: %w", err)
	}

	var file AppConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	if file.ListenAddr != "" {
		cfg.ListenAddr = file.ListenAddr
	}
	if file.MetricsAddr != "" {
		cfg.MetricsAddr = file.MetricsAddr
	}
	if file.DataDir != "" {
		cfg.DataDir = file.DataDir
	}
	if file.GalleryDir != "" {
		cfg.GalleryDir = file.GalleryDir
	}
	if file.PostersDir != "" {
		cfg.PostersDir = file.PostersDir
	}
	if file.UploadsDir != "" {
		cfg.UploadsDir = file.UploadsDir
	}
	if file.SegmentsDir != "" {
		cfg.SegmentsDir = file.SegmentsDir
	}
	if file.InferenceBase != "" {
		cfg.InferenceBase = file.InferenceBase
	}
	if file.Boundary != "" {
		cfg.Boundary = file.Boundary
	}
	if file.LogLevel != "" {
		cfg.LogLevel = file.LogLevel
	}
	if len(file.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = file.AllowedOrigins
	}
	if file.RateLimitRPS != 0 {
		cfg.RateLimitRPS = file.RateLimitRPS
	}
	if file.RateLimitBurst != 0 {
		cfg.RateLimitBurst = file.RateLimitBurst
	}
	if file.ShutdownTimeout != 0 {
		cfg.ShutdownTimeout = file.ShutdownTimeout
	}
	return nil
}
