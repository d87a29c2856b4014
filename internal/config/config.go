// Package config handles texturing pipeline configuration loading and
// management.
package config

import (
	"errors"
	"fmt"
)

// Config errors.
var ErrInvalidParameter = errors.New("invalid configuration parameter")

// Config holds all pipeline settings.
type Config struct {
	Texture TextureConfig `yaml:"texture"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
}

// TextureConfig holds the texturing parameters.
type TextureConfig struct {
	// Side is the output atlas resolution in pixels per side.
	Side int `yaml:"side"`
	// Padding is the pixel dilation applied at chart borders.
	Padding int `yaml:"padding"`
	// Downscale is the internal supersampling factor: painting happens
	// at Side*Downscale and is box-filtered back to Side.
	Downscale int `yaml:"downscale"`
	// FillHoles enables inpainting of pixels left unpainted after
	// dilation.
	FillHoles bool `yaml:"fill_holes"`
	// Method selects the unwrap algorithm: basic, abf or lscm.
	Method string `yaml:"method"`
	// BestView selects how per-triangle candidate views are gathered
	// from vertex visibility: union or intersection.
	BestView string `yaml:"best_view"`
	// Format is the atlas image format: png, jpeg or bmp.
	Format string `yaml:"format"`
	// Workers bounds painting parallelism; 0 means GOMAXPROCS.
	Workers int `yaml:"workers"`
}

// CacheConfig holds image cache settings.
type CacheConfig struct {
	// Capacity is the maximum number of resident decoded photographs.
	Capacity int `yaml:"capacity"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Texture: TextureConfig{
			Side:      8192,
			Padding:   15,
			Downscale: 2,
			FillHoles: false,
			Method:    "basic",
			BestView:  "union",
			Format:    "png",
			Workers:   0,
		},
		Cache: CacheConfig{
			Capacity: 16,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate checks config values that would otherwise fail deep inside
// the pipeline.
func (c *Config) Validate() error {
	t := &c.Texture
	if t.Side < 1 {
		return fmt.Errorf("%w: texture side must be >= 1, got %d", ErrInvalidParameter, t.Side)
	}
	if t.Padding < 0 {
		return fmt.Errorf("%w: padding must be >= 0, got %d", ErrInvalidParameter, t.Padding)
	}
	if t.Downscale < 1 {
		return fmt.Errorf("%w: downscale must be >= 1, got %d", ErrInvalidParameter, t.Downscale)
	}
	switch t.BestView {
	case "union", "intersection":
	default:
		return fmt.Errorf("%w: best_view must be union or intersection, got %q", ErrInvalidParameter, t.BestView)
	}
	switch t.Format {
	case "png", "jpeg", "bmp":
	default:
		return fmt.Errorf("%w: format must be png, jpeg or bmp, got %q", ErrInvalidParameter, t.Format)
	}
	if c.Cache.Capacity < 1 {
		return fmt.Errorf("%w: cache capacity must be >= 1, got %d", ErrInvalidParameter, c.Cache.Capacity)
	}
	return nil
}
