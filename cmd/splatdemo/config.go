// Copyright 2025 the gsplat authors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package main

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config drives the demo. Priority: defaults < file < flags.
type Config struct {
	Scene struct {
		Splats int    `yaml:"splats"`
		Seed   uint64 `yaml:"seed"`
	} `yaml:"scene"`

	Camera struct {
		// FOVDegrees is the vertical field of view.
		FOVDegrees float32 `yaml:"fov_degrees"`
		// Distance of the camera from the scene origin.
		Distance float32 `yaml:"distance"`
	} `yaml:"camera"`

	Output struct {
		Path   string `yaml:"path"`
		Width  uint32 `yaml:"width"`
		Height uint32 `yaml:"height"`
		// Background is the sRGB background color, "#rrggbb".
		Background string `yaml:"background"`
	} `yaml:"output"`

	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`

	Workers int  `yaml:"workers"`
	Debug   bool `yaml:"debug"`
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Scene.Splats = 20000
	cfg.Scene.Seed = 1
	cfg.Camera.FOVDegrees = 60
	cfg.Camera.Distance = 4
	cfg.Output.Path = "out.png"
	cfg.Output.Width = 1024
	cfg.Output.Height = 768
	cfg.Output.Background = "#000000"
	cfg.Log.Level = "info"
	return cfg
}

func loadConfig() (*Config, error) {
	cfg := defaultConfig()

	var path string
	flag.StringVar(&path, "config", "", "path to YAML config file")
	splats := flag.Int("splats", 0, "number of random splats")
	seed := flag.Uint64("seed", 0, "scene random seed")
	out := flag.String("out", "", "output PNG path")
	width := flag.Uint("width", 0, "output width in pixels")
	height := flag.Uint("height", 0, "output height in pixels")
	background := flag.String("background", "", "background color, #rrggbb")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	logFile := flag.String("log-file", "", "log file path, rotated")
	workers := flag.Int("workers", 0, "worker pool size, 0 means GOMAXPROCS")
	debug := flag.Bool("debug", false, "isolate kernel faults")
	flag.Parse()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", path, err)
		}
	}

	// Flags that were set override the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "splats":
			cfg.Scene.Splats = *splats
		case "seed":
			cfg.Scene.Seed = *seed
		case "out":
			cfg.Output.Path = *out
		case "width":
			cfg.Output.Width = uint32(*width)
		case "height":
			cfg.Output.Height = uint32(*height)
		case "background":
			cfg.Output.Background = *background
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-file":
			cfg.Log.File = *logFile
		case "workers":
			cfg.Workers = *workers
		case "debug":
			cfg.Debug = *debug
		}
	})

	if cfg.Scene.Splats <= 0 {
		return nil, fmt.Errorf("splat count %d must be positive", cfg.Scene.Splats)
	}
	if cfg.Output.Width == 0 || cfg.Output.Height == 0 {
		return nil, fmt.Errorf("degenerate output size %dx%d", cfg.Output.Width, cfg.Output.Height)
	}
	return cfg, nil
}

func parseHexColor(s string) ([3]float64, error) {
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b); err != nil {
		return [3]float64{}, fmt.Errorf("parsing color %q: %w", s, err)
	}
	return [3]float64{float64(r) / 255, float64(g) / 255, float64(b) / 255}, nil
}
