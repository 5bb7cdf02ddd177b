// Copyright 2025 the gsplat authors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Command splatdemo renders a procedurally generated Gaussian splat scene to
// a PNG. It exists to exercise the renderer end to end and as example code
// for wiring it up.
package main

import (
	"fmt"
	"image"
	"image/png"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"github.com/chewxy/math32"
	"go.uber.org/zap"

	"honnef.co/go/gsplat/gmath"
	"honnef.co/go/gsplat/renderer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "splatdemo:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()
	renderer.SetLogger(log)

	bg, err := parseHexColor(cfg.Output.Background)
	if err != nil {
		return err
	}

	splats := makeScene(cfg.Scene.Splats, cfg.Scene.Seed)
	settings := makeSettings(cfg, bg)

	p := renderer.NewPipeline(renderer.PipelineOptions{
		Workers: cfg.Workers,
		Debug:   cfg.Debug,
	})
	defer p.Close()

	plane := int(cfg.Output.Width) * int(cfg.Output.Height)
	img := make([]float32, 3*plane)
	alpha := make([]float32, plane)

	start := time.Now()
	info, err := p.Render(renderer.HostProvider{}, splats, &settings, img, alpha)
	if err != nil {
		return err
	}
	log.Info("rendered",
		zap.Int("splats", cfg.Scene.Splats),
		zap.Int("visible", info.NumVisible),
		zap.Int("instances", info.NumInstances),
		zap.Int("buckets", info.NumBuckets),
		zap.Duration("took", time.Since(start)))

	if err := writePNG(cfg.Output.Path, img, cfg.Output.Width, cfg.Output.Height); err != nil {
		return err
	}
	log.Info("wrote image", zap.String("path", cfg.Output.Path))
	return nil
}

func makeSettings(cfg *Config, bg [3]float64) renderer.Settings {
	fov := cfg.Camera.FOVDegrees * math32.Pi / 180
	focal := float32(cfg.Output.Height) / (2 * math32.Tan(fov/2))
	d := cfg.Camera.Distance

	// Camera on the -Z axis looking at the origin; world and camera axes
	// coincide, so the world-to-camera transform is a pure translation.
	w2c := gmath.Identity4
	w2c[11] = d

	return renderer.Settings{
		W2C:           w2c,
		CamPosition:   gmath.Vec3{Z: -d},
		FocalX:        focal,
		FocalY:        focal,
		CenterX:       float32(cfg.Output.Width) / 2,
		CenterY:       float32(cfg.Output.Height) / 2,
		NearPlane:     0.01,
		FarPlane:      1e10,
		Width:         cfg.Output.Width,
		Height:        cfg.Output.Height,
		ActiveSHBases: 1,
		Background: [3]float32{
			srgbToLinear(bg[0]),
			srgbToLinear(bg[1]),
			srgbToLinear(bg[2]),
		},
	}
}

// makeScene fills a unit ball with random splats.
func makeScene(n int, seed uint64) *renderer.Splats {
	rng := rand.New(rand.NewPCG(seed, seed))
	s := &renderer.Splats{
		Means:     make([][3]float32, n),
		Scales:    make([][3]float32, n),
		Rotations: make([][4]float32, n),
		Opacities: make([]float32, n),
		SH0:       make([][3]float32, n),
	}
	for i := range n {
		// Uniform in the ball: random direction, cube-root radius.
		dir := gmath.Vec3{
			X: float32(rng.NormFloat64()),
			Y: float32(rng.NormFloat64()),
			Z: float32(rng.NormFloat64()),
		}.Normalize()
		r := math32.Pow(rng.Float32(), 1.0/3.0)
		s.Means[i] = [3]float32{dir.X * r, dir.Y * r, dir.Z * r}

		for c := range 3 {
			s.Scales[i][c] = 0.005 + 0.02*rng.Float32()
		}
		q := gmath.Quat{
			W: float32(rng.NormFloat64()),
			X: float32(rng.NormFloat64()),
			Y: float32(rng.NormFloat64()),
			Z: float32(rng.NormFloat64()),
		}.Normalize()
		s.Rotations[i] = [4]float32{q.W, q.X, q.Y, q.Z}
		s.Opacities[i] = 0.3 + 0.7*rng.Float32()

		// DC coefficients for a random color in [0, 1).
		const shC0 = 0.28209479
		for c := range 3 {
			s.SH0[i][c] = (rng.Float32() - 0.5) / shC0
		}
	}
	return s
}

func writePNG(path string, planar []float32, width, height uint32) error {
	plane := int(width) * int(height)
	out := image.NewNRGBA(image.Rect(0, 0, int(width), int(height)))
	for i := range plane {
		out.Pix[4*i+0] = encodeSRGB(planar[i])
		out.Pix[4*i+1] = encodeSRGB(planar[plane+i])
		out.Pix[4*i+2] = encodeSRGB(planar[2*plane+i])
		out.Pix[4*i+3] = 255
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := png.Encode(f, out); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return f.Close()
}

func encodeSRGB(v float32) uint8 {
	x := float64(gmath.Clamp(v, 0, 1))
	if x <= 0.0031308 {
		x *= 12.92
	} else {
		x = 1.055*math.Pow(x, 1/2.4) - 0.055
	}
	return uint8(math.Round(x * 255))
}

func srgbToLinear(x float64) float32 {
	if x <= 0.04045 {
		return float32(x / 12.92)
	}
	return float32(math.Pow((x+0.055)/1.055, 2.4))
}
