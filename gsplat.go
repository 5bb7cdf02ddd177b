// Copyright 2025 the gsplat authors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package gsplat renders 3D Gaussian splat scenes on the CPU. It wraps the
// renderer package's tile-based pipeline behind a small API that owns its
// output allocations; callers that manage buffer memory themselves, or that
// need the intermediate pipeline state, should use the renderer package
// directly.
package gsplat

import (
	"go.uber.org/zap"
	"honnef.co/go/color"

	"honnef.co/go/gsplat/gmath"
	"honnef.co/go/gsplat/renderer"
)

type (
	Splats         = renderer.Splats
	Info           = renderer.Info
	BufferProvider = renderer.BufferProvider
	HostProvider   = renderer.HostProvider
)

// SetLogger routes the pipeline's diagnostics to l. Passing nil silences
// them, the default.
func SetLogger(l *zap.Logger) {
	renderer.SetLogger(l)
}

// Options configures a Renderer.
type Options struct {
	// Workers sizes the worker pool. Zero means GOMAXPROCS.
	Workers int
	// Debug turns kernel panics into errors naming the failed kernel.
	Debug bool
	// Provider supplies pipeline buffer memory. Nil means heap allocation.
	Provider BufferProvider
}

// Camera is a pinhole camera.
type Camera struct {
	// W2C is the row-major world-to-camera transform.
	W2C      gmath.Mat4
	Position gmath.Vec3

	FocalX, FocalY   float32
	CenterX, CenterY float32

	Near, Far float32
}

// RenderParams describes one frame.
type RenderParams struct {
	Camera        Camera
	Width, Height uint32

	// ActiveSHBases is the number of spherical harmonics bases used for
	// view-dependent color, in 1..16.
	ActiveSHBases int

	// Background is composited behind the splats. Nil means black.
	Background *color.Color
}

// Result is one rendered frame. Image is planar linear RGB: all red values,
// then green, then blue, each plane in row-major order. Alpha is the
// row-major per-pixel coverage.
type Result struct {
	Image []float32
	Alpha []float32
	Info  Info
}

// Renderer renders splat scenes. A Renderer owns a worker pool; create one
// and reuse it across frames.
type Renderer struct {
	pipeline *renderer.Pipeline
	provider BufferProvider
}

func New(opts Options) *Renderer {
	provider := opts.Provider
	if provider == nil {
		provider = HostProvider{}
	}
	return &Renderer{
		pipeline: renderer.NewPipeline(renderer.PipelineOptions{
			Workers: opts.Workers,
			Debug:   opts.Debug,
		}),
		provider: provider,
	}
}

// Close releases the worker pool.
func (r *Renderer) Close() {
	r.pipeline.Close()
}

// Render rasterizes splats with the given camera and frame parameters.
func (r *Renderer) Render(splats *Splats, params *RenderParams) (Result, error) {
	settings := renderer.Settings{
		W2C:           params.Camera.W2C,
		CamPosition:   params.Camera.Position,
		FocalX:        params.Camera.FocalX,
		FocalY:        params.Camera.FocalY,
		CenterX:       params.Camera.CenterX,
		CenterY:       params.Camera.CenterY,
		NearPlane:     params.Camera.Near,
		FarPlane:      params.Camera.Far,
		Width:         params.Width,
		Height:        params.Height,
		ActiveSHBases: params.ActiveSHBases,
		Background:    backgroundColor(params.Background),
	}
	plane := int(params.Width) * int(params.Height)
	res := Result{
		Image: make([]float32, 3*plane),
		Alpha: make([]float32, plane),
	}
	info, err := r.pipeline.Render(r.provider, splats, &settings, res.Image, res.Alpha)
	if err != nil {
		return Result{}, err
	}
	res.Info = info
	return res, nil
}

func backgroundColor(c *color.Color) [3]float32 {
	if c == nil {
		return [3]float32{}
	}
	cc := c.Convert(color.LinearSRGB)
	a := cc.Values[3]
	return [3]float32{
		float32(cc.Values[0] * a),
		float32(cc.Values[1] * a),
		float32(cc.Values[2] * a),
	}
}
