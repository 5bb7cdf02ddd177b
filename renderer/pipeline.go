// Copyright 2025 the gsplat authors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package renderer implements the forward rasterization pipeline for 3D
// Gaussian splats: preprocessing and culling, a global depth sort, expansion
// into per-tile instances, a combined tile/depth sort, and front-to-back
// compositing with per-bucket checkpoints.
//
// The pipeline runs its kernels on a worker pool and touches its inputs only
// through buffers obtained from a BufferProvider, so a caller can point it at
// externally owned memory and consume the intermediate state afterwards.
package renderer

import (
	"fmt"

	"go.uber.org/zap"
)

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	// Workers is the size of the worker pool. Zero means GOMAXPROCS.
	Workers int
	// Debug isolates kernel faults: each task runs under recover and a
	// panic is reported as an error naming the kernel, instead of
	// crashing the process.
	Debug bool
}

// Pipeline renders Gaussian splats. It is safe for concurrent use only in
// the sense that distinct Pipelines are independent; a single Pipeline runs
// one Render at a time.
type Pipeline struct {
	pool *workerPool
	disp dispatcher
}

func NewPipeline(opts PipelineOptions) *Pipeline {
	pool := newWorkerPool(opts.Workers)
	return &Pipeline{
		pool: pool,
		disp: dispatcher{pool: pool, debug: opts.Debug},
	}
}

// Close shuts down the worker pool. The Pipeline must not be used afterwards.
func (p *Pipeline) Close() {
	p.pool.close()
}

// Render rasterizes splats into image and alpha. image is planar linear RGB,
// 3*width*height values (plane-major), alpha is width*height coverage values.
// Both are fully overwritten.
//
// The returned Info carries the counts and sort selectors a later backward
// pass needs to interpret the provisioned buffers.
func (p *Pipeline) Render(
	provider BufferProvider,
	splats *Splats,
	settings *Settings,
	image []float32,
	alpha []float32,
) (Info, error) {
	if err := validate(splats, settings, image, alpha); err != nil {
		return Info{}, err
	}
	grid := newGridConfig(settings.Width, settings.Height)
	n := uint32(splats.Len())

	prim, err := newPrimitiveBuffers(provider, n, p.pool.workers)
	if err != nil {
		return Info{}, err
	}
	tiles, err := newTileBuffers(provider, grid, p.pool.workers)
	if err != nil {
		return Info{}, err
	}

	// Tile clearing only has to finish before range extraction; overlap it
	// with preprocessing and the depth sort. The deferred join keeps the
	// clear from writing provider-owned memory after an error return.
	cleared := make(chan struct{})
	go func() {
		clearTiles(tiles, grid)
		close(cleared)
	}()
	defer func() { <-cleared }()

	var counters bumpCounters
	if n > 0 {
		if err := p.preprocess(splats, settings, grid, prim, &counters); err != nil {
			return Info{}, err
		}
	}
	// First sync point: read back the bump counters.
	numVisible := counters.visible.Load()
	numInstances := counters.instances.Load()
	Logger().Debug("preprocessed",
		zap.Uint32("primitives", n),
		zap.Uint32("visible", numVisible),
		zap.Uint32("instances", numInstances))

	if numVisible == 0 {
		<-cleared
		err := p.clearOutput(settings, grid, image, alpha)
		return Info{}, err
	}

	primSel, err := p.sortByDepth(prim, numVisible)
	if err != nil {
		return Info{}, err
	}
	rankBits := rankBitsFor(numVisible)

	inst, err := newInstanceBuffers(provider, numInstances, p.pool.workers)
	if err != nil {
		return Info{}, err
	}
	total, err := p.applyDepthOrder(prim, primSel, numVisible)
	if err != nil {
		return Info{}, err
	}
	if total != numInstances {
		return Info{}, fmt.Errorf("instance count mismatch: counted %d, scanned %d", numInstances, total)
	}
	if err := p.createInstances(prim, inst, primSel, numVisible, rankBits, grid); err != nil {
		return Info{}, err
	}
	instSel, err := p.sortInstances(inst, numInstances, rankBits, grid)
	if err != nil {
		return Info{}, err
	}

	<-cleared
	if err := p.extractRanges(inst, tiles, instSel, numInstances, rankBits); err != nil {
		return Info{}, err
	}

	// Second sync point: the scanned bucket total sizes the per-bucket
	// provisioning.
	numBuckets, err := p.planBuckets(tiles, grid)
	if err != nil {
		return Info{}, err
	}
	buckets, err := newBucketBuffers(provider, numBuckets)
	if err != nil {
		return Info{}, err
	}
	if err := p.fillTileOf(tiles, buckets, grid); err != nil {
		return Info{}, err
	}

	if err := p.blend(prim, inst, tiles, buckets, instSel, grid, settings, image, alpha); err != nil {
		return Info{}, err
	}

	return Info{
		NumVisible:        int(numVisible),
		NumInstances:      int(numInstances),
		NumBuckets:        int(numBuckets),
		PrimitiveSelector: primSel,
		InstanceSelector:  instSel,
	}, nil
}

// clearOutput writes the background into image and zero coverage into alpha,
// the result of a call with nothing visible.
func (p *Pipeline) clearOutput(settings *Settings, grid gridConfig, image, alpha []float32) error {
	plane := int(grid.width * grid.height)
	return p.disp.launch("clear output", plane, rangeGrain, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			for c := 0; c < 3; c++ {
				image[c*plane+i] = settings.Background[c]
			}
			alpha[i] = 0
		}
	})
}

func validate(splats *Splats, settings *Settings, image, alpha []float32) error {
	if settings.Width == 0 || settings.Height == 0 {
		return fmt.Errorf("degenerate output size %dx%d", settings.Width, settings.Height)
	}
	if settings.FocalX <= 0 || settings.FocalY <= 0 {
		return fmt.Errorf("invalid focal length (%g, %g)", settings.FocalX, settings.FocalY)
	}
	if settings.NearPlane <= 0 || settings.FarPlane <= settings.NearPlane {
		return fmt.Errorf("invalid depth range [%g, %g]", settings.NearPlane, settings.FarPlane)
	}

	n := splats.Len()
	if len(splats.Scales) != n || len(splats.Rotations) != n ||
		len(splats.Opacities) != n || len(splats.SH0) != n {
		return fmt.Errorf(
			"mismatched splat arrays: %d means, %d scales, %d rotations, %d opacities, %d sh",
			n, len(splats.Scales), len(splats.Rotations), len(splats.Opacities), len(splats.SH0))
	}
	if n > 0 && len(splats.SHN)%n != 0 {
		return fmt.Errorf("rest coefficient count %d is not a multiple of %d primitives", len(splats.SHN), n)
	}
	switch settings.ActiveSHBases {
	case 1, 4, 9, 16:
	default:
		return fmt.Errorf("active bases %d, want 1, 4, 9, or 16", settings.ActiveSHBases)
	}
	if stride := splats.shStride(); n > 0 && settings.ActiveSHBases > stride+1 {
		return fmt.Errorf("active bases %d but only %d coefficients stored per primitive", settings.ActiveSHBases, stride+1)
	}

	plane := int(settings.Width) * int(settings.Height)
	if len(image) != 3*plane {
		return fmt.Errorf("image length %d, want %d", len(image), 3*plane)
	}
	if len(alpha) != plane {
		return fmt.Errorf("alpha length %d, want %d", len(alpha), plane)
	}
	return nil
}
