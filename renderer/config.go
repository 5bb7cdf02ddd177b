// Copyright 2025 the gsplat authors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import (
	"sync/atomic"
	"unsafe"

	"honnef.co/go/gsplat/gmath"
)

// Tiling and scheduling constants. These are build-time configuration: the
// instance key layout and the bucket checkpoint layout both depend on them.
const (
	tileWidth  = 16
	tileHeight = 16
	tilePixels = tileWidth * tileHeight

	// bucketSize is the number of instances per bucket, the granularity of
	// both the blender's cooperative loads and its compositing checkpoints.
	bucketSize = 32

	// Dispatch grain sizes, one per kernel family. They play the role of
	// workgroup sizes: one task processes one grain-sized block of items.
	preprocessGrain = 256
	expandGrain     = 64
	rangeGrain      = 1024
	scanGrain       = 1024
	sortGrain       = 4096
)

// gridConfig describes the tile partition of one output image.
type gridConfig struct {
	width, height  uint32 // pixels
	tilesX, tilesY uint32
	numTiles       uint32
	tileBits       uint // key bits needed for a tile id
}

func newGridConfig(width, height uint32) gridConfig {
	tx := gmath.CeilDiv(width, tileWidth)
	ty := gmath.CeilDiv(height, tileHeight)
	return gridConfig{
		width:    width,
		height:   height,
		tilesX:   tx,
		tilesY:   ty,
		numTiles: tx * ty,
		tileBits: gmath.BitsForCount(tx * ty),
	}
}

// Settings mirrors the caller-facing rasterizer settings: pinhole camera,
// output geometry, and color evaluation parameters for one call.
type Settings struct {
	// W2C is the row-major world-to-camera transform.
	W2C         gmath.Mat4
	CamPosition gmath.Vec3

	FocalX  float32
	FocalY  float32
	CenterX float32
	CenterY float32

	NearPlane float32
	FarPlane  float32

	Width  uint32
	Height uint32

	// ActiveSHBases is the number of active spherical harmonics basis
	// functions, in 1..16.
	ActiveSHBases int

	// Background is the linear RGB color composited behind the splats.
	Background [3]float32
}

// Splats holds the read-only primitive arrays for one call. All slices are
// indexed by primitive and must have equal primitive counts.
type Splats struct {
	Means     [][3]float32
	Scales    [][3]float32
	Rotations [][4]float32 // w, x, y, z
	Opacities []float32
	SH0       [][3]float32 // DC coefficients, one per primitive
	SHN       [][3]float32 // rest coefficients, (bases-1) per primitive
}

func (s *Splats) Len() int {
	return len(s.Means)
}

// shStride returns the number of stored rest coefficients per primitive.
func (s *Splats) shStride() int {
	if len(s.Means) == 0 {
		return 0
	}
	return len(s.SHN) / len(s.Means)
}

// Info reports the device-computed counts of one forward pass, plus the
// selectors naming which half of each double-buffered sort pair holds the
// final ordering. A backward pass consuming the provisioned buffers needs
// the selectors to find the sorted data.
type Info struct {
	NumVisible   int
	NumInstances int
	NumBuckets   int

	// PrimitiveSelector selects the depth-sorted visible id buffer.
	PrimitiveSelector int
	// InstanceSelector selects the (tile, depth)-sorted instance buffers.
	InstanceSelector int
}

// bumpCounters is the only shared-mutable state during preprocessing: the
// visible-primitive count and the running instance total.
type bumpCounters struct {
	visible   atomic.Uint32
	instances atomic.Uint32
}

// BufferSize expresses a buffer size in element counts of T.
type BufferSize[T any] uint32

func NewBufferSize[T any](x uint32) BufferSize[T] {
	return BufferSize[T](max(x, 1))
}

func (s BufferSize[T]) SizeInBytes() int {
	return int(s) * int(unsafe.Sizeof(*new(T)))
}
