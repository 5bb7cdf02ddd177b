// Copyright 2025 the gsplat authors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import (
	"fmt"

	"honnef.co/go/gsplat/gmath"
	"honnef.co/go/safeish"
)

// BufferProvider supplies raw memory for the four buffer categories. The
// pipeline computes exact byte sizes (typed fields plus sort/scan workspace)
// and calls one method per category per forward pass; the provider maps each
// request to backing storage, typically tensor memory owned by the caller.
//
// A provider error is fatal for the call. There is no partial rendering.
type BufferProvider interface {
	PerPrimitive(size int) ([]byte, error)
	PerTile(size int) ([]byte, error)
	PerInstance(size int) ([]byte, error)
	PerBucket(size int) ([]byte, error)
}

// HostProvider allocates buffers on the Go heap.
type HostProvider struct{}

func (HostProvider) PerPrimitive(size int) ([]byte, error) { return make([]byte, size), nil }
func (HostProvider) PerTile(size int) ([]byte, error)      { return make([]byte, size), nil }
func (HostProvider) PerInstance(size int) ([]byte, error)  { return make([]byte, size), nil }
func (HostProvider) PerBucket(size int) ([]byte, error)    { return make([]byte, size), nil }

// spanAlign is the alignment of every sub-span within a raw block. 64 keeps
// spans cache-line aligned and satisfies every element type used here.
const spanAlign = 64

// spanLayout accumulates aligned sub-span offsets within one raw block.
type spanLayout struct {
	size int
}

func (l *spanLayout) reserve(bytes int) int {
	offset := gmath.AlignUp(l.size, spanAlign)
	l.size = offset + bytes
	return offset
}

// span reinterprets a sub-region of raw as count elements of T.
func span[T any](raw []byte, offset int, count uint32) []T {
	size := NewBufferSize[T](count).SizeInBytes()
	return safeish.SliceCast[[]T](raw[offset : offset+size])[:count]
}

// primitiveBuffers holds all per-primitive state derived during one call.
// Slices indexed by primitive id hold screen metadata; the key/id pairs are
// the depth sort's double buffers, indexed by compacted visible slot.
type primitiveBuffers struct {
	raw []byte

	depthKeys  [2][]uint32
	visibleIDs [2][]uint32
	bounds     [][4]int32 // tile-space rect x0, y0, x1, y1
	means2D    [][2]float32
	conics     [][4]float32 // conic a, b, c and opacity
	colors     [][3]float32
	touched    []uint32
	offsets    []uint32 // per-rank instance write offsets

	sortScratch []uint32
	scanScratch []uint32
}

func newPrimitiveBuffers(provider BufferProvider, n uint32, workers int) (*primitiveBuffers, error) {
	scratch := uint32(maxChunks(workers) * radixBuckets)
	chunks := uint32(maxChunks(workers))

	var l spanLayout
	keys0 := l.reserve(NewBufferSize[uint32](n).SizeInBytes())
	keys1 := l.reserve(NewBufferSize[uint32](n).SizeInBytes())
	ids0 := l.reserve(NewBufferSize[uint32](n).SizeInBytes())
	ids1 := l.reserve(NewBufferSize[uint32](n).SizeInBytes())
	bounds := l.reserve(NewBufferSize[[4]int32](n).SizeInBytes())
	means := l.reserve(NewBufferSize[[2]float32](n).SizeInBytes())
	conics := l.reserve(NewBufferSize[[4]float32](n).SizeInBytes())
	colors := l.reserve(NewBufferSize[[3]float32](n).SizeInBytes())
	touched := l.reserve(NewBufferSize[uint32](n).SizeInBytes())
	offsets := l.reserve(NewBufferSize[uint32](n).SizeInBytes())
	sortWs := l.reserve(NewBufferSize[uint32](scratch).SizeInBytes())
	scanWs := l.reserve(NewBufferSize[uint32](chunks).SizeInBytes())

	raw, err := provide(provider.PerPrimitive, "per-primitive", l.size)
	if err != nil {
		return nil, err
	}
	b := &primitiveBuffers{raw: raw}
	b.depthKeys[0] = span[uint32](raw, keys0, n)
	b.depthKeys[1] = span[uint32](raw, keys1, n)
	b.visibleIDs[0] = span[uint32](raw, ids0, n)
	b.visibleIDs[1] = span[uint32](raw, ids1, n)
	b.bounds = span[[4]int32](raw, bounds, n)
	b.means2D = span[[2]float32](raw, means, n)
	b.conics = span[[4]float32](raw, conics, n)
	b.colors = span[[3]float32](raw, colors, n)
	b.touched = span[uint32](raw, touched, n)
	b.offsets = span[uint32](raw, offsets, n)
	b.sortScratch = span[uint32](raw, sortWs, scratch)
	b.scanScratch = span[uint32](raw, scanWs, chunks)
	return b, nil
}

// tileBuffers holds all per-tile state: instance ranges, bucket offsets, and
// the blender's contribution statistics. Sized by the tile grid, fixed for
// the call.
type tileBuffers struct {
	raw []byte

	ranges        [][2]uint32 // [start, end) into the sorted instance array
	bucketOffsets []uint32    // inclusive scan of per-tile bucket counts
	maxContrib    []uint32
	totalContrib  []uint32
	pixelContrib  []uint32 // per-pixel processed-instance counts, tile-major

	scanScratch []uint32
}

func newTileBuffers(provider BufferProvider, grid gridConfig, workers int) (*tileBuffers, error) {
	n := grid.numTiles
	chunks := uint32(maxChunks(workers))

	var l spanLayout
	ranges := l.reserve(NewBufferSize[[2]uint32](n).SizeInBytes())
	buckets := l.reserve(NewBufferSize[uint32](n).SizeInBytes())
	maxC := l.reserve(NewBufferSize[uint32](n).SizeInBytes())
	totalC := l.reserve(NewBufferSize[uint32](n).SizeInBytes())
	pixelC := l.reserve(NewBufferSize[uint32](n * tilePixels).SizeInBytes())
	scanWs := l.reserve(NewBufferSize[uint32](chunks).SizeInBytes())

	raw, err := provide(provider.PerTile, "per-tile", l.size)
	if err != nil {
		return nil, err
	}
	b := &tileBuffers{raw: raw}
	b.ranges = span[[2]uint32](raw, ranges, n)
	b.bucketOffsets = span[uint32](raw, buckets, n)
	b.maxContrib = span[uint32](raw, maxC, n)
	b.totalContrib = span[uint32](raw, totalC, n)
	b.pixelContrib = span[uint32](raw, pixelC, n*tilePixels)
	b.scanScratch = span[uint32](raw, scanWs, chunks)
	return b, nil
}

// instanceBuffers holds the (primitive, tile) overlap records: combined
// sort keys and primitive back-references, double-buffered for the tile
// sort. Sized by the instance count read back after preprocessing.
type instanceBuffers struct {
	raw []byte

	keys [2][]uint64
	ids  [2][]uint32

	sortScratch []uint32
}

func newInstanceBuffers(provider BufferProvider, n uint32, workers int) (*instanceBuffers, error) {
	scratch := uint32(maxChunks(workers) * radixBuckets)

	var l spanLayout
	keys0 := l.reserve(NewBufferSize[uint64](n).SizeInBytes())
	keys1 := l.reserve(NewBufferSize[uint64](n).SizeInBytes())
	ids0 := l.reserve(NewBufferSize[uint32](n).SizeInBytes())
	ids1 := l.reserve(NewBufferSize[uint32](n).SizeInBytes())
	sortWs := l.reserve(NewBufferSize[uint32](scratch).SizeInBytes())

	raw, err := provide(provider.PerInstance, "per-instance", l.size)
	if err != nil {
		return nil, err
	}
	b := &instanceBuffers{raw: raw}
	b.keys[0] = span[uint64](raw, keys0, n)
	b.keys[1] = span[uint64](raw, keys1, n)
	b.ids[0] = span[uint32](raw, ids0, n)
	b.ids[1] = span[uint32](raw, ids1, n)
	b.sortScratch = span[uint32](raw, sortWs, scratch)
	return b, nil
}

// bucketBuffers holds compositing checkpoints: for every bucket, the
// accumulated color and transmittance of each of the tile's pixels at the
// bucket's start, plus the per-pixel processed-instance counts. Sized by the
// bucket count read back after bucket planning.
type bucketBuffers struct {
	raw []byte

	tileOf      []uint32     // bucket -> owning tile
	checkpoints [][4]float32 // r, g, b, transmittance; bucket-major, then pixel
	contribs    []uint32     // processed instances per pixel at bucket start
}

func newBucketBuffers(provider BufferProvider, n uint32) (*bucketBuffers, error) {
	var l spanLayout
	tileOf := l.reserve(NewBufferSize[uint32](n).SizeInBytes())
	checks := l.reserve(NewBufferSize[[4]float32](n * tilePixels).SizeInBytes())
	contribs := l.reserve(NewBufferSize[uint32](n * tilePixels).SizeInBytes())

	raw, err := provide(provider.PerBucket, "per-bucket", l.size)
	if err != nil {
		return nil, err
	}
	b := &bucketBuffers{raw: raw}
	b.tileOf = span[uint32](raw, tileOf, n)
	b.checkpoints = span[[4]float32](raw, checks, n*tilePixels)
	b.contribs = span[uint32](raw, contribs, n*tilePixels)
	return b, nil
}

func provide(alloc func(int) ([]byte, error), category string, size int) ([]byte, error) {
	raw, err := alloc(size)
	if err != nil {
		return nil, fmt.Errorf("provisioning %s buffer (%d bytes): %w", category, size, err)
	}
	if len(raw) < size {
		return nil, fmt.Errorf("provisioning %s buffer: got %d bytes, need %d", category, len(raw), size)
	}
	return raw, nil
}
