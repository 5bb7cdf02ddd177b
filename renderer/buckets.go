// Copyright 2025 the gsplat authors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import "honnef.co/go/gsplat/gmath"

// planBuckets counts each tile's buckets and scans the counts in place, so
// bucketOffsets[t] ends up as the inclusive prefix sum. The returned total is
// the second host sync point: it sizes the per-bucket provisioning.
//
// A tile's first bucket index is bucketOffsets[t-1] (0 for t == 0), which is
// how both fillTileOf and the blender recover per-tile bucket bases.
func (p *Pipeline) planBuckets(tiles *tileBuffers, grid gridConfig) (uint32, error) {
	n := int(grid.numTiles)
	offsets := tiles.bucketOffsets[:n]
	err := p.disp.launch("count buckets", n, rangeGrain, func(lo, hi int) {
		for t := lo; t < hi; t++ {
			r := tiles.ranges[t]
			offsets[t] = gmath.CeilDiv(r[1]-r[0], bucketSize)
		}
	})
	if err != nil {
		return 0, err
	}
	return inclusiveScan(&p.disp, offsets, offsets, tiles.scanScratch)
}

// fillTileOf writes the owning tile of every bucket, the reverse mapping the
// blender's checkpoint consumers need.
func (p *Pipeline) fillTileOf(tiles *tileBuffers, buckets *bucketBuffers, grid gridConfig) error {
	return p.disp.launch("fill bucket tiles", int(grid.numTiles), rangeGrain, func(lo, hi int) {
		for t := lo; t < hi; t++ {
			base := uint32(0)
			if t > 0 {
				base = tiles.bucketOffsets[t-1]
			}
			for b := base; b < tiles.bucketOffsets[t]; b++ {
				buckets.tileOf[b] = uint32(t)
			}
		}
	})
}
