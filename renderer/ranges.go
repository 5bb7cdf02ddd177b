// Copyright 2025 the gsplat authors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

// clearTiles zeroes the tile ranges and the contribution statistics. Tiles
// not covered by any instance must read as empty ranges, and the blender
// only writes statistics for tiles it visits.
func clearTiles(tiles *tileBuffers, grid gridConfig) {
	clear(tiles.ranges[:grid.numTiles])
	clear(tiles.maxContrib[:grid.numTiles])
	clear(tiles.totalContrib[:grid.numTiles])
	clear(tiles.pixelContrib[:grid.numTiles*tilePixels])
}

// extractRanges finds each tile's [start, end) span in the sorted instance
// stream by comparing adjacent keys. Each boundary is written exactly once:
// the task seeing keys i-1 and i owns the transition between them.
func (p *Pipeline) extractRanges(
	inst *instanceBuffers,
	tiles *tileBuffers,
	sel int,
	numInstances uint32,
	rankBits uint,
) error {
	keys := inst.keys[sel][:numInstances]
	n := int(numInstances)
	return p.disp.launch("extract ranges", n, rangeGrain, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			tile := uint32(keys[i] >> rankBits)
			if i == 0 {
				tiles.ranges[tile][0] = 0
			} else if prev := uint32(keys[i-1] >> rankBits); prev != tile {
				tiles.ranges[prev][1] = uint32(i)
				tiles.ranges[tile][0] = uint32(i)
			}
			if i == n-1 {
				tiles.ranges[tile][1] = numInstances
			}
		}
	})
}
