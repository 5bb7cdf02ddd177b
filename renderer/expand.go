// Copyright 2025 the gsplat authors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import "honnef.co/go/gsplat/gmath"

// applyDepthOrder gathers per-primitive tile counts into depth-rank order and
// scans them, producing each visible primitive's first instance offset. The
// returned total equals the bump counter's instance total.
func (p *Pipeline) applyDepthOrder(
	prim *primitiveBuffers,
	sel int,
	numVisible uint32,
) (uint32, error) {
	ids := prim.visibleIDs[sel][:numVisible]
	offsets := prim.offsets[:numVisible]
	err := p.disp.launch("gather counts", int(numVisible), expandGrain, func(lo, hi int) {
		for rank := lo; rank < hi; rank++ {
			offsets[rank] = prim.touched[ids[rank]]
		}
	})
	if err != nil {
		return 0, err
	}
	return exclusiveScan(&p.disp, offsets, offsets, prim.scanScratch)
}

// createInstances writes one (key, primitive) pair per touched tile. The key
// is the tile ID in the high bits and the primitive's depth rank in the low
// rankBits bits, so a single pass over the low bits restores front-to-back
// order within each tile.
func (p *Pipeline) createInstances(
	prim *primitiveBuffers,
	inst *instanceBuffers,
	sel int,
	numVisible uint32,
	rankBits uint,
	grid gridConfig,
) error {
	ids := prim.visibleIDs[sel][:numVisible]
	keys := inst.keys[0]
	out := inst.ids[0]
	return p.disp.launch("create instances", int(numVisible), expandGrain, func(lo, hi int) {
		for rank := lo; rank < hi; rank++ {
			id := ids[rank]
			b := prim.bounds[id]
			at := prim.offsets[rank]
			for y := b[1]; y < b[3]; y++ {
				row := uint64(y) * uint64(grid.tilesX)
				for x := b[0]; x < b[2]; x++ {
					keys[at] = (row+uint64(x))<<rankBits | uint64(rank)
					out[at] = id
					at++
				}
			}
		}
	})
}

// sortInstances orders the instance stream by tile, and by depth rank within
// each tile. Only tileBits+rankBits key bits are live, so the radix sort
// skips the dead high passes.
func (p *Pipeline) sortInstances(
	inst *instanceBuffers,
	numInstances uint32,
	rankBits uint,
	grid gridConfig,
) (int, error) {
	keyBits := grid.tileBits + rankBits
	return radixSort(&p.disp, "sort instances", inst.keys, inst.ids, int(numInstances), keyBits, inst.sortScratch)
}

// sortByDepth orders the compacted visible primitives front to back. All 32
// depth key bits are live.
func (p *Pipeline) sortByDepth(prim *primitiveBuffers, numVisible uint32) (int, error) {
	return radixSort(&p.disp, "sort depths", prim.depthKeys, prim.visibleIDs, int(numVisible), 32, prim.sortScratch)
}

// rankBitsFor returns the key bits reserved for the depth rank.
func rankBitsFor(numVisible uint32) uint {
	return gmath.BitsForCount(numVisible)
}
