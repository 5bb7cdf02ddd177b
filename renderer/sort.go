// Copyright 2025 the gsplat authors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import "golang.org/x/exp/constraints"

// Parallel LSD radix sort over key/payload pairs. The pair is double
// buffered: each 8-bit digit pass scatters from one half into the other, and
// the selector of the half holding the final ordering is returned to the
// caller (the provisioned buffers are consumed downstream, so the selector
// is part of the pipeline's result, not hidden bookkeeping).
//
// keyBits limits the number of passes: callers sorting keys whose upper bits
// are known zero (instance keys use tileBits+rankBits) pay only for the
// significant digits. Each pass is stable, so the full sort is stable.

const (
	radixBits    = 8
	radixBuckets = 1 << radixBits
)

func sortBlocks(n, scratchLen int) (chunks, grain int) {
	limit := scratchLen / radixBuckets
	grain = sortGrain
	if n > limit*grain {
		grain = (n + limit - 1) / limit
	}
	chunks = (n + grain - 1) / grain
	return chunks, grain
}

func radixSort[K constraints.Unsigned](
	d *dispatcher,
	kernel string,
	keys [2][]K,
	ids [2][]uint32,
	n int,
	keyBits uint,
	scratch []uint32,
) (int, error) {
	sel := 0
	if n <= 1 || keyBits == 0 {
		return sel, nil
	}
	chunks, grain := sortBlocks(n, len(scratch))
	passes := int((keyBits + radixBits - 1) / radixBits)

	for pass := range passes {
		shift := uint(pass * radixBits)
		src, dst := keys[sel], keys[1-sel]
		srcIDs, dstIDs := ids[sel], ids[1-sel]

		// Histogram: per-block digit counts.
		err := d.launch(kernel+" (histogram)", n, grain, func(lo, hi int) {
			hist := scratch[(lo/grain)*radixBuckets : (lo/grain+1)*radixBuckets]
			clear(hist)
			for i := lo; i < hi; i++ {
				hist[uint32(src[i]>>shift)&(radixBuckets-1)]++
			}
		})
		if err != nil {
			return sel, err
		}

		// Digit-major exclusive scan of the (digit, block) counts turns
		// each block's histogram row into global scatter positions while
		// preserving stability.
		var total uint32
		for digit := 0; digit < radixBuckets; digit++ {
			for c := 0; c < chunks; c++ {
				idx := c*radixBuckets + digit
				t := scratch[idx]
				scratch[idx] = total
				total += t
			}
		}

		// Scatter: each block owns its histogram row, so the writes are
		// disjoint across blocks.
		err = d.launch(kernel+" (scatter)", n, grain, func(lo, hi int) {
			offs := scratch[(lo/grain)*radixBuckets : (lo/grain+1)*radixBuckets]
			for i := lo; i < hi; i++ {
				digit := uint32(src[i]>>shift) & (radixBuckets - 1)
				pos := offs[digit]
				offs[digit]++
				dst[pos] = src[i]
				dstIDs[pos] = srcIDs[i]
			}
		})
		if err != nil {
			return sel, err
		}
		sel = 1 - sel
	}
	return sel, nil
}
