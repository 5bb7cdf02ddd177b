// Copyright 2025 the gsplat authors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

// Prefix sums, decomposed the usual way for parallel backends: block-wise
// partial sums, a serial scan over the per-block sums, and a parallel apply
// pass. scratch must hold at least one element per block; the provisioned
// buffers reserve maxChunks(workers) of workspace.

// scanChunks picks the block decomposition for an input of length n.
func scanChunks(n, limit int) (chunks, grain int) {
	if n <= 0 {
		return 0, 0
	}
	grain = scanGrain
	if n > limit*grain {
		grain = (n + limit - 1) / limit
	}
	chunks = (n + grain - 1) / grain
	return chunks, grain
}

// exclusiveScan replaces src with its exclusive prefix sum and returns the
// total. src and dst may alias.
func exclusiveScan(d *dispatcher, src, dst []uint32, scratch []uint32) (uint32, error) {
	return scan(d, "exclusive scan", src, dst, scratch, false)
}

// inclusiveScan replaces src with its inclusive prefix sum and returns the
// total, which equals the last output element.
func inclusiveScan(d *dispatcher, src, dst []uint32, scratch []uint32) (uint32, error) {
	return scan(d, "inclusive scan", src, dst, scratch, true)
}

func scan(d *dispatcher, kernel string, src, dst []uint32, scratch []uint32, inclusive bool) (uint32, error) {
	n := len(src)
	if n == 0 {
		return 0, nil
	}
	chunks, grain := scanChunks(n, len(scratch))
	sums := scratch[:chunks]

	// Reduce: one partial sum per block.
	err := d.launch(kernel+" (reduce)", n, grain, func(lo, hi int) {
		var sum uint32
		for i := lo; i < hi; i++ {
			sum += src[i]
		}
		sums[lo/grain] = sum
	})
	if err != nil {
		return 0, err
	}

	// Scan the block sums serially; block counts are tiny.
	var total uint32
	for i := range sums {
		s := sums[i]
		sums[i] = total
		total += s
	}

	// Apply: rescan each block on top of its base.
	err = d.launch(kernel+" (apply)", n, grain, func(lo, hi int) {
		run := sums[lo/grain]
		for i := lo; i < hi; i++ {
			v := src[i]
			if inclusive {
				run += v
				dst[i] = run
			} else {
				dst[i] = run
				run += v
			}
		}
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
