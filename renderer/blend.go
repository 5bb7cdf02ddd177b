// Copyright 2025 the gsplat authors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import "github.com/chewxy/math32"

// transmittanceMin ends a pixel once further instances cannot contribute.
const transmittanceMin = 1e-4

// alphaMax caps a single instance's contribution, keeping every pixel
// partially transparent for gradient flow.
const alphaMax = 0.99

// blendState is one pixel's compositing accumulator.
type blendState struct {
	color [3]float32
	t     float32 // transmittance
	count uint32  // instances processed up to the last composited one
	done  bool
}

// blend composites every tile front to back. Instances are consumed in
// bucket-sized windows, gathered once per window; at each bucket's start the
// current accumulator of every pixel is checkpointed, so a backward pass can
// replay any bucket without recompositing the whole tile. A tile stops early
// at a bucket boundary once all of its pixels have saturated, leaving the
// remaining checkpoints unwritten.
func (p *Pipeline) blend(
	prim *primitiveBuffers,
	inst *instanceBuffers,
	tiles *tileBuffers,
	buckets *bucketBuffers,
	sel int,
	grid gridConfig,
	settings *Settings,
	image []float32,
	alpha []float32,
) error {
	ids := inst.ids[sel]
	return p.disp.launch("blend", int(grid.numTiles), 1, func(lo, hi int) {
		var window struct {
			means  [bucketSize][2]float32
			conics [bucketSize][4]float32
			colors [bucketSize][3]float32
		}
		var px [tilePixels]blendState

		for t := lo; t < hi; t++ {
			r := tiles.ranges[t]
			tileX := uint32(t) % grid.tilesX
			tileY := uint32(t) / grid.tilesX
			bucketBase := uint32(0)
			if t > 0 {
				bucketBase = tiles.bucketOffsets[t-1]
			}

			for i := range px {
				px[i] = blendState{t: 1}
				// Edge-tile pixels outside the image never composite.
				if tileX*tileWidth+uint32(i%tileWidth) >= grid.width ||
					tileY*tileHeight+uint32(i/tileWidth) >= grid.height {
					px[i].done = true
				}
			}

			for start := r[0]; start < r[1]; start += bucketSize {
				allDone := true
				for i := range px {
					if !px[i].done {
						allDone = false
						break
					}
				}
				if allDone {
					break
				}

				// Checkpoint the bucket's starting state.
				bucket := bucketBase + (start-r[0])/bucketSize
				for i := range px {
					s := &px[i]
					buckets.checkpoints[bucket*tilePixels+uint32(i)] = [4]float32{s.color[0], s.color[1], s.color[2], s.t}
					buckets.contribs[bucket*tilePixels+uint32(i)] = s.count
				}

				end := min(start+bucketSize, r[1])
				for k := start; k < end; k++ {
					id := ids[k]
					window.means[k-start] = prim.means2D[id]
					window.conics[k-start] = prim.conics[id]
					window.colors[k-start] = prim.colors[id]
				}

				for i := range px {
					s := &px[i]
					if s.done {
						continue
					}
					fx := float32(tileX*tileWidth + uint32(i%tileWidth))
					fy := float32(tileY*tileHeight + uint32(i/tileWidth))
					for k := uint32(0); k < end-start; k++ {
						con := window.conics[k]
						dx := window.means[k][0] - fx
						dy := window.means[k][1] - fy
						power := -0.5*(con[0]*dx*dx+con[2]*dy*dy) - con[1]*dx*dy
						if power > 0 {
							continue
						}
						a := min(alphaMax, con[3]*math32.Exp(power))
						if a < alphaMin {
							continue
						}
						test := s.t * (1 - a)
						if test < transmittanceMin {
							s.done = true
							break
						}
						c := window.colors[k]
						s.color[0] += c[0] * a * s.t
						s.color[1] += c[1] * a * s.t
						s.color[2] += c[2] * a * s.t
						s.t = test
						s.count = start - r[0] + k + 1
					}
				}
			}

			// Write out pixels and statistics.
			var maxC, totalC uint32
			for i := range px {
				s := &px[i]
				tiles.pixelContrib[uint32(t)*tilePixels+uint32(i)] = s.count
				maxC = max(maxC, s.count)
				totalC += s.count

				x := tileX*tileWidth + uint32(i%tileWidth)
				y := tileY*tileHeight + uint32(i/tileWidth)
				if x >= grid.width || y >= grid.height {
					continue
				}
				at := y*grid.width + x
				plane := grid.width * grid.height
				for c := 0; c < 3; c++ {
					image[uint32(c)*plane+at] = s.color[c] + s.t*settings.Background[c]
				}
				alpha[at] = 1 - s.t
			}
			tiles.maxContrib[t] = maxC
			tiles.totalContrib[t] = totalC
		}
	})
}
