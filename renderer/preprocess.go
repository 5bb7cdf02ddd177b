// Copyright 2025 the gsplat authors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import (
	"github.com/chewxy/math32"

	"honnef.co/go/gsplat/gmath"
)

// alphaMin is the smallest alpha that can affect an 8-bit channel; it drives
// both the blender's skip test and the preprocessor's extent cutoff.
const alphaMin = 1.0 / 255.0

// covDilation is added to the projected covariance diagonal, a low-pass
// filter guaranteeing every splat covers at least a fraction of a pixel.
const covDilation = 0.3

// preprocess runs one task per primitive: project, cull, derive the screen
// metadata, and count touched tiles. Visible primitives reserve a compacted
// slot and add their tile count to the running instance total through the
// bump counters.
func (p *Pipeline) preprocess(
	splats *Splats,
	settings *Settings,
	grid gridConfig,
	prim *primitiveBuffers,
	counters *bumpCounters,
) error {
	rot := settings.W2C.Rotation()
	trans := settings.W2C.Translation()
	// Clamp the view-space position used for the Jacobian to 1.3x the
	// frustum slopes; splats far outside the field of view otherwise
	// produce wildly elongated 2D covariances.
	tanLimX := 1.3 * float32(settings.Width) / (2 * settings.FocalX)
	tanLimY := 1.3 * float32(settings.Height) / (2 * settings.FocalY)
	stride := splats.shStride()
	bases := settings.ActiveSHBases

	return p.disp.launch("preprocess", splats.Len(), preprocessGrain, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			mean := gmath.Vec3{X: splats.Means[i][0], Y: splats.Means[i][1], Z: splats.Means[i][2]}
			t := rot.MulVec(mean).Add(trans)
			depth := t.Z
			if depth < settings.NearPlane || depth > settings.FarPlane {
				continue
			}
			opacity := splats.Opacities[i]
			if opacity <= alphaMin {
				continue
			}

			// 3D covariance from scale and rotation, then into the
			// camera frame.
			r := splats.Rotations[i]
			q := gmath.Quat{W: r[0], X: r[1], Y: r[2], Z: r[3]}.Normalize()
			s := splats.Scales[i]
			m := q.Mat3().ScaleColumns(gmath.Vec3{X: s[0], Y: s[1], Z: s[2]})
			cov3 := m.Mul(m.Transpose())
			a := rot.Mul(cov3).Mul(rot.Transpose())

			// Project through the pinhole Jacobian.
			tzInv := 1 / depth
			tx := gmath.Clamp(t.X*tzInv, -tanLimX, tanLimX) * depth
			ty := gmath.Clamp(t.Y*tzInv, -tanLimY, tanLimY) * depth
			j00 := settings.FocalX * tzInv
			j02 := -settings.FocalX * tx * tzInv * tzInv
			j11 := settings.FocalY * tzInv
			j12 := -settings.FocalY * ty * tzInv * tzInv

			ca := j00*j00*a[0] + 2*j00*j02*a[2] + j02*j02*a[8]
			cb := (j00*a[1]+j02*a[7])*j11 + (j00*a[2]+j02*a[8])*j12
			cc := j11*j11*a[4] + 2*j11*j12*a[5] + j12*j12*a[8]

			ca += covDilation
			cc += covDilation
			det := ca*cc - cb*cb
			if det <= 0 {
				continue
			}
			detInv := 1 / det

			// Extent at which this splat's alpha falls below alphaMin.
			qMax := 2 * math32.Log(opacity/alphaMin)
			mid := 0.5 * (ca + cc)
			lambdaMax := mid + math32.Sqrt(max(mid*mid-det, 0.1))
			radius := math32.Ceil(math32.Sqrt(qMax * lambdaMax))

			px := settings.FocalX*t.X*tzInv + settings.CenterX
			py := settings.FocalY*t.Y*tzInv + settings.CenterY

			x0 := gmath.Clamp(int32(math32.Floor((px-radius)/tileWidth)), 0, int32(grid.tilesX))
			y0 := gmath.Clamp(int32(math32.Floor((py-radius)/tileHeight)), 0, int32(grid.tilesY))
			x1 := gmath.Clamp(int32(math32.Ceil((px+radius)/tileWidth)), 0, int32(grid.tilesX))
			y1 := gmath.Clamp(int32(math32.Ceil((py+radius)/tileHeight)), 0, int32(grid.tilesY))
			count := uint32(x1-x0) * uint32(y1-y0)
			if count == 0 {
				continue
			}

			slot := counters.visible.Add(1) - 1
			counters.instances.Add(count)

			prim.depthKeys[0][slot] = gmath.SortableBits(depth)
			prim.visibleIDs[0][slot] = uint32(i)
			prim.bounds[i] = [4]int32{x0, y0, x1, y1}
			prim.means2D[i] = [2]float32{px, py}
			prim.conics[i] = [4]float32{cc * detInv, -cb * detInv, ca * detInv, opacity}
			prim.touched[i] = count

			dir := mean.Sub(settings.CamPosition).Normalize()
			var rest [][3]float32
			if stride > 0 {
				rest = splats.SHN[i*stride : (i+1)*stride]
			}
			prim.colors[i] = evalSH(bases, splats.SH0[i], rest, dir)
		}
	})
}
