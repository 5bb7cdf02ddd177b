// Copyright 2025 the gsplat authors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import "honnef.co/go/gsplat/gmath"

// Real spherical harmonics basis constants, degrees 0 through 3.
const shC0 = 0.28209479177387814

const shC1 = 0.4886025119029199

var shC2 = [5]float32{
	1.0925484305920792,
	-1.0925484305920792,
	0.31539156525252005,
	-1.0925484305920792,
	0.5462742152960396,
}

var shC3 = [7]float32{
	-0.5900435899266435,
	2.890611442640554,
	-0.4570457994644658,
	0.3731763325901154,
	-0.4570457994644658,
	1.445305721320277,
	-0.5900435899266435,
}

// evalSH resolves a primitive's view-dependent color from its basis
// coefficients. sh0 is the DC term; rest holds the higher-order terms. The
// conventional +0.5 offset is applied and the result clamped to be
// non-negative per channel.
func evalSH(bases int, sh0 [3]float32, rest [][3]float32, dir gmath.Vec3) [3]float32 {
	var c [3]float32
	for i := range c {
		c[i] = shC0 * sh0[i]
	}
	if bases > 1 {
		x, y, z := dir.X, dir.Y, dir.Z
		for i := range c {
			c[i] += shC1 * (-y*rest[0][i] + z*rest[1][i] - x*rest[2][i])
		}
		if bases > 4 {
			xx, yy, zz := x*x, y*y, z*z
			xy, yz, xz := x*y, y*z, x*z
			for i := range c {
				c[i] += shC2[0]*xy*rest[3][i] +
					shC2[1]*yz*rest[4][i] +
					shC2[2]*(2*zz-xx-yy)*rest[5][i] +
					shC2[3]*xz*rest[6][i] +
					shC2[4]*(xx-yy)*rest[7][i]
			}
			if bases > 9 {
				for i := range c {
					c[i] += shC3[0]*y*(3*xx-yy)*rest[8][i] +
						shC3[1]*xy*z*rest[9][i] +
						shC3[2]*y*(4*zz-xx-yy)*rest[10][i] +
						shC3[3]*z*(2*zz-3*xx-3*yy)*rest[11][i] +
						shC3[4]*x*(4*zz-xx-yy)*rest[12][i] +
						shC3[5]*z*(xx-yy)*rest[13][i] +
						shC3[6]*x*(xx-3*yy)*rest[14][i]
				}
			}
		}
	}
	for i := range c {
		c[i] = max(c[i]+0.5, 0)
	}
	return c
}
