// Copyright 2025 the gsplat authors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honnef.co/go/gsplat/gmath"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p := NewPipeline(PipelineOptions{Workers: 4, Debug: true})
	t.Cleanup(p.Close)
	return p
}

// identityCamera looks down +Z from the world origin.
func identityCamera(width, height uint32) *Settings {
	return &Settings{
		W2C:           gmath.Identity4,
		FocalX:        100,
		FocalY:        100,
		CenterX:       float32(width) / 2,
		CenterY:       float32(height) / 2,
		NearPlane:     0.01,
		FarPlane:      100,
		Width:         width,
		Height:        height,
		ActiveSHBases: 1,
	}
}

func singleSplat(mean [3]float32, scale, opacity float32) *Splats {
	return &Splats{
		Means:     [][3]float32{mean},
		Scales:    [][3]float32{{scale, scale, scale}},
		Rotations: [][4]float32{{1, 0, 0, 0}},
		Opacities: []float32{opacity},
		SH0:       [][3]float32{{1, 1, 1}},
	}
}

func runPreprocess(t *testing.T, splats *Splats, settings *Settings) (*primitiveBuffers, *bumpCounters) {
	t.Helper()
	p := newTestPipeline(t)
	grid := newGridConfig(settings.Width, settings.Height)
	prim, err := newPrimitiveBuffers(HostProvider{}, uint32(splats.Len()), p.pool.workers)
	require.NoError(t, err)
	var counters bumpCounters
	require.NoError(t, p.preprocess(splats, settings, grid, prim, &counters))
	return prim, &counters
}

func TestPreprocessCulls(t *testing.T) {
	tests := []struct {
		name    string
		mean    [3]float32
		opacity float32
	}{
		{"behind camera", [3]float32{0, 0, -5}, 1},
		{"closer than near plane", [3]float32{0, 0, 0.005}, 1},
		{"beyond far plane", [3]float32{0, 0, 500}, 1},
		{"transparent", [3]float32{0, 0, 5}, 0.003},
		{"off screen", [3]float32{-100, 0, 5}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, counters := runPreprocess(t, singleSplat(tt.mean, 0.01, tt.opacity), identityCamera(16, 16))
			assert.Equal(t, uint32(0), counters.visible.Load())
			assert.Equal(t, uint32(0), counters.instances.Load())
		})
	}
}

func TestPreprocessCenteredSplat(t *testing.T) {
	settings := identityCamera(16, 16)
	splats := singleSplat([3]float32{0, 0, 5}, 0.01, 1)
	prim, counters := runPreprocess(t, splats, settings)

	require.Equal(t, uint32(1), counters.visible.Load())
	require.Equal(t, uint32(1), counters.instances.Load())

	assert.Equal(t, uint32(0), prim.visibleIDs[0][0])
	assert.Equal(t, gmath.SortableBits(5), prim.depthKeys[0][0])
	assert.Equal(t, [4]int32{0, 0, 1, 1}, prim.bounds[0])
	assert.Equal(t, uint32(1), prim.touched[0])
	assert.InDelta(t, 8, prim.means2D[0][0], 1e-3)
	assert.InDelta(t, 8, prim.means2D[0][1], 1e-3)
	assert.Equal(t, float32(1), prim.conics[0][3])
	// An isotropic splat projects to an isotropic conic.
	assert.InDelta(t, prim.conics[0][0], prim.conics[0][2], 1e-4)
	assert.InDelta(t, 0, prim.conics[0][1], 1e-4)
}

func TestPreprocessLargeSplatTouchesManyTiles(t *testing.T) {
	settings := identityCamera(64, 64)
	splats := singleSplat([3]float32{0, 0, 5}, 0.5, 1)
	prim, counters := runPreprocess(t, splats, settings)

	require.Equal(t, uint32(1), counters.visible.Load())
	assert.Equal(t, [4]int32{0, 0, 4, 4}, prim.bounds[0])
	assert.Equal(t, uint32(16), prim.touched[0])
	assert.Equal(t, uint32(16), counters.instances.Load())
}

func TestPreprocessOpacityShrinksExtent(t *testing.T) {
	settings := identityCamera(64, 64)

	_, opaque := runPreprocess(t, singleSplat([3]float32{0, 0, 5}, 0.1, 1), settings)
	_, faint := runPreprocess(t, singleSplat([3]float32{0, 0, 5}, 0.1, 0.01), settings)
	require.Equal(t, uint32(1), opaque.visible.Load())
	require.Equal(t, uint32(1), faint.visible.Load())
	assert.LessOrEqual(t, faint.instances.Load(), opaque.instances.Load())
}

func TestPreprocessCompaction(t *testing.T) {
	// Mix of visible and culled splats: the visible slots must be dense.
	splats := &Splats{
		Means:     [][3]float32{{0, 0, 5}, {0, 0, -5}, {0, 0, 7}, {0, 0, 500}, {0, 0, 9}},
		Scales:    [][3]float32{{0.01, 0.01, 0.01}, {0.01, 0.01, 0.01}, {0.01, 0.01, 0.01}, {0.01, 0.01, 0.01}, {0.01, 0.01, 0.01}},
		Rotations: [][4]float32{{1, 0, 0, 0}, {1, 0, 0, 0}, {1, 0, 0, 0}, {1, 0, 0, 0}, {1, 0, 0, 0}},
		Opacities: []float32{1, 1, 1, 1, 1},
		SH0:       [][3]float32{{1, 1, 1}, {1, 1, 1}, {1, 1, 1}, {1, 1, 1}, {1, 1, 1}},
	}
	settings := identityCamera(16, 16)
	prim, counters := runPreprocess(t, splats, settings)

	require.Equal(t, uint32(3), counters.visible.Load())
	seen := map[uint32]bool{}
	for _, id := range prim.visibleIDs[0][:3] {
		seen[id] = true
	}
	assert.Equal(t, map[uint32]bool{0: true, 2: true, 4: true}, seen)
}

func TestEvalSHConstantTerm(t *testing.T) {
	c := evalSH(1, [3]float32{1, 1, 1}, nil, gmath.Vec3{Z: 1})
	for i := range 3 {
		assert.InDelta(t, 0.5+shC0, c[i], 1e-6, "channel %d", i)
	}
}

func TestEvalSHDirectionDependence(t *testing.T) {
	rest := [][3]float32{{1, 0, 0}, {0, 0, 0}, {0, 0, 0}}
	a := evalSH(4, [3]float32{0, 0, 0}, rest, gmath.Vec3{Y: 1})
	b := evalSH(4, [3]float32{0, 0, 0}, rest, gmath.Vec3{Y: -1})
	assert.NotEqual(t, a, b)
}

func TestEvalSHHigherOrders(t *testing.T) {
	// Along +Z only the m=0 basis function of each degree is nonzero:
	// degree 1 contributes shC1, degree 2 contributes 2*shC2[2] and
	// degree 3 contributes 2*shC3[3]. Each tier must pick up exactly its
	// own coefficients and leave the rest untouched.
	rest := make([][3]float32, 15)
	rest[1] = [3]float32{1, 1, 1}
	rest[5] = [3]float32{1, 1, 1}
	rest[11] = [3]float32{1, 1, 1}

	tests := []struct {
		bases int
		want  float32
	}{
		{1, 0.5},
		{4, 0.9886025},
		{9, 1.6193857},
		{16, 2.3657384},
	}
	for _, tt := range tests {
		c := evalSH(tt.bases, [3]float32{}, rest, gmath.Vec3{Z: 1})
		for i := range 3 {
			assert.InDelta(t, tt.want, c[i], 1e-5, "bases=%d channel %d", tt.bases, i)
		}
	}
}

func TestEvalSHParity(t *testing.T) {
	dir := gmath.Vec3{X: 0.3, Y: -0.5, Z: 0.8}.Normalize()
	neg := gmath.Vec3{X: -dir.X, Y: -dir.Y, Z: -dir.Z}

	// Odd-degree basis functions flip sign when the direction is negated.
	odd := make([][3]float32, 15)
	for _, i := range []int{0, 1, 2, 8, 9, 10, 11, 12, 13, 14} {
		odd[i] = [3]float32{0.05, 0.05, 0.05}
	}
	a := evalSH(16, [3]float32{}, odd, dir)
	b := evalSH(16, [3]float32{}, odd, neg)
	for i := range 3 {
		assert.InDelta(t, a[i]-0.5, 0.5-b[i], 1e-6, "channel %d", i)
	}

	// Degree-2 basis functions are invariant under negation.
	even := make([][3]float32, 8)
	for i := 3; i < 8; i++ {
		even[i] = [3]float32{0.05, 0.05, 0.05}
	}
	a = evalSH(9, [3]float32{}, even, dir)
	b = evalSH(9, [3]float32{}, even, neg)
	assert.Equal(t, a, b)
}
