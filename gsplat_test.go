// Copyright 2025 the gsplat authors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package gsplat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honnef.co/go/gsplat"
	"honnef.co/go/gsplat/gmath"
)

func testParams(width, height uint32) *gsplat.RenderParams {
	return &gsplat.RenderParams{
		Camera: gsplat.Camera{
			W2C:     gmath.Identity4,
			FocalX:  100,
			FocalY:  100,
			CenterX: float32(width) / 2,
			CenterY: float32(height) / 2,
			Near:    0.01,
			Far:     100,
		},
		Width:         width,
		Height:        height,
		ActiveSHBases: 1,
	}
}

func TestRendererAllocatesOutputs(t *testing.T) {
	r := gsplat.New(gsplat.Options{Workers: 2, Debug: true})
	defer r.Close()

	splats := &gsplat.Splats{
		Means:     [][3]float32{{0, 0, 5}},
		Scales:    [][3]float32{{0.01, 0.01, 0.01}},
		Rotations: [][4]float32{{1, 0, 0, 0}},
		Opacities: []float32{1},
		SH0:       [][3]float32{{1, 1, 1}},
	}
	res, err := r.Render(splats, testParams(32, 32))
	require.NoError(t, err)

	assert.Len(t, res.Image, 3*32*32)
	assert.Len(t, res.Alpha, 32*32)
	assert.Equal(t, 1, res.Info.NumVisible)
	assert.Equal(t, 1, res.Info.NumInstances)
}

func TestRendererNilBackgroundIsBlack(t *testing.T) {
	r := gsplat.New(gsplat.Options{Workers: 2})
	defer r.Close()

	res, err := r.Render(&gsplat.Splats{}, testParams(8, 8))
	require.NoError(t, err)
	for i, v := range res.Image {
		require.Equal(t, float32(0), v, "channel value %d", i)
	}
	for _, v := range res.Alpha {
		require.Equal(t, float32(0), v)
	}
}

func TestRendererReuse(t *testing.T) {
	r := gsplat.New(gsplat.Options{Workers: 2})
	defer r.Close()

	splats := &gsplat.Splats{
		Means:     [][3]float32{{0, 0, 5}},
		Scales:    [][3]float32{{0.01, 0.01, 0.01}},
		Rotations: [][4]float32{{1, 0, 0, 0}},
		Opacities: []float32{0.8},
		SH0:       [][3]float32{{0.5, 0.5, 0.5}},
	}
	a, err := r.Render(splats, testParams(16, 16))
	require.NoError(t, err)
	b, err := r.Render(splats, testParams(16, 16))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
