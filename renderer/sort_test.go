// Copyright 2025 the gsplat authors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import (
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeSortPair[K ~uint32 | ~uint64](n int) ([2][]K, [2][]uint32) {
	return [2][]K{make([]K, n), make([]K, n)}, [2][]uint32{make([]uint32, n), make([]uint32, n)}
}

func TestRadixSortUint32(t *testing.T) {
	d := newTestDispatcher(t)
	rng := rand.New(rand.NewPCG(3, 3))

	for _, n := range []int{0, 1, 2, 100, sortGrain, sortGrain + 1, 5 * sortGrain} {
		keys, ids := makeSortPair[uint32](n)
		orig := make([]uint32, n)
		want := make([]uint32, n)
		for i := range n {
			keys[0][i] = rng.Uint32()
			ids[0][i] = uint32(i)
			orig[i] = keys[0][i]
			want[i] = keys[0][i]
		}
		sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

		scratch := make([]uint32, maxChunks(4)*radixBuckets)
		sel, err := radixSort(d, "test", keys, ids, n, 32, scratch)
		require.NoError(t, err, "n=%d", n)

		assert.Equal(t, want, keys[sel][:n], "n=%d", n)
		// Payloads must travel with their keys.
		for i := range n {
			assert.Equal(t, keys[sel][i], orig[ids[sel][i]], "n=%d index %d", n, i)
		}
	}
}

func TestRadixSortStable(t *testing.T) {
	d := newTestDispatcher(t)
	rng := rand.New(rand.NewPCG(5, 5))

	// Few distinct keys force long runs of duplicates.
	n := 3*sortGrain + 11
	keys, ids := makeSortPair[uint64](n)
	for i := range n {
		keys[0][i] = uint64(rng.Uint32N(7))
		ids[0][i] = uint32(i)
	}

	scratch := make([]uint32, maxChunks(4)*radixBuckets)
	sel, err := radixSort(d, "test", keys, ids, n, 3, scratch)
	require.NoError(t, err)

	for i := 1; i < n; i++ {
		require.LessOrEqual(t, keys[sel][i-1], keys[sel][i])
		if keys[sel][i-1] == keys[sel][i] {
			require.Less(t, ids[sel][i-1], ids[sel][i], "duplicate keys reordered at %d", i)
		}
	}
}

func TestRadixSortBitLimited(t *testing.T) {
	d := newTestDispatcher(t)
	rng := rand.New(rand.NewPCG(9, 9))

	// Only 20 key bits are live; the sort must not spend passes on the
	// dead upper bits, and 3 passes means the result lands in keys[1].
	n := 10000
	keys, ids := makeSortPair[uint64](n)
	want := make([]uint64, n)
	for i := range n {
		keys[0][i] = uint64(rng.Uint32N(1 << 20))
		ids[0][i] = uint32(i)
		want[i] = keys[0][i]
	}
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

	scratch := make([]uint32, maxChunks(4)*radixBuckets)
	sel, err := radixSort(d, "test", keys, ids, n, 20, scratch)
	require.NoError(t, err)
	assert.Equal(t, 1, sel)
	assert.Equal(t, want, keys[sel][:n])
}

func BenchmarkRadixSort(b *testing.B) {
	pool := newWorkerPool(0)
	defer pool.close()
	d := &dispatcher{pool: pool}

	n := 1 << 18
	rng := rand.New(rand.NewPCG(1, 1))
	keys, ids := makeSortPair[uint64](n)
	src := make([]uint64, n)
	for i := range n {
		src[i] = rng.Uint64() & (1<<40 - 1)
	}
	scratch := make([]uint32, maxChunks(pool.workers)*radixBuckets)

	b.ResetTimer()
	for range b.N {
		copy(keys[0], src)
		if _, err := radixSort(d, "bench", keys, ids, n, 40, scratch); err != nil {
			b.Fatal(err)
		}
	}
}

func TestRadixSortTrivial(t *testing.T) {
	d := newTestDispatcher(t)
	scratch := make([]uint32, maxChunks(4)*radixBuckets)

	keys, ids := makeSortPair[uint32](1)
	keys[0][0] = 42
	ids[0][0] = 7
	sel, err := radixSort(d, "test", keys, ids, 1, 32, scratch)
	require.NoError(t, err)
	assert.Equal(t, 0, sel)
	assert.Equal(t, uint32(42), keys[0][0])
	assert.Equal(t, uint32(7), ids[0][0])
}
