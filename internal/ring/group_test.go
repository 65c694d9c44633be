package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushBatchAppendsEveryChannel(t *testing.T) {
	g := NewGroup(3, 4)

	require.NoError(t, g.PushBatch([][]float64{{1, 2}, {10, 20}, {100, 200}}))
	require.NoError(t, g.PushBatch([][]float64{{3, 4, 5}, {30, 40, 50}, {300, 400, 500}}))

	assert.Equal(t, 4, g.Len())
	assert.Equal(t, [][]float64{
		{2, 3, 4, 5},
		{20, 30, 40, 50},
		{200, 300, 400, 500},
	}, g.Snapshot())
}

func TestPushBatchMismatchLeavesGroupUnchanged(t *testing.T) {
	g := NewGroup(3, 8)
	require.NoError(t, g.PushBatch([][]float64{{1}, {2}, {3}}))
	before := g.Snapshot()

	err := g.PushBatch([][]float64{{1, 2}, {3}, {4, 5}})
	assert.ErrorIs(t, err, ErrBatchMismatch)
	assert.Equal(t, before, g.Snapshot())

	err = g.PushBatch([][]float64{{1}, {2}})
	assert.ErrorIs(t, err, ErrBatchMismatch)
	assert.Equal(t, before, g.Snapshot())
}

func TestPushBatchLargerThanCapacity(t *testing.T) {
	g := NewGroup(2, 3)
	require.NoError(t, g.PushBatch([][]float64{{1, 2, 3, 4, 5}, {6, 7, 8, 9, 10}}))

	assert.Equal(t, [][]float64{{3, 4, 5}, {8, 9, 10}}, g.Snapshot())
}

func TestGroupBoundedUnderSustainedStream(t *testing.T) {
	// 3 channels at 1000 samples/s for 10s into a 5000-sample window,
	// delivered in 10ms batches.
	const capacity = 5000
	g := NewGroup(3, capacity)

	next := 0
	for batch := 0; batch < 1000; batch++ {
		b := make([][]float64, 3)
		for c := range b {
			b[c] = make([]float64, 10)
		}
		for i := 0; i < 10; i++ {
			for c := range b {
				b[c][i] = float64(next)
			}
			next++
		}
		require.NoError(t, g.PushBatch(b))
		assert.LessOrEqual(t, g.Len(), capacity)
	}

	assert.Equal(t, capacity, g.Len())
	for c := 0; c < 3; c++ {
		first, _ := g.Channel(c).At(0)
		last, _ := g.Channel(c).At(capacity - 1)
		assert.Equal(t, 5000.0, first)
		assert.Equal(t, 9999.0, last)
	}
}

func TestGroupClear(t *testing.T) {
	g := NewGroup(2, 3)
	require.NoError(t, g.PushBatch([][]float64{{1}, {2}}))
	g.Clear()
	assert.Equal(t, 0, g.Len())
	assert.Equal(t, 3, g.Cap())
}

func TestSnapshotIntoReusesScratch(t *testing.T) {
	g := NewGroup(2, 4)
	require.NoError(t, g.PushBatch([][]float64{{1, 2, 3}, {4, 5, 6}}))

	scratch := g.SnapshotInto(nil)
	assert.Equal(t, g.Snapshot(), scratch)
	first := &scratch[0][0]

	require.NoError(t, g.PushBatch([][]float64{{7, 8}, {9, 10}}))
	scratch = g.SnapshotInto(scratch)
	assert.Equal(t, [][]float64{{2, 3, 7, 8}, {5, 6, 9, 10}}, scratch)
	assert.Same(t, first, &scratch[0][0], "backing array is reused once it is large enough")

	g.Clear()
	scratch = g.SnapshotInto(scratch)
	assert.Len(t, scratch, g.NumChannels())
	assert.Empty(t, scratch[0])
}
