package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferKeepsLastCapacityValues(t *testing.T) {
	for _, capacity := range []int{1, 2, 5, 120} {
		for _, n := range []int{0, 1, capacity - 1, capacity, capacity + 1, 3*capacity + 2} {
			b := New[int](capacity)
			for i := 0; i < n; i++ {
				b.Push(i)
			}

			want := n
			if want > capacity {
				want = capacity
			}
			got := b.Values()
			require.Len(t, got, want, "capacity=%d n=%d", capacity, n)
			for i, v := range got {
				assert.Equal(t, n-want+i, v, "capacity=%d n=%d index=%d", capacity, n, i)
			}
		}
	}
}

func TestBufferAt(t *testing.T) {
	b := New[string](3)
	for _, s := range []string{"a", "b", "c", "d"} {
		b.Push(s)
	}

	v, ok := b.At(0)
	assert.True(t, ok)
	assert.Equal(t, "b", v)
	v, ok = b.At(2)
	assert.True(t, ok)
	assert.Equal(t, "d", v)
	_, ok = b.At(3)
	assert.False(t, ok)
	_, ok = b.At(-1)
	assert.False(t, ok)
}

func TestBufferClear(t *testing.T) {
	b := New[float64](4)
	for i := 0; i < 6; i++ {
		b.Push(float64(i))
	}
	b.Clear()

	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 4, b.Cap())
	assert.Empty(t, b.Values())

	b.Push(42)
	assert.Equal(t, []float64{42}, b.Values())
}

func TestBufferValuesIsACopy(t *testing.T) {
	b := New[int](2)
	b.Push(1)
	b.Push(2)

	vals := b.Values()
	vals[0] = 99

	assert.Equal(t, []int{1, 2}, b.Values())
}

func TestNewRaisesCapacity(t *testing.T) {
	b := New[int](0)
	assert.Equal(t, 1, b.Cap())
}
