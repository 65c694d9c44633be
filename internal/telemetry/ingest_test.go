package telemetry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/relabs-tech/inertial_scope/internal/ring"
)

type ingestFixture struct {
	ingest  *Ingest
	chunks  *ring.Group
	mag     *ring.Group
	redraws map[string]int
}

func newIngestFixture(t *testing.T) *ingestFixture {
	f := &ingestFixture{
		chunks:  ring.NewGroup(3, 100),
		mag:     ring.NewGroup(3, 10),
		redraws: map[string]int{},
	}
	f.ingest = NewIngest(zaptest.NewLogger(t), []*Sink{
		{Key: "chunks", Fields: []string{"x", "y", "z"}, Group: f.chunks, Redraw: func() { f.redraws["chunks"]++ }},
		{Key: "mag_iis2", Fields: []string{"x", "y", "z"}, Group: f.mag, Redraw: func() { f.redraws["mag_iis2"]++ }},
	})
	return f
}

func TestOnMessageRoutesBatches(t *testing.T) {
	f := newIngestFixture(t)

	res, err := f.ingest.OnMessage([]byte(`{"chunks":{"x":[1,2],"y":[3,4],"z":[5,6]},"mag_iis2":{"x":1,"y":2,"z":3}}`))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"chunks", "mag_iis2"}, res.Mutated)
	assert.Equal(t, [][]float64{{1, 2}, {3, 4}, {5, 6}}, f.chunks.Snapshot())
	assert.Equal(t, [][]float64{{1}, {2}, {3}}, f.mag.Snapshot())
	assert.Equal(t, 1, f.redraws["chunks"])
	assert.Equal(t, 1, f.redraws["mag_iis2"])
	assert.Equal(t, uint64(1), f.ingest.Metrics().MessagesReceived)
	assert.Equal(t, 2, f.ingest.Metrics().SensorCount)
}

func TestOnMessageDropsMisalignedBatchIntact(t *testing.T) {
	f := newIngestFixture(t)
	_, err := f.ingest.OnMessage([]byte(`{"chunks":{"x":[1],"y":[1],"z":[1]}}`))
	require.NoError(t, err)
	before := f.chunks.Snapshot()

	res, err := f.ingest.OnMessage([]byte(`{"chunks":{"x":[1,2,3],"y":[1,2],"z":[1,2,3]}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"chunks"}, res.Dropped)
	assert.Equal(t, before, f.chunks.Snapshot())

	// A missing axis is a mismatch too.
	res, err = f.ingest.OnMessage([]byte(`{"chunks":{"x":[1,2],"y":[1,2]}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"chunks"}, res.Dropped)
	assert.Equal(t, before, f.chunks.Snapshot())

	assert.Equal(t, 1, f.redraws["chunks"])
	assert.Equal(t, uint64(2), f.ingest.Metrics().DroppedBatches)
}

func TestOnMessageDecodeErrorChangesNothing(t *testing.T) {
	f := newIngestFixture(t)

	_, err := f.ingest.OnMessage([]byte(`{"chunks":`))
	var decErr *DecodeError
	require.True(t, errors.As(err, &decErr))

	assert.Equal(t, 0, f.chunks.Len())
	assert.Equal(t, uint64(0), f.ingest.Metrics().MessagesReceived)
	assert.Equal(t, uint64(1), f.ingest.Metrics().DecodeErrors)
	assert.Empty(t, f.redraws)
}

func TestPauseFreezesBuffersButNotMetrics(t *testing.T) {
	f := newIngestFixture(t)
	_, err := f.ingest.OnMessage([]byte(`{"chunks":{"x":[1],"y":[2],"z":[3]},"s":{"mps":10,"sps":1000}}`))
	require.NoError(t, err)
	frozen := f.chunks.Snapshot()

	f.ingest.SetPaused(true)
	for i := 0; i < 5; i++ {
		res, err := f.ingest.OnMessage([]byte(`{"chunks":{"x":[4,5],"y":[6,7],"z":[8,9]},"mag":2.5,"s":{"mps":99,"sps":26667,"fifo":12,"batch":2}}`))
		require.NoError(t, err)
		assert.Empty(t, res.Mutated)
	}

	assert.Equal(t, frozen, f.chunks.Snapshot())
	assert.Equal(t, 1, f.redraws["chunks"])
	m := f.ingest.Metrics()
	assert.Equal(t, 99.0, m.MessagesPerSec)
	assert.Equal(t, 26667.0, m.SamplesPerSec)
	assert.Equal(t, 12.0, m.QueueDepth)
	assert.Equal(t, 2.0, m.BatchSize)
	assert.Equal(t, 2.5, m.Magnitude)
	assert.Equal(t, uint64(6), m.MessagesReceived)

	f.ingest.SetPaused(false)
	_, err = f.ingest.OnMessage([]byte(`{"chunks":{"x":[10],"y":[11],"z":[12]}}`))
	require.NoError(t, err)
	assert.Equal(t, 2, f.chunks.Len())
	assert.Equal(t, 2, f.redraws["chunks"])
}

func TestOnMessageReportsIdentityScaleAndLabels(t *testing.T) {
	f := newIngestFixture(t)

	res, err := f.ingest.OnMessage([]byte(`{"ip":"10.0.0.7","full_scale_g":4,"mag_iis2":{"x":[],"y":[],"z":[],"unit":"uT","name":"Mag"}}`))
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.7", res.Identity)
	require.NotNil(t, res.FullScale)
	assert.Equal(t, 4.0, *res.FullScale)
	assert.Equal(t, 4.0, f.ingest.Metrics().DeviceFullScale)
	assert.Equal(t, []string{"mag_iis2"}, res.Relabeled)
	assert.Empty(t, res.Mutated, "empty batch is not a mutation")

	sink, ok := f.ingest.Sink("mag_iis2")
	require.True(t, ok)
	assert.Equal(t, "uT", sink.Unit)
	assert.Equal(t, "Mag", sink.Name)

	res, err = f.ingest.OnMessage([]byte(`{"mag_iis2":{"x":1,"y":1,"z":1,"unit":"uT","name":"Mag"}}`))
	require.NoError(t, err)
	assert.Empty(t, res.Relabeled)
}
