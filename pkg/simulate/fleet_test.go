package simulate

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GoLoadController/pkg/producers"
	"GoLoadController/pkg/queue"
	"GoLoadController/pkg/throughput"
)

func TestModel_Throughput(t *testing.T) {
	m := Model{PerProducer: 75, Capacity: 4, Degradation: 0.2}

	assert.Equal(t, 0.0, m.Throughput(0, nil))
	assert.Equal(t, 150.0, m.Throughput(2, nil))
	assert.Equal(t, 300.0, m.Throughput(4, nil))
	assert.InDelta(t, 240.0, m.Throughput(5, nil), 1e-9)
	assert.Equal(t, 0.0, m.Throughput(10, nil))
}

func TestModel_NoiseIsBounded(t *testing.T) {
	m := Model{PerProducer: 100, Noise: 0.05}
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		v := m.Throughput(1, r)
		assert.GreaterOrEqual(t, v, 95.0)
		assert.LessOrEqual(t, v, 105.0)
	}
}

func drain(t *testing.T, q *queue.Memory) []throughput.Sample {
	var out []throughput.Sample
	for q.Len() > 0 {
		msg, err := q.Reserve(context.Background(), 0)
		require.NoError(t, err)
		s, err := throughput.Decode(msg.Body)
		require.NoError(t, err)
		require.NoError(t, q.Delete(context.Background(), msg))
		out = append(out, s)
	}
	return out
}

func TestEmitter_EmitOnce(t *testing.T) {
	q := queue.NewMemory()
	sim := producers.NewSimulated(3, 0)
	e := NewEmitter(q, sim, 2, time.Second, Model{PerProducer: 75, Capacity: 2, Degradation: 0.1}, 1)

	require.NoError(t, e.EmitOnce(context.Background()))

	samples := drain(t, q)
	require.Len(t, samples, 2)
	assert.Equal(t, "consumer-0", samples[0].ConsumerID)
	assert.Equal(t, "consumer-1", samples[1].ConsumerID)
	for _, s := range samples {
		assert.Equal(t, 3, s.ProducerCount)
		assert.InDelta(t, 135.0, s.Throughput, 1e-9)
	}
}

func TestEmitter_LeavesRolloutToController(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory()
	sim := producers.NewSimulated(2, 3)
	e := NewEmitter(q, sim.Observer(), 2, time.Second, Model{PerProducer: 75}, 1)

	require.NoError(t, sim.ScaleProducers(ctx, 3))
	for i := 0; i < 4; i++ {
		require.NoError(t, e.EmitOnce(ctx))
	}
	for _, s := range drain(t, q) {
		assert.Equal(t, 2, s.ProducerCount)
	}
	assert.Equal(t, 2, sim.Current())
	assert.Zero(t, sim.Reads())
}

type brokenCounter struct{}

func (brokenCounter) ProducerCount(context.Context) (int, error) {
	return 0, errors.New("no such deployment")
}

func TestEmitter_CountFailure(t *testing.T) {
	q := queue.NewMemory()
	e := NewEmitter(q, brokenCounter{}, 2, time.Second, Model{PerProducer: 75}, 1)

	err := e.EmitOnce(context.Background())
	assert.ErrorContains(t, err, "no such deployment")
	assert.Zero(t, q.Len())
}

func TestEmitter_Run(t *testing.T) {
	q := queue.NewMemory()
	e := NewEmitter(q, producers.NewSimulated(1, 0), 1, 5*time.Millisecond, Model{PerProducer: 75}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool { return q.Len() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
