// Package simulate stands in for the consumers under test: it publishes
// throughput samples that track the running producer count and degrade once
// the modelled cluster runs out of capacity.
package simulate

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"GoLoadController/pkg/producers"
	"GoLoadController/pkg/queue"
	"GoLoadController/pkg/throughput"
)

// Model describes how much each consumer reads for a given producer count.
type Model struct {
	// PerProducer is the MB/s each producer adds to every consumer.
	PerProducer float64
	// Capacity is the producer count the cluster sustains at full rate.
	Capacity int
	// Degradation is the fraction of throughput lost per producer above Capacity.
	Degradation float64
	// Noise is the relative amplitude of uniform jitter.
	Noise float64
}

// Throughput is the reading of one consumer while producerCount producers run.
func (m Model) Throughput(producerCount int, r *rand.Rand) float64 {
	effective := producerCount
	loss := 0.0
	if m.Capacity > 0 && producerCount > m.Capacity {
		effective = m.Capacity
		loss = m.Degradation * float64(producerCount-m.Capacity)
	}
	v := m.PerProducer * float64(effective) * (1 - loss)
	if m.Noise > 0 && r != nil {
		v *= 1 + m.Noise*(2*r.Float64()-1)
	}
	if v < 0 {
		return 0
	}
	return v
}

// Emitter publishes one sample per consumer every Interval.
type Emitter struct {
	Publisher queue.Publisher
	Counter   producers.Counter
	Consumers int
	Interval  time.Duration
	Model     Model
	Clock     clock.WithTicker
	Logger    logrus.FieldLogger

	mu   sync.Mutex
	rand *rand.Rand
}

func NewEmitter(pub queue.Publisher, counter producers.Counter, consumers int, interval time.Duration, model Model, seed int64) *Emitter {
	return &Emitter{
		Publisher: pub,
		Counter:   counter,
		Consumers: consumers,
		Interval:  interval,
		Model:     model,
		Clock:     clock.RealClock{},
		Logger:    logrus.StandardLogger(),
		rand:      rand.New(rand.NewSource(seed)),
	}
}

// ConsumerID names the i-th simulated consumer.
func ConsumerID(i int) string {
	return fmt.Sprintf("consumer-%d", i)
}

// EmitOnce publishes one sample for every consumer.
func (e *Emitter) EmitOnce(ctx context.Context) error {
	count, err := e.Counter.ProducerCount(ctx)
	if err != nil {
		return errors.Wrap(err, "reading producer count")
	}
	for i := 0; i < e.Consumers; i++ {
		s := throughput.Sample{
			ConsumerID:    ConsumerID(i),
			Throughput:    e.throughput(count),
			ProducerCount: count,
		}
		body, err := s.Encode()
		if err != nil {
			return err
		}
		if err := e.Publisher.Put(ctx, body); err != nil {
			return errors.Wrapf(err, "publishing sample for %s", s.ConsumerID)
		}
	}
	return nil
}

// Run emits until ctx is cancelled. Publish failures are logged and retried on
// the next tick.
func (e *Emitter) Run(ctx context.Context) error {
	ticker := e.Clock.NewTicker(e.Interval)
	defer ticker.Stop()

	e.Logger.WithFields(logrus.Fields{
		"consumers": e.Consumers,
		"interval":  e.Interval,
		"capacity":  e.Model.Capacity,
	}).Info("simulated consumers started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if err := e.EmitOnce(ctx); err != nil && ctx.Err() == nil {
				e.Logger.WithError(err).Warn("unable to publish simulated samples")
			}
		}
	}
}

func (e *Emitter) throughput(count int) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Model.Throughput(count, e.rand)
}
