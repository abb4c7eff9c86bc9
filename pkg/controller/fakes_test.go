package controller

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"GoLoadController/pkg/config"
	"GoLoadController/pkg/producers"
	"GoLoadController/pkg/queue"
	"GoLoadController/pkg/throughput"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// scriptedQueue advances a fake clock by step on every Reserve and serves
// whatever next produces. After limit reserves it cancels the run.
type scriptedQueue struct {
	clock     *clocktesting.FakeClock
	step      time.Duration
	next      func() (throughput.Sample, bool)
	raw       [][]byte
	errs      []error
	deleteErr error
	limit     int
	cancel    context.CancelFunc

	reserves int
	deletes  int
}

func (q *scriptedQueue) Reserve(_ context.Context, _ time.Duration) (*queue.Message, error) {
	q.reserves++
	q.clock.Step(q.step)
	if q.limit > 0 && q.reserves > q.limit && q.cancel != nil {
		q.cancel()
	}
	if len(q.errs) > 0 {
		err := q.errs[0]
		q.errs = q.errs[1:]
		return nil, err
	}
	if len(q.raw) > 0 {
		body := q.raw[0]
		q.raw = q.raw[1:]
		return &queue.Message{ID: strconv.Itoa(q.reserves), Body: body}, nil
	}
	if q.next == nil {
		return nil, queue.ErrTimeout
	}
	s, ok := q.next()
	if !ok {
		return nil, queue.ErrTimeout
	}
	body, err := s.Encode()
	if err != nil {
		return nil, err
	}
	return &queue.Message{ID: strconv.Itoa(q.reserves), Body: body}, nil
}

func (q *scriptedQueue) Delete(_ context.Context, _ *queue.Message) error {
	q.deletes++
	return q.deleteErr
}

// fleet emulates consumers that report rate(p) while p producers run, where p
// is read from the simulated scaler without counting as a poll.
func fleet(sim *producers.Simulated, consumers []string, rate func(p, i int) float64) func() (throughput.Sample, bool) {
	i := 0
	return func() (throughput.Sample, bool) {
		p := sim.Current()
		s := throughput.Sample{
			ConsumerID:    consumers[i%len(consumers)],
			Throughput:    rate(p, i),
			ProducerCount: p,
		}
		i++
		return s, true
	}
}

// scripted serves a fixed list of samples, then nothing.
func scripted(samples ...throughput.Sample) func() (throughput.Sample, bool) {
	return func() (throughput.Sample, bool) {
		if len(samples) == 0 {
			return throughput.Sample{}, false
		}
		s := samples[0]
		samples = samples[1:]
		return s, true
	}
}

func repeat(n int, s throughput.Sample) []throughput.Sample {
	out := make([]throughput.Sample, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func testConfiguration() config.Configuration {
	return config.Configuration{
		ConfigurationUID:              "TEST01",
		NumConsumers:                  1,
		StartProducerCount:            1,
		MaxProducerCount:              10,
		NumBrokers:                    3,
		ProducerIncrementInterval:     10 * time.Second,
		ConsumerTolerance:             0.85,
		PerProducerExpectedThroughput: 75,
	}
}

type harness struct {
	clock  *clocktesting.FakeClock
	queue  *scriptedQueue
	sim    *producers.Simulated
	logger *logrus.Logger
	hook   *test.Hook
	ctx    context.Context
	cancel context.CancelFunc
}

func newHarness(t *testing.T, initialProducers, lag int) *harness {
	clk := clocktesting.NewFakeClock(epoch)
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &harness{
		clock:  clk,
		queue:  &scriptedQueue{clock: clk, step: time.Second, limit: 5000, cancel: cancel},
		sim:    producers.NewSimulated(initialProducers, lag),
		logger: logger,
		hook:   hook,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (h *harness) deps() Deps {
	return Deps{
		Queue:     h.queue,
		Producers: h.sim,
		Clock:     h.clock,
		Logger:    h.logger,
	}
}

func (h *harness) requireLogged(t *testing.T, level logrus.Level, msg string) {
	for _, e := range h.hook.AllEntries() {
		if e.Level == level && e.Message == msg {
			return
		}
	}
	require.Failf(t, "log entry not found", "%s %q", level, msg)
}
