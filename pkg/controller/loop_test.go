package controller

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GoLoadController/pkg/adaptive"
	"GoLoadController/pkg/producers"
	"GoLoadController/pkg/throughput"
)

type stubPolicy struct {
	desired  int
	oks      []adaptive.Verdict
	breaches []adaptive.Verdict
	epochs   [][2]int
	onOk     func(ctx context.Context, v adaptive.Verdict, actual int) bool
}

func (p *stubPolicy) Desired() int { return p.desired }

func (p *stubPolicy) OnEpochChange(_ context.Context, previous, current int) {
	p.epochs = append(p.epochs, [2]int{previous, current})
}

func (p *stubPolicy) OnOk(ctx context.Context, v adaptive.Verdict, actual int) bool {
	p.oks = append(p.oks, v)
	if p.onOk != nil {
		return p.onOk(ctx, v, actual)
	}
	return true
}

func (p *stubPolicy) OnBreach(_ context.Context, v adaptive.Verdict, _ int) bool {
	p.breaches = append(p.breaches, v)
	return false
}

func newTestLoop(h *harness, policy ThresholdPolicy) *Loop {
	monitor := adaptive.NewMonitor(adaptive.Options{WindowSize: 1, ExpectedThroughput: 75, Tolerance: 0.85})
	return newLoop("test", h.deps().withDefaults(), monitor, policy, DefaultTuning().PollTimeout)
}

var okSample = throughput.Sample{ConsumerID: "c1", Throughput: 75, ProducerCount: 1}

// flakyCounter fails the first failures producer count reads.
type flakyCounter struct {
	producers.ProducerScaler
	failures int
}

func (f *flakyCounter) ProducerCount(ctx context.Context) (int, error) {
	if f.failures > 0 {
		f.failures--
		return 0, errors.New("metrics backend unavailable")
	}
	return f.ProducerScaler.ProducerCount(ctx)
}

func TestLoop_DispatchesOk(t *testing.T) {
	h := newHarness(t, 1, 0)
	h.queue.next = scripted(okSample)
	policy := &stubPolicy{desired: 1}

	require.NoError(t, newTestLoop(h, policy).Run(h.ctx))
	require.Len(t, policy.oks, 1)
	assert.Equal(t, adaptive.Ok, policy.oks[0].Kind)
	assert.Equal(t, 75.0, policy.oks[0].Average)
	assert.Equal(t, 1, h.queue.deletes)
}

func TestLoop_ConnectionErrorIsLoggedAndSkipped(t *testing.T) {
	h := newHarness(t, 1, 0)
	h.queue.errs = []error{errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")}
	h.queue.next = scripted(okSample)
	policy := &stubPolicy{desired: 1}

	require.NoError(t, newTestLoop(h, policy).Run(h.ctx))
	h.requireLogged(t, logrus.ErrorLevel, "sample queue unavailable; skipping iteration")
	assert.Len(t, policy.oks, 1)
	// Two reserves plus one poll timeout of back-off.
	assert.Equal(t, epoch.Add(3*DefaultTuning().PollTimeout), h.clock.Now())
}

func TestLoop_MalformedSampleIsDeletedAndSkipped(t *testing.T) {
	h := newHarness(t, 1, 0)
	h.queue.raw = [][]byte{[]byte("not json"), []byte(`{"consumer_id":"c1","throughput":75}`)}
	h.queue.next = scripted(okSample)
	policy := &stubPolicy{desired: 1}

	require.NoError(t, newTestLoop(h, policy).Run(h.ctx))
	h.requireLogged(t, logrus.WarnLevel, "skipping malformed sample")
	assert.Len(t, policy.oks, 1)
	assert.Equal(t, 3, h.queue.deletes)
}

func TestLoop_DeleteFailureStillProcessesSample(t *testing.T) {
	h := newHarness(t, 1, 0)
	h.queue.deleteErr = errors.New("connection reset by peer")
	h.queue.next = scripted(okSample)
	policy := &stubPolicy{desired: 1}

	require.NoError(t, newTestLoop(h, policy).Run(h.ctx))
	h.requireLogged(t, logrus.WarnLevel, "unable to delete sample from queue")
	assert.Len(t, policy.oks, 1)
}

func TestLoop_CountFailureSkipsSample(t *testing.T) {
	h := newHarness(t, 1, 0)
	h.queue.next = scripted(okSample, okSample)
	policy := &stubPolicy{desired: 1}

	deps := h.deps()
	deps.Producers = &flakyCounter{ProducerScaler: h.sim, failures: 1}
	monitor := adaptive.NewMonitor(adaptive.Options{WindowSize: 1, ExpectedThroughput: 75, Tolerance: 0.85})
	loop := newLoop("test", deps.withDefaults(), monitor, policy, DefaultTuning().PollTimeout)

	require.NoError(t, loop.Run(h.ctx))
	h.requireLogged(t, logrus.WarnLevel, "unable to read producer count; skipping sample")
	assert.Len(t, policy.oks, 1)
	assert.Equal(t, 2, h.queue.reserves)
}

func TestLoop_ReportsEpochChange(t *testing.T) {
	h := newHarness(t, 1, 0)
	h.queue.next = scripted(okSample, throughput.Sample{ConsumerID: "c1", Throughput: 150, ProducerCount: 2})
	policy := &stubPolicy{desired: 1}
	policy.onOk = func(ctx context.Context, _ adaptive.Verdict, _ int) bool {
		if policy.desired == 2 {
			return true
		}
		policy.desired = 2
		require.NoError(t, h.sim.ScaleProducers(ctx, 2))
		return false
	}

	require.NoError(t, newTestLoop(h, policy).Run(h.ctx))
	assert.Equal(t, [][2]int{{1, 2}}, policy.epochs)
	require.Len(t, policy.oks, 2)
	assert.True(t, policy.oks[1].EpochChanged)
	assert.Equal(t, 150.0, policy.oks[1].Average)
}

func TestLoop_DiscardsOtherEpochs(t *testing.T) {
	h := newHarness(t, 1, 0)
	h.queue.next = scripted(
		throughput.Sample{ConsumerID: "c1", Throughput: 10, ProducerCount: 4},
		okSample,
	)
	policy := &stubPolicy{desired: 1}

	require.NoError(t, newTestLoop(h, policy).Run(h.ctx))
	assert.Empty(t, policy.breaches)
	require.Len(t, policy.oks, 1)
	assert.Equal(t, 75.0, policy.oks[0].Average)
}

func TestLoop_Cancelled(t *testing.T) {
	h := newHarness(t, 1, 0)
	h.cancel()

	err := newTestLoop(h, &stubPolicy{desired: 1}).Run(h.ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.queue.reserves)
}
