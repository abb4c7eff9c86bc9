// Package controller holds the throughput-driven control loops: a stress
// controller that adds producers while the consumers keep up, and a soak
// controller that backs off until the cluster is stable and then holds load.
package controller

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"GoLoadController/pkg/adaptive"
	"GoLoadController/pkg/producers"
	"GoLoadController/pkg/queue"
	"GoLoadController/pkg/throughput"
)

// Deps are the collaborators a controller drives.
type Deps struct {
	Queue     queue.Queue
	Producers producers.ProducerScaler
	Clock     clock.Clock
	Logger    logrus.FieldLogger
	// Instruments is optional.
	Instruments *Instruments
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = clock.RealClock{}
	}
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	return d
}

// Tuning holds the knobs shared by the controllers.
type Tuning struct {
	StressWindowSize int
	SoakWindowSize   int
	BreachLimit      int
	SettleFactor     int
	BaseSoakDuration time.Duration
	PollTimeout      time.Duration
}

// DefaultTuning matches the values the controllers were calibrated with.
func DefaultTuning() Tuning {
	return Tuning{
		StressWindowSize: 5,
		SoakWindowSize:   10,
		BreachLimit:      3,
		SettleFactor:     2,
		BaseSoakDuration: 313 * time.Second,
		PollTimeout:      time.Second,
	}
}

// ThresholdPolicy turns monitor verdicts into scaling decisions. OnOk and
// OnBreach return true once the policy has reached a terminal state.
type ThresholdPolicy interface {
	Desired() int
	OnEpochChange(ctx context.Context, previous, current int)
	OnOk(ctx context.Context, v adaptive.Verdict, actual int) bool
	OnBreach(ctx context.Context, v adaptive.Verdict, actual int) bool
}

// Loop feeds queued samples through a monitor into a policy, one sample per
// iteration, until the policy is done or ctx is cancelled.
type Loop struct {
	name        string
	deps        Deps
	monitor     *adaptive.Monitor
	policy      ThresholdPolicy
	pollTimeout time.Duration
	log         logrus.FieldLogger
}

func newLoop(name string, deps Deps, monitor *adaptive.Monitor, policy ThresholdPolicy, pollTimeout time.Duration) *Loop {
	return &Loop{
		name:        name,
		deps:        deps,
		monitor:     monitor,
		policy:      policy,
		pollTimeout: pollTimeout,
		log:         deps.Logger.WithField("controller", name),
	}
}

// Run returns nil when the policy finished and ctx.Err() when cancelled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		sample, ok := l.receive(ctx)
		if !ok {
			continue
		}
		actual, err := l.deps.Producers.ProducerCount(ctx)
		if err != nil {
			l.log.WithError(err).Warn("unable to read producer count; skipping sample")
			continue
		}
		if l.step(ctx, sample, actual) {
			return nil
		}
	}
}

func (l *Loop) step(ctx context.Context, sample throughput.Sample, actual int) bool {
	desired := l.policy.Desired()
	v := l.monitor.Observe(sample, desired, actual)
	l.deps.Instruments.observe(l.name, v, desired, actual)

	if v.EpochChanged {
		l.log.WithFields(logrus.Fields{"previous": v.PreviousActual, "actual": actual}).
			Info("producer count changed; breach counters and windows reset")
		l.policy.OnEpochChange(ctx, v.PreviousActual, actual)
	}

	entry := l.log.WithFields(logrus.Fields{
		"consumer":  v.ConsumerID,
		"verdict":   v.Kind.String(),
		"average":   v.Average,
		"tolerance": v.Tolerance,
		"producers": v.ProducerCount,
		"desired":   desired,
		"actual":    actual,
		"breaches":  v.Breaches,
	})
	switch v.Kind {
	case adaptive.Ok:
		entry.Debug("throughput ok")
		return l.policy.OnOk(ctx, v, actual)
	case adaptive.Breach:
		entry.Info("average throughput below tolerance")
		return l.policy.OnBreach(ctx, v, actual)
	case adaptive.Discarded:
		entry.WithField("reason", v.Reason).Debug("sample discarded")
	default:
		entry.Debug("window filling")
	}
	return false
}

// receive reserves, acknowledges and decodes at most one sample.
func (l *Loop) receive(ctx context.Context) (throughput.Sample, bool) {
	return receive(ctx, l.deps, l.log, l.pollTimeout)
}

func receive(ctx context.Context, deps Deps, log logrus.FieldLogger, timeout time.Duration) (throughput.Sample, bool) {
	msg, err := deps.Queue.Reserve(ctx, timeout)
	switch {
	case errors.Is(err, queue.ErrTimeout):
		return throughput.Sample{}, false
	case err != nil && ctx.Err() != nil:
		return throughput.Sample{}, false
	case err != nil:
		log.WithError(err).Error("sample queue unavailable; skipping iteration")
		deps.Clock.Sleep(timeout)
		return throughput.Sample{}, false
	}

	sample, decodeErr := throughput.Decode(msg.Body)
	if err := deps.Queue.Delete(ctx, msg); err != nil {
		log.WithError(err).WithField("message", msg.ID).Warn("unable to delete sample from queue")
	}
	if decodeErr != nil {
		log.WithError(decodeErr).WithField("body", string(msg.Body)).Warn("skipping malformed sample")
		return throughput.Sample{}, false
	}
	return sample, true
}

// scale issues a scale command; failures are logged because convergence is
// checked on later samples anyway.
func scale(ctx context.Context, deps Deps, log logrus.FieldLogger, count int) {
	if err := deps.Producers.ScaleProducers(ctx, count); err != nil {
		log.WithError(err).WithField("desired", count).Error("scale command failed")
	}
}
