package controller

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"GoLoadController/pkg/adaptive"
	"GoLoadController/pkg/config"
	"GoLoadController/pkg/throughput"
)

type SoakState string

const (
	SoakStabilizing  SoakState = "stabilizing"
	SoakHolding      SoakState = "holding"
	SoakComplete     SoakState = "complete"
	SoakNoViableLoad SoakState = "no_viable_load"
	SoakStopped      SoakState = "stopped"
)

// SoakResult summarises a soak run. Throughput figures cover the hold only.
type SoakResult struct {
	State             SoakState
	StableProducers   int
	MinThroughput     float64
	MaxThroughput     float64
	AverageThroughput float64
	Samples           int
	HoldDuration      time.Duration
}

// SoakDuration is how long to hold a stable load. Fewer producers hold
// proportionally longer so every configuration moves a similar volume of data.
func SoakDuration(base time.Duration, numBrokers, producers int) time.Duration {
	if producers <= 0 {
		return 0
	}
	return time.Duration(float64(base) * float64(numBrokers) / float64(producers))
}

// Soak removes one producer per sustained breach until every consumer is within
// tolerance, then holds that producer count for SoakDuration while recording
// throughput.
type Soak struct {
	deps    Deps
	cfg     config.Configuration
	tuning  Tuning
	monitor *adaptive.Monitor
	log     logrus.FieldLogger

	state   SoakState
	desired int
	actual  int
	stats   throughput.Stats
}

func NewSoak(deps Deps, cfg config.Configuration, tuning Tuning) *Soak {
	deps = deps.withDefaults()
	return &Soak{
		deps:   deps,
		cfg:    cfg,
		tuning: tuning,
		monitor: adaptive.NewMonitor(adaptive.Options{
			WindowSize:         tuning.SoakWindowSize,
			ExpectedThroughput: cfg.PerProducerExpectedThroughput,
			Tolerance:          cfg.ConsumerTolerance,
			IgnoreThreshold:    cfg.IgnoreThroughputThreshold,
		}),
		log:   deps.Logger.WithFields(logrus.Fields{"controller": "soak", "configuration": cfg.ConfigurationUID}),
		state: SoakStabilizing,
	}
}

// Run blocks until the hold completes or ctx is cancelled. A cancelled run
// returns its partial result with state SoakStopped alongside ctx.Err().
func (s *Soak) Run(ctx context.Context) (SoakResult, error) {
	s.log.Info("soak test started")

	actual, err := s.initialCount(ctx)
	if err != nil {
		s.setState(SoakStopped)
		return SoakResult{State: s.state}, err
	}
	if actual == 0 {
		return s.noViableLoad(), nil
	}
	s.desired, s.actual = actual, actual
	s.setState(SoakStabilizing)

	if err := newLoop("soak", s.deps, s.monitor, s, s.tuning.PollTimeout).Run(ctx); err != nil {
		s.setState(SoakStopped)
		return SoakResult{State: s.state, StableProducers: s.desired}, err
	}

	stable := s.desired
	s.log.WithField("producers", stable).Info("throughput stability achieved")
	if stable == 0 {
		return s.noViableLoad(), nil
	}
	return s.hold(ctx, stable)
}

func (s *Soak) initialCount(ctx context.Context) (int, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		actual, err := s.deps.Producers.ProducerCount(ctx)
		if err == nil {
			return actual, nil
		}
		s.log.WithError(err).Warn("unable to read producer count")
		s.deps.Clock.Sleep(s.tuning.PollTimeout)
	}
}

func (s *Soak) noViableLoad() SoakResult {
	s.log.Warn("no producers running; aborting soak test")
	s.setState(SoakNoViableLoad)
	return SoakResult{State: s.state}
}

func (s *Soak) hold(ctx context.Context, stable int) (SoakResult, error) {
	duration := SoakDuration(s.tuning.BaseSoakDuration, s.cfg.NumBrokers, stable)
	s.setState(SoakHolding)
	s.stats.Reset()
	s.log.WithFields(logrus.Fields{"producers": stable, "duration": duration}).Info("running soak test")

	recent := map[string]*throughput.Window{}
	start := s.deps.Clock.Now()
	result := func() SoakResult {
		return SoakResult{
			State:             s.state,
			StableProducers:   stable,
			MinThroughput:     s.stats.Min(),
			MaxThroughput:     s.stats.Max(),
			AverageThroughput: s.stats.Average(),
			Samples:           s.stats.Count(),
			HoldDuration:      duration,
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			s.setState(SoakStopped)
			return result(), err
		}
		elapsed := s.deps.Clock.Since(start)
		if elapsed > duration {
			break
		}
		sample, ok := receive(ctx, s.deps, s.log, s.tuning.PollTimeout)
		if !ok {
			continue
		}
		s.stats.Add(sample.Throughput)

		w, ok := recent[sample.ConsumerID]
		if !ok {
			w = throughput.NewWindow(stable, 5)
			recent[sample.ConsumerID] = w
		}
		w.Add(sample.Throughput)
		s.log.WithFields(logrus.Fields{
			"consumer": sample.ConsumerID,
			"average":  w.Mean(),
			"elapsed":  elapsed.Round(time.Second),
			"duration": duration,
		}).Debug("soak progress")
	}

	s.setState(SoakComplete)
	r := result()
	s.log.WithFields(logrus.Fields{
		"producers": stable,
		"min":       r.MinThroughput,
		"max":       r.MaxThroughput,
		"average":   r.AverageThroughput,
	}).Info("soak test complete")
	return r, nil
}

func (s *Soak) Desired() int { return s.desired }

func (s *Soak) State() SoakState { return s.state }

func (s *Soak) OnEpochChange(_ context.Context, _, current int) {
	s.actual = current
}

func (s *Soak) OnOk(_ context.Context, _ adaptive.Verdict, actual int) bool {
	s.actual = actual
	return s.monitor.AllClear(s.cfg.NumConsumers) && s.desired == actual
}

func (s *Soak) OnBreach(ctx context.Context, v adaptive.Verdict, actual int) bool {
	s.actual = actual
	if v.Breaches < s.tuning.BreachLimit {
		return false
	}
	// A previous decrement is still propagating.
	if s.desired != actual {
		return false
	}

	s.monitor.ResetConsumer(v.ConsumerID)
	if s.desired == 0 {
		s.log.Warn("producer count is already zero")
		return false
	}
	s.desired--
	s.log.WithFields(logrus.Fields{
		"consumer":  v.ConsumerID,
		"average":   v.Average,
		"tolerance": v.Tolerance,
		"desired":   s.desired,
	}).Info("threshold exceeded; decrementing producer count")
	scale(ctx, s.deps, s.log, s.desired)
	return false
}

func (s *Soak) setState(state SoakState) {
	s.state = state
	s.deps.Instruments.state("soak", string(state))
}
