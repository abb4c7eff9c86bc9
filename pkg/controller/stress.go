package controller

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"GoLoadController/pkg/adaptive"
	"GoLoadController/pkg/config"
	"GoLoadController/pkg/throughput"
)

type StressState string

const (
	StressWarmup     StressState = "warmup"
	StressProbing    StressState = "probing"
	StressDegraded   StressState = "degraded"
	StressMaxReached StressState = "max_reached"
	StressStopped    StressState = "stopped"
)

// StressResult summarises a stress run.
type StressResult struct {
	State                  StressState
	MaxProducers           int
	ExpectedThroughputGbps float64
	MinThroughput          float64
	MaxThroughput          float64
	Duration               time.Duration
}

// Stress adds one producer per increment interval while every consumer keeps
// up, and stops once a consumer breaches tolerance BreachLimit times in a row
// or MaxProducerCount is reached.
type Stress struct {
	deps    Deps
	cfg     config.Configuration
	tuning  Tuning
	monitor *adaptive.Monitor
	limiter *adaptive.IncrementLimiter
	log     logrus.FieldLogger

	state   StressState
	desired int
	actual  int
	stats   throughput.Stats
}

func NewStress(deps Deps, cfg config.Configuration, tuning Tuning) *Stress {
	deps = deps.withDefaults()
	return &Stress{
		deps:   deps,
		cfg:    cfg,
		tuning: tuning,
		monitor: adaptive.NewMonitor(adaptive.Options{
			WindowSize:         tuning.StressWindowSize,
			ExpectedThroughput: cfg.PerProducerExpectedThroughput,
			Tolerance:          cfg.ConsumerTolerance,
			IgnoreThreshold:    cfg.IgnoreThroughputThreshold,
			SettleSamples:      tuning.SettleFactor * cfg.NumConsumers,
		}),
		limiter: adaptive.NewIncrementLimiter(cfg.ProducerIncrementInterval),
		log:     deps.Logger.WithFields(logrus.Fields{"controller": "stress", "configuration": cfg.ConfigurationUID}),
		state:   StressWarmup,
		desired: cfg.StartProducerCount,
		actual:  -1,
	}
}

// Run blocks until a terminal state or cancellation. A cancelled run still
// returns a result, with state StressStopped, alongside ctx.Err().
func (s *Stress) Run(ctx context.Context) (StressResult, error) {
	start := s.deps.Clock.Now()
	s.log.WithFields(logrus.Fields{
		"start": s.cfg.StartProducerCount,
		"max":   s.cfg.MaxProducerCount,
	}).Info("stress test started")

	err := s.warmup(ctx)
	if err == nil {
		s.setState(StressProbing)
		s.limiter.Restart(s.deps.Clock.Now())
		err = newLoop("stress", s.deps, s.monitor, s, s.tuning.PollTimeout).Run(ctx)
	}
	if err != nil {
		s.setState(StressStopped)
	}

	result := s.finish(ctx)
	result.Duration = s.deps.Clock.Since(start)
	s.log.WithFields(logrus.Fields{
		"state":         result.State,
		"max_producers": result.MaxProducers,
		"gbps":          result.ExpectedThroughputGbps,
	}).Info("stress test ended")
	return result, err
}

// warmup scales to the start count and waits for it to be running, acking and
// dropping whatever telemetry arrives meanwhile.
func (s *Stress) warmup(ctx context.Context) error {
	requested := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		actual, err := s.deps.Producers.ProducerCount(ctx)
		if err != nil {
			s.log.WithError(err).Warn("unable to read producer count during warmup")
		} else {
			s.actual = actual
			s.deps.Instruments.producers("stress", s.desired, actual)
			if actual == s.desired {
				return nil
			}
			if !requested {
				s.log.WithFields(logrus.Fields{"actual": actual, "desired": s.desired}).Info("configuring start producer count")
				scale(ctx, s.deps, s.log, s.desired)
				requested = true
			}
		}
		if sample, ok := receive(ctx, s.deps, s.log, s.tuning.PollTimeout); ok {
			s.log.WithField("consumer", sample.ConsumerID).Debug("warming up; sample ignored")
		}
	}
}

func (s *Stress) Desired() int { return s.desired }

func (s *Stress) State() StressState { return s.state }

func (s *Stress) OnEpochChange(_ context.Context, _, current int) {
	s.actual = current
}

func (s *Stress) OnOk(ctx context.Context, v adaptive.Verdict, actual int) bool {
	s.actual = actual
	s.stats.Add(v.Average)

	// Wait for an issued increment to land before considering another.
	if actual != s.desired {
		return false
	}
	if !s.limiter.Allow(s.deps.Clock.Now()) {
		return false
	}
	if s.desired >= s.cfg.MaxProducerCount {
		s.log.WithField("producers", s.desired).Info("maximum producer count sustained")
		s.setState(StressMaxReached)
		return true
	}

	s.desired++
	s.log.WithFields(logrus.Fields{"actual": actual, "desired": s.desired}).Info("starting producer")
	scale(ctx, s.deps, s.log, s.desired)
	return false
}

func (s *Stress) OnBreach(_ context.Context, v adaptive.Verdict, actual int) bool {
	s.actual = actual
	s.stats.Add(v.Average)

	if v.Breaches >= s.tuning.BreachLimit {
		s.log.WithFields(logrus.Fields{
			"consumer":  v.ConsumerID,
			"average":   v.Average,
			"tolerance": v.Tolerance,
			"breaches":  v.Breaches,
		}).Info("stopping after consecutive throughput breaches")
		s.setState(StressDegraded)
		return true
	}
	return false
}

// finish cancels an increment that was requested but never confirmed, so the
// cluster is not left mid-transition.
func (s *Stress) finish(ctx context.Context) StressResult {
	bg := context.WithoutCancel(ctx)

	actual, err := s.deps.Producers.ProducerCount(bg)
	if err != nil {
		s.log.WithError(err).Warn("unable to read final producer count; using last observed")
		actual = s.actual
	}
	if actual >= 0 && s.desired > actual {
		s.log.WithFields(logrus.Fields{"actual": actual, "desired": s.desired}).Info("cancelling outstanding producer increment")
		scale(bg, s.deps, s.log, actual)
		s.desired = actual
	}
	if actual < 0 {
		actual = 0
	}
	return StressResult{
		State:                  s.state,
		MaxProducers:           actual,
		ExpectedThroughputGbps: s.cfg.ExpectedThroughputGbps(actual),
		MinThroughput:          s.stats.Min(),
		MaxThroughput:          s.stats.Max(),
	}
}

func (s *Stress) setState(state StressState) {
	s.state = state
	s.deps.Instruments.state("stress", string(state))
}
