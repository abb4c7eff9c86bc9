// Package runner drives every configuration through a stress test followed by
// a soak test and records the outcome.
package runner

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"GoLoadController/pkg/config"
	"GoLoadController/pkg/controller"
	"GoLoadController/pkg/metrics"
	"GoLoadController/pkg/producers"
	"GoLoadController/pkg/queue"
)

type Runner struct {
	Queue     queue.Queue
	Producers producers.ProducerScaler
	Sink      metrics.Sink
	Tuning    controller.Tuning
	// Features applies to configurations that do not choose their own.
	Features    metrics.Features
	Clock       clock.Clock
	Logger      logrus.FieldLogger
	Instruments *controller.Instruments
}

func (r *Runner) deps() controller.Deps {
	return controller.Deps{
		Queue:       r.Queue,
		Producers:   r.Producers,
		Clock:       r.Clock,
		Logger:      r.Logger,
		Instruments: r.Instruments,
	}
}

func (r *Runner) logger() logrus.FieldLogger {
	if r.Logger == nil {
		return logrus.StandardLogger()
	}
	return r.Logger
}

// Run executes configurations in order. Flush and sink failures do not stop
// the run; they are returned together once it ends. Cancellation stops the run
// after the current phase and is included in the returned error.
func (r *Runner) Run(ctx context.Context, configurations []config.Configuration) error {
	var result *multierror.Error
	for i, c := range configurations {
		log := r.logger().WithFields(logrus.Fields{
			"configuration": c.ConfigurationUID,
			"sequence":      fmt.Sprintf("%d/%d", i+1, len(configurations)),
		})
		log.WithField("description", c.Description).Info("running configuration")

		record, err := r.RunConfiguration(ctx, c)
		if err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "configuration %s", c.ConfigurationUID))
		}
		if ctx.Err() != nil {
			log.Warn("run cancelled")
			break
		}
		log.WithFields(logrus.Fields{
			"stress_max_producers": record.StressMaxProducers,
			"soak_num_producers":   record.SoakNumProducers,
		}).Info("configuration complete")
	}
	return result.ErrorOrNil()
}

// RunConfiguration flushes stale samples, then runs stress and soak for one
// configuration and writes the record. The returned record is complete up to
// the phase that ended the run.
func (r *Runner) RunConfiguration(ctx context.Context, c config.Configuration) (metrics.Record, error) {
	record := metrics.Record{Configuration: c, Features: r.Features}
	if len(c.Features) > 0 {
		features, err := metrics.ParseFeatures(c.Features)
		if err != nil {
			return record, err
		}
		record.Features = features
	}
	if err := c.Validate(); err != nil {
		return record, err
	}

	var result *multierror.Error
	if err := r.flush(ctx); err != nil {
		result = multierror.Append(result, err)
	}

	stress, err := controller.NewStress(r.deps(), c, r.Tuning).Run(ctx)
	record.StressMaxProducers = stress.MaxProducers
	record.StressExpectedThroughputGbps = stress.ExpectedThroughputGbps
	record.StressOutcome = string(stress.State)
	if err != nil {
		return record, multierror.Append(result, err).ErrorOrNil()
	}

	soak, err := controller.NewSoak(r.deps(), c, r.Tuning).Run(ctx)
	record.SoakNumProducers = soak.StableProducers
	record.SoakMinThroughput = soak.MinThroughput
	record.SoakMaxThroughput = soak.MaxThroughput
	record.SoakAverageThroughput = soak.AverageThroughput
	record.SoakDurationSeconds = soak.HoldDuration.Seconds()
	if err != nil {
		return record, multierror.Append(result, err).ErrorOrNil()
	}

	if r.Sink != nil {
		if err := r.Sink.Write(record); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "writing metrics"))
		}
	}
	return record, result.ErrorOrNil()
}

func (r *Runner) flush(ctx context.Context) error {
	var (
		n   int
		err error
	)
	if f, ok := r.Queue.(queue.Flusher); ok {
		n, err = f.Flush(ctx)
	} else {
		n, err = queue.Drain(ctx, r.Queue, 0)
	}
	if err != nil {
		return errors.Wrap(err, "flushing sample queue")
	}
	r.logger().WithField("discarded", n).Info("flushed sample queue")
	return nil
}
