package cmd

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"GoLoadController/pkg/config"
	"GoLoadController/pkg/controller"
	"GoLoadController/pkg/metrics"
	"GoLoadController/pkg/producers"
	"GoLoadController/pkg/runner"
	"GoLoadController/pkg/simulate"
)

// Run every configuration against the real queue and producer fleet.
func runCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Stress and soak test every configuration.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			q, err := runner.OpenQueue(ctx, app.Settings.Queue)
			if err != nil {
				return err
			}
			defer closeQueue(q)

			p, err := runner.OpenProducers(app.Settings.Producers)
			if err != nil {
				return err
			}
			return app.runConfigurations(ctx, q, p)
		},
	}
	return cmd
}

// Run the closed loop against an in-memory queue, a simulated producer fleet
// and simulated consumers.
func simulateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Dry run every configuration against simulated producers and consumers.",
		RunE: func(cmd *cobra.Command, args []string) error {
			consumers, _ := cmd.Flags().GetInt("consumers")
			interval, _ := cmd.Flags().GetDuration("interval")
			seed, _ := cmd.Flags().GetInt64("seed")
			var model simulate.Model
			model.Capacity, _ = cmd.Flags().GetInt("capacity")
			model.Degradation, _ = cmd.Flags().GetFloat64("degradation")
			model.Noise, _ = cmd.Flags().GetFloat64("noise")
			model.PerProducer, _ = cmd.Flags().GetFloat64("per-producer")

			ctx, cancel := signalContext()
			defer cancel()

			app.Settings.Queue.Backend = "memory"
			q, err := runner.OpenQueue(ctx, app.Settings.Queue)
			if err != nil {
				return err
			}
			sim := producers.NewSimulated(0, app.Settings.Producers.SimulatedLag)
			emitter := simulate.NewEmitter(q, sim.Observer(), consumers, interval, model, seed)
			go func() {
				_ = emitter.Run(ctx)
			}()
			return app.runConfigurations(ctx, q, sim)
		},
	}
	cmd.Flags().Int("consumers", 1, "Number of simulated consumers.")
	cmd.Flags().Duration("interval", time.Second, "How often each consumer reports.")
	cmd.Flags().Int("capacity", 8, "Producers the simulated cluster sustains at full rate.")
	cmd.Flags().Float64("degradation", 0.15, "Fraction of throughput lost per producer above capacity.")
	cmd.Flags().Float64("noise", 0.02, "Relative jitter on every reading.")
	cmd.Flags().Float64("per-producer", 75, "MB/s each producer adds to every consumer.")
	cmd.Flags().Int64("seed", time.Now().UnixNano(), "Random seed for the jitter.")
	return cmd
}

func (a *App) runConfigurations(ctx context.Context, q runner.SampleQueue, p producers.ProducerScaler) error {
	configurations, err := a.Settings.Configurations()
	if err != nil {
		return err
	}
	features, err := metrics.ParseFeatures(a.Settings.Metrics.Features)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if addr := a.Settings.Metrics.ListenAddr; addr != "" {
		shutdown := serveMetrics(addr, reg)
		defer shutdown()
	}

	runUID := "run_" + config.NewUID()
	sink, err := openSinks(a.Settings.Metrics.Dir, runUID, reg)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.WithError(err).Warn("unable to close metrics sinks")
		}
	}()

	log.WithFields(log.Fields{
		"run":            runUID,
		"configurations": len(configurations),
	}).Info("starting run")
	r := &runner.Runner{
		Queue:       q,
		Producers:   p,
		Sink:        sink,
		Tuning:      tuning(a.Settings),
		Features:    features,
		Logger:      log.WithField("run", runUID),
		Instruments: controller.NewInstruments(reg),
	}
	return r.Run(ctx, configurations)
}

func tuning(s config.Settings) controller.Tuning {
	return controller.Tuning{
		StressWindowSize: s.Controller.StressWindowSize,
		SoakWindowSize:   s.Controller.SoakWindowSize,
		BreachLimit:      s.Controller.BreachLimit,
		SettleFactor:     s.Controller.SettleFactor,
		BaseSoakDuration: s.Controller.BaseSoakDuration,
		PollTimeout:      s.Queue.PollTimeout,
	}
}

// openSinks records every configuration as CSV and JSON lines under
// dir/runUID and exports it to reg.
func openSinks(dir, runUID string, reg prometheus.Registerer) (metrics.MultiSink, error) {
	csvSink, err := metrics.CreateCSVSink(dir, runUID)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, runUID, runUID+"_metrics.jsonl")
	f, err := os.Create(path)
	if err != nil {
		_ = csvSink.Close()
		return nil, errors.Wrapf(err, "creating %s", path)
	}
	return metrics.MultiSink{csvSink, metrics.NewJSONSink(f), metrics.NewPrometheusSink(reg)}, nil
}

func serveMetrics(addr string, gatherer prometheus.Gatherer) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.WithField("addr", addr).Info("serving metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server failure")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}

func closeQueue(q runner.SampleQueue) {
	if err := runner.Close(q); err != nil {
		log.WithError(err).Warn("unable to close sample queue")
	}
}
