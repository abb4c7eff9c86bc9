package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"GoLoadController/pkg/adaptive"
)

const namespace = "loadcontroller"

// Instruments exports the controllers' view of the run as Prometheus metrics.
// A nil *Instruments records nothing.
type Instruments struct {
	DesiredProducers *prometheus.GaugeVec
	ActualProducers  *prometheus.GaugeVec
	WindowAverage    *prometheus.GaugeVec
	Tolerance        *prometheus.GaugeVec
	Breaches         *prometheus.GaugeVec
	Verdicts         *prometheus.CounterVec
	State            *prometheus.GaugeVec
}

func NewInstruments(reg prometheus.Registerer) *Instruments {
	f := promauto.With(reg)
	return &Instruments{
		DesiredProducers: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "desired_producers",
			Help:      "Producer count the controller is targeting.",
		}, []string{"controller"}),
		ActualProducers: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "actual_producers",
			Help:      "Producer count last reported by the scaler.",
		}, []string{"controller"}),
		WindowAverage: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consumer_window_average_mbps",
			Help:      "Windowed average throughput per consumer.",
		}, []string{"controller", "consumer"}),
		Tolerance: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consumer_tolerance_mbps",
			Help:      "Minimum acceptable windowed throughput at the current producer count.",
		}, []string{"controller"}),
		Breaches: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consumer_consecutive_breaches",
			Help:      "Consecutive below-tolerance windows per consumer.",
		}, []string{"controller", "consumer"}),
		Verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Monitor verdicts by kind.",
		}, []string{"controller", "kind"}),
		State: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Set to 1 for the controller's current state.",
		}, []string{"controller", "state"}),
	}
}

func (i *Instruments) observe(controller string, v adaptive.Verdict, desired, actual int) {
	if i == nil {
		return
	}
	i.producers(controller, desired, actual)
	i.Verdicts.WithLabelValues(controller, v.Kind.String()).Inc()
	if v.Kind == adaptive.Ok || v.Kind == adaptive.Breach {
		i.WindowAverage.WithLabelValues(controller, v.ConsumerID).Set(v.Average)
		i.Tolerance.WithLabelValues(controller).Set(v.Tolerance)
	}
	i.Breaches.WithLabelValues(controller, v.ConsumerID).Set(float64(v.Breaches))
}

func (i *Instruments) producers(controller string, desired, actual int) {
	if i == nil {
		return
	}
	i.DesiredProducers.WithLabelValues(controller).Set(float64(desired))
	i.ActualProducers.WithLabelValues(controller).Set(float64(actual))
}

func (i *Instruments) state(controller, state string) {
	if i == nil {
		return
	}
	i.State.DeletePartialMatch(prometheus.Labels{"controller": controller})
	i.State.WithLabelValues(controller, state).Set(1)
}
