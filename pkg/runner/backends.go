package runner

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"GoLoadController/pkg/config"
	"GoLoadController/pkg/producers"
	"GoLoadController/pkg/queue"
)

// SampleQueue is what every queue backend offers.
type SampleQueue interface {
	queue.Queue
	queue.Publisher
	queue.Flusher
}

// OpenQueue connects to the configured sample queue.
func OpenQueue(ctx context.Context, s config.QueueSettings) (SampleQueue, error) {
	switch s.Backend {
	case "redis":
		return queue.NewRedisFromConfig(ctx, s.Redis)
	case "kafka":
		return queue.NewKafka(s.Kafka)
	case "memory":
		return queue.NewMemory(), nil
	}
	return nil, errors.Errorf("unknown queue backend %q", s.Backend)
}

// Requeue returns samples a crashed controller reserved but never deleted to
// the pending queue. Backends that redeliver on their own report zero.
func Requeue(ctx context.Context, q interface{}) (int, error) {
	r, ok := q.(queue.Requeuer)
	if !ok {
		return 0, nil
	}
	return r.Requeue(ctx)
}

// Close releases a queue's connections, if it holds any.
func Close(q interface{}) error {
	if c, ok := q.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// OpenProducers builds the producer scaler, counting from CountSource when it
// differs from the scaling backend.
func OpenProducers(s config.ProducerSettings) (producers.ProducerScaler, error) {
	scaler, err := openBackend(s.Backend, s)
	if err != nil {
		return nil, err
	}
	if s.CountSource == "" || s.CountSource == s.Backend {
		return scaler, nil
	}

	var counter producers.Counter
	if s.CountSource == "prometheus" {
		counter, err = producers.NewPrometheusCounter(s.Prometheus.URL, s.Prometheus.Query)
	} else {
		counter, err = openBackend(s.CountSource, s)
	}
	if err != nil {
		return nil, err
	}
	return producers.Split{Scaler: scaler, Counter: counter}, nil
}

func openBackend(name string, s config.ProducerSettings) (producers.ProducerScaler, error) {
	switch name {
	case "kube":
		return producers.NewKubeFromConfig(s.Kube)
	case "script":
		return producers.NewScript(s.Script.Dir), nil
	case "simulated":
		return producers.NewSimulated(0, s.SimulatedLag), nil
	}
	return nil, errors.Errorf("unknown producer backend %q", name)
}
