// Package producers scales the producer fleet under test and reports how many
// producers are actually running.
package producers

import "context"

// Scaler issues scale commands. Convergence is asynchronous: a successful call
// only means the request was accepted.
type Scaler interface {
	ScaleProducers(ctx context.Context, count int) error
}

// Counter reports the number of producers currently running. It may lag behind
// a scale command that was just issued.
type Counter interface {
	ProducerCount(ctx context.Context) (int, error)
}

// ProducerScaler is the collaborator the controllers drive.
type ProducerScaler interface {
	Scaler
	Counter
}

// Split pairs a scaler with a counter from a different source, e.g. scaling a
// Deployment while counting producers from Prometheus.
type Split struct {
	Scaler
	Counter
}
