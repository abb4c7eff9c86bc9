package producers

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	log "github.com/sirupsen/logrus"
)

// DefaultProducerCountQuery counts available replicas of the producer Deployment
// as exported by kube-state-metrics.
const DefaultProducerCountQuery = `sum(kube_deployment_status_replicas_available{namespace="producer-consumer",deployment="producer"})`

// PrometheusCounter implements Counter with a PromQL instant query.
type PrometheusCounter struct {
	Client  v1.API
	Query   string
	Timeout time.Duration
}

// NewPrometheusCounter initializes the Prometheus client connection.
func NewPrometheusCounter(promURL, query string) (*PrometheusCounter, error) {
	client, err := api.NewClient(api.Config{
		Address: promURL,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "creating prometheus client for %s", promURL)
	}
	if query == "" {
		query = DefaultProducerCountQuery
	}
	return &PrometheusCounter{
		Client:  v1.NewAPI(client),
		Query:   query,
		Timeout: 3 * time.Second,
	}, nil
}

// ProducerCount runs the query and rounds the single resulting value. An empty
// result means no producer is reporting, which is read as zero.
func (p *PrometheusCounter) ProducerCount(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	result, warnings, err := p.Client.Query(ctx, p.Query, time.Now())
	if err != nil {
		return 0, errors.Wrapf(err, "prometheus query %q", p.Query)
	}
	if len(warnings) > 0 {
		log.WithField("query", p.Query).Warnf("prometheus warnings: %v", warnings)
	}

	var value float64
	switch r := result.(type) {
	case model.Vector:
		if len(r) == 0 {
			return 0, nil
		}
		value = float64(r[0].Value)
	case *model.Scalar:
		value = float64(r.Value)
	default:
		return 0, errors.Errorf("prometheus query %q returned unsupported %s result", p.Query, result.Type())
	}
	if math.IsNaN(value) || value < 0 {
		return 0, errors.Errorf("prometheus query %q returned %v", p.Query, value)
	}
	return int(math.Round(value)), nil
}
