package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Configuration holds the immutable parameters of one stress + soak run.
type Configuration struct {
	ConfigurationUID string
	Description      string
	SequenceNumber   int

	NumConsumers       int `validate:"gte=1"`
	StartProducerCount int `validate:"gte=0"`
	MaxProducerCount   int `validate:"gtefield=StartProducerCount"`
	NumBrokers         int `validate:"gte=1"`
	// ProducerIncrementInterval is the minimum spacing between stress increments.
	ProducerIncrementInterval time.Duration `validate:"gte=0"`
	// ConsumerTolerance is the fraction of expected throughput a consumer must sustain.
	ConsumerTolerance float64 `validate:"gt=0,lte=1"`
	// PerProducerExpectedThroughput is in MB/s.
	PerProducerExpectedThroughput float64 `validate:"gt=0"`
	IgnoreThroughputThreshold     bool

	// Describe the deployment under test; recorded, never acted on.
	MessageSizeKB     int
	NumPartitions     int
	ReplicationFactor int
	NumZookeepers     int
	MachineType       string

	// Features lists the metrics keys recorded for this configuration; empty
	// means the run-wide default.
	Features []string
}

var validate = validator.New()

// Validate checks the configuration is usable by the controllers.
func (c Configuration) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrapf(err, "configuration %s", c.ConfigurationUID)
	}
	return nil
}

// ExpectedThroughputGbps converts a producer count into the aggregate rate it
// should deliver, in Gbit/s.
func (c Configuration) ExpectedThroughputGbps(producers int) float64 {
	return float64(producers) * c.PerProducerExpectedThroughput * 8 / 1000
}

// NewUID returns a short upper-case identifier for a configuration or run.
func NewUID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
}
