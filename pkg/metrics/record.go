// Package metrics turns the outcome of a configuration into a flat record and
// writes it to one or more sinks.
package metrics

import (
	"github.com/pkg/errors"

	"GoLoadController/pkg/config"
)

// Result keys, in the order they are emitted by default.
const (
	KeyConfigurationUID             = "configuration_uid"
	KeyDescription                  = "description"
	KeyNumConsumers                 = "num_consumers"
	KeyStressMaxProducers           = "stress_max_producers"
	KeyStressExpectedThroughputGbps = "stress_expected_throughput_gbps"
	KeyStressOutcome                = "stress_outcome"
	KeySoakNumProducers             = "soak_num_producers"
	KeySoakMinThroughput            = "soak_min_throughput"
	KeySoakMaxThroughput            = "soak_max_throughput"
	KeySoakAverageThroughput        = "soak_average_throughput"
	KeySoakDurationSeconds          = "soak_duration_seconds"
)

// DefaultFeatures is every result key.
var DefaultFeatures = Features{
	KeyConfigurationUID,
	KeyDescription,
	KeyNumConsumers,
	KeyStressMaxProducers,
	KeyStressExpectedThroughputGbps,
	KeyStressOutcome,
	KeySoakNumProducers,
	KeySoakMinThroughput,
	KeySoakMaxThroughput,
	KeySoakAverageThroughput,
	KeySoakDurationSeconds,
}

// configurationKeys describe the deployment under test and may be recorded
// next to the results.
var configurationKeys = map[string]func(c config.Configuration) interface{}{
	"sequence_number":                     func(c config.Configuration) interface{} { return c.SequenceNumber },
	"num_brokers":                         func(c config.Configuration) interface{} { return c.NumBrokers },
	"num_partitions":                      func(c config.Configuration) interface{} { return c.NumPartitions },
	"replication_factor":                  func(c config.Configuration) interface{} { return c.ReplicationFactor },
	"num_zookeepers":                      func(c config.Configuration) interface{} { return c.NumZookeepers },
	"message_size_kb":                     func(c config.Configuration) interface{} { return c.MessageSizeKB },
	"machine_type":                        func(c config.Configuration) interface{} { return c.MachineType },
	"start_producer_count":                func(c config.Configuration) interface{} { return c.StartProducerCount },
	"max_producer_count":                  func(c config.Configuration) interface{} { return c.MaxProducerCount },
	"producer_increment_interval_seconds": func(c config.Configuration) interface{} { return c.ProducerIncrementInterval.Seconds() },
	"consumer_tolerance":                  func(c config.Configuration) interface{} { return c.ConsumerTolerance },
	"per_producer_expected_throughput":    func(c config.Configuration) interface{} { return c.PerProducerExpectedThroughput },
	"ignore_throughput_threshold":         func(c config.Configuration) interface{} { return c.IgnoreThroughputThreshold },
}

// Features is the ordered list of keys a record emits.
type Features []string

// ParseFeatures validates names against the known keys. The configuration
// UID is always emitted first; an empty list selects DefaultFeatures.
func ParseFeatures(names []string) (Features, error) {
	if len(names) == 0 {
		return DefaultFeatures, nil
	}
	out := Features{KeyConfigurationUID}
	seen := map[string]bool{KeyConfigurationUID: true}
	for _, name := range names {
		if seen[name] {
			continue
		}
		if !known(name) {
			return nil, errors.Errorf("unknown metrics feature %q", name)
		}
		seen[name] = true
		out = append(out, name)
	}
	return out, nil
}

func known(name string) bool {
	for _, k := range DefaultFeatures {
		if k == name {
			return true
		}
	}
	_, ok := configurationKeys[name]
	return ok
}

// Record is the summary of one configuration's stress and soak runs.
type Record struct {
	Configuration config.Configuration
	// Features selects the emitted keys; nil means DefaultFeatures.
	Features Features

	StressMaxProducers           int
	StressExpectedThroughputGbps float64
	StressOutcome                string

	SoakNumProducers      int
	SoakMinThroughput     float64
	SoakMaxThroughput     float64
	SoakAverageThroughput float64
	SoakDurationSeconds   float64
}

// Field is one emitted key/value pair.
type Field struct {
	Key   string
	Value interface{}
}

// Flat returns the record's selected values, in order. Unknown keys are
// skipped.
func (r Record) Flat() []Field {
	features := r.Features
	if features == nil {
		features = DefaultFeatures
	}
	out := make([]Field, 0, len(features))
	for _, key := range features {
		if v, ok := r.value(key); ok {
			out = append(out, Field{Key: key, Value: v})
		}
	}
	return out
}

// Map is Flat keyed by name.
func (r Record) Map() map[string]interface{} {
	out := map[string]interface{}{}
	for _, f := range r.Flat() {
		out[f.Key] = f.Value
	}
	return out
}

func (r Record) value(key string) (interface{}, bool) {
	switch key {
	case KeyConfigurationUID:
		return r.Configuration.ConfigurationUID, true
	case KeyDescription:
		return r.Configuration.Description, true
	case KeyNumConsumers:
		return r.Configuration.NumConsumers, true
	case KeyStressMaxProducers:
		return r.StressMaxProducers, true
	case KeyStressExpectedThroughputGbps:
		return r.StressExpectedThroughputGbps, true
	case KeyStressOutcome:
		return r.StressOutcome, true
	case KeySoakNumProducers:
		return r.SoakNumProducers, true
	case KeySoakMinThroughput:
		return r.SoakMinThroughput, true
	case KeySoakMaxThroughput:
		return r.SoakMaxThroughput, true
	case KeySoakAverageThroughput:
		return r.SoakAverageThroughput, true
	case KeySoakDurationSeconds:
		return r.SoakDurationSeconds, true
	}
	if f, ok := configurationKeys[key]; ok {
		return f(r.Configuration), true
	}
	return nil, false
}
