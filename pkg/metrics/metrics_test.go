package metrics

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GoLoadController/pkg/config"
)

func testRecord() Record {
	return Record{
		Configuration: config.Configuration{
			ConfigurationUID:          "C30E5C",
			Description:               "3 brokers",
			NumConsumers:              2,
			NumBrokers:                3,
			NumPartitions:             9,
			MessageSizeKB:             750,
			ProducerIncrementInterval: time.Minute,
		},
		StressMaxProducers:           4,
		StressExpectedThroughputGbps: 2.4,
		StressOutcome:                "degraded",
		SoakNumProducers:             3,
		SoakMinThroughput:            140,
		SoakMaxThroughput:            160.5,
		SoakAverageThroughput:        150,
		SoakDurationSeconds:          313,
	}
}

func TestParseFeatures(t *testing.T) {
	f, err := ParseFeatures(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultFeatures, f)

	f, err = ParseFeatures([]string{"num_consumers", "num_partitions", "num_consumers"})
	require.NoError(t, err)
	assert.Equal(t, Features{"configuration_uid", "num_consumers", "num_partitions"}, f)

	_, err = ParseFeatures([]string{"batch_size_kb"})
	assert.EqualError(t, err, `unknown metrics feature "batch_size_kb"`)
}

func TestRecord_Flat(t *testing.T) {
	r := testRecord()
	fields := r.Flat()
	require.Len(t, fields, len(DefaultFeatures))
	assert.Equal(t, Field{Key: "configuration_uid", Value: "C30E5C"}, fields[0])
	assert.Equal(t, Field{Key: "stress_max_producers", Value: 4}, fields[3])

	r.Features = Features{"configuration_uid", "message_size_kb", "producer_increment_interval_seconds"}
	assert.Equal(t, map[string]interface{}{
		"configuration_uid":                   "C30E5C",
		"message_size_kb":                     750,
		"producer_increment_interval_seconds": 60.0,
	}, r.Map())
}

func TestCSVSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewCSVSink(&buf)

	r := testRecord()
	r.Features = Features{"configuration_uid", "stress_max_producers", "stress_expected_throughput_gbps"}
	require.NoError(t, sink.Write(r))
	r.Configuration.ConfigurationUID = "A1B2C3"
	require.NoError(t, sink.Write(r))
	r.Features = Features{"configuration_uid", "num_partitions"}
	require.NoError(t, sink.Write(r))
	require.NoError(t, sink.Close())

	assert.Equal(t, strings.Join([]string{
		"configuration_uid,stress_max_producers,stress_expected_throughput_gbps",
		"C30E5C,4,2.4",
		"A1B2C3,4,2.4",
		"configuration_uid,num_partitions",
		"A1B2C3,9",
		"",
	}, "\n"), buf.String())
}

func TestCreateCSVSink(t *testing.T) {
	dir := t.TempDir()
	sink, err := CreateCSVSink(dir, "run_ABCDEF")
	require.NoError(t, err)
	require.NoError(t, sink.Write(testRecord()))
	require.NoError(t, sink.Close())

	body, err := os.ReadFile(filepath.Join(dir, "run_ABCDEF", "run_ABCDEF_metrics.csv"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "configuration_uid,description,num_consumers,"))
}

func TestJSONSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONSink(&buf)
	require.NoError(t, sink.Write(testRecord()))
	require.NoError(t, sink.Close())

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "C30E5C", got["configuration_uid"])
	assert.Equal(t, 4.0, got["stress_max_producers"])
	assert.Equal(t, "degraded", got["stress_outcome"])
	assert.Len(t, got, len(DefaultFeatures))
}

func TestPrometheusSink(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	sink := NewPrometheusSink(reg)
	require.NoError(t, sink.Write(testRecord()))

	assert.Equal(t, 4.0, testutil.ToFloat64(sink.Results.WithLabelValues("C30E5C", "stress_max_producers")))
	assert.Equal(t, 150.0, testutil.ToFloat64(sink.Results.WithLabelValues("C30E5C", "soak_average_throughput")))
	// configuration_uid, description and stress_outcome are not numeric.
	assert.Equal(t, len(DefaultFeatures)-3, testutil.CollectAndCount(sink.Results))
}

type failingSink struct {
	err    error
	writes int
}

func (f *failingSink) Write(Record) error {
	f.writes++
	return f.err
}

func (f *failingSink) Close() error { return f.err }

func TestMultiSink(t *testing.T) {
	a := &failingSink{err: errors.New("disk full")}
	b := &failingSink{}
	c := &failingSink{err: errors.New("permission denied")}

	err := MultiSink{a, b, c}.Write(testRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Contains(t, err.Error(), "permission denied")
	assert.Equal(t, []int{1, 1, 1}, []int{a.writes, b.writes, c.writes})

	assert.NoError(t, MultiSink{b}.Write(testRecord()))
	assert.NoError(t, MultiSink{b}.Close())
}
