package metrics

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sink persists records.
type Sink interface {
	Write(r Record) error
	Close() error
}

// CSVSink writes one row per record, repeating the header whenever the
// selected columns change.
type CSVSink struct {
	mu     sync.Mutex
	w      *csv.Writer
	closer io.Closer
	header []string
}

func NewCSVSink(w io.Writer) *CSVSink {
	s := &CSVSink{w: csv.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// CreateCSVSink creates <dir>/<runUID>/<runUID>_metrics.csv.
func CreateCSVSink(dir, runUID string) (*CSVSink, error) {
	runDir := filepath.Join(dir, runUID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating %s", runDir)
	}
	path := filepath.Join(runDir, runUID+"_metrics.csv")
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s", path)
	}
	return NewCSVSink(f), nil
}

func (s *CSVSink) Write(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := r.Flat()
	header := make([]string, len(fields))
	row := make([]string, len(fields))
	for i, f := range fields {
		header[i] = f.Key
		row[i] = format(f.Value)
	}
	if !equal(header, s.header) {
		if err := s.w.Write(header); err != nil {
			return errors.Wrap(err, "writing csv header")
		}
		s.header = header
	}
	if err := s.w.Write(row); err != nil {
		return errors.Wrap(err, "writing csv row")
	}
	s.w.Flush()
	return errors.Wrap(s.w.Error(), "flushing csv")
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.w.Flush()
	err := s.w.Error()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// JSONSink writes one JSON object per line.
type JSONSink struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
}

func NewJSONSink(w io.Writer) *JSONSink {
	s := &JSONSink{enc: json.NewEncoder(w)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

func (s *JSONSink) Write(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Wrap(s.enc.Encode(r.Map()), "encoding record")
}

func (s *JSONSink) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// PrometheusSink exports the numeric fields of every record as a gauge.
type PrometheusSink struct {
	Results *prometheus.GaugeVec
}

func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	return &PrometheusSink{
		Results: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "loadcontroller",
			Name:      "configuration_result",
			Help:      "Recorded outcome of a configuration, one series per numeric feature.",
		}, []string{"configuration_uid", "feature"}),
	}
}

func (s *PrometheusSink) Write(r Record) error {
	uid := r.Configuration.ConfigurationUID
	for _, f := range r.Flat() {
		v, ok := numeric(f.Value)
		if !ok {
			continue
		}
		s.Results.WithLabelValues(uid, f.Key).Set(v)
	}
	return nil
}

func (s *PrometheusSink) Close() error { return nil }

// MultiSink writes every record to all sinks, reporting every failure.
type MultiSink []Sink

func (m MultiSink) Write(r Record) error {
	var result *multierror.Error
	for _, s := range m {
		if err := s.Write(r); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (m MultiSink) Close() error {
	var result *multierror.Error
	for _, s := range m {
		if err := s.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func format(v interface{}) string {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func numeric(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case float64:
		return t, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
