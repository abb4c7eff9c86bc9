package throughput

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Sample is one throughput reading reported by a consumer, tagged with the
// producer count the consumer believed was running when it measured.
type Sample struct {
	ConsumerID    string  `json:"consumer_id"`
	Throughput    float64 `json:"throughput"`
	ProducerCount int     `json:"producer_count"`
}

// ErrMalformedSample is returned when a queue body cannot be used as a Sample.
var ErrMalformedSample = errors.New("malformed throughput sample")

// Decode parses a queue message body.
func Decode(body []byte) (Sample, error) {
	var s Sample
	if err := json.Unmarshal(body, &s); err != nil {
		return Sample{}, errors.Wrapf(ErrMalformedSample, "%v", err)
	}
	if s.ConsumerID == "" {
		return Sample{}, errors.Wrap(ErrMalformedSample, "missing consumer_id")
	}
	if s.ProducerCount < 0 {
		return Sample{}, errors.Wrapf(ErrMalformedSample, "negative producer_count %d", s.ProducerCount)
	}
	return s, nil
}

// Encode renders the sample the way consumers publish it.
func (s Sample) Encode() ([]byte, error) {
	return json.Marshal(s)
}
