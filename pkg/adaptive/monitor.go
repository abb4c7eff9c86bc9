package adaptive

import (
	"fmt"

	"GoLoadController/pkg/throughput"
)

// Kind classifies the outcome of observing one sample.
type Kind int

const (
	// Discarded samples belong to another epoch, or arrived while readings settle after a scale.
	Discarded Kind = iota
	// BelowWindow means the consumer's window is not yet full; no verdict.
	BelowWindow
	// Ok means the window average is at or above tolerance.
	Ok
	// Breach means the window average is below tolerance.
	Breach
)

func (k Kind) String() string {
	switch k {
	case Discarded:
		return "discarded"
	case BelowWindow:
		return "below_window"
	case Ok:
		return "ok"
	case Breach:
		return "breach"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Verdict is the monitor's answer for one sample.
type Verdict struct {
	Kind          Kind
	ConsumerID    string
	Average       float64
	Tolerance     float64
	ProducerCount int
	// Breaches is the consumer's consecutive breach count after this observation.
	Breaches int
	// Reason explains a Discarded verdict.
	Reason string

	// EpochChanged is set when this observation noticed a new actual producer
	// count. Every window and breach counter was reset before the sample was judged.
	EpochChanged   bool
	PreviousActual int
}

// Options parameterise a Monitor for one controller run.
type Options struct {
	// WindowSize is the number of samples averaged per consumer.
	WindowSize int
	// ExpectedThroughput is the throughput one producer should sustain (MB/s).
	ExpectedThroughput float64
	// Tolerance is the fraction of expected throughput that still counts as healthy.
	Tolerance float64
	// IgnoreThreshold turns every full window into an Ok verdict.
	IgnoreThreshold bool
	// SettleSamples is the number of samples per consumer dropped after each
	// producer count change, before anything is appended to a window.
	SettleSamples int
}

// Monitor is a windowed threshold detector with hysteresis. It keeps one
// window and one consecutive-breach counter per consumer, and only ever
// averages samples taken at the producer count the controller currently wants.
//
// A Monitor is owned by a single controller and is not safe for concurrent use.
type Monitor struct {
	opts Options

	windows  map[string]*throughput.Window
	breaches map[string]int
	settled  map[string]int
	// judged holds consumers with a full-window verdict in the current epoch.
	judged map[string]bool

	lastActual int
	seenActual bool
}

// NewMonitor creates a monitor with empty state.
func NewMonitor(opts Options) *Monitor {
	if opts.WindowSize < 1 {
		opts.WindowSize = 1
	}
	return &Monitor{
		opts:     opts,
		windows:  map[string]*throughput.Window{},
		breaches: map[string]int{},
		settled:  map[string]int{},
		judged:   map[string]bool{},
	}
}

// Tolerance is the minimum acceptable window average at the given producer count.
func (m *Monitor) Tolerance(producerCount int) float64 {
	return m.opts.ExpectedThroughput * float64(producerCount) * m.opts.Tolerance
}

// Observe folds one sample into the monitor. desired is the producer count the
// controller is targeting; actual is the count freshly read from the scaler.
func (m *Monitor) Observe(sample throughput.Sample, desired, actual int) Verdict {
	v := Verdict{
		ConsumerID:    sample.ConsumerID,
		ProducerCount: sample.ProducerCount,
	}

	// 1. A new actual count starts a new epoch for everybody.
	if !m.seenActual || actual != m.lastActual {
		v.EpochChanged = m.seenActual
		v.PreviousActual = m.lastActual
		m.resetEpoch(actual)
	}

	// 2. Samples from any other epoch never touch a window.
	if sample.ProducerCount != desired {
		v.Kind = Discarded
		v.Reason = fmt.Sprintf("sample producer count %d does not match desired %d", sample.ProducerCount, desired)
		v.Breaches = m.breaches[sample.ConsumerID]
		return v
	}

	// 3. Let consumer readings settle after a scale.
	if m.settled[sample.ConsumerID] < m.opts.SettleSamples {
		m.settled[sample.ConsumerID]++
		v.Kind = Discarded
		v.Reason = fmt.Sprintf("settling (%d/%d)", m.settled[sample.ConsumerID], m.opts.SettleSamples)
		v.Breaches = m.breaches[sample.ConsumerID]
		return v
	}

	// 4. Append to the consumer's window for this epoch.
	w, ok := m.windows[sample.ConsumerID]
	if !ok {
		w = throughput.NewWindow(desired, m.opts.WindowSize)
		m.windows[sample.ConsumerID] = w
	} else if w.Epoch() != desired {
		w.Reset(desired)
	}
	w.Add(sample.Throughput)

	if !w.Full() {
		v.Kind = BelowWindow
		v.Average = w.Mean()
		v.Breaches = m.breaches[sample.ConsumerID]
		return v
	}

	// 5. Judge the window.
	v.Average = w.Mean()
	v.Tolerance = m.Tolerance(sample.ProducerCount)
	m.judged[sample.ConsumerID] = true
	if !m.opts.IgnoreThreshold && v.Average < v.Tolerance {
		m.breaches[sample.ConsumerID]++
		v.Kind = Breach
	} else {
		m.breaches[sample.ConsumerID] = 0
		v.Kind = Ok
	}
	v.Breaches = m.breaches[sample.ConsumerID]
	return v
}

// Breaches returns the consumer's consecutive breach count.
func (m *Monitor) Breaches(consumerID string) int {
	return m.breaches[consumerID]
}

// AllClear reports whether at least numConsumers consumers have been judged on
// a full window in the current epoch and none has an outstanding breach.
func (m *Monitor) AllClear(numConsumers int) bool {
	if len(m.judged) < numConsumers {
		return false
	}
	for _, n := range m.breaches {
		if n > 0 {
			return false
		}
	}
	return true
}

// ResetConsumer zeroes the consumer's breach counter and empties its window.
func (m *Monitor) ResetConsumer(consumerID string) {
	m.breaches[consumerID] = 0
	delete(m.judged, consumerID)
	if w, ok := m.windows[consumerID]; ok {
		w.Reset(w.Epoch())
	}
}

// Window returns a copy of the consumer's current window values.
func (m *Monitor) Window(consumerID string) []float64 {
	w, ok := m.windows[consumerID]
	if !ok {
		return nil
	}
	return w.Values()
}

func (m *Monitor) resetEpoch(actual int) {
	m.lastActual = actual
	m.seenActual = true
	for id := range m.breaches {
		m.breaches[id] = 0
	}
	m.windows = map[string]*throughput.Window{}
	m.settled = map[string]int{}
	m.judged = map[string]bool{}
}
