package throughput

// Window is the bounded trailing history of one consumer's throughput
// readings during one epoch (a span with a constant producer count).
type Window struct {
	epoch  int
	size   int
	values []float64
}

// NewWindow creates an empty window for the given epoch. Size is clamped to 1.
func NewWindow(epoch, size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{
		epoch:  epoch,
		size:   size,
		values: make([]float64, 0, size),
	}
}

// Epoch returns the producer count this window was opened for.
func (w *Window) Epoch() int { return w.epoch }

// Add appends a value and drops the oldest values beyond capacity.
func (w *Window) Add(v float64) {
	if len(w.values) == w.size {
		copy(w.values, w.values[1:])
		w.values = w.values[:w.size-1]
	}
	w.values = append(w.values, v)
}

// Full reports whether the window holds size values.
func (w *Window) Full() bool { return len(w.values) >= w.size }

// Len returns the number of values held.
func (w *Window) Len() int { return len(w.values) }

// Mean is the arithmetic mean of the held values, 0 when empty.
func (w *Window) Mean() float64 {
	if len(w.values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range w.values {
		sum += v
	}
	return sum / float64(len(w.values))
}

// Values returns a copy of the held values in arrival order.
func (w *Window) Values() []float64 {
	out := make([]float64, len(w.values))
	copy(out, w.values)
	return out
}

// Reset empties the window and rebinds it to a new epoch.
func (w *Window) Reset(epoch int) {
	w.epoch = epoch
	w.values = w.values[:0]
}
