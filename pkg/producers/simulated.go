package producers

import (
	"context"
	"sync"
)

// Simulated is an in-memory producer fleet. A scale command becomes visible
// through ProducerCount after Lag reads, mimicking a Deployment rolling out.
type Simulated struct {
	mu      sync.Mutex
	current int
	target  int
	lag     int
	pending int
	calls   []int
	reads   int
}

func NewSimulated(initial, lag int) *Simulated {
	return &Simulated{current: initial, target: initial, lag: lag}
}

func (s *Simulated) ScaleProducers(_ context.Context, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, count)
	s.target = count
	s.pending = s.lag
	if s.pending == 0 {
		s.current = count
	}
	return nil
}

func (s *Simulated) ProducerCount(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reads++
	if s.current != s.target {
		if s.pending == 0 {
			s.current = s.target
		} else {
			s.pending--
		}
	}
	return s.current, nil
}

// Calls returns every count passed to ScaleProducers, in order.
func (s *Simulated) Calls() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]int, len(s.calls))
	copy(out, s.calls)
	return out
}

// Reads returns how many times ProducerCount was called.
func (s *Simulated) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Current returns the running count without counting as a read.
func (s *Simulated) Current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Observer counts producers through Current, so a simulated consumer fleet can
// see the running count without advancing the rollout.
func (s *Simulated) Observer() Counter {
	return simulatedObserver{s}
}

type simulatedObserver struct {
	s *Simulated
}

func (o simulatedObserver) ProducerCount(context.Context) (int, error) {
	return o.s.Current(), nil
}

// Target returns the last requested count.
func (s *Simulated) Target() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}
