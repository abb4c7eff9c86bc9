package throughput

// Stats accumulates min, max and a running average over a stream of values.
// The zero value is ready to use and reports zeros until the first Add.
type Stats struct {
	count int
	min   float64
	max   float64
	mean  float64
}

func (s *Stats) Add(v float64) {
	s.count++
	if s.count == 1 {
		s.min, s.max, s.mean = v, v, v
		return
	}
	if v < s.min {
		s.min = v
	}
	if v > s.max {
		s.max = v
	}
	s.mean += (v - s.mean) / float64(s.count)
}

func (s *Stats) Reset() { *s = Stats{} }

func (s *Stats) Count() int       { return s.count }
func (s *Stats) Min() float64     { return s.min }
func (s *Stats) Max() float64     { return s.max }
func (s *Stats) Average() float64 { return s.mean }
