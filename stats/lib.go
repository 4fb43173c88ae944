package stats

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Collector incrementally collects count, average, variance, and standard deviation
// of durations using Welford's algorithm.
// Reference: https://en.wikipedia.org/wiki/Algorithms_for_calculating_variance#Welford's_online_algorithm
type Collector struct {
	mu        sync.Mutex
	count     float64
	min       float64
	max       float64
	avg       float64
	meanDist2 float64
}

// New returns a new statistics collector.
func New() *Collector {
	return &Collector{
		min: math.Inf(1),
		max: math.Inf(-1),
	}
}

// Add accumulates `x` seconds into the collected statistics.
func (p *Collector) Add(x float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.count += 1.0
	if x < p.min {
		p.min = x
	}
	if x > p.max {
		p.max = x
	}
	delta := x - p.avg
	p.avg += delta / p.count
	delta2 := x - p.avg
	p.meanDist2 += delta * delta2
}

// Observe accumulates a duration.
func (p *Collector) Observe(d time.Duration) {
	p.Add(d.Seconds())
}

// Stats are durations in seconds. Avg and Var are NaN with no samples.
type Stats struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Avg    float64 `json:"avg"`
	Var    float64 `json:"var"`
	StdDev float64 `json:"stddev"`
}

// Stats processes the collected statistics and returns it.
func (p *Collector) Stats() *Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	avg := p.avg
	if p.count == 0 {
		avg /= p.count // we want NaN
	}

	v := p.meanDist2 / p.count
	return &Stats{
		Count:  int(p.count),
		Min:    p.min,
		Max:    p.max,
		Avg:    avg,
		Var:    v,
		StdDev: math.Sqrt(v),
	}
}

type Timer struct {
	c     *Collector
	start time.Time
}

// Start starts a duration measurement.
func (p *Collector) Start() Timer {
	return Timer{p, time.Now()}
}

// End finishes a duration measurement and returns it.
func (p *Timer) End() time.Duration {
	dt := time.Since(p.start)
	p.c.Observe(dt)
	return dt
}

// Set is a group of named collectors, created on first use.
type Set struct {
	mu sync.Mutex
	cs map[string]*Collector
}

func NewSet() *Set {
	return &Set{cs: make(map[string]*Collector)}
}

// Get returns the collector called name.
func (s *Set) Get(name string) *Collector {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.cs[name]
	if c == nil {
		c = New()
		s.cs[name] = c
	}
	return c
}

// Names returns the sorted collector names.
func (s *Set) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.cs))
	for name := range s.cs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns the stats of every non-empty collector.
// Empty collectors are left out so the result encodes as JSON.
func (s *Set) Snapshot() map[string]*Stats {
	snap := make(map[string]*Stats)
	for _, name := range s.Names() {
		st := s.Get(name).Stats()
		if st.Count == 0 {
			continue
		}
		snap[name] = st
	}
	return snap
}
