package platform

import (
	"fmt"
	"sync"
	"time"
)

// Durations tracks named phase timings for one run. Every name is
// recorded at most once; a second write is a programming error and
// panics.
type Durations struct {
	mu        sync.Mutex
	durations map[string]time.Duration
	now       func() time.Time
}

// NewDurations returns an empty tracker.
func NewDurations() *Durations {
	return &Durations{
		durations: map[string]time.Duration{},
		now:       time.Now,
	}
}

// Set records a duration under name.
func (d *Durations) Set(name string, duration time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.durations[name]; ok {
		panic(fmt.Sprintf("platform: duration %q recorded twice", name))
	}
	d.durations[name] = duration
}

// Get returns the recorded duration for name.
func (d *Durations) Get(name string) (time.Duration, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	duration, ok := d.durations[name]
	return duration, ok
}

// Len returns the number of recorded durations.
func (d *Durations) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.durations)
}

// Measure starts timing name and returns the stop function that
// records the elapsed time. The duplicate check happens up front so a
// repeated measurement fails at its start.
func (d *Durations) Measure(name string) (stop func()) {
	d.mu.Lock()
	if _, ok := d.durations[name]; ok {
		d.mu.Unlock()
		panic(fmt.Sprintf("platform: duration %q measured twice", name))
	}
	d.mu.Unlock()
	start := d.now()
	return func() {
		d.Set(name, d.now().Sub(start))
	}
}

// ToJSON returns the serializable form, seconds keyed by name.
func (d *Durations) ToJSON() map[string]float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]float64, len(d.durations))
	for name, duration := range d.durations {
		out[name] = duration.Seconds()
	}
	return out
}
