package sensor

import (
	"sync"

	"github.com/sweeney/ferment-controller/internal/temp"
)

// Fake is a scripted sensor for tests. Each Read returns the next sample;
// after the script is exhausted the last sample repeats. temp.Invalid in
// the script reads as a disconnected sensor.
type Fake struct {
	mu      sync.Mutex
	samples []temp.Temp
	index   int
	reads   int
}

// NewFake returns a fake that plays samples in order.
func NewFake(samples ...temp.Temp) *Fake {
	return &Fake{samples: samples}
}

// Set replaces the script with a single repeating value.
func (f *Fake) Set(v temp.Temp) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = []temp.Temp{v}
	f.index = 0
}

// Read returns the next scripted sample.
func (f *Fake) Read() temp.Temp {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if len(f.samples) == 0 {
		return temp.Invalid
	}
	v := f.samples[f.index]
	if f.index < len(f.samples)-1 {
		f.index++
	}
	return v
}

// IsConnected reports whether the upcoming sample is valid.
func (f *Fake) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.samples) > 0 && f.samples[f.index].Valid()
}

// Reads returns how many times Read was called.
func (f *Fake) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// FakeSwitch is a switch whose state is set directly.
type FakeSwitch struct {
	mu     sync.Mutex
	active bool
}

// Set changes the switch state.
func (s *FakeSwitch) Set(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

// Sense returns the current state.
func (s *FakeSwitch) Sense() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
