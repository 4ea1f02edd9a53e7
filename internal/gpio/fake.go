package gpio

import (
	"errors"
	"fmt"
	"sync"
)

// FakeLine is a test double for a GPIO line. Inputs return scripted
// values; outputs record every write.
type FakeLine struct {
	mu sync.Mutex

	// Samples contains scripted values to return from Value.
	// Each call consumes the next sample; the last one repeats.
	Samples []int
	index   int

	// Writes records every value passed to SetValue.
	Writes []int
	value  int

	// ReadError and WriteError, if set, are returned by Value and SetValue.
	ReadError  error
	WriteError error

	// Closed tracks if Close was called.
	Closed bool
}

// Value returns the next scripted sample, or the last written value for
// an output with no script.
func (f *FakeLine) Value() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if len(f.Samples) == 0 {
		return f.value, nil
	}
	v := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return v, nil
}

// SetValue records the write.
func (f *FakeLine) SetValue(value int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	f.value = value
	f.Writes = append(f.Writes, value)
	return nil
}

// Close marks the line as closed.
func (f *FakeLine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Level returns the last written value.
func (f *FakeLine) Level() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// FakeBank hands out FakeLines keyed by pin.
type FakeBank struct {
	mu     sync.Mutex
	Lines  map[int]*FakeLine
	Closed bool
}

// NewFakeBank returns an empty bank.
func NewFakeBank() *FakeBank {
	return &FakeBank{Lines: make(map[int]*FakeLine)}
}

// Output returns a new line driven inactive.
func (b *FakeBank) Output(pin int, invert bool) (Line, error) {
	line, err := b.request(pin)
	if err != nil {
		return nil, err
	}
	line.value = level(false, invert)
	return line, nil
}

// Input returns a new line. Script it through Lines[pin].Samples.
func (b *FakeBank) Input(pin int) (Line, error) {
	return b.request(pin)
}

func (b *FakeBank) request(pin int) (*FakeLine, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Closed {
		return nil, errors.New("bank closed")
	}
	if _, ok := b.Lines[pin]; ok {
		return nil, fmt.Errorf("pin %d busy", pin)
	}
	line := &FakeLine{}
	b.Lines[pin] = line
	return line, nil
}

// Close closes every line.
func (b *FakeBank) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, line := range b.Lines {
		line.Close()
	}
	b.Closed = true
	return nil
}
