// Package gpio drives relay outputs and reads the door switch through the
// Linux GPIO character device. The fake implementation allows testing
// without hardware.
package gpio

import (
	"fmt"
	"log"
	"sync"
)

// Line is a single requested GPIO line.
type Line interface {
	Value() (int, error)
	SetValue(value int) error
	Close() error
}

// Bank hands out lines from one GPIO chip.
type Bank interface {
	// Output requests pin as an output driven inactive.
	Output(pin int, invert bool) (Line, error)
	// Input requests pin as an input with a pull-up.
	Input(pin int) (Line, error)
	// Close releases every line and the chip.
	Close() error
}

// Default pins (BCM numbering).
const (
	PinHeater = 17
	PinCooler = 27
)

// Relay is an actuator on an output line. Invert is for active-low relay
// boards.
type Relay struct {
	name   string
	line   Line
	invert bool

	mu      sync.Mutex
	active  bool
	failing bool
}

// NewRelay requests pin from bank and returns a relay that is off.
func NewRelay(bank Bank, name string, pin int, invert bool) (*Relay, error) {
	line, err := bank.Output(pin, invert)
	if err != nil {
		return nil, fmt.Errorf("request %s pin %d: %w", name, pin, err)
	}
	return &Relay{name: name, line: line, invert: invert}, nil
}

// SetActive drives the line. If the write fails the relay keeps its
// previous state, which IsActive reports.
func (r *Relay) SetActive(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.line.SetValue(level(active, r.invert)); err != nil {
		if !r.failing {
			log.Printf("gpio: %s: %v", r.name, err)
		}
		r.failing = true
		return
	}
	if r.failing {
		log.Printf("gpio: %s: recovered", r.name)
	}
	r.failing = false
	r.active = active
}

// IsActive reports the last state successfully written.
func (r *Relay) IsActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Door reads a door contact on an input line. With the pull-up, a closed
// contact pulls the line low, so a high line means the door is open.
type Door struct {
	line   Line
	invert bool

	mu      sync.Mutex
	open    bool
	failing bool
}

// NewDoor requests pin from bank as the door input.
func NewDoor(bank Bank, pin int, invert bool) (*Door, error) {
	line, err := bank.Input(pin)
	if err != nil {
		return nil, fmt.Errorf("request door pin %d: %w", pin, err)
	}
	return &Door{line: line, invert: invert}, nil
}

// Sense reports whether the door is open. A read error returns the last
// known state.
func (d *Door) Sense() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	raw, err := d.line.Value()
	if err != nil {
		if !d.failing {
			log.Printf("gpio: door: %v", err)
		}
		d.failing = true
		return d.open
	}
	d.failing = false
	d.open = (raw != 0) != d.invert
	return d.open
}

func level(active, invert bool) int {
	if active != invert {
		return 1
	}
	return 0
}
