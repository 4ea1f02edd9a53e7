//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// RealBank requests lines from a GPIO chip using the Linux GPIO character
// device.
type RealBank struct {
	chip *gpiocdev.Chip

	mu    sync.Mutex
	lines []*gpiocdev.Line
}

// NewRealBank opens the named chip, for example "gpiochip0".
func NewRealBank(chip string) (*RealBank, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &RealBank{chip: c}, nil
}

// Output requests pin as an output, initially inactive.
func (b *RealBank) Output(pin int, invert bool) (Line, error) {
	line, err := b.chip.RequestLine(pin, gpiocdev.AsOutput(level(false, invert)))
	if err != nil {
		return nil, err
	}
	b.track(line)
	return line, nil
}

// Input requests pin as an input with pull-up.
func (b *RealBank) Input(pin int) (Line, error) {
	line, err := b.chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		return nil, err
	}
	b.track(line)
	return line, nil
}

func (b *RealBank) track(line *gpiocdev.Line) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
}

// Close releases GPIO resources.
// Reconfigures lines to input with pull-down (matching Pi boot defaults)
// before closing so relays drop out and the pins are in a clean state for
// shutdown or reboot.
func (b *RealBank) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for _, line := range b.lines {
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure line %d: %w", line.Offset(), err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %d: %w", line.Offset(), err))
		}
	}
	b.lines = nil
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		b.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
