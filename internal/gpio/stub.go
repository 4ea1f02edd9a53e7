//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealBank is not available on non-Linux platforms.
type RealBank struct{}

// NewRealBank returns an error on non-Linux platforms.
func NewRealBank(chip string) (*RealBank, error) {
	return nil, errUnsupported
}

// Output is not implemented on non-Linux platforms.
func (b *RealBank) Output(pin int, invert bool) (Line, error) {
	return nil, errUnsupported
}

// Input is not implemented on non-Linux platforms.
func (b *RealBank) Input(pin int) (Line, error) {
	return nil, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (b *RealBank) Close() error {
	return nil
}
