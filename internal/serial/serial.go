// Package serial carries the host protocol over a serial port, one
// request and one response per line.
package serial

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate matches the host software's default.
const DefaultBaudRate = 57600

// maxLine bounds a single request.
const maxLine = 4096

// Handler answers one request line.
type Handler interface {
	Handle(line string) string
}

// Ports returns the serial ports present on the system.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// Open opens a serial port in 8N1 mode.
func Open(name string, baudRate int) (io.ReadWriteCloser, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}
	return port, nil
}

// Link reads requests from a port and writes the handler's responses.
type Link struct {
	port    io.ReadWriteCloser
	handler Handler

	mu       sync.Mutex
	requests int
}

// NewLink returns a link serving handler on port.
func NewLink(port io.ReadWriteCloser, handler Handler) *Link {
	return &Link{port: port, handler: handler}
}

// Requests returns the number of requests answered.
func (l *Link) Requests() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.requests
}

// Run serves requests until the port reaches EOF, fails, or ctx is done.
// The port is closed when Run returns.
func (l *Link) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		l.port.Close()
	}()

	scanner := bufio.NewScanner(l.port)
	scanner.Buffer(make([]byte, 256), maxLine)
	for scanner.Scan() {
		resp := l.handler.Handle(clean(scanner.Text()))
		if resp == "" {
			continue
		}
		if _, err := io.WriteString(l.port, resp+"\n"); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("serial: write: %w", err)
		}
		l.mu.Lock()
		l.requests++
		l.mu.Unlock()
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("serial: read: %w", err)
	}
	return io.EOF
}

// Opener opens the port for Serve.
type Opener func() (io.ReadWriteCloser, error)

// Serve keeps a link running, reopening the port after failures with
// exponential backoff capped at maxWait. It returns when ctx is done.
func Serve(ctx context.Context, open Opener, handler Handler, maxWait time.Duration) {
	initial := time.Second
	if initial > maxWait {
		initial = maxWait
	}
	wait := initial
	for {
		port, err := open()
		if err == nil {
			log.Printf("serial: link up")
			wait = initial
			err = NewLink(port, handler).Run(ctx)
		}
		if ctx.Err() != nil {
			return
		}
		if !errors.Is(err, io.EOF) {
			log.Printf("serial: %v, retrying in %s", err, wait)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		wait *= 2
		if wait > maxWait {
			wait = maxWait
		}
	}
}

// clean strips the control characters a terminal may add.
func clean(line string) string {
	return strings.TrimFunc(line, func(r rune) bool { return r < 0x20 || r == 0x7f })
}
