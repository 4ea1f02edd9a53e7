// Package telemetry fans controller tick reports out to slow consumers
// (MQTT, the event stream, the flight recorder, settings persistence)
// without letting any of them hold up the control loop.
package telemetry

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/channels"

	"github.com/sweeney/ferment-controller/internal/control"
)

// DefaultSize is the number of reports buffered before the oldest is dropped.
const DefaultSize = 64

// Report is what one control tick produced.
type Report struct {
	Time     time.Time
	Result   control.Result
	Snapshot control.Snapshot
}

// Sink consumes reports. Consume is called from a single goroutine, in
// push order.
type Sink interface {
	Consume(Report) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Report) error

// Consume calls f(r).
func (f SinkFunc) Consume(r Report) error {
	return f(r)
}

type namedSink struct {
	name    string
	sink    Sink
	failing bool
}

// Pipeline buffers reports in a ring and delivers them to every sink.
// When consumers fall behind, the oldest reports are dropped.
type Pipeline struct {
	ring   *channels.RingChannel
	sinks  []*namedSink
	pushed atomic.Uint64
	done   atomic.Uint64
	start  sync.Once
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// New returns a pipeline buffering up to size reports.
func New(size int) *Pipeline {
	if size <= 0 {
		size = DefaultSize
	}
	return &Pipeline{ring: channels.NewRingChannel(channels.BufferCap(size))}
}

// Add registers a sink. Sinks must be added before Start.
func (p *Pipeline) Add(name string, s Sink) {
	p.sinks = append(p.sinks, &namedSink{name: name, sink: s})
}

// Start launches the delivery goroutine. Calling it again has no effect.
func (p *Pipeline) Start() {
	p.start.Do(func() {
		p.wg.Add(1)
		go p.run()
	})
}

// Push queues r. It never blocks. Reports pushed after Close are ignored.
func (p *Pipeline) Push(r Report) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	p.pushed.Add(1)
	p.ring.In() <- r
}

// Close stops accepting reports, delivers what is still buffered and
// waits for the sinks to finish.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.ring.Close()
	p.mu.Unlock()

	p.Start()
	p.wg.Wait()
}

// Delivered returns the number of reports handed to the sinks.
func (p *Pipeline) Delivered() uint64 {
	return p.done.Load()
}

// Dropped returns the number of reports overwritten before delivery.
// It is exact once Close has returned.
func (p *Pipeline) Dropped() uint64 {
	pushed, done := p.pushed.Load(), p.done.Load()
	buffered := uint64(p.ring.Len())
	if pushed < done+buffered {
		return 0
	}
	return pushed - done - buffered
}

func (p *Pipeline) run() {
	defer p.wg.Done()
	for v := range p.ring.Out() {
		r := v.(Report)
		for _, s := range p.sinks {
			p.deliver(s, r)
		}
		p.done.Add(1)
	}
}

func (p *Pipeline) deliver(s *namedSink, r Report) {
	err := s.sink.Consume(r)
	switch {
	case err != nil && !s.failing:
		log.Printf("telemetry: %s: %v", s.name, err)
		s.failing = true
	case err == nil && s.failing:
		log.Printf("telemetry: %s: recovered", s.name)
		s.failing = false
	}
}
