// Package protocol implements the line-oriented host command set.
//
// Each request is one line: a command letter optionally followed by a JSON
// object. Each response is one line of the form "X:{json}" where X names
// the kind of payload.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sweeney/ferment-controller/internal/control"
)

// Controller is the part of the controller the protocol needs.
type Controller interface {
	Snapshot() control.Snapshot
	Submit(control.Command) error
	Preview(control.Command) (control.Settings, control.Constants, error)
	Devices() []control.Device
}

// Version is reported by the n command.
type Version struct {
	Release  string `json:"v"`
	Revision string `json:"n"`
	Board    string `json:"b"`
	Simulate bool   `json:"y"`
}

// ErrInvalidCommand is returned for an unknown command letter.
var ErrInvalidCommand = errors.New("protocol: invalid command")

// Processor answers host requests.
type Processor struct {
	ctrl    Controller
	version Version
}

// NewProcessor returns a processor for ctrl.
func NewProcessor(ctrl Controller, version Version) *Processor {
	return &Processor{ctrl: ctrl, version: version}
}

// Handle processes one request line and returns the response line without
// a trailing newline. Blank lines produce an empty response.
func (p *Processor) Handle(line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return ""
	}
	cmd, arg := line[0], strings.TrimSpace(line[1:])

	switch cmd {
	case 't':
		return respond('T', temperaturesDoc(p.ctrl.Snapshot()))
	case 'T':
		return respond('R', rawDoc(p.ctrl.Snapshot()))
	case 's':
		return respond('S', settingsDocFrom(p.ctrl.Snapshot().Settings))
	case 'c':
		return respond('C', constantsDocFrom(p.ctrl.Snapshot().Constants))
	case 'v':
		return respond('V', variablesDoc(p.ctrl.Snapshot()))
	case 'n':
		return respond('N', p.version)
	case 'd':
		devices := p.ctrl.Devices()
		if devices == nil {
			devices = []control.Device{}
		}
		return respond('D', devices)
	case 'j':
		return p.update(arg)
	case 'O':
		return p.submit('S', control.Off{})
	case 'r':
		return p.submit('S', control.Resume{})
	case 'C':
		return p.submit('C', control.LoadDefaultConstants{})
	case 'S':
		return p.submit('S', control.LoadDefaultSettings{})
	}
	return respondError(fmt.Errorf("%w %q", ErrInvalidCommand, cmd))
}

// submit queues cmd and answers with the settings (S) or constants (C) it
// will produce.
func (p *Processor) submit(kind byte, cmd control.Command) string {
	s, k, err := p.ctrl.Preview(cmd)
	if err != nil {
		return respondError(err)
	}
	if err := p.ctrl.Submit(cmd); err != nil {
		return respondError(err)
	}
	if kind == 'C' {
		return respond('C', constantsDocFrom(k))
	}
	return respond('S', settingsDocFrom(s))
}

// update applies a j request. Only the keys sent are changed, on top of
// whatever is already queued.
func (p *Processor) update(arg string) string {
	if arg == "" {
		return respondError(fmt.Errorf("%w: j needs a JSON object", ErrInvalidCommand))
	}
	var pairs map[string]json.RawMessage
	if err := json.Unmarshal([]byte(arg), &pairs); err != nil {
		return respondError(fmt.Errorf("%w: %v", ErrMalformed, err))
	}

	cmd := control.Patch(func(s *control.Settings, k *control.Constants) error {
		return applyPairs(s, k, pairs)
	})
	return p.submit('S', cmd)
}

func respond(kind byte, v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return respondError(err)
	}
	return string(kind) + ":" + string(data)
}

func respondError(err error) string {
	data, _ := json.Marshal(errorDoc{Error: err.Error()})
	return "E:" + string(data)
}
