package sensor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sweeney/ferment-controller/internal/temp"
)

// DefaultW1Dir is where the kernel w1 driver exposes devices.
const DefaultW1Dir = "/sys/bus/w1/devices"

// w1StalePolls is how many poll intervals a reading stays good for when
// no newer poll has completed.
const w1StalePolls = 3

// powerOnReset is the value a DS18B20 reports before its first conversion.
const powerOnReset = 85000

var errW1Format = errors.New("w1: unrecognised reading")

// W1 is a DS18B20 on the kernel one-wire bus. A background poller does
// the slow conversion; Read returns the cached value. A failed poll, or a
// reading older than maxAge, reads as temp.Invalid.
type W1 struct {
	id          string
	dir         string
	calibration temp.Diff
	now         func() time.Time

	mu        sync.Mutex
	value     temp.Temp
	connected bool
	polledAt  time.Time
	maxAge    time.Duration // zero disables the age check
}

// NewW1 returns a sensor for device id (for example "28-0316a2792aff")
// under dir. Readings are offset by calibration.
func NewW1(dir, id string, calibration temp.Diff) *W1 {
	if dir == "" {
		dir = DefaultW1Dir
	}
	return &W1{id: id, dir: dir, calibration: calibration, now: time.Now, value: temp.Invalid}
}

// ListW1Devices returns the DS18B20 family devices under dir.
func ListW1Devices(dir string) ([]string, error) {
	if dir == "" {
		dir = DefaultW1Dir
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "28-") {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// ID returns the device id.
func (w *W1) ID() string { return w.id }

// Read returns the last reading, or temp.Invalid when the last poll failed
// or is too old.
func (w *W1) Read() temp.Temp {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.fresh() {
		return temp.Invalid
	}
	return w.value
}

// IsConnected reports whether the last poll succeeded recently enough.
func (w *W1) IsConnected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fresh()
}

func (w *W1) fresh() bool {
	if !w.connected {
		return false
	}
	return w.maxAge <= 0 || w.now().Sub(w.polledAt) <= w.maxAge
}

// Poll performs one blocking conversion and updates the cached value.
func (w *W1) Poll() error {
	milli, err := w.readMilli()

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.connected = false
		w.value = temp.Invalid
		return err
	}
	w.connected = true
	w.polledAt = w.now()
	w.value = temp.FromCelsius(float64(milli) / 1000).Add(w.calibration)
	return nil
}

// Run polls every interval until ctx is cancelled. Readings go stale after
// a few missed intervals.
func (w *W1) Run(ctx context.Context, interval time.Duration) {
	w.mu.Lock()
	w.maxAge = w1StalePolls * interval
	w.mu.Unlock()

	t := time.NewTicker(interval)
	defer t.Stop()
	logged := false
	for {
		if err := w.Poll(); err != nil {
			if !logged {
				log.Printf("w1: %s: %v", w.id, err)
				logged = true
			}
		} else if logged {
			log.Printf("w1: %s: recovered", w.id)
			logged = false
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// readMilli reads millidegrees from the "temperature" attribute, falling
// back to parsing w1_slave on older kernels.
func (w *W1) readMilli() (int64, error) {
	base := filepath.Join(w.dir, w.id)
	if b, err := os.ReadFile(filepath.Join(base, "temperature")); err == nil {
		return checkMilli(strings.TrimSpace(string(b)))
	}
	b, err := os.ReadFile(filepath.Join(base, "w1_slave"))
	if err != nil {
		return 0, err
	}
	return parseSlave(string(b))
}

// parseSlave parses the two-line w1_slave format:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func parseSlave(s string) (int64, error) {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) < 2 {
		return 0, errW1Format
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, fmt.Errorf("w1: crc check failed")
	}
	i := strings.LastIndex(lines[1], "t=")
	if i < 0 {
		return 0, errW1Format
	}
	return checkMilli(strings.TrimSpace(lines[1][i+2:]))
}

func checkMilli(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errW1Format, s)
	}
	if v == powerOnReset {
		return 0, fmt.Errorf("w1: power-on reset value")
	}
	return v, nil
}
