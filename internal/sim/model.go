// Package sim is a lumped thermal model of a fermentation chamber: a
// volume of beer inside an insulated fridge, heated and cooled through the
// air around it. It stands in for the probes and relays when no hardware
// is attached, and runs are bit-for-bit reproducible for a given seed.
package sim

import (
	"sync"
	"time"

	"github.com/chewxy/math32"

	"github.com/sweeney/ferment-controller/internal/temp"
)

// Params describe the chamber. Capacities are in J/K, transfer
// coefficients in W/K, powers in W and temperatures in °C.
type Params struct {
	Seed uint64

	Ambient      float32
	AmbientSwing float32 // peak deviation of a daily sinusoidal swing
	BeerStart    float32
	FridgeStart  float32

	BeerCapacity float32
	AirCapacity  float32
	BeerTransfer float32 // beer to fridge air
	WallTransfer float32 // fridge air to room

	HeaterPower float32
	CoolerPower float32

	SensorNoise float32 // uniform, ± this many degrees
}

// DefaultParams is a 20 litre batch in a small chest fridge.
func DefaultParams() Params {
	return Params{
		Seed:         1,
		Ambient:      20,
		BeerStart:    20,
		FridgeStart:  20,
		BeerCapacity: 83600,
		AirCapacity:  5000,
		BeerTransfer: 8,
		WallTransfer: 3,
		HeaterPower:  100,
		CoolerPower:  120,
		SensorNoise:  0.02,
	}
}

// Probe selects one of the simulated temperatures.
type Probe int

const (
	ProbeBeer Probe = iota
	ProbeFridge
	ProbeRoom
	numProbes
)

const (
	step = time.Second
	day  = 24 * time.Hour
)

// Model integrates the chamber temperatures. It is safe for concurrent use.
type Model struct {
	mu sync.Mutex
	p  Params

	elapsed time.Duration
	beer    float32
	air     float32

	heater bool
	cooler bool

	rng          uint64
	disconnected [numProbes]bool
}

// New returns a model at its starting temperatures.
func New(p Params) *Model {
	return &Model{
		p:    p,
		beer: p.BeerStart,
		air:  p.FridgeStart,
		rng:  mix(p.Seed),
	}
}

// mix spreads the seed bits (splitmix64) so nearby seeds give unrelated
// noise and a zero seed is usable.
func mix(seed uint64) uint64 {
	z := seed + 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z ^= z >> 31
	if z == 0 {
		z = 1
	}
	return z
}

// Step advances the model by d in one-second increments, with a shorter
// final increment for any remainder. Actuator state is held for the whole
// of d.
func (m *Model) Step(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for d > 0 {
		dt := step
		if d < dt {
			dt = d
		}
		m.integrate(float32(dt.Seconds()))
		m.elapsed += dt
		d -= dt
	}
}

func (m *Model) integrate(dt float32) {
	p := &m.p
	var power float32
	if m.heater {
		power += p.HeaterPower
	}
	if m.cooler {
		power -= p.CoolerPower
	}
	// Each product is rounded to float32 so no multiply-add is fused.
	exchange := float32(p.BeerTransfer * (m.air - m.beer))
	wall := float32(p.WallTransfer * (m.ambient() - m.air))

	airRate := float32(power+wall-exchange) / p.AirCapacity
	beerRate := exchange / p.BeerCapacity

	m.air = float32(m.air + float32(airRate*dt))
	m.beer = float32(m.beer + float32(beerRate*dt))
}

func (m *Model) ambient() float32 {
	if m.p.AmbientSwing == 0 {
		return m.p.Ambient
	}
	phase := float32(m.elapsed%day) / float32(day)
	return float32(m.p.Ambient + float32(m.p.AmbientSwing*math32.Sin(2*math32.Pi*phase)))
}

// Elapsed returns the simulated time since New.
func (m *Model) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.elapsed
}

// Temperature returns the true temperature at probe, without noise.
func (m *Model) Temperature(probe Probe) float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.temperature(probe)
}

func (m *Model) temperature(probe Probe) float32 {
	switch probe {
	case ProbeBeer:
		return m.beer
	case ProbeFridge:
		return m.air
	default:
		return m.ambient()
	}
}

// SetTemperature overrides the beer or fridge air temperature, as if the
// batch had been swapped or the lid left open. Room follows Params.Ambient.
func (m *Model) SetTemperature(probe Probe, c float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch probe {
	case ProbeBeer:
		m.beer = c
	case ProbeFridge:
		m.air = c
	}
}

// Disconnect makes probe read invalid until reconnected.
func (m *Model) Disconnect(probe Probe, disconnected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected[probe] = disconnected
}

// read samples probe with noise.
func (m *Model) read(probe Probe) temp.Temp {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disconnected[probe] {
		return temp.Invalid
	}
	v := m.temperature(probe)
	if m.p.SensorNoise > 0 {
		v = float32(v + float32(m.p.SensorNoise*m.noise()))
	}
	return temp.FromCelsius(float64(v))
}

// noise returns a value in [-1, 1) from a xorshift64 generator.
func (m *Model) noise() float32 {
	x := m.rng
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	m.rng = x
	return float32(x>>40)/float32(1<<23) - 1
}

// Heater and Cooler report the actuator state driving the model.
func (m *Model) Heater() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heater
}

func (m *Model) Cooler() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cooler
}

func (m *Model) setOutput(heater bool, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if heater {
		m.heater = active
	} else {
		m.cooler = active
	}
}
