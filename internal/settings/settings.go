// Package settings persists the controller's settings and constants.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/ferment-controller/internal/control"
	"github.com/sweeney/ferment-controller/internal/filter"
	"github.com/sweeney/ferment-controller/internal/temp"
	"github.com/sweeney/ferment-controller/internal/ticks"
)

// Store loads and saves the persisted configuration.
type Store interface {
	Load() (control.Settings, control.Constants, error)
	Store(control.Settings, control.Constants) error
}

// ErrCorrupt is returned when the stored data cannot be decoded or fails
// validation. Load still returns usable defaults alongside it.
var ErrCorrupt = errors.New("settings: stored data is corrupt")

// FileStore keeps settings in a YAML file.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path. The file is created on the
// first Store.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (f *FileStore) Path() string { return f.path }

// Load reads the file. A missing file yields the defaults and no error.
// Fields absent from the file keep their default values.
func (f *FileStore) Load() (control.Settings, control.Constants, error) {
	s, k := control.DefaultSettings(), control.DefaultConstants()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, k, nil
		}
		return s, k, fmt.Errorf("settings: read %s: %w", f.path, err)
	}

	d := encode(s, k)
	if err := yaml.Unmarshal(data, &d); err != nil {
		return s, k, fmt.Errorf("%w: %s: %v", ErrCorrupt, f.path, err)
	}
	ls, lk, err := d.decode()
	if err != nil {
		return s, k, fmt.Errorf("%w: %s: %v", ErrCorrupt, f.path, err)
	}
	if err := lk.Validate(); err != nil {
		return s, k, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := ls.Validate(lk); err != nil {
		return s, k, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return ls, lk, nil
}

// Store writes the file atomically: a temporary file in the same
// directory is renamed over the old one.
func (f *FileStore) Store(s control.Settings, k control.Constants) error {
	data, err := yaml.Marshal(encode(s, k))
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("settings: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("settings: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("settings: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("settings: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("settings: rename: %w", err)
	}
	return nil
}

// document is the on-disk layout. Temperatures are decimal strings so
// the file stays readable and edits round-trip exactly.
type document struct {
	Settings  settingsDoc  `yaml:"settings"`
	Constants constantsDoc `yaml:"constants"`
}

type settingsDoc struct {
	Mode      string `yaml:"mode"`
	BeerSet   string `yaml:"beer_set"`
	FridgeSet string `yaml:"fridge_set"`
}

type filterDoc struct {
	Fast  uint8 `yaml:"fast"`
	Slow  uint8 `yaml:"slow"`
	Slope uint8 `yaml:"slope"`
}

type constantsDoc struct {
	TempSetMin     string        `yaml:"temp_set_min"`
	TempSetMax     string        `yaml:"temp_set_max"`
	HysteresisHigh string        `yaml:"hysteresis_high"`
	HysteresisLow  string        `yaml:"hysteresis_low"`
	MinCoolOn      ticks.Seconds `yaml:"min_cool_on"`
	MinCoolOff     ticks.Seconds `yaml:"min_cool_off"`
	MinHeatOn      ticks.Seconds `yaml:"min_heat_on"`
	MinHeatOff     ticks.Seconds `yaml:"min_heat_off"`
	MinSwitch      ticks.Seconds `yaml:"min_switch"`
	FaultThreshold uint32        `yaml:"fault_threshold"`
	Kp             string        `yaml:"kp"`
	Ki             string        `yaml:"ki"`
	Kd             string        `yaml:"kd"`
	IMaxError      string        `yaml:"i_max_error"`
	PidMax         string        `yaml:"pid_max"`
	BeerFilter     filterDoc     `yaml:"beer_filter"`
	FridgeFilter   filterDoc     `yaml:"fridge_filter"`
}

func encode(s control.Settings, k control.Constants) document {
	return document{
		Settings: settingsDoc{
			Mode:      string(s.Mode),
			BeerSet:   s.BeerSetting.String(),
			FridgeSet: s.FridgeSetting.String(),
		},
		Constants: constantsDoc{
			TempSetMin:     k.TempSettingMin.String(),
			TempSetMax:     k.TempSettingMax.String(),
			HysteresisHigh: k.HysteresisHigh.String(),
			HysteresisLow:  k.HysteresisLow.String(),
			MinCoolOn:      k.MinCoolOnTime,
			MinCoolOff:     k.MinCoolOffTime,
			MinHeatOn:      k.MinHeatOnTime,
			MinHeatOff:     k.MinHeatOffTime,
			MinSwitch:      k.MinSwitchTime,
			FaultThreshold: k.FaultThreshold,
			Kp:             k.Kp.String(),
			Ki:             k.Ki.String(),
			Kd:             k.Kd.String(),
			IMaxError:      k.IMaxError.String(),
			PidMax:         k.PidMax.String(),
			BeerFilter:     filterDoc(k.BeerFilter),
			FridgeFilter:   filterDoc(k.FridgeFilter),
		},
	}
}

func (d document) decode() (control.Settings, control.Constants, error) {
	var (
		s   control.Settings
		k   control.Constants
		err error
	)
	temps := []struct {
		name string
		src  string
		dst  *temp.Temp
	}{
		{"beer_set", d.Settings.BeerSet, &s.BeerSetting},
		{"fridge_set", d.Settings.FridgeSet, &s.FridgeSetting},
		{"temp_set_min", d.Constants.TempSetMin, &k.TempSettingMin},
		{"temp_set_max", d.Constants.TempSetMax, &k.TempSettingMax},
	}
	for _, t := range temps {
		if *t.dst, err = temp.Parse(t.src); err != nil {
			return s, k, fmt.Errorf("%s: %w", t.name, err)
		}
	}
	diffs := []struct {
		name string
		src  string
		dst  *temp.Diff
	}{
		{"hysteresis_high", d.Constants.HysteresisHigh, &k.HysteresisHigh},
		{"hysteresis_low", d.Constants.HysteresisLow, &k.HysteresisLow},
		{"kp", d.Constants.Kp, &k.Kp},
		{"ki", d.Constants.Ki, &k.Ki},
		{"kd", d.Constants.Kd, &k.Kd},
		{"i_max_error", d.Constants.IMaxError, &k.IMaxError},
		{"pid_max", d.Constants.PidMax, &k.PidMax},
	}
	for _, t := range diffs {
		if *t.dst, err = temp.ParseDiff(t.src); err != nil {
			return s, k, fmt.Errorf("%s: %w", t.name, err)
		}
	}

	s.Mode = control.Mode(d.Settings.Mode)
	k.MinCoolOnTime = d.Constants.MinCoolOn
	k.MinCoolOffTime = d.Constants.MinCoolOff
	k.MinHeatOnTime = d.Constants.MinHeatOn
	k.MinHeatOffTime = d.Constants.MinHeatOff
	k.MinSwitchTime = d.Constants.MinSwitch
	k.FaultThreshold = d.Constants.FaultThreshold
	k.BeerFilter = filter.Coefficients(d.Constants.BeerFilter)
	k.FridgeFilter = filter.Coefficients(d.Constants.FridgeFilter)
	return s, k, nil
}
