package control

import "github.com/sweeney/ferment-controller/internal/temp"

// Command is a host request applied at the start of the next tick.
type Command interface {
	applyTo(cfg *config) error
}

// config is the part of the controller that commands may change.
type config struct {
	settings   Settings
	constants  Constants
	resumeMode Mode
	resume     bool
}

func (cfg *config) validate() error {
	if err := cfg.constants.Validate(); err != nil {
		return err
	}
	return cfg.settings.Validate(cfg.constants)
}

// SetBeerSetting changes the beer setpoint.
type SetBeerSetting struct{ Value temp.Temp }

func (c SetBeerSetting) applyTo(cfg *config) error {
	cfg.settings.BeerSetting = c.Value
	return nil
}

// SetFridgeSetting changes the fridge setpoint.
type SetFridgeSetting struct{ Value temp.Temp }

func (c SetFridgeSetting) applyTo(cfg *config) error {
	cfg.settings.FridgeSetting = c.Value
	return nil
}

// SetMode changes the control mode. ModeOff behaves like Off.
type SetMode struct{ Mode Mode }

func (c SetMode) applyTo(cfg *config) error {
	if !c.Mode.Valid() {
		return outOfRange("mode", "unknown mode %q", c.Mode)
	}
	if c.Mode == ModeOff {
		return Off{}.applyTo(cfg)
	}
	cfg.settings.Mode = c.Mode
	return nil
}

// Configure replaces settings and constants together, so a change that
// narrows the setpoint range can move the setpoints in the same step.
type Configure struct {
	Settings  Settings
	Constants Constants
}

func (c Configure) applyTo(cfg *config) error {
	if c.Settings.Mode == ModeOff && cfg.settings.Mode != ModeOff {
		cfg.resumeMode = cfg.settings.Mode
	}
	cfg.settings = c.Settings
	cfg.constants = c.Constants
	return nil
}

// Patch edits settings and constants in place when the command is
// applied, so only the fields it touches change. Switching to ModeOff
// remembers the mode to resume.
type Patch func(s *Settings, k *Constants) error

func (p Patch) applyTo(cfg *config) error {
	s, k := cfg.settings, cfg.constants
	if err := p(&s, &k); err != nil {
		return err
	}
	if s.Mode == ModeOff && cfg.settings.Mode != ModeOff {
		cfg.resumeMode = cfg.settings.Mode
	}
	cfg.settings, cfg.constants = s, k
	return nil
}

// Off forces the controller OFF. Timers keep running so minimum idle
// times still apply after resume.
type Off struct{}

func (Off) applyTo(cfg *config) error {
	if cfg.settings.Mode != ModeOff {
		cfg.resumeMode = cfg.settings.Mode
	}
	cfg.settings.Mode = ModeOff
	return nil
}

// Resume clears a sensor fault and, when off, restores the last active mode.
type Resume struct{}

func (Resume) applyTo(cfg *config) error {
	cfg.resume = true
	if cfg.settings.Mode == ModeOff {
		cfg.settings.Mode = cfg.resumeMode
		if !cfg.settings.Mode.Valid() || cfg.settings.Mode == ModeOff {
			cfg.settings.Mode = ModeBeerConstant
		}
	}
	return nil
}

// LoadDefaultConstants restores the factory constants. Setpoints are
// clamped into the default range.
type LoadDefaultConstants struct{}

func (LoadDefaultConstants) applyTo(cfg *config) error {
	cfg.constants = DefaultConstants()
	cfg.settings.BeerSetting = cfg.settings.BeerSetting.Clamp(cfg.constants.TempSettingMin, cfg.constants.TempSettingMax)
	cfg.settings.FridgeSetting = cfg.settings.FridgeSetting.Clamp(cfg.constants.TempSettingMin, cfg.constants.TempSettingMax)
	return nil
}

// LoadDefaultSettings restores the factory settings.
type LoadDefaultSettings struct{}

func (LoadDefaultSettings) applyTo(cfg *config) error {
	if cfg.settings.Mode != ModeOff {
		cfg.resumeMode = cfg.settings.Mode
	}
	cfg.settings = DefaultSettings()
	return nil
}
