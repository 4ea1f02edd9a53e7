// Package config holds the daemon configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the daemon configuration.
type Config struct {
	Serial    SerialConfig    `yaml:"serial"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	HTTP      HTTPConfig      `yaml:"http"`
	Control   ControlConfig   `yaml:"control"`
	Hardware  HardwareConfig  `yaml:"hardware"`
	Recorder  RecorderConfig  `yaml:"recorder"`
	Simulator SimulatorConfig `yaml:"simulator"`
}

// SerialConfig selects the host link port. An empty Port disables it.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// MQTTConfig contains broker settings. An empty Broker disables MQTT.
type MQTTConfig struct {
	Broker      string        `yaml:"broker"`
	ClientID    string        `yaml:"client_id"`
	TopicPrefix string        `yaml:"topic_prefix"`
	Heartbeat   time.Duration `yaml:"heartbeat"`
}

// HTTPConfig contains the status server address. Empty disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// ControlConfig contains loop timing and persistence.
type ControlConfig struct {
	TickPeriod   time.Duration `yaml:"tick_period"`
	SettingsFile string        `yaml:"settings_file"`
}

// RelayConfig describes one GPIO output. Pin < 0 leaves it unattached.
type RelayConfig struct {
	Pin    int  `yaml:"pin"`
	Invert bool `yaml:"invert"`
}

// HardwareConfig maps controller roles to pins and one-wire sensors.
type HardwareConfig struct {
	Chip     string      `yaml:"chip"`
	Heater   RelayConfig `yaml:"heater"`
	Cooler   RelayConfig `yaml:"cooler"`
	Fan      RelayConfig `yaml:"fan"`
	Light    RelayConfig `yaml:"light"`
	DoorPin  int         `yaml:"door_pin"`
	W1Dir    string      `yaml:"w1_dir"`
	BeerID   string      `yaml:"beer_sensor"`
	FridgeID string      `yaml:"fridge_sensor"`
	RoomID   string      `yaml:"room_sensor"`
}

// RecorderConfig controls the sqlite flight recorder. Empty Path disables
// it. Data older than Retention is pruned; zero keeps everything.
type RecorderConfig struct {
	Path      string        `yaml:"path"`
	Interval  time.Duration `yaml:"interval"`
	Retention time.Duration `yaml:"retention"`
}

// SimulatorConfig parameterises the thermal model used with -simulate.
type SimulatorConfig struct {
	Seed         uint64  `yaml:"seed"`
	Ambient      float32 `yaml:"ambient"`
	AmbientSwing float32 `yaml:"ambient_swing"`
	BeerStart    float32 `yaml:"beer_start"`
	FridgeStart  float32 `yaml:"fridge_start"`
	BeerCapacity float32 `yaml:"beer_capacity"`
	AirCapacity  float32 `yaml:"air_capacity"`
	BeerTransfer float32 `yaml:"beer_transfer"`
	WallTransfer float32 `yaml:"wall_transfer"`
	HeaterPower  float32 `yaml:"heater_power"`
	CoolerPower  float32 `yaml:"cooler_power"`
	SensorNoise  float32 `yaml:"sensor_noise"`
	TimeScale    float64 `yaml:"time_scale"`
}

// Default returns a configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			BaudRate: 57600,
		},
		MQTT: MQTTConfig{
			ClientID:    "ferment-controller",
			TopicPrefix: "ferment/controller",
			Heartbeat:   15 * time.Minute,
		},
		HTTP: HTTPConfig{
			Addr: ":80",
		},
		Control: ControlConfig{
			TickPeriod:   time.Second,
			SettingsFile: "/var/lib/ferment-controller/settings.yaml",
		},
		Hardware: HardwareConfig{
			Chip:    "gpiochip0",
			Heater:  RelayConfig{Pin: 17},
			Cooler:  RelayConfig{Pin: 27},
			Fan:     RelayConfig{Pin: -1},
			Light:   RelayConfig{Pin: -1},
			DoorPin: -1,
			W1Dir:   "/sys/bus/w1/devices",
		},
		Recorder: RecorderConfig{
			Interval:  time.Minute,
			Retention: 30 * 24 * time.Hour,
		},
		Simulator: SimulatorConfig{
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
			TimeScale:    1,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults restores values that may not be zero.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.BaudRate <= 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = def.MQTT.TopicPrefix
	}
	if c.MQTT.Heartbeat <= 0 {
		c.MQTT.Heartbeat = def.MQTT.Heartbeat
	}
	if c.Control.TickPeriod <= 0 {
		c.Control.TickPeriod = def.Control.TickPeriod
	}
	if c.Hardware.Chip == "" {
		c.Hardware.Chip = def.Hardware.Chip
	}
	if c.Hardware.W1Dir == "" {
		c.Hardware.W1Dir = def.Hardware.W1Dir
	}
	if c.Recorder.Interval <= 0 {
		c.Recorder.Interval = def.Recorder.Interval
	}
	if c.Simulator.BeerCapacity <= 0 {
		c.Simulator.BeerCapacity = def.Simulator.BeerCapacity
	}
	if c.Simulator.AirCapacity <= 0 {
		c.Simulator.AirCapacity = def.Simulator.AirCapacity
	}
	if c.Simulator.TimeScale <= 0 {
		c.Simulator.TimeScale = def.Simulator.TimeScale
	}
}
