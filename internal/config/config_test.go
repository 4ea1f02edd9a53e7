package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 57600, cfg.Serial.BaudRate)
	assert.Empty(t, cfg.Serial.Port)
	assert.Empty(t, cfg.MQTT.Broker)
	assert.Equal(t, "ferment/controller", cfg.MQTT.TopicPrefix)
	assert.Equal(t, 15*time.Minute, cfg.MQTT.Heartbeat)
	assert.Equal(t, time.Second, cfg.Control.TickPeriod)
	assert.Equal(t, 17, cfg.Hardware.Heater.Pin)
	assert.Equal(t, 27, cfg.Hardware.Cooler.Pin)
	assert.Equal(t, -1, cfg.Hardware.DoorPin)
	assert.Equal(t, time.Minute, cfg.Recorder.Interval)
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ValidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
serial:
  port: /dev/ttyACM0
mqtt:
  broker: tcp://192.168.1.200:1883
  heartbeat: 5m
control:
  tick_period: 500ms
  settings_file: /tmp/settings.yaml
hardware:
  heater:
    pin: 5
    invert: true
  door_pin: 22
  beer_sensor: 28-0000071d3a5f
simulator:
  ambient: 12.5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, 57600, cfg.Serial.BaudRate)
	assert.Equal(t, "tcp://192.168.1.200:1883", cfg.MQTT.Broker)
	assert.Equal(t, 5*time.Minute, cfg.MQTT.Heartbeat)
	assert.Equal(t, "ferment-controller", cfg.MQTT.ClientID)
	assert.Equal(t, 500*time.Millisecond, cfg.Control.TickPeriod)
	assert.Equal(t, "/tmp/settings.yaml", cfg.Control.SettingsFile)
	assert.Equal(t, RelayConfig{Pin: 5, Invert: true}, cfg.Hardware.Heater)
	assert.Equal(t, 27, cfg.Hardware.Cooler.Pin)
	assert.Equal(t, 22, cfg.Hardware.DoorPin)
	assert.Equal(t, "28-0000071d3a5f", cfg.Hardware.BeerID)
	assert.Equal(t, float32(12.5), cfg.Simulator.Ambient)
	assert.Equal(t, float32(83600), cfg.Simulator.BeerCapacity)
}

func TestLoad_ZeroValuesRestored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
serial:
  baud_rate: 0
control:
  tick_period: 0s
mqtt:
  topic_prefix: ""
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 57600, cfg.Serial.BaudRate)
	assert.Equal(t, time.Second, cfg.Control.TickPeriod)
	assert.Equal(t, "ferment/controller", cfg.MQTT.TopicPrefix)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("serial: [oops"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Serial.Port = "/dev/ttyUSB0"
	cfg.MQTT.Broker = "tcp://broker:1883"
	cfg.Hardware.Fan = RelayConfig{Pin: 6}
	cfg.Recorder.Path = "/var/lib/ferment/recorder.db"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
