package sensor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/ferment-controller/internal/temp"
)

func TestExternal(t *testing.T) {
	e := NewExternal()
	assert.False(t, e.IsConnected())
	assert.Equal(t, temp.Invalid, e.Read())

	e.Set(temp.FromCelsius(18))
	assert.True(t, e.IsConnected())
	assert.Equal(t, temp.FromCelsius(18), e.Read())

	e.Set(temp.Invalid)
	assert.False(t, e.IsConnected())
	assert.Equal(t, temp.Invalid, e.Read())
}

func TestMockDrifts(t *testing.T) {
	heating, cooling := false, false
	m := NewMock(temp.FromCelsius(20), temp.DiffFromCelsius(0.5),
		func() bool { return heating }, func() bool { return cooling })

	assert.Equal(t, temp.FromCelsius(20), m.Read())
	heating = true
	assert.Equal(t, temp.FromCelsius(20.5), m.Read())
	heating, cooling = false, true
	assert.Equal(t, temp.FromCelsius(20), m.Read())

	m.SetConnected(false)
	assert.False(t, m.IsConnected())
	assert.Equal(t, temp.Invalid, m.Read())
}

func TestMockNilDirections(t *testing.T) {
	m := NewMock(temp.FromCelsius(10), 1, nil, nil)
	assert.Equal(t, temp.FromCelsius(10), m.Read())
}

func TestFakeScript(t *testing.T) {
	f := NewFake(temp.FromCelsius(1), temp.Invalid, temp.FromCelsius(3))

	assert.True(t, f.IsConnected())
	assert.Equal(t, temp.FromCelsius(1), f.Read())
	assert.False(t, f.IsConnected())
	assert.Equal(t, temp.Invalid, f.Read())
	assert.Equal(t, temp.FromCelsius(3), f.Read())
	// Last sample repeats.
	assert.Equal(t, temp.FromCelsius(3), f.Read())
	assert.Equal(t, 4, f.Reads())

	f.Set(temp.FromCelsius(7))
	assert.Equal(t, temp.FromCelsius(7), f.Read())
}

func TestFakeEmpty(t *testing.T) {
	f := NewFake()
	assert.False(t, f.IsConnected())
	assert.Equal(t, temp.Invalid, f.Read())
}

func TestFakeSwitch(t *testing.T) {
	var s FakeSwitch
	assert.False(t, s.Sense())
	s.Set(true)
	assert.True(t, s.Sense())
}

func writeDevice(t *testing.T, dir, id, file, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, id), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, id, file), []byte(content), 0o644))
}

func TestW1TemperatureAttribute(t *testing.T) {
	dir := t.TempDir()
	writeDevice(t, dir, "28-0001", "temperature", "20625\n")

	w := NewW1(dir, "28-0001", temp.DiffFromCelsius(-0.5))
	assert.False(t, w.IsConnected())
	assert.Equal(t, temp.Invalid, w.Read())

	require.NoError(t, w.Poll())
	assert.True(t, w.IsConnected())
	assert.Equal(t, temp.FromCelsius(20.125), w.Read())
}

func TestW1SlaveFormat(t *testing.T) {
	dir := t.TempDir()
	writeDevice(t, dir, "28-0002", "w1_slave",
		"72 01 4b 46 7f ff 0e 10 57 : crc=57 YES\n72 01 4b 46 7f ff 0e 10 57 t=23125\n")

	w := NewW1(dir, "28-0002", 0)
	require.NoError(t, w.Poll())
	assert.Equal(t, temp.FromCelsius(23.125), w.Read())
}

func TestW1FailedPollDisconnects(t *testing.T) {
	dir := t.TempDir()
	writeDevice(t, dir, "28-0003", "temperature", "18000")
	w := NewW1(dir, "28-0003", 0)
	require.NoError(t, w.Poll())

	writeDevice(t, dir, "28-0003", "temperature", "85000")
	assert.Error(t, w.Poll())
	assert.False(t, w.IsConnected())
	assert.Equal(t, temp.Invalid, w.Read())

	writeDevice(t, dir, "28-0003", "temperature", "18500")
	require.NoError(t, w.Poll())
	assert.Equal(t, temp.FromCelsius(18.5), w.Read())
}

func TestW1RemovedDevice(t *testing.T) {
	dir := t.TempDir()
	writeDevice(t, dir, "28-0004", "temperature", "20500")
	w := NewW1(dir, "28-0004", 0)
	require.NoError(t, w.Poll())
	assert.Equal(t, temp.FromCelsius(20.5), w.Read())

	require.NoError(t, os.RemoveAll(filepath.Join(dir, "28-0004")))
	assert.Error(t, w.Poll())
	assert.Error(t, w.Poll())
	assert.False(t, w.IsConnected())
	assert.Equal(t, temp.Invalid, w.Read())
}

func TestW1StaleReading(t *testing.T) {
	dir := t.TempDir()
	writeDevice(t, dir, "28-0005", "temperature", "19000")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w := NewW1(dir, "28-0005", 0)
	w.now = func() time.Time { return now }
	w.maxAge = 6 * time.Second

	require.NoError(t, w.Poll())
	now = now.Add(6 * time.Second)
	assert.Equal(t, temp.FromCelsius(19), w.Read())

	now = now.Add(time.Millisecond)
	assert.False(t, w.IsConnected())
	assert.Equal(t, temp.Invalid, w.Read())

	require.NoError(t, w.Poll())
	assert.True(t, w.IsConnected())
}

func TestParseSlaveErrors(t *testing.T) {
	_, err := parseSlave("only one line")
	assert.Error(t, err)
	_, err = parseSlave("aa : crc=00 NO\naa t=20000")
	assert.Error(t, err)
	_, err = parseSlave("aa : crc=00 YES\naa no-temp")
	assert.Error(t, err)
}

func TestListW1Devices(t *testing.T) {
	dir := t.TempDir()
	writeDevice(t, dir, "28-aaaa", "temperature", "1")
	writeDevice(t, dir, "w1_bus_master1", "x", "1")

	ids, err := ListW1Devices(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"28-aaaa"}, ids)
}
