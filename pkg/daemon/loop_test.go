package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/vpower/pkg/pd"
	"github.com/charlie0129/vpower/pkg/powerstate"
	"github.com/charlie0129/vpower/pkg/publish"
	"github.com/charlie0129/vpower/pkg/shutdown"
	"github.com/charlie0129/vpower/pkg/telemetry"
	"github.com/charlie0129/vpower/pkg/utils/ptr"
)

type fakeRunner struct {
	calls int
	err   error
}

func (f *fakeRunner) Run(context.Context, string, ...string) error {
	f.calls++
	return f.err
}

type fakeSysfs struct {
	root       string
	batteryDir string
	acDir      string
}

func newFakeSysfs(t *testing.T, battery map[string]string, online string) *fakeSysfs {
	t.Helper()
	root := t.TempDir()
	fs := &fakeSysfs{
		root:       root,
		batteryDir: filepath.Join(root, "BAT1"),
		acDir:      filepath.Join(root, "ACAD"),
	}
	battery["type"] = "Battery\n"
	fs.write(t, fs.batteryDir, battery)
	fs.write(t, fs.acDir, map[string]string{"type": "Mains\n", "online": online})
	return fs
}

func (fs *fakeSysfs) write(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
}

func quarterFull() map[string]string {
	return map[string]string{
		"status":             "Discharging\n",
		"charge_full":        "4000000\n",
		"charge_now":         "1000000\n",
		"current_now":        "1000000\n",
		"voltage_now":        "8000000\n",
		"voltage_min_design": "8000000\n",
	}
}

func readState(t *testing.T, dir string) map[string]string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	state := map[string]string{}
	for _, e := range entries {
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		state[e.Name()] = string(b)
	}
	return state
}

func TestTickPublishes(t *testing.T) {
	fs := newFakeSysfs(t, quarterFull(), "0\n")
	stateDir := filepath.Join(t.TempDir(), "vpower")
	runner := &fakeRunner{}

	l := NewLoop(
		telemetry.NewReader(fs.batteryDir, fs.acDir, nil),
		publish.NewDir(stateDir),
		shutdown.NewController(0, []string{"poweroff"}, runner),
		powerstate.Params{},
	)

	done, err := l.Tick()
	require.NoError(t, err)
	assert.False(t, done)

	assert.Equal(t, map[string]string{
		"ac_status":                   "Disconnected\n",
		"battery_percent":             "25\n",
		"battery_status":              "Discharging\n",
		"secs_until_battery_full":     "10800\n",
		"secs_until_shutdown_request": "3600\n",
	}, readState(t, stateDir))
	assert.Zero(t, runner.calls)
}

func TestTickSkipsUnknownValues(t *testing.T) {
	fs := newFakeSysfs(t, map[string]string{"status": "Not charging\n"}, "1\n")
	stateDir := t.TempDir()

	l := NewLoop(
		telemetry.NewReader(fs.batteryDir, fs.acDir, nil),
		publish.NewDir(stateDir),
		shutdown.NewController(0, []string{"poweroff"}, &fakeRunner{}),
		powerstate.Params{ShutdownBatteryPercent: 0.5},
	)

	_, err := l.Tick()
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"ac_status": "Connected\n"}, readState(t, stateDir))
}

func TestTickPlugIn(t *testing.T) {
	fs := newFakeSysfs(t, quarterFull(), "0\n")
	stateDir := t.TempDir()
	probe := pd.NewMock(0, 0, 0)

	l := NewLoop(
		telemetry.NewReader(fs.batteryDir, fs.acDir, probe),
		publish.NewDir(stateDir),
		shutdown.NewController(0, []string{"poweroff"}, &fakeRunner{}),
		powerstate.Params{},
	)

	acStatus := func() string {
		_, err := l.Tick()
		require.NoError(t, err)
		return readState(t, stateDir)["ac_status"]
	}

	assert.Equal(t, "Disconnected\n", acStatus())

	// The charger reports 5V 1A right after the contract is negotiated.
	probe.Status = ptr.To(pd.StatusConnected)
	probe.Volts = ptr.To(5.0)
	probe.Amps = ptr.To(1.0)
	assert.Equal(t, "Connected slow\n", acStatus())
	assert.Equal(t, "Connected\n", acStatus())

	probe.Status = ptr.To(pd.StatusConnected | pd.StatusSource)
	assert.Equal(t, "Disconnected\n", acStatus())
}

func TestTickTrend(t *testing.T) {
	bat := quarterFull()
	bat["status"] = "Unknown\n"
	fs := newFakeSysfs(t, bat, "1\n")
	stateDir := t.TempDir()

	l := NewLoop(
		telemetry.NewReader(fs.batteryDir, "", nil),
		publish.NewDir(stateDir),
		shutdown.NewController(0, []string{"poweroff"}, &fakeRunner{}),
		powerstate.Params{},
	)

	_, err := l.Tick()
	require.NoError(t, err)
	assert.NotContains(t, readState(t, stateDir), "battery_status")

	fs.write(t, fs.batteryDir, map[string]string{"charge_now": "1100000\n"})
	_, err = l.Tick()
	require.NoError(t, err)
	assert.Equal(t, "Charging\n", readState(t, stateDir)["battery_status"])

	// Unchanged values keep the last published file in place.
	_, err = l.Tick()
	require.NoError(t, err)
	assert.Equal(t, "Charging\n", readState(t, stateDir)["battery_status"])
}

func TestTickShutdown(t *testing.T) {
	bat := quarterFull()
	bat["charge_now"] = "10000\n"
	fs := newFakeSysfs(t, bat, "0\n")
	stateDir := t.TempDir()
	runner := &fakeRunner{}

	l := NewLoop(
		telemetry.NewReader(fs.batteryDir, fs.acDir, nil),
		publish.NewDir(stateDir),
		shutdown.NewController(0, []string{"poweroff"}, runner),
		powerstate.Params{ShutdownBatteryPercent: 0.5},
	)

	done, err := l.Tick()
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, "0\n", readState(t, stateDir)["secs_until_shutdown_request"])
}

func TestTickNoShutdownOnAC(t *testing.T) {
	bat := quarterFull()
	bat["charge_now"] = "10000\n"
	fs := newFakeSysfs(t, bat, "1\n")
	stateDir := t.TempDir()
	runner := &fakeRunner{}

	l := NewLoop(
		telemetry.NewReader(fs.batteryDir, fs.acDir, nil),
		publish.NewDir(stateDir),
		shutdown.NewController(0, []string{"poweroff"}, runner),
		powerstate.Params{ShutdownBatteryPercent: 0.5},
	)

	done, err := l.Tick()
	require.NoError(t, err)
	assert.False(t, done)
	assert.Zero(t, runner.calls)
	assert.Equal(t, "1\n", readState(t, stateDir)["secs_until_shutdown_request"])
}

func TestRunStopsAfterShutdown(t *testing.T) {
	bat := quarterFull()
	bat["charge_now"] = "0\n"
	fs := newFakeSysfs(t, bat, "0\n")
	runner := &fakeRunner{}

	l := NewLoop(
		telemetry.NewReader(fs.batteryDir, fs.acDir, nil),
		publish.NewDir(t.TempDir()),
		shutdown.NewController(0, []string{"poweroff"}, runner),
		powerstate.Params{ShutdownBatteryPercent: 0.5},
	)

	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, 1, runner.calls)
}

func TestRunShutdownCommandFails(t *testing.T) {
	bat := quarterFull()
	bat["charge_now"] = "0\n"
	fs := newFakeSysfs(t, bat, "0\n")

	l := NewLoop(
		telemetry.NewReader(fs.batteryDir, fs.acDir, nil),
		publish.NewDir(t.TempDir()),
		shutdown.NewController(0, []string{"poweroff"}, &fakeRunner{err: errors.New("exit status 1")}),
		powerstate.Params{ShutdownBatteryPercent: 0.5},
	)

	assert.ErrorIs(t, l.Run(context.Background()), shutdown.ErrShutdownCommandFailed)
}

func TestRunStopsOnCancel(t *testing.T) {
	fs := newFakeSysfs(t, quarterFull(), "0\n")
	stateDir := t.TempDir()

	l := NewLoop(
		telemetry.NewReader(fs.batteryDir, fs.acDir, nil),
		publish.NewDir(stateDir),
		shutdown.NewController(0, []string{"poweroff"}, &fakeRunner{}),
		powerstate.Params{},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, l.Run(ctx))
	// The tick in progress completes before the loop stops.
	assert.Len(t, readState(t, stateDir), 5)
}

func TestFormat(t *testing.T) {
	d := powerstate.Derived{
		AC:                powerstate.ACConnectedSlow,
		BatteryPercent:    ptr.To(99.75),
		BatteryStatus:     ptr.To(powerstate.Full),
		SecsUntilFull:     ptr.To(0.0),
		SecsUntilShutdown: ptr.To(1.0),
	}

	assert.Equal(t, map[string]string{
		"ac_status":                   "Connected slow",
		"battery_percent":             "99.75",
		"battery_status":              "Full",
		"secs_until_battery_full":     "0",
		"secs_until_shutdown_request": "1",
	}, Format(d))

	assert.Equal(t, map[string]string{"ac_status": "Unknown"}, Format(powerstate.Derived{}))
}

func TestRunWithoutBattery(t *testing.T) {
	opts := Options{
		PowerSupplyRoot: t.TempDir(),
		HwmonRoot:       t.TempDir(),
		EnvFile:         filepath.Join(t.TempDir(), "vpower.env"),
	}

	assert.NoError(t, Run(filepath.Join(t.TempDir(), "vpower.toml"), opts))
}
