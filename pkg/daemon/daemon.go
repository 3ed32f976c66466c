package daemon

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/vpower/pkg/config"
	"github.com/charlie0129/vpower/pkg/pd"
	"github.com/charlie0129/vpower/pkg/powerstate"
	"github.com/charlie0129/vpower/pkg/publish"
	"github.com/charlie0129/vpower/pkg/shutdown"
	"github.com/charlie0129/vpower/pkg/telemetry"
)

// Options locate the hardware and auxiliary files. Zero values use the
// system defaults.
type Options struct {
	PowerSupplyRoot string
	HwmonRoot       string
	EnvFile         string
	// Probe replaces the hwmon PD sensor when set. Run closes it.
	Probe pd.Probe
}

const (
	DefaultEnvFile = "/etc/vpower.env"

	envMQTTUsername = "VPOWER_MQTT_USERNAME"
	envMQTTPassword = "VPOWER_MQTT_PASSWORD"
)

func (o *Options) setDefaults() {
	if o.PowerSupplyRoot == "" {
		o.PowerSupplyRoot = telemetry.DefaultPowerSupplyRoot
	}
	if o.HwmonRoot == "" {
		o.HwmonRoot = pd.DefaultHwmonRoot
	}
	if o.EnvFile == "" {
		o.EnvFile = DefaultEnvFile
	}
}

// Run starts the daemon and blocks until it receives SIGINT or SIGTERM, or
// until the machine is being powered off. A failing power-off command is
// returned as shutdown.ErrShutdownCommandFailed once the PD probe and the
// publishers have been released.
func Run(configPath string, opts Options) error {
	opts.setDefaults()

	conf := config.NewFile(configPath)
	logrus.WithFields(conf.LogrusFields()).Info("config loaded")

	logHostInfo()

	batteryDir, err := telemetry.FindBattery(opts.PowerSupplyRoot)
	if err != nil {
		if errors.Is(err, telemetry.ErrNotFound) {
			logrus.Info("system does not use batteries, exiting")
			return nil
		}
		return err
	}
	logrus.WithField("path", batteryDir).Info("found battery")
	telemetry.CheckLayout(batteryDir)

	acDir, err := telemetry.FindAC(opts.PowerSupplyRoot)
	if err != nil {
		logrus.WithError(err).Warn("no AC adapter found, AC status will be inferred from the battery")
		acDir = ""
	} else {
		logrus.WithField("path", acDir).Info("found AC adapter")
	}

	probe := opts.Probe
	if probe == nil {
		probe = openProbe(opts.HwmonRoot)
	}
	defer func() {
		if err := probe.Close(); err != nil {
			logrus.Errorf("failed to close PD probe: %v", err)
		}
	}()

	publisher, closePublisher := newPublisher(conf, opts.EnvFile)
	defer closePublisher()

	controller := shutdown.NewController(conf.ShutdownGracePeriod(), conf.ShutdownCommand(), nil)
	loop := NewLoop(
		telemetry.NewReader(batteryDir, acDir, probe),
		publisher,
		controller,
		powerstate.Params{ShutdownBatteryPercent: conf.ShutdownBatteryPercent()},
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = loop.Run(ctx)
	if err != nil {
		return err
	}

	if controller.State() == shutdown.ShuttingDown {
		logrus.Info("shutdown requested, exiting")
	} else {
		logrus.Info("caught signal, exiting")
	}
	return nil
}

// openProbe opens the PD sensor, falling back to a probe that reports
// nothing when the hardware is absent.
func openProbe(hwmonRoot string) pd.Probe {
	h := pd.NewHwmon(hwmonRoot)
	if err := h.Open(); err != nil {
		if errors.Is(err, pd.ErrChipNotFound) {
			logrus.WithField("chip", pd.ChipName).Info("no PD sensor found")
		} else {
			logrus.WithError(err).Warn("failed to open PD sensor")
		}
		return pd.None{}
	}
	return h
}

// newPublisher returns the state directory publisher, mirrored to MQTT when
// a broker is configured. A broker that cannot be reached disables the
// mirror but not the daemon.
func newPublisher(conf config.Config, envFile string) (publish.Publisher, func()) {
	dir := publish.NewDir(conf.StateDir())

	mc := conf.MQTT()
	if !mc.Enabled() {
		return dir, func() {}
	}

	if err := godotenv.Load(envFile); err != nil {
		if os.IsNotExist(err) {
			logrus.WithField("path", envFile).Debug("env file not found")
		} else {
			logrus.WithError(err).WithField("path", envFile).Warn("failed to load env file")
		}
	}

	m, err := publish.NewMQTT(publish.MQTTOptions{
		Broker:      mc.Broker,
		ClientID:    mc.ClientID,
		Username:    os.Getenv(envMQTTUsername),
		Password:    os.Getenv(envMQTTPassword),
		TopicPrefix: mc.TopicPrefix,
	})
	if err != nil {
		logrus.WithError(err).Warn("mqtt mirror disabled")
		return dir, func() {}
	}

	return publish.Multi{dir, m}, func() { _ = m.Close() }
}

func logHostInfo() {
	info, err := host.Info()
	if err != nil {
		logrus.WithError(err).Debug("failed to get host info")
		return
	}

	logrus.WithFields(logrus.Fields{
		"hostname": info.Hostname,
		"platform": info.Platform + " " + info.PlatformVersion,
		"kernel":   info.KernelVersion,
		"arch":     info.KernelArch,
	}).Info("host")
}
