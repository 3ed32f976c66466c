package config

import (
	"bytes"
	"math"
	"os"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/pelletier/go-toml/v2"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/vpower/pkg/utils/ptr"
)

// ErrInvalidConfig is returned when the config file cannot be decoded or
// holds a value outside its allowed range.
var ErrInvalidConfig = pkgerrors.New("invalid config")

// maxForceShutdownTimeoutSecs bounds the grace period to one day.
const maxForceShutdownTimeoutSecs = 24 * 60 * 60

var (
	defaultFileConfig = &RawFileConfig{
		// Slightly below 0.5 so a reading of exactly 0.5% does not trigger.
		RequestShutdownBatteryPercent: ptr.To(0.49999998),
		ForceShutdownTimeoutSecs:      ptr.To(10.0),
		ShutdownCommand:               ptr.To("poweroff"),
		StateDir:                      ptr.To("/run/vpower"),
		MQTT: &RawMQTTConfig{
			Broker:      ptr.To(""),
			TopicPrefix: ptr.To("vpower"),
			ClientID:    ptr.To("vpower"),
		},
	}
)

var _ Config = &File{}

// File is a Config read from a TOML file.
type File struct {
	c        *RawFileConfig
	filepath string
}

// RawFileConfig mirrors the TOML file. A nil field means "use the default".
type RawFileConfig struct {
	RequestShutdownBatteryPercent *float64       `toml:"request_shutdown_battery_percent,omitempty"`
	ForceShutdownTimeoutSecs      *float64       `toml:"force_shutdown_timeout_secs,omitempty"`
	ShutdownCommand               *string        `toml:"shutdown_command,omitempty"`
	StateDir                      *string        `toml:"state_dir,omitempty"`
	MQTT                          *RawMQTTConfig `toml:"mqtt,omitempty"`
}

type RawMQTTConfig struct {
	Broker      *string `toml:"broker,omitempty"`
	TopicPrefix *string `toml:"topic_prefix,omitempty"`
	ClientID    *string `toml:"client_id,omitempty"`
}

// NewFile loads the config at configPath. It never fails: a missing or
// malformed file is logged and the defaults are used instead.
func NewFile(configPath string) *File {
	f := &File{
		filepath: configPath,
	}

	err := f.Load()
	if err != nil {
		logrus.WithError(err).WithField("path", configPath).Warn("failed to load config, using defaults")
		f.c = &RawFileConfig{}
	}

	return f
}

// NewFileFromConfig wraps an already decoded config. A nil c means all
// defaults.
func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	return &File{
		c:        c,
		filepath: configPath,
	}
}

// Load reads and validates the config file. On error the previously loaded
// values are kept.
func (f *File) Load() error {
	b, err := os.ReadFile(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			logrus.WithField("path", f.filepath).Info("config file not found, using defaults")
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if len(bytes.TrimSpace(b)) == 0 {
		// An empty file is the same as no file.
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = toml.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(ErrInvalidConfig, "failed to decode %s: %v", f.filepath, err)
	}

	// Out-of-range values fall back to their defaults one by one, so a typo
	// in one key does not discard the rest of the file.
	for _, verr := range conf.sanitize() {
		logrus.WithError(verr).WithField("path", f.filepath).Warn("ignoring config value")
	}
	f.c = &conf

	return nil
}

// sanitize clears every invalid field and returns one error per cleared field.
func (c *RawFileConfig) sanitize() []error {
	var errs []error

	if v := c.RequestShutdownBatteryPercent; v != nil && (math.IsNaN(*v) || *v < 0 || *v > 100) {
		errs = append(errs, pkgerrors.Wrapf(ErrInvalidConfig, "request_shutdown_battery_percent must be within [0, 100], got %v", *v))
		c.RequestShutdownBatteryPercent = nil
	}

	if v := c.ForceShutdownTimeoutSecs; v != nil && (math.IsNaN(*v) || *v < 0 || *v > maxForceShutdownTimeoutSecs) {
		errs = append(errs, pkgerrors.Wrapf(ErrInvalidConfig, "force_shutdown_timeout_secs must be within [0, %d], got %v", maxForceShutdownTimeoutSecs, *v))
		c.ForceShutdownTimeoutSecs = nil
	}

	if v := c.ShutdownCommand; v != nil {
		args, err := shlex.Split(*v)
		if err != nil || len(args) == 0 {
			errs = append(errs, pkgerrors.Wrapf(ErrInvalidConfig, "shutdown_command %q is not a valid command line", *v))
			c.ShutdownCommand = nil
		}
	}

	if v := c.StateDir; v != nil && strings.TrimSpace(*v) == "" {
		errs = append(errs, pkgerrors.Wrap(ErrInvalidConfig, "state_dir must not be empty"))
		c.StateDir = nil
	}

	return errs
}

func (f *File) ShutdownBatteryPercent() float64 {
	if f.c == nil {
		panic("config is nil")
	}

	return ptr.Deref(f.c.RequestShutdownBatteryPercent, *defaultFileConfig.RequestShutdownBatteryPercent)
}

func (f *File) ShutdownGracePeriod() time.Duration {
	if f.c == nil {
		panic("config is nil")
	}

	secs := ptr.Deref(f.c.ForceShutdownTimeoutSecs, *defaultFileConfig.ForceShutdownTimeoutSecs)

	return time.Duration(secs * float64(time.Second))
}

func (f *File) ShutdownCommand() []string {
	if f.c == nil {
		panic("config is nil")
	}

	cmdline := ptr.Deref(f.c.ShutdownCommand, *defaultFileConfig.ShutdownCommand)

	// Already validated by Load, or it is the default.
	args, err := shlex.Split(cmdline)
	if err != nil || len(args) == 0 {
		args, _ = shlex.Split(*defaultFileConfig.ShutdownCommand)
	}

	return args
}

func (f *File) StateDir() string {
	if f.c == nil {
		panic("config is nil")
	}

	return ptr.Deref(f.c.StateDir, *defaultFileConfig.StateDir)
}

func (f *File) MQTT() MQTTConfig {
	if f.c == nil {
		panic("config is nil")
	}

	raw := f.c.MQTT
	if raw == nil {
		raw = &RawMQTTConfig{}
	}

	return MQTTConfig{
		Broker:      ptr.Deref(raw.Broker, *defaultFileConfig.MQTT.Broker),
		TopicPrefix: ptr.Deref(raw.TopicPrefix, *defaultFileConfig.MQTT.TopicPrefix),
		ClientID:    ptr.Deref(raw.ClientID, *defaultFileConfig.MQTT.ClientID),
	}
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"path":                          f.filepath,
		"requestShutdownBatteryPercent": f.ShutdownBatteryPercent(),
		"forceShutdownTimeout":          f.ShutdownGracePeriod().String(),
		"shutdownCommand":               strings.Join(f.ShutdownCommand(), " "),
		"stateDir":                      f.StateDir(),
		"mqttBroker":                    f.MQTT().Broker,
	}
}
