package config

import "time"

// Config is the daemon configuration. It is loaded once at startup and
// never changes afterwards.
type Config interface {
	// ShutdownBatteryPercent is the battery percentage at (or below) which
	// a shutdown is requested.
	ShutdownBatteryPercent() float64
	// ShutdownGracePeriod is how long to wait between the shutdown request
	// and the power-off command.
	ShutdownGracePeriod() time.Duration
	// ShutdownCommand is the power-off command and its arguments.
	ShutdownCommand() []string
	// StateDir is the directory derived values are published to.
	StateDir() string
	MQTT() MQTTConfig
}

// MQTTConfig configures the optional MQTT mirror of published values.
// The mirror is disabled when Broker is empty.
type MQTTConfig struct {
	Broker      string
	TopicPrefix string
	ClientID    string
}

// Enabled returns whether the MQTT mirror should be started.
func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}
