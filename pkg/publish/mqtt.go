package publish

import (
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	mqttQoS            = 1
	mqttConnectTimeout = 5 * time.Second
	mqttQuiesceMillis  = 250
)

// ErrConnectTimeout is returned when the broker did not accept the
// connection in time.
var ErrConnectTimeout = pkgerrors.New("timed out waiting for broker")

var _ Publisher = &MQTT{}

// MQTTOptions configure NewMQTT.
type MQTTOptions struct {
	// Broker is a URL such as tcp://localhost:1883.
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// MQTT mirrors published values to retained topics <prefix>/<key>.
//
// Publish never waits for the broker. While the connection is down keys are
// skipped, and a key whose previous message is still unacknowledged is
// skipped too, so at most one message per key is queued in the client.
type MQTT struct {
	client mqtt.Client
	prefix string

	inflight map[string]mqtt.Token
}

// NewMQTT connects to the broker. The client reconnects on its own after
// the initial connection succeeds.
func NewMQTT(opts MQTTOptions) (*MQTT, error) {
	o := mqtt.NewClientOptions()
	o.AddBroker(opts.Broker)
	o.SetClientID(opts.ClientID)
	o.SetUsername(opts.Username)
	o.SetPassword(opts.Password)
	o.SetAutoReconnect(true)
	o.SetConnectRetryInterval(5 * time.Second)
	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logrus.WithError(err).Warn("mqtt connection lost")
	})
	o.SetOnConnectHandler(func(_ mqtt.Client) {
		logrus.WithField("broker", opts.Broker).Info("connected to mqtt broker")
	})

	client := mqtt.NewClient(o)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, pkgerrors.Wrapf(ErrConnectTimeout, "connect to %s", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to connect to %s", opts.Broker)
	}

	return NewMQTTFromClient(client, opts.TopicPrefix), nil
}

// NewMQTTFromClient wraps an existing client.
func NewMQTTFromClient(client mqtt.Client, topicPrefix string) *MQTT {
	return &MQTT{
		client:   client,
		prefix:   strings.TrimSuffix(topicPrefix, "/"),
		inflight: make(map[string]mqtt.Token),
	}
}

// Topic returns the topic key is published to.
func (m *MQTT) Topic(key string) string {
	if m.prefix == "" {
		return key
	}
	return m.prefix + "/" + key
}

// Publish queues value, without its trailing newline, as a retained
// message. Errors of earlier messages for the same key that completed in the
// meantime are returned as well.
func (m *MQTT) Publish(key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	topic := m.Topic(key)

	var prevErr error
	if prev, ok := m.inflight[topic]; ok {
		if !isDone(prev) {
			logrus.WithField("topic", topic).Debug("previous mqtt publish still in flight, skipping")
			return nil
		}
		delete(m.inflight, topic)
		if err := prev.Error(); err != nil {
			prevErr = pkgerrors.Wrapf(err, "failed to publish %s", topic)
		}
	}

	if !m.client.IsConnectionOpen() {
		logrus.WithField("topic", topic).Debug("mqtt not connected, skipping")
		return prevErr
	}

	token := m.client.Publish(topic, mqttQoS, true, strings.TrimRight(value, "\n"))
	if !isDone(token) {
		m.inflight[topic] = token
		return prevErr
	}
	if err := token.Error(); err != nil {
		return pkgerrors.Wrapf(err, "failed to publish %s", topic)
	}

	return prevErr
}

func isDone(t mqtt.Token) bool {
	select {
	case <-t.Done():
		return true
	default:
		return false
	}
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	if m.client.IsConnected() {
		m.client.Disconnect(mqttQuiesceMillis)
		logrus.Info("disconnected from mqtt broker")
	}
	return nil
}
