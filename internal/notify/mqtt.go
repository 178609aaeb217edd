package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	maxPayloadSize        = 1 << 20
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
)

// MQTTConfig holds broker settings for the MQTT sink.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// publisher is the subset of pahomqtt.Client used by the sink.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

// MQTTSink publishes notifications to an MQTT broker for real-time app delivery.
type MQTTSink struct {
	client  publisher
	qos     byte
	timeout time.Duration
	closeFn func()
}

// DialMQTT connects to the broker and returns a ready sink.
func DialMQTT(cfg MQTTConfig) (*MQTTSink, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt sink: empty broker")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt sink: invalid qos %d", cfg.QoS)
	}
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(defaultConnectTimeout)

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("mqtt sink: connect timeout after %v", defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt sink: connect: %w", err)
	}
	sink := newMQTTSink(client, cfg.QoS)
	sink.closeFn = func() { client.Disconnect(250) }
	return sink, nil
}

func newMQTTSink(client publisher, qos byte) *MQTTSink {
	return &MQTTSink{client: client, qos: qos, timeout: defaultPublishTimeout}
}

// Publish sends payload on topic and waits for the broker acknowledgement.
func (s *MQTTSink) Publish(ctx context.Context, topic string, payload []byte) error {
	if s == nil || s.client == nil {
		return errors.New("mqtt sink: not connected")
	}
	if topic == "" {
		return errors.New("mqtt sink: empty topic")
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("mqtt sink: payload size %d exceeds maximum %d bytes", len(payload), maxPayloadSize)
	}
	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	token := s.client.Publish(topic, s.qos, false, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt sink: publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt sink: publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() {
	if s != nil && s.closeFn != nil {
		s.closeFn()
	}
}
