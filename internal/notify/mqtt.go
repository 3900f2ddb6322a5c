package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ae-archive/vae/internal/model"
)

const mqttPublishTimeout = 10 * time.Second

// publisher is the part of mqtt.Client the provider needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTConfig configures the MQTT provider.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
	Retained bool
}

// MQTTProvider publishes alarms as JSON on a topic.
type MQTTProvider struct {
	client   publisher
	topic    string
	qos      byte
	retained bool
}

// NewMQTT connects to the broker and returns a provider.
func NewMQTT(cfg MQTTConfig) (*MQTTProvider, error) {
	opts := mqtt.NewClientOptions()
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

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", cfg.Broker, token.Error())
	}
	return newMQTT(client, cfg), nil
}

func newMQTT(client publisher, cfg MQTTConfig) *MQTTProvider {
	return &MQTTProvider{client: client, topic: cfg.Topic, qos: cfg.QoS, retained: cfg.Retained}
}

func (m *MQTTProvider) Name() string { return "mqtt" }

func (m *MQTTProvider) Send(ctx context.Context, n model.Notification) error {
	payload, err := json.Marshal(newAlarm(n))
	if err != nil {
		return fmt.Errorf("mqtt: marshal: %w", err)
	}

	token := m.client.Publish(m.topic, m.qos, m.retained, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("mqtt: publish: %w", ctx.Err())
	case <-time.After(mqttPublishTimeout):
		return fmt.Errorf("mqtt: publish to %s timed out", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish to %s: %w", m.topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (m *MQTTProvider) Close() {
	m.client.Disconnect(250)
}
