package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"facestream-go/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// RecognitionEvent is the JSON payload published for each recognition.
type RecognitionEvent struct {
	SessionID  string    `json:"session_id"`
	TrackID    int       `json:"track_id"`
	UserID     *uint     `json:"user_id,omitempty"`
	UserName   string    `json:"user_name,omitempty"`
	Confidence float64   `json:"confidence"`
	IsUnknown  bool      `json:"is_unknown"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher sends recognition events to an MQTT broker so downstream
// consumers (door controllers, dashboards, automations) can react without
// polling the REST API.
type Publisher struct {
	cfg    config.MQTTConfig
	client mqtt.Client
}

// NewPublisher creates an MQTT publisher from configuration.
func NewPublisher(cfg config.MQTTConfig) *Publisher {
	return &Publisher{cfg: cfg}
}

// Start connects the publisher to the broker. Disabled configuration is not
// an error; Publish simply becomes a no-op.
func (p *Publisher) Start() error {
	if !p.cfg.Enabled {
		log.Info("MQTT publisher is disabled in configuration")
		return nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", p.cfg.Broker, p.cfg.Port))
	opts.SetClientID(p.cfg.ClientID)
	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
		opts.SetPassword(p.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		log.Infof("Connected to MQTT broker %s:%d", p.cfg.Broker, p.cfg.Port)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warnf("MQTT connection lost: %v", err)
	})

	p.client = mqtt.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("timeout connecting to MQTT broker %s:%d", p.cfg.Broker, p.cfg.Port)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return nil
}

// PublishRecognition publishes one recognition event to the configured
// topic. Failures are logged, not propagated: event delivery must never
// stall the frame pipeline.
func (p *Publisher) PublishRecognition(event RecognitionEvent) {
	if p.client == nil || !p.client.IsConnected() {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.WithError(err).Error("Failed to encode recognition event")
		return
	}

	token := p.client.Publish(p.cfg.Topic, 0, false, payload)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			log.WithError(err).Warn("Failed to publish recognition event")
		}
	}()
}

// Stop disconnects from the broker.
func (p *Publisher) Stop() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
		log.Info("MQTT publisher disconnected")
	}
}
