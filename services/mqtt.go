package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"firewatch/config"
	"firewatch/store"
)

// MQTTIngest subscribes to the device uplink topic and merges published
// readings into the raw device tree. It stands in for firmware that cannot
// write to the database directly.
type MQTTIngest struct {
	client  mqtt.Client
	devices store.DeviceStore
	logger  *zap.Logger
	topic   string
}

func NewMQTTIngest(cfg *config.Config, devices store.DeviceStore, logger *zap.Logger) (*MQTTIngest, error) {
	ingest := &MQTTIngest{
		devices: devices,
		logger:  logger,
		topic:   cfg.MQTTTopic,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTBrokerURL)
	opts.SetClientID("firewatch-ingest")
	opts.SetUsername(cfg.MQTTUsername)
	opts.SetPassword(cfg.MQTTPassword)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)

	// Subscribing inside OnConnect restores the subscription after a
	// reconnect.
	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", cfg.MQTTBrokerURL))
		if token := client.Subscribe(ingest.topic, 1, ingest.handleMessage); token.Wait() && token.Error() != nil {
			logger.Error("Failed to subscribe to uplink topic",
				zap.String("topic", ingest.topic),
				zap.Error(token.Error()))
		}
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Error("MQTT connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	ingest.client = client
	return ingest, nil
}

func (m *MQTTIngest) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	deviceID := deviceIDFromTopic(msg.Topic())
	if deviceID == "" {
		m.logger.Warn("Uplink message on unexpected topic", zap.String("topic", msg.Topic()))
		return
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(msg.Payload(), &fields); err != nil {
		m.logger.Warn("Failed to unmarshal uplink payload",
			zap.String("device_id", deviceID),
			zap.Error(err))
		return
	}
	delete(fields, "deviceId")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.devices.UpdateDevice(ctx, deviceID, fields); err != nil {
		m.logger.Error("Failed to write uplink payload",
			zap.String("device_id", deviceID),
			zap.Error(err))
		return
	}

	m.logger.Debug("Uplink payload ingested",
		zap.String("device_id", deviceID),
		zap.Int("field_count", len(fields)))
}

// deviceIDFromTopic extracts the device id from devices/<id>/data.
func deviceIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "devices" || parts[2] != "data" {
		return ""
	}
	return parts[1]
}

func (m *MQTTIngest) Close() {
	m.logger.Info("Disconnecting MQTT ingest")
	m.client.Disconnect(250)
}
