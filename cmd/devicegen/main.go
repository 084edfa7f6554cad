package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

var (
	deviceID   = flag.String("device", "DEVICE_010", "Device ID for mock data")
	legacy     = flag.Bool("legacy", false, "Emit the legacy flat field schema instead of the nested one")
	alertProb  = flag.Float64("alert", 0.05, "Probability of an alert condition (0.0-1.0)")
	interval   = flag.Duration("interval", 5*time.Second, "Publish interval")
	mqttBroker = flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
	mqttUser   = flag.String("user", "", "MQTT username")
	mqttPass   = flag.String("pass", "", "MQTT password")
)

// MockDeviceGenerator produces raw device payloads in either firmware
// schema generation.
type MockDeviceGenerator struct {
	deviceID     string
	legacy       bool
	alertProb    float64
	baseTemp     float64
	baseHumidity float64
}

func NewMockDeviceGenerator(deviceID string, legacy bool, alertProb float64) *MockDeviceGenerator {
	return &MockDeviceGenerator{
		deviceID:     deviceID,
		legacy:       legacy,
		alertProb:    alertProb,
		baseTemp:     27.0,
		baseHumidity: 60.0,
	}
}

// GeneratePayload builds one raw device document write.
func (m *MockDeviceGenerator) GeneratePayload() map[string]interface{} {
	now := time.Now().UnixMilli()
	isAlert := rand.Float64() < m.alertProb

	temperature := math.Round((m.baseTemp+rand.Float64()*4.0-2.0)*10) / 10
	humidity := math.Round((m.baseHumidity+rand.Float64()*10.0-5.0)*10) / 10

	gasStatus := "normal"
	smoke := 200.0 + rand.Float64()*300.0
	smokeDetected := false
	if isAlert {
		switch r := rand.Float64(); {
		case r < 0.4:
			gasStatus = "detected"
		case r < 0.6:
			gasStatus = "critical"
		default:
			smoke = 1600.0 + rand.Float64()*800.0
			smokeDetected = true
		}
	}

	if m.legacy {
		return map[string]interface{}{
			"temperature": temperature,
			"humidity":    humidity,
			"smokeLevel":  math.Round(smoke),
			"gasStatus":   gasStatus,
			"timestamp":   now,
			"lastSeen":    now,
		}
	}
	return map[string]interface{}{
		"dht": map[string]interface{}{
			"temperature": temperature,
			"humidity":    humidity,
			"timestamp":   now,
		},
		"mq2": map[string]interface{}{
			"value":     math.Round(smoke),
			"timestamp": now,
		},
		"mq2_do": map[string]interface{}{
			"smokeDetected": smokeDetected,
			"timestamp":     now,
		},
		"gasStatus": gasStatus,
		"lastSeen":  now,
	}
}

func main() {
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	topic := fmt.Sprintf("devices/%s/data", *deviceID)

	logger.Info("Mock device generator started",
		zap.String("device_id", *deviceID),
		zap.Bool("legacy_schema", *legacy),
		zap.Float64("alert_probability", *alertProb),
		zap.String("broker", *mqttBroker),
		zap.String("topic", topic),
	)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(*mqttBroker)
	opts.SetClientID(fmt.Sprintf("%s-generator", *deviceID))
	opts.SetUsername(*mqttUser)
	opts.SetPassword(*mqttPass)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", *mqttBroker))
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Error("MQTT connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		logger.Fatal("Failed to connect to MQTT broker", zap.Error(token.Error()))
	}
	defer client.Disconnect(250)

	gen := NewMockDeviceGenerator(*deviceID, *legacy, *alertProb)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	published := 0
	for {
		select {
		case <-sigChan:
			logger.Info("Shutting down", zap.Int("published", published))
			return
		case <-ticker.C:
			payload := gen.GeneratePayload()
			body, err := json.Marshal(payload)
			if err != nil {
				logger.Error("Failed to marshal payload", zap.Error(err))
				continue
			}
			if token := client.Publish(topic, 1, false, body); token.Wait() && token.Error() != nil {
				logger.Error("Failed to publish payload", zap.Error(token.Error()))
				continue
			}
			published++
			logger.Debug("Published payload",
				zap.String("topic", topic),
				zap.Int("published", published))
		}
	}
}
