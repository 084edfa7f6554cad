package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	FirebaseDbUrl              string
	FirebaseProjectID          string
	FirebaseServiceAccountJSON string

	HTTPAddr string

	MQTTBrokerURL string
	MQTTUsername  string
	MQTTPassword  string
	MQTTTopic     string

	RabbitMQURL      string
	RabbitMQExchange string
	RabbitMQQueue    string

	TelegramBotToken string
	TelegramChatID   string

	RedisAddr string

	// Thresholds for status and online-state rules
	OfflineThreshold     time.Duration
	SensorStaleThreshold time.Duration
	SweepInterval        time.Duration
	PollInterval         time.Duration
	HistoryCap           int
	SmokeAnalogThreshold float64
	AlertCooldown        time.Duration
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	config := &Config{
		FirebaseDbUrl:              getEnv("FIREBASE_DB_URL", ""),
		FirebaseProjectID:          getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseServiceAccountJSON: getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),

		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		MQTTBrokerURL: getEnv("MQTT_BROKER_URL", ""),
		MQTTUsername:  getEnv("MQTT_USERNAME", ""),
		MQTTPassword:  getEnv("MQTT_PASSWORD", ""),
		MQTTTopic:     getEnv("MQTT_TOPIC", "devices/+/data"),

		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQExchange: getEnv("RABBITMQ_EXCHANGE", "firewatch"),
		RabbitMQQueue:    getEnv("RABBITMQ_QUEUE", "device_readings"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		RedisAddr: getEnv("REDIS_ADDR", ""),

		// Default thresholds - can be overridden by env vars
		OfflineThreshold:     getEnvDuration("OFFLINE_THRESHOLD", 2*time.Minute),
		SensorStaleThreshold: getEnvDuration("SENSOR_STALE_THRESHOLD", 10*time.Minute),
		SweepInterval:        getEnvDuration("SWEEP_INTERVAL", 1*time.Minute),
		PollInterval:         getEnvDuration("POLL_INTERVAL", 3*time.Second),
		HistoryCap:           getEnvInt("HISTORY_CAP", 5),
		SmokeAnalogThreshold: getEnvFloat("SMOKE_ANALOG_THRESHOLD", 1500),
		AlertCooldown:        getEnvDuration("ALERT_COOLDOWN", 2*time.Minute),
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
