package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"firewatch/config"
	"firewatch/store"
)

// RabbitMQIngest consumes device readings from a queue and merges them into
// the raw device tree. It is the second gateway path next to MQTT, for
// deployments that bridge firmware through a broker.
type RabbitMQIngest struct {
	config    *config.Config
	conn      *amqp.Connection
	channel   *amqp.Channel
	devices   store.DeviceStore
	logger    *zap.Logger
	reconnect chan bool
	isClosing bool
}

func NewRabbitMQIngest(cfg *config.Config, devices store.DeviceStore, logger *zap.Logger) (*RabbitMQIngest, error) {
	ingest := &RabbitMQIngest{
		config:    cfg,
		devices:   devices,
		logger:    logger,
		reconnect: make(chan bool),
	}
	if err := ingest.connect(); err != nil {
		return nil, err
	}
	return ingest, nil
}

// connect establishes connection to RabbitMQ and declares exchange and queue
func (r *RabbitMQIngest) connect() error {
	var err error

	r.logger.Info("Connecting to RabbitMQ", zap.String("url", r.config.RabbitMQURL))

	maxRetries := 5
	for attempt := 1; attempt <= maxRetries; attempt++ {
		r.conn, err = amqp.Dial(r.config.RabbitMQURL)
		if err == nil {
			break
		}

		r.logger.Warn("Failed to connect to RabbitMQ",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * 2 * time.Second)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
	}

	r.channel, err = r.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err = r.channel.Qos(10, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	err = r.channel.ExchangeDeclare(
		r.config.RabbitMQExchange, // name
		"direct",                  // type
		true,                      // durable
		false,                     // auto-deleted
		false,                     // internal
		false,                     // no-wait
		nil,                       // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	queue, err := r.channel.QueueDeclare(
		r.config.RabbitMQQueue, // name
		true,                   // durable
		false,                  // delete when unused
		false,                  // exclusive
		false,                  // no-wait
		nil,                    // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	err = r.channel.QueueBind(
		queue.Name,
		r.config.RabbitMQQueue,
		r.config.RabbitMQExchange,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	r.logger.Info("Queue bound to exchange",
		zap.String("queue", queue.Name),
		zap.String("exchange", r.config.RabbitMQExchange))

	go r.handleReconnect()

	return nil
}

// handleReconnect handles automatic reconnection when connection is lost
func (r *RabbitMQIngest) handleReconnect() {
	closeErr := <-r.conn.NotifyClose(make(chan *amqp.Error))
	if r.isClosing {
		r.logger.Info("RabbitMQ connection closed gracefully")
		return
	}

	r.logger.Error("RabbitMQ connection lost", zap.Error(closeErr))

	for {
		r.logger.Info("Attempting to reconnect to RabbitMQ...")
		err := r.connect()
		if err == nil {
			r.logger.Info("Successfully reconnected to RabbitMQ")
			r.reconnect <- true
			return
		}
		r.logger.Error("Failed to reconnect", zap.Error(err))
		time.Sleep(5 * time.Second)
	}
}

// Consume processes queued readings until the context is cancelled.
func (r *RabbitMQIngest) Consume(ctx context.Context) error {
	for {
		msgs, err := r.channel.Consume(
			r.config.RabbitMQQueue, // queue
			"firewatch-ingest",     // consumer tag
			false,                  // auto-ack
			false,                  // exclusive
			false,                  // no-local
			false,                  // no-wait
			nil,                    // args
		)
		if err != nil {
			return fmt.Errorf("failed to register consumer: %w", err)
		}

		r.logger.Info("Started consuming readings from RabbitMQ",
			zap.String("queue", r.config.RabbitMQQueue))

	consumeLoop:
		for {
			select {
			case <-ctx.Done():
				r.logger.Info("Stopping RabbitMQ consumer")
				return nil

			case <-r.reconnect:
				r.logger.Info("Reconnection detected, restarting consumer")
				break consumeLoop

			case msg, ok := <-msgs:
				if !ok {
					r.logger.Warn("Message channel closed")
					time.Sleep(1 * time.Second)
					break consumeLoop
				}

				if err := r.processMessage(ctx, msg); err != nil {
					r.logger.Error("Failed to process message",
						zap.Error(err),
						zap.String("message_id", msg.MessageId))
					msg.Nack(false, true)
				} else {
					msg.Ack(false)
				}
			}
		}
	}
}

// processMessage merges one queued reading into the device tree.
func (r *RabbitMQIngest) processMessage(ctx context.Context, msg amqp.Delivery) error {
	var fields map[string]interface{}
	if err := json.Unmarshal(msg.Body, &fields); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	deviceID, _ := fields["deviceId"].(string)
	if deviceID == "" {
		return fmt.Errorf("invalid reading: missing deviceId")
	}
	delete(fields, "deviceId")

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := r.devices.UpdateDevice(writeCtx, deviceID, fields); err != nil {
		return fmt.Errorf("failed to write reading: %w", err)
	}

	r.logger.Debug("Queued reading ingested",
		zap.String("device_id", deviceID),
		zap.Int("field_count", len(fields)))
	return nil
}

// Close gracefully closes RabbitMQ connection
func (r *RabbitMQIngest) Close() error {
	r.isClosing = true

	r.logger.Info("Closing RabbitMQ connection")

	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			r.logger.Error("Error closing channel", zap.Error(err))
		}
	}
	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			r.logger.Error("Error closing connection", zap.Error(err))
			return err
		}
	}

	r.logger.Info("RabbitMQ connection closed")
	return nil
}
