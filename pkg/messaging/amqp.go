package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"intake-server/pkg/extraction"
	"intake-server/pkg/metrics"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// NotificationMessage is the payload handed to downstream notification
// delivery (email/SMS templating lives outside this service).
type NotificationMessage struct {
	CallID     string                      `json:"call_id"`
	TenantID   string                      `json:"tenant_id"`
	Category   string                      `json:"category"`
	Record     *extraction.ExtractedRecord `json:"record,omitempty"`
	LeadAction string                      `json:"lead_action,omitempty"`
	LeadStatus string                      `json:"lead_status,omitempty"`
	Timestamp  time.Time                   `json:"timestamp"`
}

// AMQPConfig holds AMQP client configuration
type AMQPConfig struct {
	URL            string
	QueueName      string
	ConnectTimeout time.Duration
}

// NotificationPublisher publishes intake notifications to an AMQP queue.
// With no URL configured it runs in disabled mode and every publish is a
// logged no-op, so local setups work without a broker.
type NotificationPublisher struct {
	logger    *logrus.Logger
	config    AMQPConfig
	conn      *amqp.Connection
	channel   *amqp.Channel
	connected bool
	connMutex sync.RWMutex
}

// NewNotificationPublisher creates a publisher. Call Connect before use.
func NewNotificationPublisher(logger *logrus.Logger, config AMQPConfig) *NotificationPublisher {
	return &NotificationPublisher{
		logger: logger,
		config: config,
	}
}

// Enabled reports whether a broker is configured at all
func (p *NotificationPublisher) Enabled() bool {
	return p.config.URL != "" && p.config.QueueName != ""
}

// connectTimeout bounds the dial; an unset config falls back to 5s
func (p *NotificationPublisher) connectTimeout() time.Duration {
	if p.config.ConnectTimeout > 0 {
		return p.config.ConnectTimeout
	}
	return 5 * time.Second
}

// Connect establishes the connection and declares the durable queue
func (p *NotificationPublisher) Connect() error {
	p.connMutex.Lock()
	defer p.connMutex.Unlock()

	if p.connected {
		return nil
	}

	if !p.Enabled() {
		p.logger.Warn("AMQP_URL or AMQP_QUEUE_NAME not set, notification publishing disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.connectTimeout())
	defer cancel()

	// amqp.Dial has no context support, so race it against the timeout
	dialChan := make(chan struct {
		conn *amqp.Connection
		err  error
	}, 1)
	go func() {
		conn, err := amqp.Dial(p.config.URL)
		select {
		case dialChan <- struct {
			conn *amqp.Connection
			err  error
		}{conn, err}:
		case <-ctx.Done():
			if conn != nil {
				conn.Close()
			}
		}
	}()

	var conn *amqp.Connection
	select {
	case result := <-dialChan:
		if result.err != nil {
			metrics.RecordAMQPConnectionError("dial")
			return fmt.Errorf("failed to connect to AMQP server: %w", result.err)
		}
		conn = result.conn
	case <-ctx.Done():
		metrics.RecordAMQPConnectionError("dial_timeout")
		return fmt.Errorf("connection to AMQP server timed out")
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		metrics.RecordAMQPConnectionError("channel")
		return fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	_, err = channel.QueueDeclare(
		p.config.QueueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		metrics.RecordAMQPConnectionError("queue_declare")
		return fmt.Errorf("failed to declare AMQP queue: %w", err)
	}

	p.conn = conn
	p.channel = channel
	p.connected = true
	metrics.SetAMQPConnectionStatus(true)

	p.logger.WithFields(logrus.Fields{
		"queue": p.config.QueueName,
	}).Info("Connected to AMQP server")

	return nil
}

// Disconnect closes the channel and connection
func (p *NotificationPublisher) Disconnect() {
	p.connMutex.Lock()
	defer p.connMutex.Unlock()

	if !p.connected {
		return
	}

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}

	p.connected = false
	metrics.SetAMQPConnectionStatus(false)
	p.logger.Info("Disconnected from AMQP server")
}

// IsConnected returns the connection status
func (p *NotificationPublisher) IsConnected() bool {
	p.connMutex.RLock()
	defer p.connMutex.RUnlock()
	return p.connected
}

// Publish sends one notification message as persistent JSON. In disabled
// mode it logs at debug and returns nil; downstream notification loss is an
// acceptable degraded mode, a crashed webhook handler is not.
func (p *NotificationPublisher) Publish(message NotificationMessage) error {
	if !p.Enabled() {
		p.logger.WithField("call_id", message.CallID).
			Debug("Notification publishing disabled, dropping message")
		return nil
	}

	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal notification message: %w", err)
	}

	p.connMutex.RLock()
	defer p.connMutex.RUnlock()

	if !p.connected || p.channel == nil {
		metrics.RecordAMQPPublish(p.config.QueueName, "not_connected")
		return fmt.Errorf("not connected to AMQP server")
	}

	err = p.channel.Publish(
		"",                 // default exchange
		p.config.QueueName, // routing key
		false,              // mandatory
		false,              // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    message.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		metrics.RecordAMQPPublish(p.config.QueueName, "error")
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	metrics.RecordAMQPPublish(p.config.QueueName, "success")
	p.logger.WithFields(logrus.Fields{
		"call_id": message.CallID,
		"queue":   p.config.QueueName,
	}).Debug("Notification published")

	return nil
}
