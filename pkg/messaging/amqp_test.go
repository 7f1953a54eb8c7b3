package messaging

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestConnectTimeoutFromConfig(t *testing.T) {
	publisher := NewNotificationPublisher(testLogger(), AMQPConfig{
		URL:            "amqp://localhost:5672",
		QueueName:      "notifications",
		ConnectTimeout: 2 * time.Second,
	})

	assert.Equal(t, 2*time.Second, publisher.connectTimeout())
}

func TestConnectTimeoutDefault(t *testing.T) {
	publisher := NewNotificationPublisher(testLogger(), AMQPConfig{
		URL:       "amqp://localhost:5672",
		QueueName: "notifications",
	})

	assert.Equal(t, 5*time.Second, publisher.connectTimeout())
}

func TestDisabledPublisherDropsMessages(t *testing.T) {
	publisher := NewNotificationPublisher(testLogger(), AMQPConfig{})

	assert.False(t, publisher.Enabled())
	require.NoError(t, publisher.Connect())
	assert.False(t, publisher.IsConnected())

	err := publisher.Publish(NotificationMessage{CallID: "call-1"})
	assert.NoError(t, err, "disabled mode must be a no-op, not a failure")
}
