package env

import (
	"fmt"
	"strings"
)

// RabbitMQURL returns the AMQP connection string built from split env vars.
// RABBITMQ_URL takes precedence when set.
func RabbitMQURL() string {
	if url := Get("RABBITMQ_URL", ""); url != "" {
		return url
	}

	host := Get("RABBITMQ_HOST", "rabbitmq")
	port := Get("RABBITMQ_PORT", "5672")
	user := Get("RABBITMQ_USER", "guest")
	password := Get("RABBITMQ_PASSWORD", "guest")
	vhost := Get("RABBITMQ_VHOST", "/")

	// "/" stays root; custom names must not be double-prefixed.
	trimmed := strings.TrimPrefix(vhost, "/")
	if trimmed == "" {
		return fmt.Sprintf("amqp://%s:%s@%s:%s/", user, password, host, port)
	}

	return fmt.Sprintf("amqp://%s:%s@%s:%s/%s", user, password, host, port, trimmed)
}

// RabbitMQManagementURL returns the base URL of the management HTTP API.
func RabbitMQManagementURL() string {
	if url := Get("RABBITMQ_MANAGEMENT_URL", ""); url != "" {
		return url
	}
	return fmt.Sprintf("http://%s:%s", Get("RABBITMQ_HOST", "rabbitmq"), Get("RABBITMQ_MANAGEMENT_PORT", "15672"))
}
