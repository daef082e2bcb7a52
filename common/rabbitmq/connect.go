package rabbitmq

import (
	"context"
	"time"

	"github.com/Azure/go-amqp"
	"github.com/SUF145/call-geo/common/logger"
)

// ConnectOptions configures the connection behavior
type ConnectOptions struct {
	// MaxRetries is the maximum number of connection attempts (default: 5)
	MaxRetries int
	// EnsureQueues creates DefaultQueues through the management API after connecting
	EnsureQueues bool
	// ManagementURL is required if EnsureQueues is true
	ManagementURL string
	Username      string
	Password      string
}

// DefaultConnectOptions returns sensible defaults
func DefaultConnectOptions() ConnectOptions {
	return ConnectOptions{
		MaxRetries:    5,
		EnsureQueues:  true,
		ManagementURL: "http://rabbitmq:15672",
		Username:      "guest",
		Password:      "guest",
	}
}

// Connect dials RabbitMQ with quadratic back-off and optionally ensures queues.
func Connect(ctx context.Context, amqpURL string, opts *ConnectOptions) (*amqp.Conn, error) {
	if opts == nil {
		defaultOpts := DefaultConnectOptions()
		opts = &defaultOpts
	}

	var lastErr error
	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		conn, err := amqp.Dial(dialCtx, amqpURL, &amqp.ConnOptions{IdleTimeout: 30 * time.Second})
		cancel()
		if err == nil {
			logger.Info("Connected to RabbitMQ")
			if opts.EnsureQueues && opts.ManagementURL != "" {
				if err := ensureDefaultQueues(ctx, opts); err != nil {
					// another service may already have created them
					logger.Warn("Failed to ensure queues exist", "error", err)
				}
			}
			return conn, nil
		}

		lastErr = err
		logger.Info("RabbitMQ not yet ready...", "attempt", attempt, "error", err)
		if attempt == opts.MaxRetries {
			break
		}

		backOff := time.Duration(attempt*attempt) * time.Second
		logger.Info("Backing off...", "duration", backOff)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backOff):
		}
	}
	return nil, lastErr
}

func ensureDefaultQueues(ctx context.Context, opts *ConnectOptions) error {
	client := NewManagementClient(ConnectionConfig{
		ManagementURL: opts.ManagementURL,
		Username:      opts.Username,
		Password:      opts.Password,
	})
	return client.EnsureQueues(ctx, DefaultQueues()...)
}
