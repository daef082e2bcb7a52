package rabbitmq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/SUF145/call-geo/common/logger"
)

// QueueConfig represents queue configuration
type QueueConfig struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Arguments  map[string]interface{}
}

// ConnectionConfig holds management API details
type ConnectionConfig struct {
	// Management API URL (http://localhost:15672)
	ManagementURL string
	Username      string
	Password      string
	// Virtual host (default "/")
	VHost string
}

// Client talks to the RabbitMQ management API.
type Client struct {
	config     ConnectionConfig
	httpClient *http.Client
}

// NewManagementClient returns a Client for queue administration.
func NewManagementClient(config ConnectionConfig) *Client {
	if config.VHost == "" {
		config.VHost = "/"
	}
	return &Client{config: config}
}

// EnsureQueue creates queue if it doesn't exist using Management HTTP API
// This is necessary because AMQP 1.0 doesn't support queue declaration
func (c *Client) EnsureQueue(ctx context.Context, queue QueueConfig) error {
	// URL encode the vhost (/ becomes %2F)
	encodedVHost := url.PathEscape(c.config.VHost)

	apiURL := fmt.Sprintf("%s/api/queues/%s/%s",
		c.config.ManagementURL,
		encodedVHost,
		url.PathEscape(queue.Name),
	)

	body := map[string]interface{}{
		"durable":     queue.Durable,
		"auto_delete": queue.AutoDelete,
	}
	if queue.Arguments != nil {
		body["arguments"] = queue.Arguments
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal queue config: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, apiURL, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.SetBasicAuth(c.config.Username, c.config.Password)
	req.Header.Set("Content-Type", "application/json")

	client := c.httpClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call management API: %w", err)
	}
	defer resp.Body.Close()

	// 201 = created, 204 = already exists (no change)
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("failed to create queue: HTTP %d", resp.StatusCode)
	}

	return nil
}

// EnsureQueues creates multiple queues
func (c *Client) EnsureQueues(ctx context.Context, queues ...QueueConfig) error {
	for _, q := range queues {
		if err := c.EnsureQueue(ctx, q); err != nil {
			return fmt.Errorf("failed to ensure queue %s: %w", q.Name, err)
		}
		logger.Info("Ensured queue exists", "queue", q.Name)
	}
	return nil
}
