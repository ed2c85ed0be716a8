package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Client wraps NATS connection with additional functionality
type Client struct {
	conn       *nats.Conn
	js         nats.JetStreamContext
	subs       map[string]*nats.Subscription
	mu         sync.RWMutex
	reconnects int
	connected  bool
}

// Config holds NATS configuration
type Config struct {
	URL            string
	Name           string
	ReconnectWait  time.Duration
	MaxReconnects  int
	ConnectTimeout time.Duration
	// JetStream enables durable publishing with server-side dedup by
	// message id.
	JetStream bool
}

// DefaultConfig returns settings for url
func DefaultConfig(url, name string) Config {
	return Config{
		URL:            url,
		Name:           name,
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1,
		ConnectTimeout: 5 * time.Second,
	}
}

// NewClient creates a new NATS client
func NewClient(cfg Config) (*Client, error) {
	client := &Client{
		subs: make(map[string]*nats.Subscription),
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			client.mu.Lock()
			client.reconnects++
			client.connected = true
			client.mu.Unlock()
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			client.mu.Lock()
			client.connected = false
			client.mu.Unlock()
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	client.conn = conn
	client.connected = true

	if cfg.JetStream {
		js, err := conn.JetStream()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create JetStream context: %w", err)
		}
		client.js = js
	}

	return client, nil
}

// EnsureStream creates the stream capturing subjects unless it exists
func (c *Client) EnsureStream(name string, subjects ...string) error {
	if c.js == nil {
		return fmt.Errorf("JetStream not available")
	}
	if _, err := c.js.StreamInfo(name); err == nil {
		return nil
	}

	_, err := c.js.AddStream(&nats.StreamConfig{
		Name:       name,
		Subjects:   subjects,
		Storage:    nats.FileStorage,
		Duplicates: 10 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// publish sends payload on subject. With JetStream the message id lets the
// server drop redeliveries inside its duplicate window.
func (c *Client) publish(ctx context.Context, subject string, payload []byte, msgID string) error {
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	if c.js != nil {
		_, err := c.js.Publish(subject, payload, nats.MsgId(msgID), nats.Context(ctx))
		return err
	}
	return c.conn.Publish(subject, payload)
}

// Subscribe subscribes to a subject
func (c *Client) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.subs[subject]; exists {
		return fmt.Errorf("already subscribed to %s", subject)
	}

	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	c.subs[subject] = sub
	return nil
}

// QueueSubscribe subscribes to a subject with queue group
func (c *Client) QueueSubscribe(subject, queue string, handler func(msg *nats.Msg)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := subject + ":" + queue
	if _, exists := c.subs[key]; exists {
		return fmt.Errorf("already subscribed to %s with queue %s", subject, queue)
	}

	sub, err := c.conn.QueueSubscribe(subject, queue, handler)
	if err != nil {
		return fmt.Errorf("failed to queue subscribe: %w", err)
	}

	c.subs[key] = sub
	return nil
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.conn != nil && c.conn.IsConnected()
}

// Reconnects returns number of reconnections
func (c *Client) Reconnects() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reconnects
}

// Drain drains the connection
func (c *Client) Drain() error {
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	return c.conn.Drain()
}

// Close closes the client
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		sub.Unsubscribe()
		delete(c.subs, subject)
	}

	if c.conn != nil {
		c.conn.Close()
	}

	c.connected = false
	return nil
}
