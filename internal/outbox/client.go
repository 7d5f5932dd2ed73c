package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/corkboardapp/corkboard/internal/protocol"
)

// Backoff constants for reconnection
const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2
)

// calculateBackoff returns the delay for a given attempt number using exponential backoff
func calculateBackoff(attempt int) time.Duration {
	delay := initialBackoff
	for i := 0; i < attempt; i++ {
		delay *= backoffFactor
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// wsConn is the subset of *websocket.Conn the client needs. Tests
// substitute an in-memory fake.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (int, []byte, error)
	Close() error
}

// ClientConfig configures the outbox client.
type ClientConfig struct {
	ServerURL     string
	Outbox        *Outbox
	FlushInterval time.Duration
	FlushLimit    int
}

// Validate checks the config is valid.
func (c *ClientConfig) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	if c.Outbox == nil {
		return fmt.Errorf("outbox is required")
	}
	return nil
}

// Client connects an outbox to a board actor over WebSocket and drains
// pending mutations into it.
type Client struct {
	config ClientConfig
	outbox *Outbox

	mu       sync.Mutex // guards conn and clientID
	conn     wsConn
	clientID string

	// flushMu serializes flush passes. Concurrent Flush callers are
	// safe: the second pass just finds whatever the first one left.
	flushMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient creates an outbox client.
func NewClient(config ClientConfig) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 5 * time.Second
	}
	if config.FlushLimit <= 0 {
		config.FlushLimit = 50
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		config: config,
		outbox: config.Outbox,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Enqueue durably records a mutation, then attempts immediate delivery
// if a connection is live. The mutation survives either way.
func (c *Client) Enqueue(sqlText string, params []any) error {
	if _, err := c.outbox.Enqueue(sqlText, params); err != nil {
		return err
	}
	if err := c.Flush(); err != nil {
		log.Printf("immediate flush failed, mutation stays queued: %v", err)
	}
	return nil
}

// Flush sends pending mutations in creation order. A mutation is
// removed only after the transport confirms the send, so a failure
// mid-pass leaves the remainder queued for the next attempt.
func (c *Client) Flush() error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	pending, err := c.outbox.Pending(c.config.FlushLimit)
	if err != nil {
		return err
	}

	for _, m := range pending {
		if err := c.send(m); err != nil {
			return fmt.Errorf("sending mutation %s: %w", m.ID, err)
		}
		if err := c.outbox.MarkSynced(m.ID); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) send(m *Mutation) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	frame := protocol.NewExecuteSQL(m.SQL, m.Params, c.clientID)
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Connect dials the board actor.
func (c *Client) Connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.config.ServerURL, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Run reads frames until the connection drops. The CLIENT_ID frame
// assigns our session identity; result and error frames are logged.
func (c *Client) Run() error {
	for {
		select {
		case <-c.ctx.Done():
			return nil
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return fmt.Errorf("not connected")
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}

		frameType, err := protocol.FrameType(message)
		if err != nil {
			log.Printf("invalid frame: %v", err)
			continue
		}

		switch frameType {
		case protocol.TypeClientID:
			var frame protocol.ClientIDFrame
			if err := json.Unmarshal(message, &frame); err != nil {
				log.Printf("invalid client id frame: %v", err)
				continue
			}
			c.mu.Lock()
			c.clientID = frame.ID
			c.mu.Unlock()

		case protocol.TypeError:
			var frame protocol.ErrorFrame
			if err := json.Unmarshal(message, &frame); err != nil {
				continue
			}
			log.Printf("server rejected a write: %s", frame.Message)
		}
	}
}

// RunWithReconnect connects with exponential backoff and keeps the
// outbox drained: an immediate flush on every reconnect, plus a
// periodic flush as a safety net while connected.
func (c *Client) RunWithReconnect() error {
	attempt := 0

	ticker := time.NewTicker(c.config.FlushInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-c.ctx.Done():
				return
			case <-ticker.C:
				if err := c.Flush(); err != nil {
					log.Printf("periodic flush: %v", err)
				}
			}
		}
	}()

	for {
		select {
		case <-c.ctx.Done():
			return nil
		default:
		}

		err := c.Connect()
		if err != nil {
			delay := calculateBackoff(attempt)
			log.Printf("connection failed: %v, retrying in %v", err, delay)
			attempt++

			select {
			case <-c.ctx.Done():
				return nil
			case <-time.After(delay):
				continue
			}
		}

		// Connected - reset backoff, drain whatever accumulated offline
		attempt = 0
		log.Printf("connected to board actor")
		if err := c.Flush(); err != nil {
			log.Printf("flush on reconnect: %v", err)
		}

		err = c.Run()

		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.mu.Unlock()

		if err != nil {
			log.Printf("disconnected: %v", err)
		}
	}
}

// Stop gracefully shuts down the client.
func (c *Client) Stop() {
	c.cancel()
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
}
