package socketserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/stefanhoelzl/codehydra-sub002/internal/logger"
)

// Client represents a connected socket client
type Client struct {
	// Connection identifier
	ID string

	// Socket connection
	conn net.Conn

	// Hub reference
	hub *Hub

	// Dispatcher for operation requests
	dispatcher *Dispatcher

	// Outbound message channel
	send chan *BaseMessage

	// Control
	mu       sync.Mutex
	closed   bool
	stopOnce sync.Once
	stopChan chan struct{}

	log *logger.Logger
}

// NewClient creates a new client instance
func NewClient(id string, conn net.Conn, hub *Hub, dispatcher *Dispatcher, log *logger.Logger) *Client {
	return &Client{
		ID:         id,
		conn:       conn,
		hub:        hub,
		dispatcher: dispatcher,
		send:       make(chan *BaseMessage, 256),
		stopChan:   make(chan struct{}),
		log:        log,
	}
}

// Start begins reading from and writing to the client connection
func (c *Client) Start() {
	c.hub.RegisterClient(c)

	go c.readPump()
	go c.writePump()

	c.log.Debug("Client %s started read/write pumps", c.ID)
}

// Stop gracefully stops the client
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)

		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.hub.UnregisterClient(c)

		if c.conn != nil {
			c.conn.Close()
		}

		c.log.Debug("Client %s stopped", c.ID)
	})
}

// Close is an alias for Stop
func (c *Client) Close() {
	c.Stop()
}

// Send queues a message for delivery to this client
func (c *Client) Send(msg *BaseMessage) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	select {
	case c.send <- msg:
	case <-c.stopChan:
	}
}

// readPump reads newline-delimited JSON messages from the connection
func (c *Client) readPump() {
	defer c.Stop()

	reader := bufio.NewReader(c.conn)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.log.Debug("Client %s disconnected (EOF)", c.ID)
			} else if errors.Is(err, net.ErrClosed) {
				c.log.Debug("Client %s connection closed", c.ID)
			} else {
				c.log.Error("Error reading from client %s: %v", c.ID, err)
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var msg BaseMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			c.log.Warn("Failed to parse message from client %s: %v", c.ID, err)
			c.Send(NewError("", ErrorCodeInvalidRequest, "invalid JSON format"))
			continue
		}

		resp := c.dispatcher.Dispatch(context.Background(), &msg)
		c.Send(resp)

		if msg.Type == MessageTypeClose {
			// Give the write pump a chance to flush the acknowledgement
			deadline := time.Now().Add(time.Second)
			for len(c.send) > 0 && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			time.Sleep(10 * time.Millisecond)
			return
		}
	}
}

// writePump writes queued messages to the connection
func (c *Client) writePump() {
	writer := bufio.NewWriter(c.conn)

	for {
		select {
		case msg := <-c.send:
			data, err := json.Marshal(msg)
			if err != nil {
				c.log.Error("Failed to serialize message for client %s: %v", c.ID, err)
				continue
			}
			data = append(data, '\n')
			if _, err := writer.Write(data); err != nil {
				c.log.Debug("Write to client %s failed: %v", c.ID, err)
				c.Stop()
				return
			}
			if err := writer.Flush(); err != nil {
				c.log.Debug("Flush to client %s failed: %v", c.ID, err)
				c.Stop()
				return
			}

		case <-c.stopChan:
			// Drain anything queued before the stop
			for {
				select {
				case msg := <-c.send:
					if data, err := json.Marshal(msg); err == nil {
						writer.Write(append(data, '\n'))
					}
				default:
					writer.Flush()
					return
				}
			}
		}
	}
}
