// Package socketclient implements the Go client for the persistent-socket
// protocol front. Editor extensions and tooling use it to talk to the bridge
// daemon over newline-delimited JSON on a Unix socket.
package socketclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/stefanhoelzl/codehydra-sub002/internal/socketserver"
	"github.com/stefanhoelzl/codehydra-sub002/internal/workspace"
)

// ConnectionState represents the current state of the socket connection
type ConnectionState int

const (
	// StateDisconnected indicates the client is not connected
	StateDisconnected ConnectionState = iota
	// StateConnecting indicates the client is attempting to connect
	StateConnecting
	// StateConnected indicates the client is connected
	StateConnected
	// StateClosed indicates the client has been closed
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// OperationError is a failed operation envelope surfaced as a Go error
type OperationError struct {
	Code    string
	Message string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Config holds client configuration
type Config struct {
	// SocketPath is the path to the Unix socket
	SocketPath string
	// ConnectTimeout is the timeout for the initial connection
	ConnectTimeout time.Duration
	// RequestTimeout is the default timeout for requests
	RequestTimeout time.Duration
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		ConnectTimeout: 10 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// Client is a connection to the bridge daemon's socket front. Requests are
// correlated with responses through generated request IDs, so a single
// connection can carry concurrent operations.
type Client struct {
	config *Config

	conn   net.Conn
	connMu sync.RWMutex
	state  atomic.Int32 // ConnectionState

	outgoing chan *socketserver.BaseMessage

	// Request tracking
	pendingRequests map[string]chan *socketserver.BaseMessage
	requestMu       sync.Mutex

	// Server-initiated notifications
	workspaceRemovedCallback func(path string)
	callbackMu               sync.RWMutex

	// Lifecycle
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewClient creates a new socket client for the given socket path
func NewClient(socketPath string) (*Client, error) {
	config := DefaultConfig()
	config.SocketPath = socketPath
	return NewClientWithConfig(config)
}

// NewClientWithConfig creates a new socket client with custom configuration
func NewClientWithConfig(config *Config) (*Client, error) {
	if config.SocketPath == "" {
		return nil, errors.New("socket path is required")
	}

	client := &Client{
		config:          config,
		outgoing:        make(chan *socketserver.BaseMessage, 256),
		pendingRequests: make(map[string]chan *socketserver.BaseMessage),
		stopCh:          make(chan struct{}),
	}
	client.state.Store(int32(StateDisconnected))

	return client, nil
}

// expandPath expands ~ to the home directory
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return home + path[1:]
		}
	}
	return path
}

// Connect connects to the socket server
func (c *Client) Connect(ctx context.Context) error {
	if c.getState() != StateDisconnected {
		return errors.New("already connected")
	}
	c.setState(StateConnecting)

	socketPath := expandPath(c.config.SocketPath)
	dialer := net.Dialer{Timeout: c.config.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("failed to connect to socket %s: %w", socketPath, err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	go c.readPump()
	go c.writePump()

	c.setState(StateConnected)

	return nil
}

func (c *Client) getState() ConnectionState {
	return ConnectionState(c.state.Load())
}

func (c *Client) setState(state ConnectionState) {
	c.state.Store(int32(state))
}

// State returns the current connection state
func (c *Client) State() ConnectionState {
	return c.getState()
}

// OnWorkspaceRemoved registers a callback for workspace removal notifications
func (c *Client) OnWorkspaceRemoved(fn func(path string)) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.workspaceRemovedCallback = fn
}

// Disconnect performs the close handshake and then tears down the connection
func (c *Client) Disconnect(ctx context.Context) error {
	if c.getState() == StateConnected {
		msg := socketserver.NewMessage(socketserver.MessageTypeClose)
		msg.RequestID = uuid.NewString()
		// Best effort: the server closes the connection after acking
		if _, err := c.roundTrip(ctx, msg); err != nil && !errors.Is(err, net.ErrClosed) {
			return c.Close()
		}
	}
	return c.Close()
}

// Close immediately closes the connection
func (c *Client) Close() error {
	c.stopOnce.Do(func() {
		c.setState(StateClosed)
		close(c.stopCh)

		c.connMu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.connMu.Unlock()

		// Fail all in-flight requests
		c.requestMu.Lock()
		for id, ch := range c.pendingRequests {
			close(ch)
			delete(c.pendingRequests, id)
		}
		c.requestMu.Unlock()
	})

	return nil
}

// roundTrip sends a request and waits for its correlated response
func (c *Client) roundTrip(ctx context.Context, msg *socketserver.BaseMessage) (*socketserver.BaseMessage, error) {
	if c.getState() != StateConnected {
		return nil, errors.New("not connected")
	}
	if msg.RequestID == "" {
		msg.RequestID = uuid.NewString()
	}

	respCh := make(chan *socketserver.BaseMessage, 1)
	c.requestMu.Lock()
	c.pendingRequests[msg.RequestID] = respCh
	c.requestMu.Unlock()

	defer func() {
		c.requestMu.Lock()
		delete(c.pendingRequests, msg.RequestID)
		c.requestMu.Unlock()
	}()

	select {
	case c.outgoing <- msg:
	case <-c.stopCh:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	timeout := c.config.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-respCh:
		if !ok {
			return nil, net.ErrClosed
		}
		return resp, nil
	case <-c.stopCh:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("request %s timed out after %s", msg.RequestID, timeout)
	}
}

// readPump reads newline-delimited JSON messages from the connection
func (c *Client) readPump() {
	defer c.Close()

	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return
	}

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}

		var msg socketserver.BaseMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			continue
		}

		c.dispatchIncoming(&msg)
	}
}

// dispatchIncoming routes a message to its pending request or notification
// callback
func (c *Client) dispatchIncoming(msg *socketserver.BaseMessage) {
	if msg.RequestID != "" {
		c.requestMu.Lock()
		ch, ok := c.pendingRequests[msg.RequestID]
		if ok {
			delete(c.pendingRequests, msg.RequestID)
		}
		c.requestMu.Unlock()
		if ok {
			ch <- msg
			return
		}
	}

	if msg.Type == socketserver.MessageTypeWorkspaceRemoved {
		var payload struct {
			Workspace string `json:"workspace"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return
		}
		c.callbackMu.RLock()
		fn := c.workspaceRemovedCallback
		c.callbackMu.RUnlock()
		if fn != nil {
			fn(payload.Workspace)
		}
	}
}

// writePump writes queued messages to the connection
func (c *Client) writePump() {
	for {
		select {
		case msg := <-c.outgoing:
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()
			if conn == nil {
				return
			}
			if _, err := conn.Write(append(data, '\n')); err != nil {
				return
			}

		case <-c.stopCh:
			return
		}
	}
}

// request performs an operation round trip and decodes the result envelope
func (c *Client) request(ctx context.Context, msgType string, payload socketserver.RequestPayload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to serialize request: %w", err)
	}

	msg := socketserver.NewMessage(msgType)
	msg.Data = data

	resp, err := c.roundTrip(ctx, msg)
	if err != nil {
		return err
	}

	if resp.Type == socketserver.MessageTypeError {
		if resp.Error != nil {
			return &OperationError{Code: resp.Error.Code, Message: resp.Error.Message}
		}
		return errors.New("server rejected the request")
	}

	var env struct {
		Success bool                 `json:"success"`
		Data    json.RawMessage      `json:"data"`
		Error   *workspace.ErrorInfo `json:"error"`
	}
	if err := json.Unmarshal(resp.Data, &env); err != nil {
		return fmt.Errorf("failed to decode response envelope: %w", err)
	}

	if !env.Success {
		if env.Error != nil {
			return &OperationError{Code: env.Error.Code, Message: env.Error.Message}
		}
		return errors.New("operation failed")
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}

	return nil
}

// Ping checks connection liveness
func (c *Client) Ping(ctx context.Context) error {
	msg := socketserver.NewMessage(socketserver.MessageTypePing)
	resp, err := c.roundTrip(ctx, msg)
	if err != nil {
		return err
	}
	if resp.Type != socketserver.MessageTypePong {
		return fmt.Errorf("expected pong, got %s", resp.Type)
	}
	return nil
}

// GetStatus returns the git status of the workspace at the given path
func (c *Client) GetStatus(ctx context.Context, workspacePath string) (workspace.Status, error) {
	var status workspace.Status
	err := c.request(ctx, socketserver.MessageTypeWorkspaceStatus, socketserver.RequestPayload{
		Workspace: workspacePath,
	}, &status)
	return status, err
}

// GetMetadata returns the metadata attached to the workspace
func (c *Client) GetMetadata(ctx context.Context, workspacePath string) (workspace.Metadata, error) {
	var meta workspace.Metadata
	err := c.request(ctx, socketserver.MessageTypeMetadataGet, socketserver.RequestPayload{
		Workspace: workspacePath,
	}, &meta)
	return meta, err
}

// SetMetadata replaces the metadata attached to the workspace
func (c *Client) SetMetadata(ctx context.Context, workspacePath string, meta map[string]string) error {
	return c.request(ctx, socketserver.MessageTypeMetadataSet, socketserver.RequestPayload{
		Workspace: workspacePath,
		Metadata:  meta,
	}, nil)
}

// Delete removes the workspace at the given path
func (c *Client) Delete(ctx context.Context, workspacePath string) error {
	return c.request(ctx, socketserver.MessageTypeWorkspaceDelete, socketserver.RequestPayload{
		Workspace: workspacePath,
	}, nil)
}

// ExecuteCommand runs an editor command in the workspace
func (c *Client) ExecuteCommand(ctx context.Context, workspacePath, command string) (workspace.CommandResult, error) {
	var result workspace.CommandResult
	err := c.request(ctx, socketserver.MessageTypeExecuteCommand, socketserver.RequestPayload{
		Workspace: workspacePath,
		Command:   command,
	}, &result)
	return result, err
}

// Create creates a sibling workspace in the caller's project
func (c *Client) Create(ctx context.Context, workspacePath string, opts workspace.CreateOptions) (workspace.CreateResult, error) {
	var result workspace.CreateResult
	err := c.request(ctx, socketserver.MessageTypeWorkspaceCreate, socketserver.RequestPayload{
		Workspace:     workspacePath,
		Name:          opts.Name,
		InitialPrompt: opts.InitialPrompt,
		Model:         opts.Model,
	}, &result)
	return result, err
}
