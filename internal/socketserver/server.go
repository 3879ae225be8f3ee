package socketserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/stefanhoelzl/codehydra-sub002/internal/config"
	"github.com/stefanhoelzl/codehydra-sub002/internal/logger"
	"github.com/stefanhoelzl/codehydra-sub002/internal/workspace"
)

// Server is the persistent-socket protocol front. It accepts long-lived
// connections on a Unix socket, frames messages as newline-delimited JSON,
// and dispatches operations through the shared identity registry into the
// workspace API.
type Server struct {
	cfg        config.SocketConfig
	hub        *Hub
	dispatcher *Dispatcher
	listener   net.Listener
	socketPath string

	maxConns int

	// Control
	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	stopOnce sync.Once

	// Connection ID counter
	connIDCounter int
	connIDMu      sync.Mutex

	log *logger.Logger
}

// NewServer creates a new Unix socket server over the shared registry and API
func NewServer(cfg config.SocketConfig, registry *workspace.Registry, api workspace.API, log *logger.Logger) (*Server, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("socket path is not configured")
	}

	slog := log.WithPrefix("socket")
	server := &Server{
		cfg:        cfg,
		hub:        NewHub(slog),
		dispatcher: NewDispatcher(registry, api, slog),
		stopChan:   make(chan struct{}),
		maxConns:   10,
		log:        slog,
	}
	if cfg.MaxConnections > 0 {
		server.maxConns = cfg.MaxConnections
	}

	return server, nil
}

// Start starts the Unix socket server
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("server is already running")
	}

	absPath, err := s.prepareSocketPath(s.cfg.Path)
	if err != nil {
		return fmt.Errorf("failed to prepare socket path: %w", err)
	}
	s.socketPath = absPath

	// Remove any stale socket file from a previous run
	if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing socket file: %w", err)
	}

	listener, err := net.Listen("unix", absPath)
	if err != nil {
		return fmt.Errorf("failed to listen on Unix socket %s: %w", absPath, err)
	}
	s.listener = listener

	// Only report running once the socket is actually bound, so a failed
	// bind does not leave the server stuck in a half-started state.
	s.running = true

	if s.cfg.Permissions != "" {
		if err := os.Chmod(absPath, parseFileMode(s.cfg.Permissions)); err != nil {
			s.log.Warn("Failed to set socket permissions: %v", err)
		}
	}

	go s.hub.Run()
	go s.acceptLoop(ctx)

	s.log.Info("Unix socket server started on %s (max connections: %d)", absPath, s.maxConns)

	return nil
}

// Stop stops the Unix socket server
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		s.log.Info("Stopping Unix socket server...")

		close(s.stopChan)

		s.hub.Shutdown()

		if s.listener != nil {
			if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				s.log.Error("Error closing socket listener: %v", err)
			}
		}

		// Give connections a moment to settle before removing the file
		time.Sleep(100 * time.Millisecond)

		if s.socketPath != "" {
			if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
				s.log.Warn("Failed to remove socket file %s: %v", s.socketPath, err)
			}
		}

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()

		s.log.Info("Unix socket server stopped")
	})

	return nil
}

// SocketPath returns the resolved path the server is listening on
func (s *Server) SocketPath() string {
	return s.socketPath
}

// BroadcastWorkspaceRemoved notifies all connected clients that a workspace
// has been removed
func (s *Server) BroadcastWorkspaceRemoved(path string) {
	s.hub.BroadcastWorkspaceRemoved(path)
}

// prepareSocketPath expands the socket path and ensures its parent exists
func (s *Server) prepareSocketPath(socketPath string) (string, error) {
	absPath, err := filepath.Abs(socketPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	parentDir := filepath.Dir(absPath)
	if err := os.MkdirAll(parentDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create parent directory %s: %w", parentDir, err)
	}

	return absPath, nil
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.log.Debug("Accept loop stopped via context cancellation")
			return

		case <-s.stopChan:
			s.log.Debug("Accept loop stopped via stop signal")
			return

		default:
			// Accept timeout so stopChan is checked periodically
			if ul, ok := s.listener.(*net.UnixListener); ok {
				ul.SetDeadline(time.Now().Add(1 * time.Second))
			}

			conn, err := s.listener.Accept()
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if errors.Is(err, net.ErrClosed) {
					s.log.Debug("Listener closed, exiting accept loop")
					return
				}
				s.log.Error("Error accepting connection: %v", err)
				continue
			}

			if !s.checkConnectionLimit() {
				s.log.Warn("Connection limit reached, rejecting connection")
				conn.Close()
				continue
			}

			clientID := s.generateConnectionID()
			client := NewClient(clientID, conn, s.hub, s.dispatcher, s.log)
			client.Start()

			s.log.Info("New connection accepted: %s (total: %d)", clientID, s.hub.GetClientCount())
		}
	}
}

func (s *Server) checkConnectionLimit() bool {
	return s.hub.GetClientCount() < s.maxConns
}

func (s *Server) generateConnectionID() string {
	s.connIDMu.Lock()
	defer s.connIDMu.Unlock()

	s.connIDCounter++
	return fmt.Sprintf("conn_%d", s.connIDCounter)
}

// GetClientCount returns the number of connected clients
func (s *Server) GetClientCount() int {
	return s.hub.GetClientCount()
}

// IsRunning returns whether the server is running
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// parseFileMode parses an octal file mode string
func parseFileMode(modeStr string) os.FileMode {
	var mode uint64
	_, err := fmt.Sscanf(modeStr, "%o", &mode)
	if err != nil {
		return 0600
	}
	return os.FileMode(mode)
}
