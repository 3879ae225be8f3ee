// Package toolserver implements the HTTP tool-protocol front of the bridge:
// an MCP server bound to loopback that resolves the per-request workspace
// header into an internal identity and dispatches to the workspace API.
package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/mark3labs/mcp-go/server"

	"github.com/stefanhoelzl/codehydra-sub002/internal/logger"
	"github.com/stefanhoelzl/codehydra-sub002/internal/workspace"
)

const (
	// WorkspaceHeader carries the caller's workspace path on every request.
	// Header name matching is case-insensitive per net/http semantics.
	WorkspaceHeader = "X-Codehydra-Workspace"

	// ProtocolEndpoint is the single HTTP endpoint the tool protocol accepts
	ProtocolEndpoint = "/mcp"

	serverVersion   = "1.0.0"
	shutdownTimeout = 5 * time.Second
)

type contextKey struct{}

// workspacePathKey carries the raw workspace path through request context so
// tool handlers never receive it as an operation argument.
var workspacePathKey = contextKey{}

// ContextWithWorkspacePath attaches a raw workspace path to a context
func ContextWithWorkspacePath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, workspacePathKey, path)
}

// WorkspacePathFromContext extracts the raw workspace path from a context
func WorkspacePathFromContext(ctx context.Context) (string, bool) {
	path, ok := ctx.Value(workspacePathKey).(string)
	return path, ok && path != ""
}

// AgentQuerier looks up live session details from the agent server. Used only
// for best-effort model propagation during workspace creation.
type AgentQuerier interface {
	SessionModel(ctx context.Context, sessionID string) (string, error)
}

// Server is the tool-protocol front. It owns the HTTP listener and the MCP
// engine while running; the identity registry is injected and shared with the
// lifecycle manager.
type Server struct {
	registry *workspace.Registry
	api      workspace.API
	agents   AgentQuerier
	log      *logger.Logger

	// onRequest is notified with the raw workspace path of every request
	// that carries the header, before resolution or dispatch
	onRequest func(path string)

	mu         sync.Mutex
	running    bool
	port       int
	mcpServer  *server.MCPServer
	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates a tool-protocol front over the given registry and API
func NewServer(registry *workspace.Registry, api workspace.API, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		registry: registry,
		api:      api,
		log:      log.WithPrefix("toolserver"),
	}
}

// SetAgentQuerier injects the best-effort agent session lookup client.
// Must be called before Start.
func (s *Server) SetAgentQuerier(q AgentQuerier) {
	s.agents = q
}

// SetRequestHook registers the first-contact notification hook. Must be
// called before Start.
func (s *Server) SetRequestHook(fn func(path string)) {
	s.onRequest = fn
}

// Start binds the tool protocol to the given loopback port
func (s *Server) Start(port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("tool server is already running on port %d", s.port)
	}

	mcpServer := server.NewMCPServer(
		"codehydra",
		serverVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.registerTools(mcpServer)

	streamable := server.NewStreamableHTTPServer(
		mcpServer,
		server.WithEndpointPath(ProtocolEndpoint),
		server.WithStateLess(true),
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return ContextWithWorkspacePath(ctx, r.Header.Get(WorkspaceHeader))
		}),
	)

	router := httprouter.New()
	// Wrong method and wrong path both fall through to plain 404
	router.HandleMethodNotAllowed = false
	router.POST(ProtocolEndpoint, func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		s.handleProtocolRequest(w, r, streamable)
	})

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("failed to bind tool server on port %d: %w", port, err)
	}

	httpServer := &http.Server{
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	s.mcpServer = mcpServer
	s.httpServer = httpServer
	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port
	s.running = true

	go func() {
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("Tool server error: %v", err)
		}
	}()

	s.log.Info("Tool server listening on 127.0.0.1:%d", s.port)

	return nil
}

// Stop shuts the front down in order: refuse new connections, close the
// protocol engine, close the listener, clear state. Safe to call twice and
// safe to call when never started.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.Warn("Tool server shutdown: %v", err)
		}
		cancel()
	}

	if s.listener != nil {
		// Shutdown already closed it; tolerate the double close
		if err := s.listener.Close(); err != nil && !isClosedError(err) {
			s.log.Warn("Failed to close tool server listener: %v", err)
		}
	}

	s.mcpServer = nil
	s.httpServer = nil
	s.listener = nil
	s.port = 0
	s.running = false

	s.log.Info("Tool server stopped")

	return nil
}

// IsRunning reports whether the transport is bound
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Port returns the bound port, or 0 when not running
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// handleProtocolRequest validates the workspace header, fires the request
// hook and hands the request to the MCP engine. The header check runs before
// the hook so attachment detection never sees header-less requests.
func (s *Server) handleProtocolRequest(w http.ResponseWriter, r *http.Request, engine http.Handler) {
	path := r.Header.Get(WorkspaceHeader)
	if path == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		body := map[string]string{"error": fmt.Sprintf("missing %s header", WorkspaceHeader)}
		if err := json.NewEncoder(w).Encode(body); err != nil {
			s.log.Error("Failed to write error response: %v", err)
		}
		return
	}

	if s.onRequest != nil {
		s.onRequest(path)
	}

	engine.ServeHTTP(w, r)
}

func isClosedError(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
