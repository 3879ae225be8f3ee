package toolserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/stefanhoelzl/codehydra-sub002/internal/logger"
	"github.com/stefanhoelzl/codehydra-sub002/internal/workspace"
)

// registerTools declares the fixed tool set on the MCP engine
func (s *Server) registerTools(engine *server.MCPServer) {
	engine.AddTool(mcp.NewTool("workspace_status",
		mcp.WithDescription("Get the git status of the current workspace"),
	), s.handleStatus)

	engine.AddTool(mcp.NewTool("workspace_get_metadata",
		mcp.WithDescription("Get the metadata attached to the current workspace"),
	), s.handleGetMetadata)

	engine.AddTool(mcp.NewTool("workspace_set_metadata",
		mcp.WithDescription("Replace the metadata attached to the current workspace"),
		mcp.WithObject("metadata", mcp.Required(), mcp.Description("String key/value pairs to store")),
	), s.handleSetMetadata)

	engine.AddTool(mcp.NewTool("workspace_get_agent_session",
		mcp.WithDescription("Get the agent session attached to the current workspace"),
	), s.handleGetAgentSession)

	engine.AddTool(mcp.NewTool("workspace_restart_agent_server",
		mcp.WithDescription("Restart the agent server of the current workspace"),
	), s.handleRestartAgentServer)

	engine.AddTool(mcp.NewTool("workspace_create",
		mcp.WithDescription("Create a new workspace in the current workspace's project"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Name of the new workspace")),
		mcp.WithString("initial_prompt", mcp.Description("Prompt handed to the new workspace's agent")),
		mcp.WithString("model", mcp.Description("Model for the new workspace's agent; defaults to the caller's active model")),
	), s.handleCreate)

	engine.AddTool(mcp.NewTool("workspace_delete",
		mcp.WithDescription("Delete the current workspace"),
	), s.handleDelete)

	engine.AddTool(mcp.NewTool("workspace_execute_command",
		mcp.WithDescription("Execute an editor command in the current workspace"),
		mcp.WithString("command", mcp.Required(), mcp.Description("Command identifier to execute")),
	), s.handleExecuteCommand)

	engine.AddTool(mcp.NewTool("log",
		mcp.WithDescription("Write a structured log line to the bridge log"),
		mcp.WithString("message", mcp.Required(), mcp.Description("Log message")),
		mcp.WithString("level", mcp.Description("debug, info, warn or error; defaults to info")),
		mcp.WithObject("context", mcp.Description("Additional structured context")),
	), s.handleLog)
}

// envelope serializes a Result into the single text content part every tool
// response carries
func envelope(res workspace.Result) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(res)
	if err != nil {
		// The envelope itself failed to serialize; degrade to a minimal error
		fallback := workspace.Errorf(workspace.ErrCodeInternalError, "failed to serialize result: %v", err)
		data, _ = json.Marshal(fallback)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// resolveContext resolves the request's workspace path into an identity.
// The raw path is returned either way so misses can name it.
func (s *Server) resolveContext(ctx context.Context) (workspace.Identity, string, bool) {
	path, ok := WorkspacePathFromContext(ctx)
	if !ok {
		return workspace.Identity{}, path, false
	}
	identity, found := s.registry.Resolve(path)
	return identity, path, found
}

// apiFailure logs an internal API error and wraps it for the caller. The
// original error never crosses the wire beyond its message.
func (s *Server) apiFailure(tool string, err error) (*mcp.CallToolResult, error) {
	s.log.Error("%s failed: %v", tool, err)
	return envelope(workspace.Errorf(workspace.ErrCodeInternalError, "%v", err))
}

func (s *Server) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identity, path, ok := s.resolveContext(ctx)
	if !ok {
		return envelope(workspace.NotFound(path))
	}

	status, err := s.api.GetStatus(ctx, identity.ProjectID, identity.Name)
	if err != nil {
		return s.apiFailure("workspace_status", err)
	}
	return envelope(workspace.OK(status))
}

func (s *Server) handleGetMetadata(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identity, path, ok := s.resolveContext(ctx)
	if !ok {
		return envelope(workspace.NotFound(path))
	}

	meta, err := s.api.GetMetadata(ctx, identity.ProjectID, identity.Name)
	if err != nil {
		return s.apiFailure("workspace_get_metadata", err)
	}
	return envelope(workspace.OK(meta))
}

func (s *Server) handleSetMetadata(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identity, path, ok := s.resolveContext(ctx)
	if !ok {
		return envelope(workspace.NotFound(path))
	}

	raw, ok := req.GetArguments()["metadata"].(map[string]any)
	if !ok {
		return envelope(workspace.Errorf(workspace.ErrCodeInvalidInput, "metadata must be an object of strings"))
	}
	meta := make(workspace.Metadata, len(raw))
	for key, value := range raw {
		str, ok := value.(string)
		if !ok {
			return envelope(workspace.Errorf(workspace.ErrCodeInvalidInput, "metadata value for %q must be a string", key))
		}
		meta[key] = str
	}

	if err := s.api.SetMetadata(ctx, identity.ProjectID, identity.Name, meta); err != nil {
		return s.apiFailure("workspace_set_metadata", err)
	}
	return envelope(workspace.OK(nil))
}

func (s *Server) handleGetAgentSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identity, path, ok := s.resolveContext(ctx)
	if !ok {
		return envelope(workspace.NotFound(path))
	}

	session, err := s.api.GetAgentSession(ctx, identity.ProjectID, identity.Name)
	if err != nil {
		return s.apiFailure("workspace_get_agent_session", err)
	}
	return envelope(workspace.OK(session))
}

func (s *Server) handleRestartAgentServer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identity, path, ok := s.resolveContext(ctx)
	if !ok {
		return envelope(workspace.NotFound(path))
	}

	if err := s.api.RestartAgentServer(ctx, identity.ProjectID, identity.Name); err != nil {
		return s.apiFailure("workspace_restart_agent_server", err)
	}
	return envelope(workspace.OK(nil))
}

// handleCreate resolves the caller's workspace to pick the target project;
// the new workspace itself has no identity yet. When a prompt is supplied
// without a model, the caller's active model is propagated best-effort.
func (s *Server) handleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caller, path, ok := s.resolveContext(ctx)
	if !ok {
		return envelope(workspace.NotFound(path))
	}

	name, err := req.RequireString("name")
	if err != nil || name == "" {
		return envelope(workspace.Errorf(workspace.ErrCodeInvalidInput, "name is required"))
	}

	opts := workspace.CreateOptions{
		Name:          name,
		InitialPrompt: req.GetString("initial_prompt", ""),
		Model:         req.GetString("model", ""),
	}
	if opts.InitialPrompt != "" && opts.Model == "" {
		opts.Model = s.lookupCallerModel(ctx, caller)
	}

	result, err := s.api.Create(ctx, caller.ProjectID, opts)
	if err != nil {
		return s.apiFailure("workspace_create", err)
	}
	return envelope(workspace.OK(result))
}

// lookupCallerModel returns the model of the caller's active agent session,
// or empty when it cannot be determined. Failures degrade to a warning; they
// never fail the create itself.
func (s *Server) lookupCallerModel(ctx context.Context, caller workspace.Identity) string {
	session, err := s.api.GetAgentSession(ctx, caller.ProjectID, caller.Name)
	if err != nil {
		s.log.Warn("Model lookup for %s/%s failed: %v", caller.ProjectID, caller.Name, err)
		return ""
	}
	if session == nil {
		return ""
	}
	if session.Model != "" {
		return session.Model
	}
	if s.agents == nil {
		return ""
	}

	model, err := s.agents.SessionModel(ctx, session.SessionID)
	if err != nil {
		s.log.Warn("Agent query for session %s failed: %v", session.SessionID, err)
		return ""
	}
	return model
}

func (s *Server) handleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identity, path, ok := s.resolveContext(ctx)
	if !ok {
		return envelope(workspace.NotFound(path))
	}

	if err := s.api.Remove(ctx, identity.ProjectID, identity.Name); err != nil {
		return s.apiFailure("workspace_delete", err)
	}
	return envelope(workspace.OK(nil))
}

func (s *Server) handleExecuteCommand(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identity, path, ok := s.resolveContext(ctx)
	if !ok {
		return envelope(workspace.NotFound(path))
	}

	command, err := req.RequireString("command")
	if err != nil || command == "" {
		return envelope(workspace.Errorf(workspace.ErrCodeInvalidInput, "command is required"))
	}

	result, err := s.api.ExecuteCommand(ctx, identity.ProjectID, identity.Name, command)
	if err != nil {
		return s.apiFailure("workspace_execute_command", err)
	}
	return envelope(workspace.OK(result))
}

// handleLog succeeds whether or not the workspace resolves; the raw path is
// merged into the logged fields for traceability.
func (s *Server) handleLog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, _ := WorkspacePathFromContext(ctx)

	message := req.GetString("message", "")
	level := logger.ParseLevel(req.GetString("level", "info"))

	fields := map[string]any{"workspace": path}
	if extra, ok := req.GetArguments()["context"].(map[string]any); ok {
		for key, value := range extra {
			fields[key] = value
		}
	}

	encoded, err := json.Marshal(fields)
	if err != nil {
		encoded = []byte("{}")
	}
	s.log.Log(level, "%s %s", message, encoded)

	return envelope(workspace.OK(nil))
}
