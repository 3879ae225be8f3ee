package workspace

import (
	"context"
	"errors"
)

// ErrAgentUnavailable is returned by API implementations that have no agent
// server attached to the requested workspace.
var ErrAgentUnavailable = errors.New("agent server unavailable")

// Metadata holds the free-form key/value pairs attached to a workspace
type Metadata map[string]string

// Status summarizes the git state of a workspace
type Status struct {
	Branch       string `json:"branch"`
	BaseBranch   string `json:"base_branch,omitempty"`
	Dirty        bool   `json:"dirty"`
	ChangedFiles int    `json:"changed_files"`
	LastCommit   string `json:"last_commit,omitempty"`
}

// AgentSession describes the agent process currently attached to a workspace
type AgentSession struct {
	SessionID string `json:"session_id"`
	Model     string `json:"model,omitempty"`
	State     string `json:"state,omitempty"` // "starting", "running", "idle"
}

// CreateOptions carries the parameters for creating a new workspace
type CreateOptions struct {
	Name          string `json:"name"`
	InitialPrompt string `json:"initial_prompt,omitempty"`
	Model         string `json:"model,omitempty"`
}

// CreateResult is returned by a successful workspace creation
type CreateResult struct {
	Identity Identity `json:"identity"`
}

// CommandResult captures the outcome of an editor command execution
type CommandResult struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
}

// API is the internal, strongly-typed workspace capability interface the
// protocol fronts dispatch into. Implementations own the git-worktree
// orchestration; the bridge only resolves identities and forwards calls.
// All blocking operations take a context.
type API interface {
	Create(ctx context.Context, projectID string, opts CreateOptions) (CreateResult, error)
	Remove(ctx context.Context, projectID, name string) error
	GetStatus(ctx context.Context, projectID, name string) (Status, error)
	GetMetadata(ctx context.Context, projectID, name string) (Metadata, error)
	SetMetadata(ctx context.Context, projectID, name string, meta Metadata) error
	ExecuteCommand(ctx context.Context, projectID, name, command string) (CommandResult, error)
	GetAgentSession(ctx context.Context, projectID, name string) (*AgentSession, error)
	RestartAgentServer(ctx context.Context, projectID, name string) error
	Close() error
}
