// Package localapi implements the workspace API on top of local git
// worktrees. Each workspace is a worktree of its project repository, kept
// under the daemon's data directory, with metadata and agent session records
// persisted in SQLite.
package localapi

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/stefanhoelzl/codehydra-sub002/internal/logger"
	"github.com/stefanhoelzl/codehydra-sub002/internal/workspace"
)

// API implements workspace.API using the git CLI and a SQLite store
type API struct {
	git      *Git
	store    *Store
	dataDir  string
	projects map[string]string // projectID -> repository root
	log      *logger.Logger

	// Lifecycle callbacks, wired by the daemon so created and removed
	// workspaces show up in (and vanish from) the identity registry
	onCreated func(workspace.Identity)
	onRemoved func(workspace.Identity)

	// Optional hook for restarting the agent server of a workspace
	restartAgent func(ctx context.Context, projectID, name string) error
}

// NewAPI creates the local workspace API. projects maps project IDs to their
// repository roots.
func NewAPI(dataDir string, projects map[string]string, log *logger.Logger) (*API, error) {
	store, err := NewStore(filepath.Join(dataDir, "bridge.db"))
	if err != nil {
		return nil, err
	}

	return &API{
		git:      &Git{},
		store:    store,
		dataDir:  dataDir,
		projects: projects,
		log:      log.WithPrefix("localapi"),
	}, nil
}

// SetLifecycleCallbacks wires the registry-facing create/remove callbacks
func (a *API) SetLifecycleCallbacks(onCreated, onRemoved func(workspace.Identity)) {
	a.onCreated = onCreated
	a.onRemoved = onRemoved
}

// SetAgentRestarter wires the hook used by RestartAgentServer
func (a *API) SetAgentRestarter(fn func(ctx context.Context, projectID, name string) error) {
	a.restartAgent = fn
}

// Store exposes the underlying metadata store
func (a *API) Store() *Store {
	return a.store
}

// WorkspacePath returns where the worktree for a workspace lives
func (a *API) WorkspacePath(projectID, name string) string {
	return filepath.Join(a.dataDir, "worktrees", projectID, name)
}

func (a *API) projectRoot(projectID string) (string, error) {
	root, ok := a.projects[projectID]
	if !ok {
		return "", fmt.Errorf("unknown project: %s", projectID)
	}
	return root, nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("workspace name must not be empty")
	}
	if strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return fmt.Errorf("invalid workspace name: %s", name)
	}
	return nil
}

// Create adds a new worktree on a branch named after the workspace
func (a *API) Create(ctx context.Context, projectID string, opts workspace.CreateOptions) (workspace.CreateResult, error) {
	var result workspace.CreateResult

	root, err := a.projectRoot(projectID)
	if err != nil {
		return result, err
	}
	if err := validateName(opts.Name); err != nil {
		return result, err
	}

	path := a.WorkspacePath(projectID, opts.Name)
	if _, err := os.Stat(path); err == nil {
		return result, fmt.Errorf("workspace already exists: %s", opts.Name)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return result, fmt.Errorf("failed to create worktree directory: %w", err)
	}

	if err := a.git.CreateWorktree(ctx, root, path, opts.Name); err != nil {
		return result, err
	}

	if opts.InitialPrompt != "" || opts.Model != "" {
		meta := workspace.Metadata{}
		if opts.InitialPrompt != "" {
			meta["initial_prompt"] = opts.InitialPrompt
		}
		if opts.Model != "" {
			meta["model"] = opts.Model
		}
		if err := a.store.ReplaceMetadata(projectID, opts.Name, meta); err != nil {
			a.log.Warn("Failed to store initial metadata for %s/%s: %v", projectID, opts.Name, err)
		}
	}

	identity := workspace.Identity{
		ProjectID: projectID,
		Name:      opts.Name,
		Path:      workspace.NormalizePath(path),
	}
	if a.onCreated != nil {
		a.onCreated(identity)
	}

	a.log.Info("Created workspace %s/%s at %s", projectID, opts.Name, path)

	result.Identity = identity
	return result, nil
}

// Remove deletes the worktree and all stored records of a workspace
func (a *API) Remove(ctx context.Context, projectID, name string) error {
	root, err := a.projectRoot(projectID)
	if err != nil {
		return err
	}

	path := a.WorkspacePath(projectID, name)
	if err := a.git.RemoveWorktree(ctx, root, path); err != nil {
		return err
	}
	if err := a.store.DeleteWorkspace(projectID, name); err != nil {
		return err
	}

	if a.onRemoved != nil {
		a.onRemoved(workspace.Identity{
			ProjectID: projectID,
			Name:      name,
			Path:      workspace.NormalizePath(path),
		})
	}

	a.log.Info("Removed workspace %s/%s", projectID, name)

	return nil
}

// GetStatus collects the git status of a workspace
func (a *API) GetStatus(ctx context.Context, projectID, name string) (workspace.Status, error) {
	return a.git.Status(ctx, a.WorkspacePath(projectID, name))
}

// GetMetadata returns the metadata attached to a workspace
func (a *API) GetMetadata(ctx context.Context, projectID, name string) (workspace.Metadata, error) {
	return a.store.GetMetadata(projectID, name)
}

// SetMetadata replaces the metadata attached to a workspace
func (a *API) SetMetadata(ctx context.Context, projectID, name string, meta workspace.Metadata) error {
	return a.store.ReplaceMetadata(projectID, name, meta)
}

// ExecuteCommand runs a shell command inside the workspace worktree
func (a *API) ExecuteCommand(ctx context.Context, projectID, name, command string) (workspace.CommandResult, error) {
	return a.git.ExecuteCommand(ctx, a.WorkspacePath(projectID, name), command)
}

// GetAgentSession returns the agent session attached to a workspace, or nil
func (a *API) GetAgentSession(ctx context.Context, projectID, name string) (*workspace.AgentSession, error) {
	return a.store.GetAgentSession(projectID, name)
}

// RestartAgentServer restarts the workspace's agent server through the wired
// hook
func (a *API) RestartAgentServer(ctx context.Context, projectID, name string) error {
	if a.restartAgent == nil {
		return workspace.ErrAgentUnavailable
	}
	return a.restartAgent(ctx, projectID, name)
}

// Close releases the metadata store
func (a *API) Close() error {
	return a.store.Close()
}
