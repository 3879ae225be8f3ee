package localapi

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/stefanhoelzl/codehydra-sub002/internal/workspace"
)

// Git runs git commands for worktree management and status queries
type Git struct{}

func (g *Git) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// CreateWorktree adds a worktree for a new branch at the given path
func (g *Git) CreateWorktree(ctx context.Context, repoRoot, path, branch string) error {
	if _, err := g.run(ctx, repoRoot, "worktree", "add", "-b", branch, path); err != nil {
		return err
	}
	return nil
}

// RemoveWorktree removes the worktree at the given path
func (g *Git) RemoveWorktree(ctx context.Context, repoRoot, path string) error {
	if _, err := g.run(ctx, repoRoot, "worktree", "remove", "--force", path); err != nil {
		return err
	}
	return nil
}

// Status collects the branch, dirtiness and last commit of a worktree
func (g *Git) Status(ctx context.Context, path string) (workspace.Status, error) {
	var status workspace.Status

	branch, err := g.run(ctx, path, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return status, err
	}
	status.Branch = branch

	porcelain, err := g.run(ctx, path, "status", "--porcelain")
	if err != nil {
		return status, err
	}
	if porcelain != "" {
		status.Dirty = true
		status.ChangedFiles = len(strings.Split(porcelain, "\n"))
	}

	// A fresh repository has no commits yet
	if commit, err := g.run(ctx, path, "log", "-1", "--format=%H"); err == nil {
		status.LastCommit = commit
	}

	return status, nil
}

// ExecuteCommand runs a shell command inside a worktree and captures the
// outcome including the exit code
func (g *Git) ExecuteCommand(ctx context.Context, dir, command string) (workspace.CommandResult, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := workspace.CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("failed to run command %s: %w", strconv.Quote(command), err)
	}

	return result, nil
}
