package localapi

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stefanhoelzl/codehydra-sub002/internal/logger"
	"github.com/stefanhoelzl/codehydra-sub002/internal/workspace"
)

func testRepo(t *testing.T) string {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	root := filepath.Join(t.TempDir(), "repo")
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", append([]string{"-C", root}, args...)...)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v\n%s", args, err, out)
		}
	}
	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test")
	if err := os.WriteFile(filepath.Join(root, "README.md"), []byte("hello\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	run("add", ".")
	run("commit", "-m", "initial commit")

	return root
}

func newTestAPI(t *testing.T) (*API, string) {
	t.Helper()

	root := testRepo(t)
	dataDir := filepath.Join(t.TempDir(), "data")
	api, err := NewAPI(dataDir, map[string]string{"proj-1": root}, logger.Discard())
	if err != nil {
		t.Fatalf("NewAPI failed: %v", err)
	}
	t.Cleanup(func() { api.Close() })

	return api, root
}

func TestCreateStatusRemove(t *testing.T) {
	api, _ := newTestAPI(t)
	ctx := context.Background()

	var created, removed []workspace.Identity
	api.SetLifecycleCallbacks(
		func(id workspace.Identity) { created = append(created, id) },
		func(id workspace.Identity) { removed = append(removed, id) },
	)

	result, err := api.Create(ctx, "proj-1", workspace.CreateOptions{Name: "feature-x"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if result.Identity.ProjectID != "proj-1" || result.Identity.Name != "feature-x" {
		t.Errorf("Unexpected identity: %+v", result.Identity)
	}
	if _, err := os.Stat(result.Identity.Path); err != nil {
		t.Errorf("Worktree directory missing: %v", err)
	}
	if len(created) != 1 {
		t.Errorf("Expected the created callback to fire once, got %d", len(created))
	}

	status, err := api.GetStatus(ctx, "proj-1", "feature-x")
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if status.Branch != "feature-x" {
		t.Errorf("Expected branch feature-x, got %s", status.Branch)
	}
	if status.Dirty {
		t.Error("Fresh worktree must be clean")
	}
	if status.LastCommit == "" {
		t.Error("Expected a last commit hash")
	}

	// Dirty after touching a file
	if err := os.WriteFile(filepath.Join(result.Identity.Path, "new.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	status, err = api.GetStatus(ctx, "proj-1", "feature-x")
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if !status.Dirty || status.ChangedFiles != 1 {
		t.Errorf("Expected 1 changed file, got %+v", status)
	}

	if err := api.Remove(ctx, "proj-1", "feature-x"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(result.Identity.Path); !os.IsNotExist(err) {
		t.Error("Worktree directory must be gone after remove")
	}
	if len(removed) != 1 {
		t.Errorf("Expected the removed callback to fire once, got %d", len(removed))
	}
}

func TestCreateValidation(t *testing.T) {
	api, _ := newTestAPI(t)
	ctx := context.Background()

	if _, err := api.Create(ctx, "proj-1", workspace.CreateOptions{Name: ""}); err == nil {
		t.Error("Empty name must be rejected")
	}
	if _, err := api.Create(ctx, "proj-1", workspace.CreateOptions{Name: "a/b"}); err == nil {
		t.Error("Names with separators must be rejected")
	}
	if _, err := api.Create(ctx, "nope", workspace.CreateOptions{Name: "x"}); err == nil {
		t.Error("Unknown projects must be rejected")
	}

	if _, err := api.Create(ctx, "proj-1", workspace.CreateOptions{Name: "dup"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := api.Create(ctx, "proj-1", workspace.CreateOptions{Name: "dup"}); err == nil {
		t.Error("Duplicate names must be rejected")
	}
}

func TestCreateStoresInitialMetadata(t *testing.T) {
	api, _ := newTestAPI(t)
	ctx := context.Background()

	_, err := api.Create(ctx, "proj-1", workspace.CreateOptions{
		Name:          "feature-y",
		InitialPrompt: "fix the parser",
		Model:         "gpt-5",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	meta, err := api.GetMetadata(ctx, "proj-1", "feature-y")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if meta["initial_prompt"] != "fix the parser" || meta["model"] != "gpt-5" {
		t.Errorf("Unexpected metadata: %v", meta)
	}
}

func TestExecuteCommand(t *testing.T) {
	api, _ := newTestAPI(t)
	ctx := context.Background()

	if _, err := api.Create(ctx, "proj-1", workspace.CreateOptions{Name: "runner"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	result, err := api.ExecuteCommand(ctx, "proj-1", "runner", "echo hello")
	if err != nil {
		t.Fatalf("ExecuteCommand failed: %v", err)
	}
	if result.ExitCode != 0 || result.Stdout != "hello\n" {
		t.Errorf("Unexpected result: %+v", result)
	}

	// Non-zero exit codes are outcomes, not errors
	result, err = api.ExecuteCommand(ctx, "proj-1", "runner", "exit 3")
	if err != nil {
		t.Fatalf("ExecuteCommand failed: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("Expected exit code 3, got %d", result.ExitCode)
	}
}

func TestAgentOperations(t *testing.T) {
	api, _ := newTestAPI(t)
	ctx := context.Background()

	session, err := api.GetAgentSession(ctx, "proj-1", "ws")
	if err != nil || session != nil {
		t.Errorf("Expected no session, got %+v (err %v)", session, err)
	}

	if err := api.RestartAgentServer(ctx, "proj-1", "ws"); err != workspace.ErrAgentUnavailable {
		t.Errorf("Expected ErrAgentUnavailable without a restarter, got %v", err)
	}

	called := false
	api.SetAgentRestarter(func(ctx context.Context, projectID, name string) error {
		called = true
		return nil
	})
	if err := api.RestartAgentServer(ctx, "proj-1", "ws"); err != nil || !called {
		t.Errorf("Expected the wired restarter to run, err %v", err)
	}
}
