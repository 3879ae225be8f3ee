package main

import (
	"context"
	"testing"

	"github.com/stefanhoelzl/codehydra-sub002/internal/bridge"
	"github.com/stefanhoelzl/codehydra-sub002/internal/localapi"
	"github.com/stefanhoelzl/codehydra-sub002/internal/logger"
	"github.com/stefanhoelzl/codehydra-sub002/internal/workspace"
)

type stubFront struct {
	hook    func(string)
	running bool
}

func (f *stubFront) Start(port int) error          { f.running = true; return nil }
func (f *stubFront) Stop() error                   { f.running = false; return nil }
func (f *stubFront) IsRunning() bool               { return f.running }
func (f *stubFront) SetRequestHook(fn func(string)) { f.hook = fn }

type stubPorts struct{}

func (stubPorts) FindFreePort(ctx context.Context) (int, error) { return 45000, nil }

func TestAgentRestarterResetsFirstRequestTracking(t *testing.T) {
	api, err := localapi.NewAPI(t.TempDir(), nil, logger.Discard())
	if err != nil {
		t.Fatalf("NewAPI failed: %v", err)
	}
	defer api.Close()

	front := &stubFront{}
	manager := bridge.NewManager(workspace.NewRegistry(), front, stubPorts{}, logger.Discard())
	if _, err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer manager.Stop()

	restart := agentRestarter(api, manager, logger.Discard())

	calls := 0
	manager.OnFirstRequest(func(string) { calls++ })

	path := api.WorkspacePath("proj-1", "ws")
	front.hook(path)
	front.hook(path)
	if calls != 1 {
		t.Fatalf("Expected 1 notification before restart, got %d", calls)
	}

	if err := restart(context.Background(), "proj-1", "ws"); err != nil {
		t.Fatalf("Restart hook failed: %v", err)
	}

	front.hook(path)
	if calls != 2 {
		t.Errorf("Expected the first request after a restart to be announced, got %d notifications", calls)
	}
}

func TestParseProjects(t *testing.T) {
	projects, err := parseProjects([]string{"root=/repos/demo"})
	if err != nil {
		t.Fatalf("parseProjects failed: %v", err)
	}
	if projects["root"] != "/repos/demo" {
		t.Errorf("Unexpected mapping: %v", projects)
	}

	if _, err := parseProjects([]string{"no-separator"}); err == nil {
		t.Error("Values without id=root must be rejected")
	}
}

func TestParseWorkspace(t *testing.T) {
	id, err := parseWorkspace("proj:feature:/data/worktrees/proj/feature")
	if err != nil {
		t.Fatalf("parseWorkspace failed: %v", err)
	}
	if id.ProjectID != "proj" || id.Name != "feature" || id.Path != "/data/worktrees/proj/feature" {
		t.Errorf("Unexpected identity: %+v", id)
	}

	if _, err := parseWorkspace("proj:feature"); err == nil {
		t.Error("Values without a path must be rejected")
	}
}
