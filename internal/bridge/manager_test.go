package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/stefanhoelzl/codehydra-sub002/internal/logger"
	"github.com/stefanhoelzl/codehydra-sub002/internal/workspace"
)

type fakeFront struct {
	hook       func(string)
	running    bool
	startErr   error
	startCalls int
	stopCalls  int
}

func (f *fakeFront) Start(port int) error {
	f.startCalls++
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeFront) Stop() error {
	f.stopCalls++
	f.running = false
	return nil
}

func (f *fakeFront) IsRunning() bool { return f.running }

func (f *fakeFront) SetRequestHook(fn func(path string)) { f.hook = fn }

type fakePorts struct {
	next  int
	err   error
	calls int
}

func (f *fakePorts) FindFreePort(ctx context.Context) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.next, nil
}

func newTestManager() (*Manager, *workspace.Registry, *fakeFront, *fakePorts) {
	registry := workspace.NewRegistry()
	front := &fakeFront{}
	ports := &fakePorts{next: 45000}
	m := NewManager(registry, front, ports, logger.Discard())
	return m, registry, front, ports
}

func TestRegisterBeforeStartIsReplayedOnStart(t *testing.T) {
	m, registry, _, _ := newTestManager()

	m.RegisterWorkspace(workspace.Identity{ProjectID: "p", Name: "ws", Path: "/projects/demo/ws"})

	if registry.Len() != 0 {
		t.Fatal("Registration before start must not touch the live registry")
	}

	port, err := m.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if port != 45000 {
		t.Errorf("Expected allocated port 45000, got %d", port)
	}

	if _, ok := registry.Resolve("/projects/demo/ws"); !ok {
		t.Error("Queued workspace must be resolvable immediately after start")
	}
	if registry.Len() != 1 {
		t.Errorf("Expected exactly 1 registry entry, got %d", registry.Len())
	}
}

func TestStartIsIdempotentWhileRunning(t *testing.T) {
	m, _, front, ports := newTestManager()

	port1, err := m.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	port2, err := m.Start(context.Background())
	if err != nil {
		t.Fatalf("Second start failed: %v", err)
	}

	if port1 != port2 {
		t.Errorf("Both starts must return the same port: %d != %d", port1, port2)
	}
	if ports.calls != 1 {
		t.Errorf("Port must be allocated exactly once, got %d allocations", ports.calls)
	}
	if front.startCalls != 1 {
		t.Errorf("Front must be started exactly once, got %d", front.startCalls)
	}
}

func TestStartFailureResetsAndRequeues(t *testing.T) {
	m, registry, front, _ := newTestManager()
	front.startErr = errors.New("bind failed")

	m.RegisterWorkspace(workspace.Identity{ProjectID: "p", Name: "ws", Path: "/projects/demo/ws"})

	if _, err := m.Start(context.Background()); err == nil {
		t.Fatal("Expected start to fail")
	}

	if m.GetPort() != 0 {
		t.Error("Port must be cleared after failed start")
	}
	if registry.Len() != 0 {
		t.Error("Live registry must be empty after failed start")
	}

	// A later successful start sees the same identities
	front.startErr = nil
	if _, err := m.Start(context.Background()); err != nil {
		t.Fatalf("Retry start failed: %v", err)
	}
	if _, ok := registry.Resolve("/projects/demo/ws"); !ok {
		t.Error("Identity queued before the failed start must survive into the retry")
	}
}

func TestPortAllocationFailure(t *testing.T) {
	m, _, front, ports := newTestManager()
	ports.err = errors.New("no ports left")

	if _, err := m.Start(context.Background()); err == nil {
		t.Fatal("Expected start to fail")
	}
	if front.startCalls != 0 {
		t.Error("Front must not be started when port allocation fails")
	}
	if m.IsRunning() {
		t.Error("Manager must not report running after failed start")
	}
}

func TestGetPortOnlyWhileRunning(t *testing.T) {
	m, _, _, _ := newTestManager()

	if m.GetPort() != 0 {
		t.Error("GetPort must return 0 before start")
	}

	if _, err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if m.GetPort() == 0 {
		t.Error("GetPort must return the bound port while running")
	}

	m.Stop()
	if m.GetPort() != 0 {
		t.Error("GetPort must return 0 after stop")
	}
}

func TestRegisterWhileRunningIsLive(t *testing.T) {
	m, registry, _, _ := newTestManager()

	if _, err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	m.RegisterWorkspace(workspace.Identity{ProjectID: "p", Name: "live", Path: "/projects/demo/live"})
	if _, ok := registry.Resolve("/projects/demo/live"); !ok {
		t.Error("Registration while running must be immediately resolvable")
	}

	m.UnregisterWorkspace("/projects/demo/live/")
	if _, ok := registry.Resolve("/projects/demo/live"); ok {
		t.Error("Unregistration while running must take effect immediately")
	}
}

func TestFirstRequestFiresExactlyOncePerPath(t *testing.T) {
	m, _, front, _ := newTestManager()
	if _, err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var fired []string
	m.OnFirstRequest(func(path string) { fired = append(fired, path) })

	// Differently-spelled but equal paths count as one workspace
	front.hook("/projects/demo/ws")
	front.hook("/projects/demo/ws/")
	front.hook("/projects/demo//ws")

	if len(fired) != 1 {
		t.Fatalf("Expected exactly one notification, got %d: %v", len(fired), fired)
	}
	if fired[0] != "/projects/demo/ws" {
		t.Errorf("Subscribers must receive the normalized path, got %q", fired[0])
	}

	// A distinct workspace fires independently
	front.hook("/projects/demo/other")
	if len(fired) != 2 {
		t.Fatalf("Expected a second notification for a distinct path, got %v", fired)
	}
}

func TestFirstRequestSubscriberIsolation(t *testing.T) {
	m, _, front, _ := newTestManager()
	if _, err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var first, third bool
	m.OnFirstRequest(func(string) { first = true })
	m.OnFirstRequest(func(string) { panic("subscriber blew up") })
	m.OnFirstRequest(func(string) { third = true })

	front.hook("/projects/demo/ws")

	if !first || !third {
		t.Error("A panicking subscriber must not prevent the others from firing")
	}
}

func TestFirstRequestUnsubscribe(t *testing.T) {
	m, _, front, _ := newTestManager()
	if _, err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	calls := 0
	unsubscribe := m.OnFirstRequest(func(string) { calls++ })
	unsubscribe()
	unsubscribe() // second call is safe

	front.hook("/projects/demo/ws")
	if calls != 0 {
		t.Error("Unsubscribed callback must not fire")
	}
}

func TestClearFirstRequestTrackingRefires(t *testing.T) {
	m, _, front, _ := newTestManager()
	if _, err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	calls := 0
	m.OnFirstRequest(func(string) { calls++ })

	front.hook("/projects/demo/ws")
	front.hook("/projects/demo/ws")
	if calls != 1 {
		t.Fatalf("Expected 1 notification, got %d", calls)
	}

	// Clearing with a differently-spelled path hits the same entry
	m.ClearFirstRequestTracking("/projects/demo/ws/")

	front.hook("/projects/demo/ws")
	if calls != 2 {
		t.Errorf("Expected the signal to fire again after clearing, got %d", calls)
	}
}

func TestUnregisterClearsFirstRequestTracking(t *testing.T) {
	m, _, front, _ := newTestManager()
	if _, err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	calls := 0
	m.OnFirstRequest(func(string) { calls++ })

	m.RegisterWorkspace(workspace.Identity{ProjectID: "p", Name: "ws", Path: "/projects/demo/ws"})
	front.hook("/projects/demo/ws")

	// Delete and recreate: the workspace is "first" again
	m.UnregisterWorkspace("/projects/demo/ws")
	m.RegisterWorkspace(workspace.Identity{ProjectID: "p", Name: "ws", Path: "/projects/demo/ws"})
	front.hook("/projects/demo/ws")

	if calls != 2 {
		t.Errorf("Expected recreated workspace to fire again, got %d notifications", calls)
	}
}

func TestStopResetsAllPerRunState(t *testing.T) {
	m, registry, front, _ := newTestManager()
	if _, err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	calls := 0
	m.OnFirstRequest(func(string) { calls++ })
	m.RegisterWorkspace(workspace.Identity{ProjectID: "p", Name: "ws", Path: "/projects/demo/ws"})
	front.hook("/projects/demo/ws")

	m.Stop()

	if m.IsRunning() {
		t.Error("Manager must not report running after stop")
	}
	if registry.Len() != 0 {
		t.Error("Registered identities must be gone after stop")
	}

	// Restart: previously-seen workspaces are "first" again, but old
	// subscribers are gone
	if _, err := m.Start(context.Background()); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if _, ok := registry.Resolve("/projects/demo/ws"); ok {
		t.Error("Identities must not survive a stop/start cycle unless re-registered")
	}

	refired := 0
	m.OnFirstRequest(func(string) { refired++ })
	front.hook("/projects/demo/ws")

	if calls != 1 {
		t.Errorf("Pre-stop subscriber must not fire after restart, got %d", calls)
	}
	if refired != 1 {
		t.Errorf("Previously-seen workspace must be first again after restart, got %d", refired)
	}
}

func TestStopIsIdempotentAndSafeWhenNeverStarted(t *testing.T) {
	m, _, front, _ := newTestManager()

	m.Stop() // never started
	m.Stop()

	if front.stopCalls != 0 {
		t.Error("Front must not be stopped when never started")
	}

	if _, err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	m.Stop()
	m.Stop()

	if front.stopCalls != 1 {
		t.Errorf("Expected exactly one front stop, got %d", front.stopCalls)
	}
}

func TestDisposeStops(t *testing.T) {
	m, _, front, _ := newTestManager()
	if _, err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	m.Dispose()
	if front.running {
		t.Error("Dispose must stop the front")
	}
}
