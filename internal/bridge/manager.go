// Package bridge owns the lifecycle of the external tool protocol: port
// allocation, transport start/stop, pre-start registration queueing and
// first-request deduplication.
package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/stefanhoelzl/codehydra-sub002/internal/logger"
	"github.com/stefanhoelzl/codehydra-sub002/internal/workspace"
)

// PortAllocator hands out a free loopback port for the tool transport
type PortAllocator interface {
	FindFreePort(ctx context.Context) (int, error)
}

// ToolFront is the transport the manager starts and stops. Implemented by
// toolserver.Server.
type ToolFront interface {
	Start(port int) error
	Stop() error
	IsRunning() bool
	SetRequestHook(fn func(path string))
}

// firstRequestSubscriber pairs a callback with a removable handle
type firstRequestSubscriber struct {
	id int
	fn func(path string)
}

// Manager drives the tool protocol front through its lifecycle. Workspace
// registrations arriving before start are queued and replayed into the live
// registry on start; the first request seen for each normalized workspace
// path is announced exactly once per run.
type Manager struct {
	registry *workspace.Registry
	front    ToolFront
	ports    PortAllocator
	log      *logger.Logger

	mu          sync.Mutex
	running     bool
	port        int
	pending     *pendingQueue
	seen        map[string]struct{}
	subscribers []firstRequestSubscriber
	nextSubID   int
}

// NewManager wires a lifecycle manager over the given registry, front and
// port allocator
func NewManager(registry *workspace.Registry, front ToolFront, ports PortAllocator, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Discard()
	}
	m := &Manager{
		registry: registry,
		front:    front,
		ports:    ports,
		log:      log.WithPrefix("bridge"),
		pending:  newPendingQueue(),
		seen:     make(map[string]struct{}),
	}
	front.SetRequestHook(m.noteRequest)
	return m
}

// Start allocates a port, replays queued registrations into the live
// registry and binds the transport. Calling Start while running returns the
// existing port without allocating again.
func (m *Manager) Start(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return m.port, nil
	}

	port, err := m.ports.FindFreePort(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate tool server port: %w", err)
	}

	// Queued registrations become resolvable before any traffic is accepted
	drained := m.pending.drainInto(m.registry)

	if err := m.front.Start(port); err != nil {
		// Undo the drain so a later start sees the same identities
		for _, identity := range drained {
			m.registry.Unregister(identity.Path)
			m.pending.add(identity)
		}
		return 0, fmt.Errorf("failed to start tool server: %w", err)
	}

	m.running = true
	m.port = port

	m.log.Info("Tool protocol started on port %d (%d queued registrations replayed)", port, len(drained))

	return port, nil
}

// Stop tears the transport down and clears all per-run state: port, seen
// workspaces, subscribers, queued registrations and the live registry.
// Safe to call twice and safe to call when never started.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		// Still drop any queued registrations and subscribers
		m.pending.clear()
		m.subscribers = nil
		m.seen = make(map[string]struct{})
		return
	}

	if err := m.front.Stop(); err != nil {
		m.log.Error("Failed to stop tool server: %v", err)
	}

	m.running = false
	m.port = 0
	m.seen = make(map[string]struct{})
	m.subscribers = nil
	m.pending.clear()
	m.registry.Clear()

	m.log.Info("Tool protocol stopped")
}

// Dispose is an alias for Stop, matching the teardown contract of the
// surrounding application
func (m *Manager) Dispose() {
	m.Stop()
}

// GetPort returns the bound port, or 0 unless running
func (m *Manager) GetPort() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return 0
	}
	return m.port
}

// IsRunning reflects the transport's bound state
func (m *Manager) IsRunning() bool {
	return m.front.IsRunning()
}

// RegisterWorkspace makes a workspace resolvable: immediately when running,
// otherwise once the transport starts
func (m *Manager) RegisterWorkspace(identity workspace.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		m.registry.Register(identity)
	} else {
		m.pending.add(identity)
	}
}

// UnregisterWorkspace removes a workspace and clears its first-request
// tracking, so a deleted-then-recreated workspace is "first" again
func (m *Manager) UnregisterWorkspace(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		m.registry.Unregister(path)
	} else {
		m.pending.remove(path)
	}
	delete(m.seen, workspace.NormalizePath(path))
}

// OnFirstRequest subscribes to first-contact notifications. The returned
// function removes the subscription and is safe to call more than once.
func (m *Manager) OnFirstRequest(fn func(path string)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSubID++
	id := m.nextSubID
	m.subscribers = append(m.subscribers, firstRequestSubscriber{id: id, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, sub := range m.subscribers {
			if sub.id == id {
				m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
				return
			}
		}
	}
}

// ClearFirstRequestTracking forgets one workspace path so its next request
// fires the first-request signal again (used after an agent restart)
func (m *Manager) ClearFirstRequestTracking(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, workspace.NormalizePath(path))
}

// noteRequest receives the raw workspace path of every request the front
// sees. The first sighting of each normalized path is fanned out to all
// subscribers in registration order; resolution success is irrelevant here,
// attachment detection is decoupled from authorization.
func (m *Manager) noteRequest(rawPath string) {
	normalized := workspace.NormalizePath(rawPath)

	m.mu.Lock()
	if _, already := m.seen[normalized]; already {
		m.mu.Unlock()
		return
	}
	m.seen[normalized] = struct{}{}
	subscribers := make([]firstRequestSubscriber, len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.mu.Unlock()

	for _, sub := range subscribers {
		m.notifySubscriber(sub, normalized)
	}
}

// notifySubscriber isolates one callback: a panic is logged and does not
// prevent the remaining subscribers from being notified
func (m *Manager) notifySubscriber(sub firstRequestSubscriber, path string) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("First-request subscriber panicked for %s: %v", path, r)
		}
	}()
	sub.fn(path)
}
