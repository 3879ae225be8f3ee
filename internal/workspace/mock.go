package workspace

import (
	"context"
	"sync"
)

// MockAPI is a test implementation of API. Each operation delegates to the
// corresponding function field when set and counts every invocation, so
// tests can assert that unresolved workspaces never reach the API.
type MockAPI struct {
	CreateFunc             func(ctx context.Context, projectID string, opts CreateOptions) (CreateResult, error)
	RemoveFunc             func(ctx context.Context, projectID, name string) error
	GetStatusFunc          func(ctx context.Context, projectID, name string) (Status, error)
	GetMetadataFunc        func(ctx context.Context, projectID, name string) (Metadata, error)
	SetMetadataFunc        func(ctx context.Context, projectID, name string, meta Metadata) error
	ExecuteCommandFunc     func(ctx context.Context, projectID, name, command string) (CommandResult, error)
	GetAgentSessionFunc    func(ctx context.Context, projectID, name string) (*AgentSession, error)
	RestartAgentServerFunc func(ctx context.Context, projectID, name string) error

	mu    sync.Mutex
	calls map[string]int
}

func (m *MockAPI) record(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[op]++
}

// Calls returns how often the named operation was invoked
func (m *MockAPI) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// TotalCalls returns the number of API invocations across all operations
func (m *MockAPI) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// Create calls CreateFunc if set
func (m *MockAPI) Create(ctx context.Context, projectID string, opts CreateOptions) (CreateResult, error) {
	m.record("Create")
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, projectID, opts)
	}
	return CreateResult{}, nil
}

// Remove calls RemoveFunc if set
func (m *MockAPI) Remove(ctx context.Context, projectID, name string) error {
	m.record("Remove")
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, projectID, name)
	}
	return nil
}

// GetStatus calls GetStatusFunc if set
func (m *MockAPI) GetStatus(ctx context.Context, projectID, name string) (Status, error) {
	m.record("GetStatus")
	if m.GetStatusFunc != nil {
		return m.GetStatusFunc(ctx, projectID, name)
	}
	return Status{}, nil
}

// GetMetadata calls GetMetadataFunc if set
func (m *MockAPI) GetMetadata(ctx context.Context, projectID, name string) (Metadata, error) {
	m.record("GetMetadata")
	if m.GetMetadataFunc != nil {
		return m.GetMetadataFunc(ctx, projectID, name)
	}
	return nil, nil
}

// SetMetadata calls SetMetadataFunc if set
func (m *MockAPI) SetMetadata(ctx context.Context, projectID, name string, meta Metadata) error {
	m.record("SetMetadata")
	if m.SetMetadataFunc != nil {
		return m.SetMetadataFunc(ctx, projectID, name, meta)
	}
	return nil
}

// ExecuteCommand calls ExecuteCommandFunc if set
func (m *MockAPI) ExecuteCommand(ctx context.Context, projectID, name, command string) (CommandResult, error) {
	m.record("ExecuteCommand")
	if m.ExecuteCommandFunc != nil {
		return m.ExecuteCommandFunc(ctx, projectID, name, command)
	}
	return CommandResult{}, nil
}

// GetAgentSession calls GetAgentSessionFunc if set
func (m *MockAPI) GetAgentSession(ctx context.Context, projectID, name string) (*AgentSession, error) {
	m.record("GetAgentSession")
	if m.GetAgentSessionFunc != nil {
		return m.GetAgentSessionFunc(ctx, projectID, name)
	}
	return nil, nil
}

// RestartAgentServer calls RestartAgentServerFunc if set
func (m *MockAPI) RestartAgentServer(ctx context.Context, projectID, name string) error {
	m.record("RestartAgentServer")
	if m.RestartAgentServerFunc != nil {
		return m.RestartAgentServerFunc(ctx, projectID, name)
	}
	return nil
}

// Close is a no-op
func (m *MockAPI) Close() error {
	return nil
}
