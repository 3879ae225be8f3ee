package workspace

import "testing"

func TestRegistryRegisterResolve(t *testing.T) {
	reg := NewRegistry()

	identity := Identity{ProjectID: "proj-1", Name: "feature-x", Path: "/projects/demo/feature-x"}
	reg.Register(identity)

	got, ok := reg.Resolve("/projects/demo/feature-x")
	if !ok {
		t.Fatal("Expected workspace to resolve")
	}
	if got != identity {
		t.Errorf("Resolved identity mismatch: got %+v, want %+v", got, identity)
	}
}

func TestRegistryResolveEquivalentPaths(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Identity{ProjectID: "proj-1", Name: "ws", Path: "/projects/demo/ws/"})

	spellings := []string{
		"/projects/demo/ws",
		"/projects/demo/ws/",
		"/projects/demo//ws",
		"/projects/demo/./ws",
		"/projects/other/../demo/ws",
	}

	for _, path := range spellings {
		if _, ok := reg.Resolve(path); !ok {
			t.Errorf("Expected %q to resolve to the registered workspace", path)
		}
	}
}

func TestRegistryReplaceOnReRegister(t *testing.T) {
	reg := NewRegistry()

	reg.Register(Identity{ProjectID: "proj-1", Name: "old", Path: "/projects/demo/ws"})
	reg.Register(Identity{ProjectID: "proj-2", Name: "new", Path: "/projects/demo/ws/"})

	if reg.Len() != 1 {
		t.Fatalf("Expected 1 entry after re-register, got %d", reg.Len())
	}

	got, ok := reg.Resolve("/projects/demo/ws")
	if !ok {
		t.Fatal("Expected workspace to resolve")
	}
	if got.ProjectID != "proj-2" || got.Name != "new" {
		t.Errorf("Expected re-registration to replace the entry, got %+v", got)
	}
}

func TestRegistryUnregister(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Identity{ProjectID: "proj-1", Name: "ws", Path: "/projects/demo/ws"})

	// Unregister with a differently-spelled but equal path
	reg.Unregister("/projects/demo/ws/")

	if _, ok := reg.Resolve("/projects/demo/ws"); ok {
		t.Error("Expected workspace to be gone after unregister")
	}

	// Unregistering an unknown path is a no-op
	reg.Unregister("/does/not/exist")
}

func TestRegistryClear(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Identity{ProjectID: "p", Name: "a", Path: "/ws/a"})
	reg.Register(Identity{ProjectID: "p", Name: "b", Path: "/ws/b"})

	if reg.Len() != 2 {
		t.Fatalf("Expected 2 entries, got %d", reg.Len())
	}

	reg.Clear()

	if reg.Len() != 0 {
		t.Errorf("Expected empty registry after clear, got %d entries", reg.Len())
	}
}

func TestResultEnvelope(t *testing.T) {
	ok := OK(map[string]string{"branch": "main"})
	if !ok.Success || ok.Error != nil {
		t.Error("OK envelope should have success set and no error")
	}

	errResult := NotFound("/projects/demo/ws")
	if errResult.Success || errResult.Error == nil {
		t.Fatal("NotFound envelope should carry an error")
	}
	if errResult.Error.Code != ErrCodeWorkspaceNotFound {
		t.Errorf("Expected code %q, got %q", ErrCodeWorkspaceNotFound, errResult.Error.Code)
	}
	if errResult.Error.Message == "" {
		t.Error("NotFound envelope should mention the path in the message")
	}
}
