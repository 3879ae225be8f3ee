package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Log.Level != "info" {
		t.Errorf("Expected default log level info, got %q", cfg.Log.Level)
	}
	if cfg.Socket.Path == "" {
		t.Error("Default socket path should not be empty")
	}
	if cfg.Socket.MaxConnections != 10 {
		t.Errorf("Expected default max connections 10, got %d", cfg.Socket.MaxConnections)
	}
	if cfg.HTTP.Port != 0 {
		t.Errorf("Expected default HTTP port 0 (auto-allocate), got %d", cfg.HTTP.Port)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("Load of missing file should not fail: %v", err)
	}
	if cfg.Socket.MaxConnections != 10 {
		t.Errorf("Expected defaults for missing file, got %+v", cfg)
	}
}

func TestSaveAndLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := DefaultConfig()
	cfg.Log.Level = "debug"
	cfg.Socket.MaxConnections = 3
	cfg.HTTP.Port = 7777
	cfg.AgentEndpoint = "http://127.0.0.1:9000"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Log.Level != "debug" {
		t.Errorf("Expected log level debug, got %q", loaded.Log.Level)
	}
	if loaded.Socket.MaxConnections != 3 {
		t.Errorf("Expected max connections 3, got %d", loaded.Socket.MaxConnections)
	}
	if loaded.HTTP.Port != 7777 {
		t.Errorf("Expected HTTP port 7777, got %d", loaded.HTTP.Port)
	}
	if loaded.AgentEndpoint != "http://127.0.0.1:9000" {
		t.Errorf("Expected agent endpoint to roundtrip, got %q", loaded.AgentEndpoint)
	}
}

func TestLoadRepairsInvalidMaxConnections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := DefaultConfig()
	cfg.Socket.MaxConnections = -1
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Socket.MaxConnections != 10 {
		t.Errorf("Expected invalid max connections to reset to 10, got %d", loaded.Socket.MaxConnections)
	}
}
