package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/stefanhoelzl/codehydra-sub002/internal/agentquery"
	"github.com/stefanhoelzl/codehydra-sub002/internal/bridge"
	"github.com/stefanhoelzl/codehydra-sub002/internal/config"
	"github.com/stefanhoelzl/codehydra-sub002/internal/localapi"
	"github.com/stefanhoelzl/codehydra-sub002/internal/logger"
	"github.com/stefanhoelzl/codehydra-sub002/internal/netutil"
	"github.com/stefanhoelzl/codehydra-sub002/internal/socketserver"
	"github.com/stefanhoelzl/codehydra-sub002/internal/toolserver"
	"github.com/stefanhoelzl/codehydra-sub002/internal/workspace"
)

type stringSlice []string

func (s *stringSlice) String() string {
	if s == nil {
		return ""
	}
	return strings.Join(*s, ",")
}

func (s *stringSlice) Set(value string) error {
	if value == "" {
		return fmt.Errorf("value cannot be empty")
	}
	*s = append(*s, value)
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath    = flag.String("config", "", "path to the config file")
		logLevel      = flag.String("log-level", "", "log level (debug, info, warn, error, none)")
		socketPath    = flag.String("socket", "", "unix socket path for the editor front")
		port          = flag.Int("port", -1, "fixed port for the tool front (0 allocates a free port)")
		dataDir       = flag.String("data-dir", "", "data directory for worktrees and the metadata store")
		agentEndpoint = flag.String("agent-endpoint", "", "loopback URL of the agent server")
		projects      stringSlice
		workspaces    stringSlice
	)
	flag.Var(&projects, "project", "project mapping id=repo-root (repeatable)")
	flag.Var(&workspaces, "workspace", "workspace to pre-register as project:name:path (repeatable)")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *socketPath != "" {
		cfg.Socket.Path = *socketPath
	}
	if *port >= 0 {
		cfg.HTTP.Port = *port
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *agentEndpoint != "" {
		cfg.AgentEndpoint = *agentEndpoint
	}

	log, err := buildLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Close()

	projectRoots, err := parseProjects(projects)
	if err != nil {
		return err
	}

	api, err := localapi.NewAPI(cfg.DataDir, projectRoots, log)
	if err != nil {
		return fmt.Errorf("failed to initialize workspace API: %w", err)
	}
	defer api.Close()

	registry := workspace.NewRegistry()

	front := toolserver.NewServer(registry, api, log)
	if cfg.AgentEndpoint != "" {
		agents, err := agentquery.NewClient(cfg.AgentEndpoint, log)
		if err != nil {
			return err
		}
		front.SetAgentQuerier(agents)
	}

	allocator := &netutil.Allocator{
		Fixed:     cfg.HTTP.Port,
		RangeFrom: cfg.HTTP.PortRangeFrom,
		RangeTo:   cfg.HTTP.PortRangeTo,
	}
	manager := bridge.NewManager(registry, front, allocator, log)

	watcher, err := bridge.NewWatcher(manager, log)
	if err != nil {
		return fmt.Errorf("failed to initialize workspace watcher: %w", err)
	}
	defer watcher.Close()

	socketSrv, err := socketserver.NewServer(cfg.Socket, registry, api, log)
	if err != nil {
		return fmt.Errorf("failed to initialize socket server: %w", err)
	}

	// Created workspaces become resolvable and watched; removed ones vanish
	// from the registry and every connected editor is told
	api.SetLifecycleCallbacks(
		func(id workspace.Identity) {
			manager.RegisterWorkspace(id)
			if err := watcher.Watch(id.Path); err != nil {
				log.Warn("Failed to watch workspace %s: %v", id.Path, err)
			}
		},
		func(id workspace.Identity) {
			watcher.Unwatch(id.Path)
			manager.UnregisterWorkspace(id.Path)
			socketSrv.BroadcastWorkspaceRemoved(id.Path)
		},
	)

	api.SetAgentRestarter(agentRestarter(api, manager, log))

	// Pre-registrations are queued until the front is up
	for _, spec := range workspaces {
		id, err := parseWorkspace(spec)
		if err != nil {
			return err
		}
		manager.RegisterWorkspace(id)
	}

	manager.OnFirstRequest(func(path string) {
		log.Info("Workspace %s received its first tool request", path)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	boundPort, err := manager.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start tool front: %w", err)
	}
	defer manager.Stop()
	log.Info("Tool protocol front listening on 127.0.0.1:%d", boundPort)

	if err := socketSrv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start socket front: %w", err)
	}
	defer socketSrv.Stop()

	<-ctx.Done()
	log.Info("Shutting down")

	return nil
}

// agentRestarter builds the hook behind the workspace_restart_agent_server
// tool. The agent process itself is supervised outside the daemon; restarting
// only forgets the first-request mark so the re-attached agent is announced
// like a fresh one.
func agentRestarter(api *localapi.API, manager *bridge.Manager, log *logger.Logger) func(ctx context.Context, projectID, name string) error {
	return func(ctx context.Context, projectID, name string) error {
		path := api.WorkspacePath(projectID, name)
		manager.ClearFirstRequestTracking(path)
		log.Info("Agent server restart requested for %s/%s", projectID, name)
		return nil
	}
}

func buildLogger(cfg config.LogConfig) (*logger.Logger, error) {
	level := logger.ParseLevel(cfg.Level)
	if cfg.Path != "" {
		log, err := logger.NewFile(level, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		return log, nil
	}
	return logger.New(level, os.Stderr), nil
}

func parseProjects(specs []string) (map[string]string, error) {
	projects := make(map[string]string, len(specs))
	for _, spec := range specs {
		id, root, ok := strings.Cut(spec, "=")
		if !ok || id == "" || root == "" {
			return nil, fmt.Errorf("invalid -project value %q, expected id=repo-root", spec)
		}
		projects[id] = root
	}
	return projects, nil
}

func parseWorkspace(spec string) (workspace.Identity, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return workspace.Identity{}, fmt.Errorf("invalid -workspace value %q, expected project:name:path", spec)
	}
	return workspace.Identity{
		ProjectID: parts[0],
		Name:      parts[1],
		Path:      parts[2],
	}, nil
}
