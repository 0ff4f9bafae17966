package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/prochub/prochub/internal/api"
	"github.com/prochub/prochub/internal/config"
	"github.com/prochub/prochub/internal/dispatch"
	"github.com/prochub/prochub/internal/events"
	"github.com/prochub/prochub/internal/handlers"
	"github.com/prochub/prochub/internal/loader"
	"github.com/prochub/prochub/internal/log"
	"github.com/prochub/prochub/internal/mapping"
	"github.com/prochub/prochub/internal/metrics"
	"github.com/prochub/prochub/internal/registry"
	"github.com/prochub/prochub/internal/runtime"
	"github.com/prochub/prochub/internal/storage"
	"github.com/prochub/prochub/internal/tui/watch"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		os.Exit(runSystemNoun(args))
	case "config":
		os.Exit(runConfigNoun(args))
	case "plugin":
		os.Exit(runPluginNoun(args))

	case "watch":
		os.Exit(runWatch(args))
	case "version":
		fmt.Printf("prochub version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`prochub - versioned process plugin runtime

Usage:
  prochub <noun> <action> [flags]

Core Resources (Nouns):
  system    Runtime lifecycle and health
  config    Configuration validation and integrity
  plugin    Process plugin inventory

System Commands:
  system start      Start the runtime in foreground

Config Commands:
  config check      Validate syntax and policy
  config lock       Authorize current state (update integrity hashes)

Plugin Commands:
  plugin list       Show discovered process plugins

General:
  watch             Live runtime dashboard (requires a running API server)
  version           Show version information
  help              Show this help message
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: prochub system start [flags]")
		return 1
	}

	switch args[0] {
	case "start":
		return runStart(args[1:])
	case "help", "--help", "-h":
		fmt.Println("Usage: prochub system start --config <path>")
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", args[0])
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: prochub config <check|lock> [flags]")
		return 1
	}

	switch args[0] {
	case "check":
		return runConfigCheck(args[1:])
	case "lock":
		return runConfigLock(args[1:])
	case "help", "--help", "-h":
		fmt.Println("Usage: prochub config <check|lock> --config <path>")
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", args[0])
		return 1
	}
}

func runPluginNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: prochub plugin list [flags]")
		return 1
	}

	switch args[0] {
	case "list":
		return runPluginList(args[1:])
	case "help", "--help", "-h":
		fmt.Println("Usage: prochub plugin list --config <path> [--json]")
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown plugin action: %s\n", args[0])
		return 1
	}
}

// --- ACTIONS ---

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("prochub starting", "version", version, "config", *configPath, "service", cfg.Service.Name)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := events.NewHub(256)
	recorder := metrics.NewRecorder()

	// Mapping source.
	var source mapping.Source
	switch cfg.Mapping.Source {
	case "sqlite":
		db, err := storage.OpenSQLite(ctx, cfg.Mapping.SQLitePath)
		if err != nil {
			logger.Error("failed to open mapping database", "path", cfg.Mapping.SQLitePath, "error", err)
			return 1
		}
		defer db.Close()
		if err := storage.BootstrapSQLite(ctx, db); err != nil {
			logger.Error("failed to bootstrap mapping database", "error", err)
			return 1
		}
		source = mapping.NewSQLiteSource(db)
		logger.Info("mapping database opened", "path", cfg.Mapping.SQLitePath)
	case "http":
		source = mapping.NewHTTPSource(cfg.Mapping.HTTP.BaseURL, cfg.Mapping.HTTP.Timeout)
		logger.Info("mapping service configured", "base_url", cfg.Mapping.HTTP.BaseURL)
	default:
		source = mapping.NewStaticSource(staticMappings(cfg.Mapping.Static))
		logger.Info("static mapping table loaded", "entries", len(cfg.Mapping.Static))
	}

	cache := mapping.NewCache(source, mapping.CacheOptions{
		TTL:         cfg.Mapping.TTL,
		FallbackTTL: cfg.Mapping.FallbackTTL,
		MaxEntries:  cfg.Mapping.MaxEntries,
		Metrics:     recorder,
		Logger:      log.WithComponent("mapping"),
	})

	// Loaders in configured priority order.
	loaders := []loader.Loader{
		loader.NewStaticLoader(cfg.Loaders.Static.Priority, cfg.Loaders.Static.Enabled, handlers.Builtin()),
		loader.NewManifestLoader(cfg.Loaders.Manifest.Priority, cfg.Loaders.Manifest.Enabled,
			cfg.Loaders.Manifest.Roots, handlers.Factories(), log.WithComponent("loader")),
	}

	reg := registry.New()
	rt := runtime.New(reg, loaders, hub, recorder, log.WithComponent("runtime"), runtime.Options{
		StartupTimeout:  cfg.Runtime.StartupTimeout,
		ShutdownTimeout: cfg.Runtime.ShutdownTimeout,
		FailOnEmpty:     cfg.Runtime.FailOnEmpty,
	})

	if err := rt.Start(ctx); err != nil {
		logger.Error("runtime startup failed", "error", err)
		return 1
	}

	dispatcher := dispatch.New(rt, cache, reg, nil, hub, recorder,
		log.WithComponent("dispatch"), dispatch.Options{Timeout: cfg.Runtime.DispatchTimeout})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 2)

	if cfg.API.Enabled {
		tokens := make([]api.TokenConfig, 0, len(cfg.API.Auth.Tokens))
		for _, t := range cfg.API.Auth.Tokens {
			tokens = append(tokens, api.TokenConfig{
				Name:        t.Name,
				Token:       t.Token,
				TenantID:    t.TenantID,
				Scopes:      t.Scopes,
				Permissions: t.Permissions,
				Roles:       t.Roles,
				Features:    t.Features,
			})
		}
		apiServer := api.New(api.Config{Listen: cfg.API.Listen, Tokens: tokens},
			dispatcher, rt, reg, cache, recorder, hub, log.WithComponent("api"))
		go func() {
			if err := apiServer.Start(ctx); err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("api server enabled", "listen", cfg.API.Listen)
	}

	// Periodic health sweep over registered plugins.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rt.HealthCheck(ctx)
			}
		}
	}()

	logger.Info("prochub running (press Ctrl+C to stop)")

	exitCode := 0
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		exitCode = 1
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Runtime.ShutdownTimeout)
	defer shutdownCancel()
	if err := rt.Stop(shutdownCtx); err != nil {
		logger.Error("runtime shutdown failed", "error", err)
		exitCode = 1
	}

	logger.Info("prochub stopped")
	return exitCode
}

func staticMappings(rows []config.StaticMapping) map[mapping.Key]mapping.Mapping {
	out := make(map[mapping.Key]mapping.Mapping, len(rows))
	for _, r := range rows {
		out[mapping.Key{
			TenantID:    r.TenantID,
			OperationID: r.OperationID,
			ProductID:   r.ProductID,
			Channel:     r.Channel,
		}] = mapping.Mapping{ProcessID: r.ProcessID, Version: r.Version}
	}
	return out
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		return 1
	}

	fmt.Printf("✓ %s is valid\n", *configPath)
	fmt.Printf("  service: %s\n", cfg.Service.Name)
	fmt.Printf("  mapping source: %s\n", cfg.Mapping.Source)
	if cfg.API.Enabled {
		fmt.Printf("  api: %s (%d tokens)\n", cfg.API.Listen, len(cfg.API.Auth.Tokens))
	} else {
		fmt.Println("  api: disabled")
	}
	return 0
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	checksumPath, err := config.Lock(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		return 1
	}
	fmt.Printf("✓ wrote %s\n", checksumPath)
	return 0
}

// runPluginList brings the configured loaders online without starting the
// API and prints the resulting inventory.
func runPluginList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	asJSON := fs.Bool("json", false, "Emit JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup("error", "text")

	loaders := []loader.Loader{
		loader.NewStaticLoader(cfg.Loaders.Static.Priority, cfg.Loaders.Static.Enabled, handlers.Builtin()),
		loader.NewManifestLoader(cfg.Loaders.Manifest.Priority, cfg.Loaders.Manifest.Enabled,
			cfg.Loaders.Manifest.Roots, handlers.Factories(), log.Get()),
	}

	reg := registry.New()
	rt := runtime.New(reg, loaders, events.NopSink{}, metrics.Nop{}, log.Get(), runtime.Options{
		StartupTimeout: cfg.Runtime.StartupTimeout,
	})

	ctx := context.Background()
	if err := rt.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover plugins: %v\n", err)
		return 1
	}
	defer rt.Stop(ctx)

	snapshot := reg.Snapshot()
	if *asJSON {
		data, _ := json.MarshalIndent(snapshot, "", "  ")
		fmt.Println(string(data))
		return 0
	}

	if len(snapshot) == 0 {
		fmt.Println("No process plugins discovered.")
		return 0
	}

	fmt.Printf("%-28s %-10s %s\n", "PROCESS", "CURRENT", "VERSIONS")
	for _, info := range snapshot {
		fmt.Printf("%-28s %-10s %v\n", info.ProcessID, info.CurrentVersion, info.Versions)
	}
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	apiURL := fs.String("api", "http://127.0.0.1:8710", "Base URL of a running prochub API server")
	token := fs.String("token", os.Getenv("PROCHUB_TOKEN"), "Bearer token (or PROCHUB_TOKEN)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	if *token == "" {
		fmt.Fprintln(os.Stderr, "watch requires a token: pass --token or set PROCHUB_TOKEN")
		return 1
	}

	p := tea.NewProgram(watch.New(*apiURL, *token))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "watch failed: %v\n", err)
		return 1
	}
	return 0
}
