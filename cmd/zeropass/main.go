// Package main is the entrypoint for the zeropass firewall rule simulator.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/zeropass/zeropass/internal/config"
	"github.com/zeropass/zeropass/internal/server"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// startable is an interface for anything that can be started and then
// shut down with a context — satisfied by *server.Server.
type startable interface {
	Start(ctx context.Context) error
	Reloadables() []config.Reloadable
	Logger() *slog.Logger
}

// serverFactory creates a startable server from config. Tests can inject a
// failing factory to cover the server.New() error path.
type serverFactory func(*config.Config, string) (startable, error)

// defaultServerFactory is the production factory that delegates to server.New.
func defaultServerFactory(cfg *config.Config, version string) (startable, error) {
	return server.New(cfg, version)
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// Global flags
	fs := flag.NewFlagSet("zeropass", flag.ContinueOnError)
	configPath := fs.String("config", "zeropass.yaml", "path to configuration file")
	showVersion := fs.Bool("version", false, "print version and exit")

	// Parse only known flags before the subcommand
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			printUsage()
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *showVersion {
		fmt.Printf("zeropass %s\n", Version)
		return 0
	}

	// Setup structured logging (JSON format)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Determine subcommand
	subcmd := "serve"
	remaining := fs.Args()
	if len(remaining) > 0 {
		subcmd = remaining[0]
		remaining = remaining[1:]
	}

	switch subcmd {
	case "serve":
		return cmdServe(*configPath, defaultServerFactory)
	case "validate":
		return cmdValidate(*configPath)
	case "init":
		return cmdInit(remaining)
	case "help":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", subcmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `zeropass %s — API Gateway Firewall Rule Simulator

Usage:
  zeropass [flags] <command>

Commands:
  serve      Start the simulator server (default)
  validate   Validate configuration file
  init       Generate a new zeropass.yaml
  help       Show this help message

Flags:
  --config string   Path to configuration file (default "zeropass.yaml")
  --version         Print version and exit

Examples:
  zeropass serve --config zeropass.yaml
  zeropass validate --config zeropass.yaml
  zeropass init --profile dev
`, Version)
}

// cmdServe starts the simulator HTTP server with graceful shutdown and,
// when enabled, config hot-reload.
func cmdServe(configPath string, newServer serverFactory) int {
	logger := slog.Default()
	logger.Info("starting zeropass",
		"version", Version,
		"config", configPath,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("configuration error", "error", err)
		return 1
	}

	srv, err := newServer(cfg, Version)
	if err != nil {
		logger.Error("server initialization error", "error", err)
		return 1
	}

	// Graceful shutdown on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Reload.Enabled {
		reloader := config.NewReloader(configPath, cfg, srv.Logger())
		for _, sub := range srv.Reloadables() {
			reloader.Register(sub)
		}
		if err := reloader.Start(ctx); err != nil {
			logger.Error("config reloader error", "error", err)
			return 1
		}
		defer reloader.Stop()
	}

	if err := srv.Start(ctx); err != nil {
		logger.Error("server error", "error", err)
		return 1
	}

	return 0
}

// cmdValidate loads and validates the configuration file.
func cmdValidate(configPath string) int {
	logger := slog.Default()
	logger.Info("validating configuration", "config", configPath)

	if _, err := config.Load(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Println("config valid")
	return 0
}

// cmdInit generates a new zeropass.yaml with the specified profile.
func cmdInit(args []string) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	profile := fs.String("profile", "dev", "configuration profile (dev or prod)")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	var profileYAML string
	switch *profile {
	case "dev":
		profileYAML = config.DevProfileYAML()
	case "prod":
		profileYAML = config.ProdProfileYAML()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown profile %q (use dev or prod)\n", *profile)
		return 1
	}

	outPath := "zeropass.yaml"
	if err := os.WriteFile(outPath, []byte(profileYAML), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", outPath, err)
		return 1
	}

	fmt.Printf("Generated %s with profile %q\n", outPath, *profile)
	return 0
}
