// Memtrail: persistent memory MCP server
//
// A durable observation store for AI coding agents. Observations, their
// links, and correction history live in a local SQLite database and
// survive between sessions.
//
// Usage:
//
//	memtrail serve    # Start MCP server (stdio transport)
//	memtrail view     # Start the HTTP viewer API
//	memtrail update   # Update to the latest version
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	"github.com/memtrail/memtrail/internal/memory"
	"github.com/memtrail/memtrail/internal/metrics"
	memserver "github.com/memtrail/memtrail/internal/server"
	"github.com/memtrail/memtrail/internal/updater"
	"github.com/memtrail/memtrail/internal/viewer"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "view":
		if err := runView(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "update":
		runUpdate()
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("memtrail v%s\n", memserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// runServe starts the MCP server on stdio.
func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	dataDir := fs.String("data-dir", "", "database directory (default: ~/.memtrail)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := memory.DefaultConfig()
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	s, cleanup, err := memserver.New(cfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	// Background version check — prints to stderr so it doesn't
	// interfere with MCP's stdio transport on stdout.
	go checkForUpdates()

	return server.ServeStdio(s)
}

// checkForUpdates runs a non-blocking version check and prints a notice
// to stderr if an update is available. Network failures are silently
// ignored.
func checkForUpdates() {
	result := updater.CheckVersion(memserver.Version)
	if result.UpdateAvailable {
		fmt.Fprintf(os.Stderr,
			"\n  Update available: v%s → v%s\n"+
				"  Run: memtrail update\n"+
				"  Release: %s\n\n",
			result.CurrentVersion, result.LatestVersion, result.ReleaseURL,
		)
	}
}

// runUpdate performs a self-update to the latest version.
func runUpdate() {
	result := updater.CheckVersion(memserver.Version)
	if !result.UpdateAvailable {
		fmt.Fprintf(os.Stderr, "Already at the latest version (v%s)\n", result.CurrentVersion)
		return
	}

	fmt.Fprintf(os.Stderr, "New version available: v%s → v%s, downloading...\n",
		result.CurrentVersion, result.LatestVersion)

	if err := updater.SelfUpdate(memserver.Version); err != nil {
		fmt.Fprintf(os.Stderr, "Update failed: %v\n", err)
		fmt.Fprintf(os.Stderr, "You can download manually from:\n  %s\n", result.ReleaseURL)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Updated to v%s. Restart memtrail to use the new version.\n", result.LatestVersion)
}

// runView starts the HTTP viewer with Prometheus metrics enabled.
func runView(args []string) error {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:7611", "listen address")
	dataDir := fs.String("data-dir", "", "database directory (default: ~/.memtrail)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	collector := metrics.NewCollector()

	cfg := memory.DefaultConfig()
	cfg.Metrics = collector
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	store, err := memory.New(cfg)
	if err != nil {
		return fmt.Errorf("opening memory store: %w", err)
	}
	defer store.Close()

	// Graceful shutdown on interrupt.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	v := viewer.New(store, collector, nil, *addr)
	return v.Start(ctx)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Memtrail v%s — persistent memory MCP server

Usage:
  memtrail serve [-data-dir DIR]          Start the MCP server (stdio transport)
  memtrail view  [-addr HOST:PORT]        Start the HTTP viewer API
                 [-data-dir DIR]
  memtrail update                         Update to the latest version

Configuration:
  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "memtrail": {
        "command": "memtrail",
        "args": ["serve"]
      }
    }
  }
`, memserver.Version)
}
