package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rendis/sequencer/internal/data"
	"github.com/rendis/sequencer/internal/expressions"
	"github.com/rendis/sequencer/internal/logging"
	"github.com/rendis/sequencer/internal/validation"
)

const usage = `usage: sequencer [command]

commands:
  serve            run the MCP server on stdio (default)
  init [flags]     write ~/.sequencer/settings.yaml
  check FILE...    validate activity definition documents
  version          print the version
`

func main() {
	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "init":
		os.Exit(runInit(args))
	case "check":
		os.Exit(runCheck(args))
	case "version", "--version", "-v":
		printVersion(os.Stdout)
	case "help", "--help", "-h":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
}

func runServe() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, loadConfig(), os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer a.Close()

	if err := a.Serve(ctx); err != nil {
		a.logger.Error("server stopped", "error", err)
		return 1
	}
	return 0
}

func runInit(args []string) int {
	def := defaultConfig()
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	dbPath := fs.String("db-path", def.DBPath, "database path")
	registryDir := fs.String("registry-dir", def.RegistryDir, "directory of activity definition documents")
	logLevel := fs.String("log-level", def.LogLevel, "log level: debug, info, warn, error")
	logFormat := fs.String("log-format", def.LogFormat, "log format: text, json")
	autosave := fs.String("autosave-cron", def.AutosaveCron, "cron expression for autosave (empty disables)")
	metricsAddr := fs.String("metrics-addr", "", "listen address for /metrics (empty disables)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg := Config{
		DBPath:       *dbPath,
		RegistryDir:  *registryDir,
		LogLevel:     *logLevel,
		LogFormat:    *logFormat,
		AutosaveCron: *autosave,
		MetricsAddr:  *metricsAddr,
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := os.MkdirAll(cfg.RegistryDir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot create %s: %v\n", cfg.RegistryDir, err)
		return 1
	}
	path := settingsPath()
	if err := writeConfig(path, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("Settings written to %s\n", path)
	return 0
}

func runCheck(files []string) int {
	if len(files) == 0 {
		fmt.Fprint(os.Stderr, "check: at least one FILE is required\n")
		return 2
	}
	logger, err := logging.New("warn", "text", os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	engines, err := expressions.NewRegistry()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	catalog, err := validation.DefaultCatalog(engines)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	reg, err := newRegistry(data.DefaultFactory(), catalog, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	failed := 0
	for _, f := range files {
		n, err := reg.LoadFile(f)
		if err != nil {
			fmt.Printf("FAIL %s: %v\n", f, err)
			failed++
			continue
		}
		fmt.Printf("ok   %s (%d activities)\n", f, n)
	}
	if failed > 0 {
		return 1
	}
	return 0
}
