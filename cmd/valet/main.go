// Valet is a personal assistant agent.
//
// It exposes a small HTTP API for chatting with the assistant, keeps
// conversations and execution traces in SQLite, and gives the model
// tools for a task list and a CalDAV calendar. Configuration is loaded
// from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	valet serve              Start the API server
//	valet ask <question>     Ask a single question (for testing)
//	valet debrief            Print a daily briefing to stdout
//	valet version            Print version and build information
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/valet-agent/valet/internal/agent"
	"github.com/valet-agent/valet/internal/api"
	"github.com/valet-agent/valet/internal/buildinfo"
	"github.com/valet-agent/valet/internal/calendar"
	"github.com/valet-agent/valet/internal/config"
	"github.com/valet-agent/valet/internal/contextmgr"
	"github.com/valet-agent/valet/internal/convo"
	"github.com/valet-agent/valet/internal/events"
	"github.com/valet-agent/valet/internal/llm"
	"github.com/valet-agent/valet/internal/tasks"
	"github.com/valet-agent/valet/internal/tokens"
	"github.com/valet-agent/valet/internal/tools"
	"github.com/valet-agent/valet/internal/trace"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main is intentionally minimal. It constructs the OS-level environment
// and delegates to [run], keeping os.Exit and os.Args out of the
// application logic so the lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the valet command. Arguments are
// parsed by hand; the flag package's package-level globals make it
// awkward to call run concurrently from tests, and the surface here is
// small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: valet ask <question>")
		}
		return runAsk(ctx, stdout, stderr, configPath, strings.Join(cmdArgs, " "))
	case "debrief":
		return runDebrief(ctx, stdout, stderr, configPath)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Valet - Personal Assistant Agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: valet [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  ask          Ask a single question (for testing)")
	fmt.Fprintln(w, "  debrief      Print a daily briefing to stdout")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	return nil
}

func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// newLogger creates a structured text logger writing to w. All log
// output goes through slog; this standardizes handler configuration
// across subcommands.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// valetComponents holds everything a running agent needs. buildLoop
// assembles it once and the subcommands share the wiring.
type valetComponents struct {
	loop   *agent.Loop
	client llm.Client
	store  *convo.SQLiteStore
	sink   *trace.SQLiteSink
	tasks  *tasks.Store
	cal    calendar.Source
	bus    *events.Bus
	est    *tokens.Estimator
}

// Close releases all component resources in reverse construction order.
func (c *valetComponents) Close() {
	if c.est != nil {
		c.est.Close()
	}
	if c.tasks != nil {
		c.tasks.Close()
	}
	if c.sink != nil {
		c.sink.Close()
	}
	if c.store != nil {
		c.store.Close()
	}
}

// buildLoop wires the full agent from configuration: SQLite stores,
// the Anthropic client, the tool registry, and the loop itself.
func buildLoop(cfg *config.Config, logger *slog.Logger) (*valetComponents, error) {
	if cfg.Anthropic.APIKey == "" {
		return nil, fmt.Errorf("anthropic.api_key is required")
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	c := &valetComponents{}

	store, err := convo.NewSQLiteStore(filepath.Join(cfg.DataDir, "valet.db"))
	if err != nil {
		return nil, fmt.Errorf("open conversation database: %w", err)
	}
	c.store = store

	sink, err := trace.NewSQLiteSink(filepath.Join(cfg.DataDir, "traces.db"))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("open trace database: %w", err)
	}
	c.sink = sink

	taskStore, err := tasks.NewStore(filepath.Join(cfg.DataDir, "tasks.db"))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("open task database: %w", err)
	}
	c.tasks = taskStore

	client := llm.NewAnthropicClient(cfg.Anthropic.APIKey, logger)
	c.client = client
	c.est = tokens.NewEstimator()
	c.bus = events.New()

	registry := tools.NewRegistry()
	tools.RegisterTaskTools(registry, taskStore)

	if cfg.Calendar.URL != "" {
		cal, err := calendar.NewCalDAV(cfg.Calendar, logger)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("calendar: %w", err)
		}
		c.cal = cal
		tools.RegisterCalendarTools(registry, cal)
	} else {
		logger.Info("calendar not configured")
		tools.RegisterCalendarTools(registry, nil)
	}

	var mgr *contextmgr.Manager
	if cfg.Agent.MaxConversationTokens > 0 {
		mgr = contextmgr.NewManager(client, c.est, contextmgr.Config{
			Threshold:  cfg.Agent.MaxConversationTokens,
			KeepRecent: cfg.Agent.KeepRecent,
			Model:      cfg.Model,
		}, logger)
	}

	c.loop = agent.New(agent.Config{
		Store:     store,
		Sink:      sink,
		Client:    client,
		Registry:  registry,
		Estimator: c.est,
		Context:   mgr,
		Bus:       c.bus,
		Limits: agent.SafetyLimits{
			MaxIterations:   cfg.Agent.MaxIterations,
			HardTokenLimit:  cfg.Agent.HardTokenLimit,
			MaxOutputTokens: cfg.Agent.MaxOutputTokens,
		},
		Model:   cfg.Model,
		Pricing: cfg.Pricing,
		Logger:  logger,
	})

	return c, nil
}

func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting Valet", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stdout, level)
	}

	logger.Info("config loaded", "path", cfgPath, "port", cfg.Listen.Port, "model", cfg.Model)

	c, err := buildLoop(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	server := api.NewServer(cfg.Listen, c.loop, logger)
	server.SetTaskStore(c.tasks)
	server.SetCalendar(c.cal)
	server.SetUsageReader(c.sink)
	server.SetEventBus(c.bus)
	server.SetPinger(c.client)

	// SIGINT/SIGTERM cancellation flows through the same ctx used by
	// all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		_ = server.Shutdown(context.Background())
	}()

	if err := server.Start(); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("Valet stopped")
	return nil
}

// runAsk processes a single question and prints the response. Useful
// for smoke tests without starting the server.
func runAsk(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath, question string) error {
	logger := newLogger(stderr, slog.LevelWarn)

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	c, err := buildLoop(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	resp, err := c.loop.ProcessMessage(ctx, question, "")
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Fprintln(stdout, resp.Content)
	return nil
}

// runDebrief gathers tasks and calendar, runs a briefing turn, and
// prints the result.
func runDebrief(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := newLogger(stderr, slog.LevelWarn)

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	c, err := buildLoop(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	input, err := api.DebriefInput(ctx, c.tasks, c.cal, logger)
	if err != nil {
		return err
	}

	resp, err := c.loop.ProcessMessage(ctx, input, "")
	if err != nil {
		return fmt.Errorf("debrief: %w", err)
	}

	fmt.Fprintln(stdout, resp.Content)
	return nil
}
