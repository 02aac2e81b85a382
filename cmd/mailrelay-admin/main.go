package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/target/mailrelay/config"
	"github.com/target/mailrelay/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = 30 * time.Second
)

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"state": {
			name:        "state",
			description: "Show the persisted dispatch state",
			run:         runState,
		},
		"logs": {
			name:        "logs",
			description: "Print the persisted dispatch log",
			run:         runLogs,
		},
		"reset": {
			name:        "reset",
			description: "Delete the persisted dispatch state (stop the service first)",
			run:         runReset,
		},
		"migrate": {
			name:        "migrate",
			description: "Run or inspect Postgres state store migrations",
			run:         runMigrations,
		},
	}
}

func printUsage() error {
	if err := writef(os.Stdout, "Usage: mailrelay-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(os.Stdout, "Available commands:\n"); err != nil {
		return err
	}
	names := make([]string, 0, len(commands()))
	for name := range commands() {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := commands()[name]
		if err := writef(os.Stdout, "  %-12s %s\n", c.name, c.description); err != nil {
			return err
		}
	}
	return nil
}

type stateOptions struct {
	JSON    bool
	Timeout time.Duration
}

type logsOptions struct {
	Limit   int
	Level   string
	Timeout time.Duration
}

type resetOptions struct {
	Yes     bool
	Force   bool
	Timeout time.Duration
}

type migrateOptions struct {
	Timeout time.Duration
	Status  bool
}

func parseStateFlags(args []string) (stateOptions, error) {
	fs := flag.NewFlagSet("state", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := stateOptions{}
	fs.BoolVar(&opts.JSON, "json", false, "Print the full state as JSON")
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration for the store read")

	if err := fs.Parse(args); err != nil {
		return stateOptions{}, err
	}
	if opts.Timeout <= 0 {
		return stateOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func parseLogsFlags(args []string) (logsOptions, error) {
	fs := flag.NewFlagSet("logs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := logsOptions{}
	fs.IntVar(&opts.Limit, "limit", 50, "Number of most recent entries to print (0 prints all)")
	fs.StringVar(&opts.Level, "level", "", "Only print entries of this level (info, success, error, warning)")
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration for the store read")

	if err := fs.Parse(args); err != nil {
		return logsOptions{}, err
	}
	if opts.Limit < 0 {
		return logsOptions{}, errors.New("--limit must be zero or greater")
	}
	if opts.Timeout <= 0 {
		return logsOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func parseResetFlags(args []string) (resetOptions, error) {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := resetOptions{}
	fs.BoolVar(&opts.Yes, "yes", false, "Skip the confirmation prompt")
	fs.BoolVar(&opts.Force, "force", false, "Reset even when the stored state says a job is running")
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration for the store update")

	if err := fs.Parse(args); err != nil {
		return resetOptions{}, err
	}
	if opts.Timeout <= 0 {
		return resetOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := migrateOptions{
		Timeout: defaultMigrationTimeout,
	}

	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		defaultMigrationTimeout,
		"Maximum duration to wait for migrations to complete",
	)
	fs.BoolVar(&opts.Status, "status", false, "List migrations and whether they are applied without changing anything")

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}

	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}

	return opts, nil
}
