// Command csvreader reads header-indexed CSV files.
//
//	csvreader dump    [flags] <source>        print rows as CSV or JSON
//	csvreader titles  [flags] <source>        print header titles and field names
//	csvreader serve                           run the preview web server
//	csvreader load    [flags] <source>...     load sources into a database table
//	csvreader watch   [flags]                 load CSV files dropped into a directory
//	csvreader history [flags]                 list recent loads
//
// Settings come from the environment (and .env); flags override the CSV
// settings for a single run.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/JonMunkholm/csvreader/internal/config"
	"github.com/JonMunkholm/csvreader/internal/logging"
	"github.com/joho/godotenv"
)

// command runs one subcommand.
type command func(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error

var commands = map[string]command{
	"dump":    runDump,
	"titles":  runTitles,
	"serve":   runServe,
	"load":    runLoad,
	"watch":   runWatch,
	"history": runHistory,
}

func main() {
	// Overload lets .env win over variables already set in the shell
	if err := godotenv.Overload(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage(stderr)
		return 2
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "csvreader: unknown command %q\n\n", args[0])
		printUsage(stderr)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return 1
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd(ctx, cfg, args[1:], stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		slog.Error("command failed", "command", args[0], "error", err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: csvreader <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", name)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "run 'csvreader <command> -h' for the flags of a command")
}
