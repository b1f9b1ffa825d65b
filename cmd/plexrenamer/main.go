package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sydlexius/plexrenamer/internal/config"
)

// usageError is reported with exit status 2.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// env carries the global options and streams into a command.
type env struct {
	configPath string
	verbose    bool
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
}

type command struct {
	name    string
	args    string
	summary string
	run     func(ctx context.Context, e *env, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"scan", "[--type T] [--path P] [--all] [--select SPEC] [--apply] [--dry-run]", "start a scan, follow it and print the results", cmdScan},
		{"status", "", "print the backend's scan status", cmdStatus},
		{"results", "[--format table|json|html] [--out FILE]", "print the last scan's results", cmdResults},
		{"issues", "", "list results with metadata problems", cmdIssues},
		{"apply", "--select SPEC|--all [--dry-run]", "rename the selected results", cmdApply},
		{"browse", "[PATH]", "list a directory on the backend host", cmdBrowse},
		{"discover", "PATH", "start media folder discovery under PATH", cmdDiscover},
		{"folders", "", "list discovered media folders", cmdFolders},
		{"health", "", "check that the backend is reachable", cmdHealth},
		{"config", "show|init|get [KEY]|set KEY=VALUE...", "manage local and backend settings", cmdConfig},
		{"history", "[--limit N] [--stats] [--backup] [--vacuum]", "list recorded scan sessions", cmdHistory},
		{"tui", "[--type T] [--path P] [--all]", "interactive session screen", cmdTUI},
		{"daemon", "", "run scheduled scans and notifications", cmdDaemon},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], &env{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr})
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, e *env) int {
	fs := flag.NewFlagSet("plexrenamer", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.StringVar(&e.configPath, "config", config.DefaultPath(), "config file `path`")
	fs.BoolVar(&e.verbose, "v", false, "log at debug level")
	fs.Usage = func() { printUsage(e.stderr, fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	name := fs.Arg(0)
	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
			break
		}
	}
	if cmd == nil {
		fmt.Fprintf(e.stderr, "unknown command %q\n\n", name)
		fs.Usage()
		return 2
	}

	err := cmd.run(ctx, e, fs.Args()[1:])
	var ue *usageError
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return 0
	case errors.As(err, &ue):
		fmt.Fprintf(e.stderr, "error: %v\nusage: plexrenamer %s %s\n", err, cmd.name, cmd.args)
		return 2
	default:
		fmt.Fprintf(e.stderr, "error: %v\n", err)
		return 1
	}
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	var b strings.Builder
	b.WriteString("usage: plexrenamer [-config path] [-v] <command> [args]\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(&b, "  %-9s %s\n", c.name, c.summary)
	}
	b.WriteString("\nflags:\n")
	io.WriteString(w, b.String()) //nolint:errcheck
	fs.PrintDefaults()
}

// parseFlags parses a subcommand's flags, turning parse failures into
// usage errors.
func parseFlags(fs *flag.FlagSet, e *env, args []string) error {
	fs.SetOutput(e.stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return &usageError{msg: err.Error()}
	}
	return nil
}
