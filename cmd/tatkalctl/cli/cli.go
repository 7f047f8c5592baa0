// Package cli implements the tatkalctl operator commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
)

// Env carries the process streams and the Redis address for job commands.
type Env struct {
	Stdout    io.Writer
	Stderr    io.Writer
	RedisAddr string
}

type command struct {
	summary string
	run     func(ctx context.Context, env Env, args []string) int
}

var commands = map[string]command{
	"phase": {summary: "classify a wall-clock time into a desk phase", run: runPhase},
	"caps":  {summary: "list the capabilities granted to a role", run: runCaps},
	"jobs":  {summary: "trigger background jobs or inspect the queue", run: runJobs},
}

// Run dispatches args[0] to a subcommand and returns the exit code.
func Run(ctx context.Context, env Env, args []string) int {
	if env.Stdout == nil {
		env.Stdout = os.Stdout
	}
	if env.Stderr == nil {
		env.Stderr = os.Stderr
	}
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		usage(env.Stderr)
		if len(args) == 0 {
			return 2
		}
		return 0
	}
	cmd, ok := commands[args[0]]
	if !ok {
		_, _ = fmt.Fprintf(env.Stderr, "tatkalctl: unknown command %q\n", args[0])
		usage(env.Stderr)
		return 2
	}
	return cmd.run(ctx, env, args[1:])
}

func usage(out io.Writer) {
	_, _ = fmt.Fprintln(out, "usage: tatkalctl <command> [flags]")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, _ = fmt.Fprintf(out, "  %-6s %s\n", name, commands[name].summary)
	}
}
