// Package cmd implements the geotrack CLI commands.
//
// Every command runs a geo.Tracker against the simulated host bridge, so the
// tracking state machine can be exercised without a browser or a device.
package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
)

// Version information set at build time.
var (
	Version   = "0.1.0-dev"
	BuildTime = "unknown"
)

// Command represents a CLI command.
type Command struct {
	Name  string
	Short string
	Long  string
	Usage string
	Run   func(args []string) error
}

// Commands registered with the CLI.
var commands = make(map[string]*Command)

// stdout is where commands print results. Tests replace it.
var stdout io.Writer = os.Stdout

// RegisterCommand adds a command to the CLI.
func RegisterCommand(cmd *Command) {
	commands[cmd.Name] = cmd
}

// Execute runs the CLI with the given arguments.
func Execute(args []string) error {
	if len(args) == 0 {
		printHelp()
		return nil
	}

	switch args[0] {
	case "-h", "--help", "help":
		if len(args) > 1 {
			if cmd, ok := commands[args[1]]; ok {
				printCommandHelp(cmd)
				return nil
			}
		}
		printHelp()
		return nil
	case "-v", "--version", "version":
		fmt.Fprintf(stdout, "geotrack version %s (built %s)\n", Version, BuildTime)
		return nil
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", args[0])
		printHelp()
		return fmt.Errorf("unknown command: %s", args[0])
	}
	return cmd.Run(args[1:])
}

func printHelp() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(stdout, `geotrack drives the location tracker against a simulated host.

Usage:
  geotrack <command> [flags]

Commands:`)
	for _, name := range names {
		fmt.Fprintf(stdout, "  %-12s %s\n", name, commands[name].Short)
	}
	fmt.Fprintln(stdout, `
Flags:
  -h, --help       Show help for a command
  -v, --version    Show version information

Environment:
  GEOTRACK_LOG_LEVEL            Log level override (trace, debug, info, warn, error)
  GEOTRACK_BRIDGE_MIN_VERSION   Minimum host bridge version

Examples:
  geotrack watch --duration 5s
  geotrack locate --permission denied
  geotrack permission --reset`)
}

func printCommandHelp(cmd *Command) {
	fmt.Fprintln(stdout, cmd.Long)
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Usage:")
	fmt.Fprintf(stdout, "  %s\n", cmd.Usage)
}
