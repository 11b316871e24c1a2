// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// ErrHelp is returned after help was printed because the user asked
// for it.
var ErrHelp = errors.New("help requested")

// Command is a CLI command or a group of subcommands.
type Command struct {
	// Name is the word typed to select the command.
	Name string

	// Summary is the one-line description in the parent's listing.
	Summary string

	// Usage is the argument synopsis after the command path, e.g.
	// "<asset-id>".
	Usage string

	// Flags returns the command's flag set. It is called once per
	// execution so parsed values never leak between runs.
	Flags func() *pflag.FlagSet

	Subcommands []*Command

	// Run executes the command with the positional arguments left
	// after flag parsing. Exactly one of Run and Subcommands is set.
	Run func(ctx context.Context, args []string) error

	parent *Command
}

// UsageError is a mistake in how the command was invoked. main exits
// with status 2 for it.
type UsageError struct {
	Command string
	Message string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("%s\n\nRun '%s --help' for usage.", e.Message, e.Command)
}

// Execute dispatches args to the matching subcommand, parses its
// flags and runs it. Help goes to help.
func (c *Command) Execute(ctx context.Context, args []string, help io.Writer) error {
	if len(args) > 0 && isHelpFlag(args[0]) {
		c.PrintHelp(help)
		return ErrHelp
	}

	if len(c.Subcommands) > 0 {
		if len(args) == 0 {
			c.PrintHelp(help)
			return &UsageError{Command: c.fullName(), Message: "a subcommand is required"}
		}
		for _, sub := range c.Subcommands {
			if sub.Name == args[0] {
				sub.parent = c
				return sub.Execute(ctx, args[1:], help)
			}
		}
		message := fmt.Sprintf("unknown command %q", args[0])
		if suggestion := suggestCommand(args[0], c.Subcommands); suggestion != "" {
			message += fmt.Sprintf(" (did you mean %q?)", suggestion)
		}
		return &UsageError{Command: c.fullName(), Message: message}
	}

	if c.Flags != nil {
		flagSet := c.Flags()
		flagSet.SetOutput(io.Discard)
		if err := flagSet.Parse(args); err != nil {
			if errors.Is(err, pflag.ErrHelp) {
				c.PrintHelp(help)
				return ErrHelp
			}
			message := err.Error()
			if strings.Contains(message, "unknown flag") || strings.Contains(message, "unknown shorthand") {
				if suggestion := suggestFlag(args, c.Flags()); suggestion != "" {
					message += fmt.Sprintf(" (did you mean %s?)", suggestion)
				}
			}
			return &UsageError{Command: c.fullName(), Message: message}
		}
		args = flagSet.Args()
	}
	return c.Run(ctx, args)
}

// ExactArgs checks the positional argument count of a command.
func (c *Command) ExactArgs(args []string, n int) error {
	if len(args) == n {
		return nil
	}
	return &UsageError{
		Command: c.fullName(),
		Message: fmt.Sprintf("expected %d argument(s), got %d", n, len(args)),
	}
}

// PrintHelp writes the command's help.
func (c *Command) PrintHelp(w io.Writer) {
	name := c.fullName()
	if c.Summary != "" {
		fmt.Fprintf(w, "%s\n\n", c.Summary)
	}

	switch {
	case len(c.Subcommands) > 0:
		fmt.Fprintf(w, "Usage:\n  %s <command>\n", name)
	case c.Usage != "":
		fmt.Fprintf(w, "Usage:\n  %s [flags] %s\n", name, c.Usage)
	default:
		fmt.Fprintf(w, "Usage:\n  %s [flags]\n", name)
	}

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nCommands:\n")
		table := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
		for _, sub := range c.Subcommands {
			fmt.Fprintf(table, "  %s\t%s\n", sub.Name, sub.Summary)
		}
		table.Flush()
		fmt.Fprintf(w, "\nRun '%s <command> --help' for more information on a command.\n", name)
	}

	if c.Flags != nil {
		if defaults := c.Flags().FlagUsages(); defaults != "" {
			fmt.Fprintf(w, "\nFlags:\n%s", defaults)
		}
	}
}

func (c *Command) fullName() string {
	if c.parent == nil {
		return c.Name
	}
	return c.parent.fullName() + " " + c.Name
}

func isHelpFlag(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "help"
}
