// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/renderfleet/missioncontrol/cmd/missionctl/cli"
	"github.com/renderfleet/missioncontrol/lib/launchconfig"
)

func (a *app) launchCommand() *cli.Command {
	return &cli.Command{
		Name:    "launch",
		Summary: "Show or change which asset is launched",
		Subcommands: []*cli.Command{
			a.launchShowCommand(),
			a.launchSetCommand(),
			a.launchClearCommand(),
		},
	}
}

func (a *app) launchShowCommand() *cli.Command {
	return &cli.Command{
		Name:    "show",
		Summary: "Show the launch configuration",
		Run: func(ctx context.Context, args []string) error {
			client, err := a.connect()
			if err != nil {
				return err
			}
			current, err := client.LaunchConfiguration(ctx)
			if err != nil {
				return err
			}
			return a.printLaunchConfiguration(current)
		},
	}
}

func (a *app) launchSetCommand() *cli.Command {
	var parameters []string
	command := &cli.Command{
		Name:    "set",
		Summary: "Select the asset to launch and its parameter values",
		Usage:   "<asset-id>",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("set", pflag.ContinueOnError)
			flags.StringArrayVarP(&parameters, "param", "p", nil, "parameter value as id=value (repeatable); values are JSON when they parse as JSON")
			return flags
		},
	}
	command.Run = func(ctx context.Context, args []string) error {
		if err := command.ExactArgs(args, 1); err != nil {
			return err
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		values, err := parseParameters(parameters)
		if err != nil {
			return &cli.UsageError{Command: "missionctl launch set", Message: err.Error()}
		}
		client, err := a.connect()
		if err != nil {
			return err
		}
		stored, err := client.SetLaunchConfiguration(ctx, launchconfig.Configuration{AssetID: id, Parameters: values})
		if err != nil {
			return err
		}
		return a.printLaunchConfiguration(stored)
	}
	return command
}

func (a *app) launchClearCommand() *cli.Command {
	return &cli.Command{
		Name:    "clear",
		Summary: "Select no asset for launch",
		Run: func(ctx context.Context, args []string) error {
			client, err := a.connect()
			if err != nil {
				return err
			}
			stored, err := client.SetLaunchConfiguration(ctx, launchconfig.Configuration{})
			if err != nil {
				return err
			}
			return a.printLaunchConfiguration(stored)
		},
	}
}

// parseParameters reads id=value pairs. A value that parses as JSON
// keeps its JSON type, so 8 is a number and true a boolean; anything
// else is a string.
func parseParameters(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	values := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		id, raw, ok := strings.Cut(pair, "=")
		if !ok || id == "" {
			return nil, fmt.Errorf("parameter %q is not id=value", pair)
		}
		if _, duplicate := values[id]; duplicate {
			return nil, fmt.Errorf("parameter %q given twice", id)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		values[id] = value
	}
	return values, nil
}

func (a *app) printLaunchConfiguration(current launchconfig.Configuration) error {
	if done, err := a.output.EmitJSON(current); done {
		return err
	}
	if current.AssetID == uuid.Nil {
		a.output.Printf("no asset selected\n")
		return nil
	}
	a.output.Printf("asset %s\n", current.AssetID)
	ids := make([]string, 0, len(current.Parameters))
	for id := range current.Parameters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		a.output.Printf("  %s = %v\n", id, current.Parameters[id])
	}
	return nil
}

func (a *app) configCommand() *cli.Command {
	return &cli.Command{
		Name:    "config",
		Summary: "Show the daemon's configuration",
		Subcommands: []*cli.Command{{
			Name:    "show",
			Summary: "Print the configuration as YAML",
			Run: func(ctx context.Context, args []string) error {
				client, err := a.connect()
				if err != nil {
					return err
				}
				current, err := client.Config(ctx)
				if err != nil {
					return err
				}
				if done, err := a.output.EmitJSON(current); done {
					return err
				}
				encoder := yaml.NewEncoder(a.output.Writer)
				encoder.SetIndent(2)
				if err := encoder.Encode(current); err != nil {
					return err
				}
				return encoder.Close()
			},
		}},
	}
}

func (a *app) blobCommand() *cli.Command {
	var outputPath string
	command := &cli.Command{
		Name:    "blob",
		Summary: "Write a blob's content to stdout or a file",
		Usage:   "<blob-id>",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("blob", pflag.ContinueOnError)
			flags.StringVarP(&outputPath, "output", "o", "", "write to this file instead of stdout")
			return flags
		},
	}
	command.Run = func(ctx context.Context, args []string) error {
		if err := command.ExactArgs(args, 1); err != nil {
			return err
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		client, err := a.connect()
		if err != nil {
			return err
		}
		content, length, err := client.Blob(ctx, id)
		if err != nil {
			return err
		}
		defer content.Close()

		destination := a.output.Writer
		if outputPath != "" {
			file, err := a.fs.Create(outputPath)
			if err != nil {
				return err
			}
			defer file.Close()
			destination = file
		}
		written, err := io.Copy(destination, content)
		if err != nil {
			return fmt.Errorf("reading blob %s: %w", id, err)
		}
		if length >= 0 && written != length {
			return fmt.Errorf("blob %s: received %d of %d bytes", id, written, length)
		}
		if outputPath != "" {
			a.logger.Info("blob written", "path", outputPath, "size", humanize.IBytes(uint64(written)))
		}
		return nil
	}
	return command
}

func (a *app) payloadCommand() *cli.Command {
	command := &cli.Command{
		Name:    "payload",
		Summary: "List the files of a payload",
		Usage:   "<payload-id>",
	}
	command.Run = func(ctx context.Context, args []string) error {
		if err := command.ExactArgs(args, 1); err != nil {
			return err
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		client, err := a.connect()
		if err != nil {
			return err
		}
		found, err := client.Payload(ctx, id)
		if err != nil {
			return err
		}
		if done, err := a.output.EmitJSON(found); done {
			return err
		}
		table := a.output.Table()
		fmt.Fprintf(table, "PATH\tSIZE\tSTORED\tBLOB\n")
		for _, file := range found.Files {
			fmt.Fprintf(table, "%s\t%s\t%s\t%s\n", file.Path,
				humanize.IBytes(uint64(file.Size)), humanize.IBytes(uint64(file.CompressedSize)), file.BlobID)
		}
		return table.Flush()
	}
	return command
}
