// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/renderfleet/missioncontrol/cmd/missionctl/cli"
	"github.com/renderfleet/missioncontrol/lib/api"
	"github.com/renderfleet/missioncontrol/lib/asset"
	"github.com/renderfleet/missioncontrol/lib/launchcatalog"
	"github.com/renderfleet/missioncontrol/lib/mcclient"
)

func (a *app) assetsCommand() *cli.Command {
	return &cli.Command{
		Name:    "assets",
		Summary: "List, add and remove assets",
		Subcommands: []*cli.Command{
			a.assetsListCommand(),
			a.assetsShowCommand(),
			a.assetsAddCommand(),
			a.assetsUploadCommand(),
			a.assetsRemoveCommand(),
			a.assetsWatchCommand(),
		},
	}
}

func (a *app) assetsListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Summary: "List assets",
		Run: func(ctx context.Context, args []string) error {
			client, err := a.connect()
			if err != nil {
				return err
			}
			assets, err := client.ListAssets(ctx)
			if err != nil {
				return err
			}
			if done, err := a.output.EmitJSON(assets); done {
				return err
			}
			a.printAssets(assets)
			return nil
		},
	}
}

func (a *app) printAssets(assets []asset.Asset) {
	if len(assets) == 0 {
		a.output.Printf("no assets\n")
		return
	}
	table := a.output.Table()
	fmt.Fprintf(table, "ID\tNAME\tLAUNCHABLES\tSIZE\tADDED\n")
	for _, each := range assets {
		names := make([]string, 0, len(each.Launchables))
		for _, launchable := range each.Launchables {
			names = append(names, launchable.Name)
		}
		fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%s\n",
			each.ID, each.Name, strings.Join(names, ","),
			humanize.IBytes(uint64(each.StorageSize)), humanize.RelTime(each.Added, a.clock.Now(), "ago", "from now"))
	}
	table.Flush()
}

func (a *app) assetsShowCommand() *cli.Command {
	command := &cli.Command{
		Name:    "show",
		Summary: "Show an asset's launchables and parameters",
		Usage:   "<asset-id>",
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
		found, err := client.Asset(ctx, id)
		if err != nil {
			return err
		}
		if done, err := a.output.EmitJSON(found); done {
			return err
		}

		a.output.Printf("%s (%s)\n", found.Name, found.ID)
		if found.Description != "" {
			a.output.Printf("  %s\n", found.Description)
		}
		a.output.Printf("  storage: %s, added %s\n", humanize.IBytes(uint64(found.StorageSize)), found.Added.Format("2006-01-02 15:04:05"))
		for _, launchable := range found.Launchables {
			a.output.Printf("\nlaunchable %s (%s): %s\n", launchable.Name, launchable.Type, launchable.LaunchPath)
			for _, payloadID := range launchable.Payloads {
				a.output.Printf("  payload %s\n", payloadID)
			}
			a.printParameters("global", launchable.GlobalParameters)
			a.printParameters("launch complex", launchable.LaunchComplexParameters)
			a.printParameters("launch pad", launchable.LaunchPadParameters)
		}
		return nil
	}
	return command
}

func (a *app) printParameters(scope string, parameters []launchcatalog.Parameter) {
	if len(parameters) == 0 {
		return
	}
	a.output.Printf("  %s parameters:\n", scope)
	table := a.output.Table()
	for _, parameter := range parameters {
		flags := ""
		if parameter.Hidden {
			flags = " (hidden)"
		}
		fmt.Fprintf(table, "    %s\t%s\tdefault %v%s\t%s\n",
			parameter.ID, parameter.Type, parameter.DefaultValue, flags, parameter.Description)
	}
	table.Flush()
}

func (a *app) assetsAddCommand() *cli.Command {
	var name, description string
	command := &cli.Command{
		Name:    "add",
		Summary: "Add an asset from a folder the daemon can read",
		Usage:   "<folder>",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("add", pflag.ContinueOnError)
			flags.StringVar(&name, "name", "", "asset name (default: the folder's name)")
			flags.StringVar(&description, "description", "", "asset description")
			return flags
		},
	}
	command.Run = func(ctx context.Context, args []string) error {
		if err := command.ExactArgs(args, 1); err != nil {
			return err
		}
		folder, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		if name == "" {
			name = filepath.Base(folder)
		}
		client, err := a.connect()
		if err != nil {
			return err
		}
		id, err := client.AddAsset(ctx, api.AddAssetRequest{Name: name, Description: description, URL: folder})
		if err != nil {
			return err
		}
		return a.printAdded(id)
	}
	return command
}

func (a *app) assetsUploadCommand() *cli.Command {
	var name, description string
	command := &cli.Command{
		Name:    "upload",
		Summary: "Upload a local folder as a new asset",
		Usage:   "<folder>",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("upload", pflag.ContinueOnError)
			flags.StringVar(&name, "name", "", "asset name (default: the folder's name)")
			flags.StringVar(&description, "description", "", "asset description")
			return flags
		},
	}
	command.Run = func(ctx context.Context, args []string) error {
		if err := command.ExactArgs(args, 1); err != nil {
			return err
		}
		folder := filepath.Clean(args[0])
		if name == "" {
			absolute, err := filepath.Abs(folder)
			if err != nil {
				return err
			}
			name = filepath.Base(absolute)
		}
		client, err := a.connect()
		if err != nil {
			return err
		}
		a.logger.Debug("uploading asset", "folder", folder, "name", name)
		id, err := client.UploadAsset(ctx, asset.Info{Name: name, Description: description}, a.fs, folder)
		if err != nil {
			return err
		}
		return a.printAdded(id)
	}
	return command
}

func (a *app) printAdded(id uuid.UUID) error {
	if done, err := a.output.EmitJSON(api.AddAssetResponse{ID: id}); done {
		return err
	}
	a.output.Printf("%s\n", id)
	return nil
}

func (a *app) assetsRemoveCommand() *cli.Command {
	command := &cli.Command{
		Name:    "rm",
		Summary: "Remove an asset",
		Usage:   "<asset-id>",
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
		return client.RemoveAsset(ctx, id)
	}
	return command
}

func (a *app) assetsWatchCommand() *cli.Command {
	return &cli.Command{
		Name:    "watch",
		Summary: "Print the asset list every time it changes",
		Run: func(ctx context.Context, args []string) error {
			client, err := a.connect()
			if err != nil {
				return err
			}
			err = client.WatchAssets(ctx, mcclient.WatchConfig{Clock: a.clock, Logger: a.logger}, func(view mcclient.AssetsView) error {
				assets := make([]asset.Asset, 0, len(view))
				for _, each := range view {
					assets = append(assets, each)
				}
				sort.Slice(assets, func(i, j int) bool {
					if assets[i].Name != assets[j].Name {
						return assets[i].Name < assets[j].Name
					}
					return assets[i].ID.String() < assets[j].ID.String()
				})
				if done, err := a.output.EmitJSON(assets); done {
					return err
				}
				a.redraw()
				a.printAssets(assets)
				return nil
			})
			return ignoreCancel(ctx, err)
		},
	}
}

func parseID(text string) (uuid.UUID, error) {
	id, err := uuid.Parse(text)
	if err != nil {
		return uuid.Nil, &cli.UsageError{Command: "missionctl", Message: fmt.Sprintf("%q is not an id: %v", text, err)}
	}
	return id, nil
}
