// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/renderfleet/missioncontrol/cmd/missionctl/cli"
	"github.com/renderfleet/missioncontrol/lib/api"
	"github.com/renderfleet/missioncontrol/lib/mcclient"
)

func (a *app) statusCommand() *cli.Command {
	return &cli.Command{
		Name:    "status",
		Summary: "Show storage folder usage",
		Run: func(ctx context.Context, args []string) error {
			client, err := a.connect()
			if err != nil {
				return err
			}
			status, err := client.Status(ctx)
			if err != nil {
				return err
			}
			if done, err := a.output.EmitJSON(status); done {
				return err
			}
			a.printStatus(status)
			return nil
		},
	}
}

func (a *app) watchCommand() *cli.Command {
	return &cli.Command{
		Name:    "watch",
		Summary: "Show storage folder usage, updated as it changes",
		Run: func(ctx context.Context, args []string) error {
			client, err := a.connect()
			if err != nil {
				return err
			}
			err = client.WatchStatus(ctx, mcclient.WatchConfig{Clock: a.clock, Logger: a.logger}, func(status api.Status) error {
				if done, err := a.output.EmitJSON(status); done {
					return err
				}
				a.redraw()
				a.printStatus(status)
				return nil
			})
			return ignoreCancel(ctx, err)
		},
	}
}

func (a *app) printStatus(status api.Status) {
	a.output.Printf("%s blobs\n\n", humanize.Comma(int64(status.Blobs)))
	table := a.output.Table()
	fmt.Fprintf(table, "FOLDER\tUSED\tRECLAIMABLE\tMAXIMUM\t\n")
	width := a.barWidth()
	for _, folder := range status.StorageFolders {
		fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%s\n", folder.Path,
			humanize.IBytes(uint64(folder.CurrentSize)),
			humanize.IBytes(uint64(folder.ZombiesSize)),
			humanize.IBytes(uint64(folder.MaximumSize)),
			usageBar(folder.CurrentSize, folder.MaximumSize, width))
	}
	table.Flush()
}

// barWidth sizes the usage bar to the terminal. Output that is not a
// terminal gets no bar.
func (a *app) barWidth() int {
	if !a.output.IsTerminal() {
		return 0
	}
	columns, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0
	}
	return min(max(columns/4, 10), 40)
}

func usageBar(used, maximum int64, width int) string {
	if width <= 0 || maximum <= 0 {
		return ""
	}
	filled := int(min(used, maximum) * int64(width) / maximum)
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "] " +
		humanize.FtoaWithDigits(float64(used)*100/float64(maximum), 1) + "%"
}

// redraw clears an interactive screen before a watch reprints.
func (a *app) redraw() {
	if a.output.IsTerminal() {
		a.output.Printf("\x1b[H\x1b[2J")
	}
}

// ignoreCancel turns the interrupt ending a watch into a clean exit.
func ignoreCancel(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}
