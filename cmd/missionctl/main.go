// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/renderfleet/missioncontrol/cmd/missionctl/cli"
	"github.com/renderfleet/missioncontrol/lib/clock"
	"github.com/renderfleet/missioncontrol/lib/mcclient"
	"github.com/renderfleet/missioncontrol/lib/process"
	"github.com/renderfleet/missioncontrol/lib/version"
)

const (
	defaultDaemon = "http://127.0.0.1:8000"
	daemonEnv     = "MISSIONCTL_DAEMON"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil && !errors.Is(err, cli.ErrHelp) {
		var usage *cli.UsageError
		if errors.As(err, &usage) {
			err = process.Usage(err)
		}
		process.Fatal(err)
	}
}

// app is what every command runs against.
type app struct {
	daemon string
	output *cli.Output
	logger *slog.Logger
	fs     afero.Fs
	clock  clock.Clock

	client *mcclient.Client
}

func (a *app) connect() (*mcclient.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	client, err := mcclient.New(a.daemon, nil)
	if err != nil {
		return nil, err
	}
	a.client = client
	return client, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		daemon      string
		jsonOutput  bool
		verbose     bool
		showVersion bool
	)
	flags := pflag.NewFlagSet("missionctl", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.SetOutput(io.Discard)
	flags.StringVar(&daemon, "daemon", "", "daemon address (default $"+daemonEnv+" or "+defaultDaemon+")")
	flags.BoolVar(&jsonOutput, "json", false, "print results as JSON")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log requests and retries")
	flags.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			args = []string{"--help"}
		} else {
			return &cli.UsageError{Command: "missionctl", Message: err.Error()}
		}
	} else {
		args = flags.Args()
	}

	if showVersion {
		version.Fprint(stdout, "missionctl")
		return nil
	}

	if daemon == "" {
		daemon = os.Getenv(daemonEnv)
	}
	if daemon == "" {
		daemon = defaultDaemon
	}

	a := &app{
		daemon: daemon,
		output: &cli.Output{Writer: stdout, JSON: jsonOutput},
		logger: cli.NewLogger(verbose),
		fs:     afero.NewOsFs(),
		clock:  clock.Real(),
	}
	root := a.root()
	root.Flags = func() *pflag.FlagSet { return flags }
	return root.Execute(ctx, args, stderr)
}

func (a *app) root() *cli.Command {
	return &cli.Command{
		Name:    "missionctl",
		Summary: "Manage the assets and launch configuration of a missioncontrol daemon.",
		Subcommands: []*cli.Command{
			a.assetsCommand(),
			a.statusCommand(),
			a.watchCommand(),
			a.blobCommand(),
			a.payloadCommand(),
			a.launchCommand(),
			a.configCommand(),
		},
	}
}
