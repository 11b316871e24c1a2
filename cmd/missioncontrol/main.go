// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/renderfleet/missioncontrol/lib/clock"
	"github.com/renderfleet/missioncontrol/lib/config"
	"github.com/renderfleet/missioncontrol/lib/process"
	"github.com/renderfleet/missioncontrol/lib/service"
	"github.com/renderfleet/missioncontrol/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("missioncontrol", pflag.ContinueOnError)
	configPath := flags.String("config", "", "configuration file (default: $MISSIONCONTROL_CONFIG)")
	verbose := flags.BoolP("verbose", "v", false, "log at debug level")
	showVersion := flags.Bool("version", false, "print version information and exit")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return process.Usage(err)
	}
	if flags.NArg() > 0 {
		return process.Usage(fmt.Errorf("unexpected argument %q", flags.Arg(0)))
	}

	if *showVersion {
		version.Print("missioncontrol")
		return nil
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logger := service.NewLogger(*verbose)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()
	d, err := openDaemon(ctx, cfg, clk, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Error("closing", "error", err)
		}
	}()

	go d.persist.RunEvery(ctx, clk, cfg.PersistInterval)

	reload := service.NewFlight("reload configuration", func(ctx context.Context) error {
		return d.reload(ctx, *configPath)
	}, logger)
	hangup := make(chan os.Signal, 1)
	signal.Notify(hangup, syscall.SIGHUP)
	defer signal.Stop(hangup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hangup:
				logger.Info("reloading configuration")
				if err := reload.Do(ctx); err != nil {
					logger.Error("configuration reload failed", "error", err)
				}
			}
		}
	}()

	server := service.NewHTTPServer(service.HTTPServerConfig{
		Address:         cfg.Listen,
		Handler:         d.routes(),
		LongPollTimeout: cfg.LongPollTimeout,
		Logger:          logger,
	})

	logger.Info("mission control running",
		"version", version.Info(),
		"listen", cfg.Listen,
		"state_dir", cfg.StateDir,
	)
	return server.Serve(ctx)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
