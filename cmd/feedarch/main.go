// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main implements the feedarch CLI: the transit-feed archiver's
// dispatcher, fetch worker pool, and hourly parser.
//
// Usage:
//
//	feedarch ticker [--dry]              Run the fetch dispatcher
//	feedarch consumer                    Run the fetch worker pool
//	feedarch parse day YYYY-MM-DD        Aggregate a day of raw files
//	feedarch parse file gs://...         Decode a single raw artifact
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/feedarch/internal/ui"
)

// Version information (set via ldflags during build)
var (
	version = "dev"     // Version string
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// GlobalFlags holds the global CLI flags that apply to all commands.
type GlobalFlags struct {
	ConfigPath string // Path to feeds.yaml
	NoColor    bool   // Disable color output
	Verbose    int    // Verbosity level: 0=info, 1+=debug
}

// newLogger builds the process logger at the requested verbosity.
func newLogger(globals GlobalFlags) *slog.Logger {
	level := slog.LevelInfo
	if globals.Verbose > 0 {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("shutdown.signal", "signal", sig.String())
		cancel()
	}()
	return ctx, cancel
}

func main() {
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		configPath  = flag.StringP("config", "c", "./feeds.yaml", "Path to feeds.yaml")
		noColor     = flag.Bool("no-color", false, "Disable color output (respects NO_COLOR env var)")
		verbose     = flag.CountP("verbose", "v", "Increase verbosity (-v for debug)")
	)

	// Stop parsing at the first non-flag argument (the command name) so
	// subcommand flags like "parse day --workers 4" reach the subcommand
	// parsers instead of being rejected here.
	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `feedarch - transit feed archiver

feedarch periodically fetches a configured set of transit feeds (GTFS
static, GTFS-Realtime, vendor JSON endpoints), archives each raw response
under a deterministic Hive-partitioned key, and aggregates the accumulated
raw files into hourly gzipped JSONL outputs per logical feed.

Usage:
  feedarch <command> [options]

Commands:
  ticker      Run the dispatcher: enqueue fetches every minute (realtime
              feeds) and every midnight UTC (GTFS schedules)
  consumer    Run the fetch worker pool against the task queue
  parse       Aggregate raw files (parse day) or inspect one (parse file)

Global Options:
  -c, --config      Path to feeds.yaml (default: ./feeds.yaml)
      --no-color    Disable color output (respects NO_COLOR env var)
  -v, --verbose     Increase verbosity (-v for debug)
  -V, --version     Show version and exit

Examples:
  feedarch ticker                          Start the dispatcher
  feedarch ticker --dry                    Log fetches without saving
  feedarch consumer                        Start the worker pool
  feedarch parse day 2024-01-02            Aggregate one day, all feeds
  feedarch parse day 2024-01-02 --include gtfs_rt__vehicle_positions
  feedarch parse file gs://raw/gtfs_rt__vehicle_positions/dt=.../x.json

Environment Variables:
  RAW_BUCKET                  Bucket for raw artifacts (gs:// optional)
  PARSED_BUCKET               Bucket for hourly aggregates
  HUEY_REDIS_HOST             Redis host for the task queue
  HUEY_WORKERS                Fetch worker pool size (default: 1)
  HUEY_FETCH_CONFIG_EXPIRES   Task expiry in seconds (default: 5)

For detailed command help: feedarch <command> --help

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("feedarch version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	globals := GlobalFlags{
		ConfigPath: *configPath,
		NoColor:    *noColor,
		Verbose:    *verbose,
	}
	ui.InitColors(globals.NoColor)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "ticker":
		os.Exit(runTicker(cmdArgs, globals))
	case "consumer":
		os.Exit(runConsumer(cmdArgs, globals))
	case "parse":
		os.Exit(runParse(cmdArgs, globals))
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
