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

package main

import (
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/feedarch/internal/ui"
	"github.com/kraklabs/feedarch/pkg/feeds"
	"github.com/kraklabs/feedarch/pkg/metrics"
	"github.com/kraklabs/feedarch/pkg/queue"
	"github.com/kraklabs/feedarch/pkg/ticker"
)

// runTicker executes the 'ticker' command: start the metrics endpoint and
// run the dispatcher until interrupted.
func runTicker(args []string, globals GlobalFlags) int {
	fs := flag.NewFlagSet("ticker", flag.ExitOnError)
	dry := fs.Bool("dry", false, "Enqueue dry-run tasks that log instead of saving")
	metricsAddr := fs.String("metrics-addr", ":8000", "HTTP listen address for Prometheus metrics")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: feedarch ticker [options]

Description:
  Run the fetch dispatcher. Every minute at :00 it enqueues fetches for
  every realtime feed; every day at 00:00:00 UTC it enqueues the GTFS
  schedule fetches. Tasks expire after HUEY_FETCH_CONFIG_EXPIRES seconds
  so a backlogged queue sheds stale ticks.

Options:
  --dry              Enqueue dry-run tasks that log instead of saving
  --metrics-addr     HTTP listen address for Prometheus metrics (default :8000)

`)
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}

	logger := newLogger(globals)
	env := loadEnv()

	configs, err := feeds.LoadConfigs(globals.ConfigPath)
	if err != nil {
		ui.Errorf("%v", err)
		return 1
	}
	ui.Infof("Found %d feed configs.", len(configs))

	m := metrics.New()
	m.Serve(*metricsAddr, logger)

	rdb := redis.NewClient(&redis.Options{Addr: env.RedisHost + ":6379"})
	q := queue.New(rdb, func(sig queue.Signal, task queue.FetchTask, err error) {
		m.Signal(task.Config.Labels(), string(sig), err)
	}, logger)

	ctx, cancel := signalContext(logger)
	defer cancel()

	tk := ticker.New(configs, q, logger, ticker.Options{
		Expires: env.FetchExpires,
		Dry:     *dry,
	})
	if err := tk.Run(ctx); err != nil {
		ui.Errorf("ticker: %v", err)
		return 1
	}
	return 0
}
