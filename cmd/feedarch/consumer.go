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
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/feedarch/internal/ui"
	"github.com/kraklabs/feedarch/pkg/fetch"
	"github.com/kraklabs/feedarch/pkg/metrics"
	"github.com/kraklabs/feedarch/pkg/objstore"
	"github.com/kraklabs/feedarch/pkg/queue"
)

// runConsumer executes the 'consumer' command: start the metrics endpoint
// and run the fetch worker pool until interrupted.
func runConsumer(args []string, globals GlobalFlags) int {
	fs := flag.NewFlagSet("consumer", flag.ExitOnError)
	workers := fs.Int("workers", 0, "Fetch worker pool size (default: HUEY_WORKERS or 1)")
	metricsAddr := fs.String("metrics-addr", ":8000", "HTTP listen address for Prometheus metrics")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: feedarch consumer [options]

Description:
  Run the fetch worker pool. Workers pop tasks from the queue, fetch the
  feed origin, and write the raw artifact to RAW_BUCKET under its
  deterministic key. Stale tasks past their expiry are dropped unrun.

Options:
  --workers          Fetch worker pool size (default: HUEY_WORKERS or 1)
  --metrics-addr     HTTP listen address for Prometheus metrics (default :8000)

`)
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}

	logger := newLogger(globals)
	env := loadEnv()

	rawBucket, err := env.requireRawBucket()
	if err != nil {
		ui.Errorf("%v", err)
		return 1
	}
	poolSize := *workers
	if poolSize <= 0 {
		poolSize = env.Workers
	}

	m := metrics.New()
	m.Serve(*metricsAddr, logger)

	ctx, cancel := signalContext(logger)
	defer cancel()

	store, err := objstore.NewGCSStore(ctx, objstore.GCSConfig{Bucket: rawBucket}, logger)
	if err != nil {
		ui.Errorf("%v", err)
		return 1
	}
	defer store.Close()

	fetcher := fetch.New(store, m, logger, nil)

	rdb := redis.NewClient(&redis.Options{Addr: env.RedisHost + ":6379"})
	q := queue.New(rdb, func(sig queue.Signal, task queue.FetchTask, err error) {
		m.Signal(task.Config.Labels(), string(sig), err)
	}, logger)

	if err := q.Consume(ctx, poolSize, func(ctx context.Context, task queue.FetchTask) error {
		return fetcher.Fetch(ctx, task)
	}); err != nil && err != context.Canceled {
		ui.Errorf("consumer: %v", err)
		return 1
	}
	return 0
}
