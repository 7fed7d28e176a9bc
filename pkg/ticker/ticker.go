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

// Package ticker is the wall-clock dispatcher: every minute it enqueues
// fetches for the realtime feeds, and at midnight UTC for the GTFS static
// schedules. Tasks carry the scheduled tick and a short expiry so a
// backlogged queue sheds stale work instead of fetching old data.
package ticker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kraklabs/feedarch/pkg/feeds"
	"github.com/kraklabs/feedarch/pkg/queue"
)

// Enqueuer is the producer side of the task queue.
type Enqueuer interface {
	EnqueueFetch(ctx context.Context, task queue.FetchTask) error
}

// Ticker owns the two schedules.
type Ticker struct {
	configs []feeds.FeedConfig
	queue   Enqueuer
	expires time.Duration
	dry     bool
	logger  *slog.Logger
	now     func() time.Time
}

// Options tune a Ticker.
type Options struct {
	// Expires is the task shed deadline; the default is 5 seconds.
	Expires time.Duration
	// Dry marks enqueued tasks as dry runs.
	Dry bool
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// New builds a Ticker over the given feed configs.
func New(configs []feeds.FeedConfig, q Enqueuer, logger *slog.Logger, opts Options) *Ticker {
	if logger == nil {
		logger = slog.Default()
	}
	expires := opts.Expires
	if expires <= 0 {
		expires = 5 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Ticker{
		configs: configs,
		queue:   q,
		expires: expires,
		dry:     opts.Dry,
		logger:  logger,
		now:     now,
	}
}

// Run installs the schedules and blocks until ctx is cancelled.
func (t *Ticker) Run(ctx context.Context) error {
	c := cron.New(cron.WithLocation(time.UTC))

	if _, err := c.AddFunc("* * * * *", func() {
		t.Tick(ctx, feeds.MinutelyFeedTypes())
	}); err != nil {
		return fmt.Errorf("install minutely schedule: %w", err)
	}
	if _, err := c.AddFunc("0 0 * * *", func() {
		t.Tick(ctx, []feeds.FeedType{feeds.FeedTypeGtfsSchedule})
	}); err != nil {
		return fmt.Errorf("install daily schedule: %w", err)
	}

	t.logger.Info("ticker.start", "configs", len(t.configs), "expires", t.expires, "dry", t.dry)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	t.logger.Info("ticker.stop")
	return nil
}

// Tick enqueues one round of fetches for the given feed types. The tick
// timestamp is the scheduled minute, truncated from the wall clock, so a
// slow enqueue still partitions under the intended instant.
func (t *Ticker) Tick(ctx context.Context, feedTypes []feeds.FeedType) {
	now := t.now().UTC()
	tick := feeds.NewTime(now.Truncate(time.Minute))

	wanted := make(map[feeds.FeedType]bool, len(feedTypes))
	for _, ft := range feedTypes {
		wanted[ft] = true
	}

	enqueued := 0
	for _, cfg := range t.configs {
		if !wanted[cfg.FeedType] {
			continue
		}
		fetches, err := feeds.Expand(cfg)
		if err != nil {
			t.logger.Error("ticker.expand.error", "feed", cfg.Name, "err", err)
			continue
		}
		for _, fetch := range fetches {
			task := queue.FetchTask{
				Tick:       tick,
				Config:     fetch.Config,
				Page:       fetch.Page,
				Dry:        t.dry,
				EnqueuedAt: feeds.NewTime(t.now()),
				Expires:    t.expires.Seconds(),
			}
			if err := t.queue.EnqueueFetch(ctx, task); err != nil {
				t.logger.Error("ticker.enqueue.error", "feed", cfg.Name, "err", err)
				continue
			}
			enqueued++
		}
	}
	t.logger.Info("ticker.tick",
		"tick", tick.ISO8601(),
		"enqueued", enqueued,
		"took_ms", time.Since(now).Milliseconds(),
	)
}
