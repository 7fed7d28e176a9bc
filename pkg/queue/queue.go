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

// Package queue is the client for the Redis-backed fetch-task queue: a
// Redis list fed with LPUSH and drained with BRPOP. A task is removed from
// the list when it is popped, so a worker that dies mid-task loses it;
// delivery is at most once. This package adds the task envelope, per-task
// expiry, and lifecycle signals. A backlogged queue sheds stale
// minute-ticks instead of fetching old data: a task that has not started by
// enqueued_at + expires is dropped with the expired signal.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kraklabs/feedarch/pkg/feeds"
)

// fetchKey is the Redis list holding pending fetch tasks.
const fetchKey = "feedarch:fetch"

// Signal names mirror the broker's task lifecycle.
type Signal string

const (
	SignalEnqueued  Signal = "enqueued"
	SignalExecuting Signal = "executing"
	SignalComplete  Signal = "complete"
	SignalError     Signal = "error"
	SignalRetrying  Signal = "retrying"
	SignalExpired   Signal = "expired"
)

// FetchTask is the wire envelope for one fetch. Tick is the scheduled
// instant, not the enqueue instant, so downstream partitioning reflects
// intent even when the queue lags.
type FetchTask struct {
	Tick       feeds.Time       `json:"tick"`
	Config     feeds.FeedConfig `json:"config"`
	Page       []feeds.KeyValue `json:"page,omitempty"`
	Dry        bool             `json:"dry,omitempty"`
	EnqueuedAt feeds.Time       `json:"enqueued_at"`
	// Expires is the shed deadline in seconds after EnqueuedAt. Zero or
	// negative disables expiry.
	Expires float64 `json:"expires"`
}

// ExpiredAt reports whether the task should be shed rather than run at now.
func (t FetchTask) ExpiredAt(now time.Time) bool {
	if t.Expires <= 0 {
		return false
	}
	deadline := t.EnqueuedAt.Add(time.Duration(t.Expires * float64(time.Second)))
	return now.After(deadline)
}

// SignalFunc observes task lifecycle transitions. err is non-nil only for
// the error signal.
type SignalFunc func(signal Signal, task FetchTask, err error)

// Queue produces and consumes fetch tasks on one Redis connection.
type Queue struct {
	rdb     *redis.Client
	signals SignalFunc
	logger  *slog.Logger
}

// New wraps an existing Redis client. signals may be nil.
func New(rdb *redis.Client, signals SignalFunc, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if signals == nil {
		signals = func(Signal, FetchTask, error) {}
	}
	return &Queue{rdb: rdb, signals: signals, logger: logger}
}

// EnqueueFetch pushes one task onto the queue.
func (q *Queue) EnqueueFetch(ctx context.Context, task FetchTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode fetch task: %w", err)
	}
	if err := q.rdb.LPush(ctx, fetchKey, data).Err(); err != nil {
		return fmt.Errorf("enqueue fetch task: %w", err)
	}
	q.signals(SignalEnqueued, task, nil)
	return nil
}

// Handler runs one fetch task.
type Handler func(ctx context.Context, task FetchTask) error

// Consume runs workers goroutines popping and executing tasks until ctx is
// cancelled. Handler failures surface through the error signal and the
// task is dropped; retry is the broker operator's policy, not the worker's.
func (q *Queue) Consume(ctx context.Context, workers int, handle Handler) error {
	if workers <= 0 {
		workers = 1
	}
	q.logger.Info("queue.consume.start", "workers", workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if err := q.consumeOne(ctx, handle); err != nil && !errors.Is(err, context.Canceled) {
					q.logger.Warn("queue.consume.pop.error", "worker", worker, "err", err)
				}
			}
		}(w)
	}
	wg.Wait()
	q.logger.Info("queue.consume.stop")
	return ctx.Err()
}

// consumeOne blocks for one task and runs it through the expiry gate.
func (q *Queue) consumeOne(ctx context.Context, handle Handler) error {
	res, err := q.rdb.BRPop(ctx, time.Second, fetchKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	// BRPop returns [key, value].
	if len(res) != 2 {
		return fmt.Errorf("unexpected BRPOP reply of %d elements", len(res))
	}

	var task FetchTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		q.logger.Warn("queue.task.decode.error", "err", err)
		return nil
	}

	if task.ExpiredAt(time.Now()) {
		q.signals(SignalExpired, task, nil)
		q.logger.Info("queue.task.expired",
			"feed", task.Config.Name,
			"tick", task.Tick.ISO8601(),
			"expires_s", task.Expires,
		)
		return nil
	}

	q.signals(SignalExecuting, task, nil)
	if err := handle(ctx, task); err != nil {
		q.signals(SignalError, task, err)
		q.logger.Error("queue.task.error", "feed", task.Config.Name, "err", err)
		return nil
	}
	q.signals(SignalComplete, task, nil)
	return nil
}
