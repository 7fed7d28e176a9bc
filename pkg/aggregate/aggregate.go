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

// Package aggregate parses accumulated raw artifacts and groups them into
// hourly JSONL outputs, one object per (table, hour, url fingerprint), to
// keep external-table file counts manageable.
package aggregate

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/kraklabs/feedarch/pkg/decode"
	"github.com/kraklabs/feedarch/pkg/feeds"
	"github.com/kraklabs/feedarch/pkg/objstore"
)

// HourKey identifies one aggregation group: all raw blobs of one feed type
// sharing an hour and a url fingerprint.
type HourKey struct {
	FeedType  feeds.FeedType
	Hour      string
	Base64URL string
}

// ParseHourKey recovers the group key from a raw object name of the form
// table/dt=…/hour=…/ts=…/base64url=…/filename.
func ParseHourKey(name string) (HourKey, error) {
	parts := strings.Split(name, "/")
	if len(parts) != 6 {
		return HourKey{}, fmt.Errorf("raw key %q has %d segments, want 6", name, len(parts))
	}
	ft, err := feeds.ParseFeedType(parts[0])
	if err != nil {
		return HourKey{}, fmt.Errorf("raw key %q: %w", name, err)
	}
	_, hour, ok := cutPartition(parts[2], "hour")
	if !ok {
		return HourKey{}, fmt.Errorf("raw key %q missing hour partition", name)
	}
	_, b64, ok := cutPartition(parts[4], "base64url")
	if !ok {
		return HourKey{}, fmt.Errorf("raw key %q missing base64url partition", name)
	}
	return HourKey{FeedType: ft, Hour: hour, Base64URL: b64}, nil
}

// cutPartition splits a key=value path segment. The value may itself
// contain '=' (base64 padding), so only the first separator counts.
func cutPartition(segment, key string) (string, string, bool) {
	k, v, ok := strings.Cut(segment, "=")
	if !ok || k != key {
		return "", "", false
	}
	return k, v, true
}

// Options tune an Aggregator.
type Options struct {
	// Workers bounds concurrent group processing; the default is 8.
	Workers int
	// Timeout bounds each blob read and each output write; default 60s.
	Timeout time.Duration
	// Progress draws a progress bar per feed type on stderr.
	Progress bool
}

// Aggregator runs hourly aggregation over a raw and a parsed store.
type Aggregator struct {
	raw      objstore.Store
	parsed   objstore.Store
	workers  int
	timeout  time.Duration
	progress bool
	logger   *slog.Logger
}

// New builds an Aggregator.
func New(raw, parsed objstore.Store, logger *slog.Logger, opts Options) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 8
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Aggregator{
		raw:      raw,
		parsed:   parsed,
		workers:  workers,
		timeout:  timeout,
		progress: opts.Progress,
		logger:   logger,
	}
}

// Day aggregates every hour of one date for the given feed types. Groups
// run concurrently on the worker pool; failures are collected and returned
// together at the end so one bad group does not starve the rest.
func (a *Aggregator) Day(ctx context.Context, date time.Time, feedTypes []feeds.FeedType, base64url string) error {
	var errs []error
	for _, ft := range feedTypes {
		if err := a.dayFeedType(ctx, date, ft, base64url); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type groupResult struct {
	key      HourKey
	outcomes []feeds.ParseOutcome
	err      error
}

func (a *Aggregator) dayFeedType(ctx context.Context, date time.Time, ft feeds.FeedType, base64url string) error {
	prefix := fmt.Sprintf("%s/dt=%s/", ft, feeds.NewTime(date).DateString())
	a.logger.Info("aggregate.list.start", "prefix", prefix)

	blobs, err := a.raw.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("list %s: %w", prefix, err)
	}

	groups := make(map[HourKey][]objstore.BlobRef)
	var keys []HourKey
	for _, blob := range blobs {
		key, err := ParseHourKey(blob.Name)
		if err != nil {
			return err
		}
		if base64url != "" && base64url != key.Base64URL {
			continue
		}
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], blob)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Hour != keys[j].Hour {
			return keys[i].Hour < keys[j].Hour
		}
		return keys[i].Base64URL < keys[j].Base64URL
	})
	a.logger.Info("aggregate.list.complete", "blobs", len(blobs), "groups", len(keys))

	var bar *progressbar.ProgressBar
	if a.progress {
		bar = progressbar.Default(int64(len(keys)), string(ft))
	}

	jobs := make(chan int, len(keys))
	results := make(chan groupResult, len(keys))

	var wg sync.WaitGroup
	for w := 0; w < a.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				key := keys[i]
				outcomes, err := a.handleGroup(ctx, key, groups[key])
				results <- groupResult{key: key, outcomes: outcomes, err: err}
			}
		}()
	}
	for i := range keys {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	var errs []error
	outcomesByHour := make(map[string][]feeds.ParseOutcome)
	for res := range results {
		if bar != nil {
			_ = bar.Add(1)
		}
		if res.err != nil {
			a.logger.Error("aggregate.group.error",
				"feed_type", res.key.FeedType,
				"hour", res.key.Hour,
				"base64url", res.key.Base64URL,
				"err", res.err,
			)
			errs = append(errs, fmt.Errorf("group %s/%s: %w", res.key.Hour, res.key.Base64URL, res.err))
			continue
		}
		outcomesByHour[res.key.Hour] = append(outcomesByHour[res.key.Hour], res.outcomes...)
		for _, o := range res.outcomes {
			if !o.Success {
				errs = append(errs, fmt.Errorf("parse %s: %s", o.File.GCSKey(), o.Exception))
			}
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if err := a.writeLedgers(ctx, ft, outcomesByHour); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// handleGroup decodes every blob of one group and writes one gzipped JSONL
// aggregate per emitted table. Decoder failures on a single blob record a
// failed outcome and processing continues; storage failures abort the
// group.
func (a *Aggregator) handleGroup(ctx context.Context, key HourKey, blobs []objstore.BlobRef) ([]feeds.ParseOutcome, error) {
	sort.Slice(blobs, func(i, j int) bool { return blobs[i].Name < blobs[j].Name })
	a.logger.Info("aggregate.group.start",
		"feed_type", key.FeedType, "hour", key.Hour, "blobs", len(blobs))

	hour, err := feeds.ParseTime(key.Hour)
	if err != nil {
		return nil, err
	}

	var tables []string
	records := make(map[string][]feeds.ParsedRecord)
	var outcomes []feeds.ParseOutcome

	for _, blob := range blobs {
		data, err := withTimeout(ctx, a.timeout, func(ctx context.Context) ([]byte, error) {
			return a.raw.Get(ctx, blob.Name)
		})
		if err != nil {
			return nil, err
		}

		var raw feeds.RawFetchedFile
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode envelope %s: %w", blob.Name, err)
		}

		dec, err := decode.ForFeedType(raw.Config.FeedType)
		if err != nil {
			return nil, err
		}

		stripped := raw.WithoutContents()
		emitted, err := dec.Decode(raw.Config.FeedType, raw.Contents)
		if err != nil {
			a.logger.Warn("aggregate.blob.decode.error", "blob", blob.Name, "err", err)
			outcomes = append(outcomes, feeds.ParseOutcome{
				File:      stripped,
				Success:   false,
				Exception: err.Error(),
			})
			continue
		}

		for _, tr := range emitted {
			if len(tr.Records) == 0 {
				a.logger.Warn("aggregate.table.empty", "table", tr.Table, "blob", blob.Name)
				continue
			}
			if _, ok := records[tr.Table]; !ok {
				tables = append(tables, tr.Table)
			}
			for i, rec := range tr.Records {
				records[tr.Table] = append(records[tr.Table], feeds.ParsedRecord{
					File:     stripped,
					Record:   rec,
					Metadata: feeds.ParsedRecordMetadata{LineNumber: i},
				})
			}
		}
		outcomes = append(outcomes, feeds.ParseOutcome{
			File:     stripped,
			Metadata: feeds.ParseOutcomeMetadata{Hash: decode.CombinedDigest(emitted)},
			Success:  true,
		})
	}

	for _, table := range tables {
		agg := feeds.HourAgg{Table: table, Base64URL: key.Base64URL, Hour: hour}
		if err := a.writeAgg(ctx, agg, records[table]); err != nil {
			return nil, err
		}
	}
	return outcomes, nil
}

// writeAgg writes one aggregate as gzipped JSONL. An existing object is
// deleted first so a failed write can never leave a prior run's bytes mixed
// with new ones; the put itself is atomic.
func (a *Aggregator) writeAgg(ctx context.Context, agg feeds.HourAgg, records []feeds.ParsedRecord) error {
	lines := make([][]byte, 0, len(records))
	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record for %s: %w", agg.GCSKey(), err)
		}
		lines = append(lines, line)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(bytes.Join(lines, []byte("\n"))); err != nil {
		return fmt.Errorf("compress %s: %w", agg.GCSKey(), err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress %s: %w", agg.GCSKey(), err)
	}

	key := agg.GCSKey()
	_, err := withTimeout(ctx, a.timeout, func(ctx context.Context) (struct{}, error) {
		exists, err := a.parsed.Exists(ctx, key)
		if err != nil {
			return struct{}{}, err
		}
		if exists {
			if err := a.parsed.Delete(ctx, key); err != nil && !errors.Is(err, objstore.ErrNotFound) {
				return struct{}{}, err
			}
		}
		return struct{}{}, a.parsed.Put(ctx, key, buf.Bytes())
	})
	if err != nil {
		return err
	}

	a.logger.Info("aggregate.save.complete",
		"records", len(records), "bytes", buf.Len(), "key", key)
	return nil
}

// writeLedgers writes one outcomes file per hour, lines sorted by raw key
// so re-runs serialize identically.
func (a *Aggregator) writeLedgers(ctx context.Context, ft feeds.FeedType, byHour map[string][]feeds.ParseOutcome) error {
	var errs []error
	for hourStr, outcomes := range byHour {
		hour, err := feeds.ParseTime(hourStr)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		sort.Slice(outcomes, func(i, j int) bool {
			return outcomes[i].File.GCSKey() < outcomes[j].File.GCSKey()
		})

		lines := make([][]byte, 0, len(outcomes))
		for _, o := range outcomes {
			line, err := json.Marshal(o)
			if err != nil {
				errs = append(errs, fmt.Errorf("encode outcome: %w", err))
				continue
			}
			lines = append(lines, line)
		}

		ledger := feeds.HourOutcomes{FeedType: ft, Hour: hour}
		_, err = withTimeout(ctx, a.timeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, a.parsed.Put(ctx, ledger.GCSKey(), bytes.Join(lines, []byte("\n")))
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("write ledger %s: %w", ledger.GCSKey(), err))
			continue
		}
		a.logger.Info("aggregate.ledger.complete", "key", ledger.GCSKey(), "outcomes", len(outcomes))
	}
	return errors.Join(errs...)
}

// File decodes a single raw artifact and returns its record count. It backs
// the debug CLI path.
func (a *Aggregator) File(ctx context.Context, name string) (int, error) {
	data, err := withTimeout(ctx, a.timeout, func(ctx context.Context) ([]byte, error) {
		return a.raw.Get(ctx, name)
	})
	if err != nil {
		return 0, err
	}

	var raw feeds.RawFetchedFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return 0, fmt.Errorf("decode envelope %s: %w", name, err)
	}
	dec, err := decode.ForFeedType(raw.Config.FeedType)
	if err != nil {
		return 0, err
	}
	emitted, err := dec.Decode(raw.Config.FeedType, raw.Contents)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, tr := range emitted {
		count += len(tr.Records)
	}
	return count, nil
}

// withTimeout bounds one storage interaction with the per-operation
// timeout.
func withTimeout[T any](ctx context.Context, d time.Duration, op func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return op(ctx)
}
