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

// Package fetch executes one fetch task: HTTP GET against the feed origin,
// envelope construction, and the write of the raw artifact.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kraklabs/feedarch/pkg/feeds"
	"github.com/kraklabs/feedarch/pkg/metrics"
	"github.com/kraklabs/feedarch/pkg/objstore"
	"github.com/kraklabs/feedarch/pkg/queue"
)

// Fetcher runs fetch tasks against one raw store. A single Fetcher serves
// every worker of the consumer pool, so its HTTP client, store and Metrics
// are shared across goroutines; workers do not get a client of their own.
type Fetcher struct {
	client  *http.Client
	store   objstore.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
	secrets func(string) string
}

// New builds a Fetcher. secrets resolves valueSecret names and defaults to
// os.Getenv when nil.
func New(store objstore.Store, m *metrics.Metrics, logger *slog.Logger, secrets func(string) string) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if secrets == nil {
		secrets = os.Getenv
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     60 * time.Second,
			},
		},
		store:   store,
		metrics: m,
		logger:  logger,
		secrets: secrets,
	}
}

// Fetch performs one task. The raw key depends only on (tick, config, page)
// so a duplicate delivery overwrites an equivalent artifact.
func (f *Fetcher) Fetch(ctx context.Context, task queue.FetchTask) error {
	labels := task.Config.Labels()
	f.metrics.FetchRequestDelay.With(labels).Observe(time.Since(task.Tick.Time).Seconds())

	requestTimer := prometheus.NewTimer(f.metrics.FetchRequestDuration.With(labels))
	resp, err := f.do(ctx, task.Config, task.Page)
	requestTimer.ObserveDuration()
	if err != nil {
		return err
	}

	raw := feeds.RawFetchedFile{
		TS:              task.Tick,
		Config:          task.Config,
		Page:            task.Page,
		ResponseCode:    resp.code,
		ResponseHeaders: resp.headers,
		Contents:        resp.body,
	}
	if err := raw.Validate(); err != nil {
		return err
	}
	key := raw.GCSKey()

	if task.Dry {
		f.logger.Info("fetch.dry_run", "feed", task.Config.Name, "bytes", len(raw.Contents), "key", key)
		return nil
	}

	envelope, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode raw file for %q: %w", task.Config.Name, err)
	}

	saveTimer := prometheus.NewTimer(f.metrics.FetchSaveDuration.With(labels))
	err = f.store.Put(ctx, key, envelope)
	saveTimer.ObserveDuration()
	if err != nil {
		return err
	}

	f.logger.Info("fetch.save.complete",
		"feed", task.Config.Name,
		"size", byteSize(len(raw.Contents)),
		"key", key,
	)
	return nil
}

type response struct {
	code    int
	headers map[string]string
	body    []byte
}

// do issues the GET with resolved query and header parameters. Secrets are
// substituted here and nowhere else; they never reach storage.
func (f *Fetcher) do(ctx context.Context, cfg feeds.FeedConfig, page []feeds.KeyValue) (*response, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url for %q: %w", cfg.Name, err)
	}
	q := u.Query()
	for _, kv := range cfg.Query {
		q.Set(kv.Key, kv.Resolve(f.secrets))
	}
	for _, kv := range page {
		q.Set(kv.Key, kv.Resolve(f.secrets))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %q: %w", cfg.Name, err)
	}
	for _, kv := range cfg.Headers {
		req.Header.Set(kv.Key, kv.Resolve(f.secrets))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %q: %w", cfg.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response for %q: %w", cfg.Name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %q: unexpected status %d", cfg.Name, resp.StatusCode)
	}

	headers := make(map[string]string, len(resp.Header))
	for name := range resp.Header {
		headers[name] = resp.Header.Get(name)
	}
	return &response{code: resp.StatusCode, headers: headers, body: body}, nil
}

// byteSize renders a byte count for log lines, e.g. "1.2 MB".
func byteSize(n int) string {
	const unit = 1000
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := int64(n) / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "kMGTPE"[exp])
}
