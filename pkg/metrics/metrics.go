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

// Package metrics holds the Prometheus instrumentation shared by the
// ticker and the fetch workers. The registry is the only
// mutable state shared across workers; the prometheus client makes counter
// and summary updates safe for concurrent use.
package metrics

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// commonLabels key every fetch metric by the feed it serves.
var commonLabels = []string{"name", "url", "feed_type"}

// Metrics bundles the process-local registry and the instrument vectors.
type Metrics struct {
	registry *prometheus.Registry

	// TaskSignals counts broker-level task lifecycle signals.
	TaskSignals *prometheus.CounterVec
	// FetchRequestDelay observes scheduled-tick-to-execution delay.
	FetchRequestDelay *prometheus.SummaryVec
	// FetchRequestDuration observes just the HTTP request.
	FetchRequestDuration *prometheus.SummaryVec
	// FetchSaveDuration observes just the artifact write.
	FetchSaveDuration *prometheus.SummaryVec
}

// New builds a Metrics with all instruments registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TaskSignals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "huey_task_signals",
			Help: "Task queue lifecycle signals.",
		}, append(append([]string{}, commonLabels...), "signal", "exc_type")),
		FetchRequestDelay: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name: "fetch_request_delay_seconds",
			Help: "Delay before a fetch request is executed.",
		}, commonLabels),
		FetchRequestDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name: "fetch_request_duration_seconds",
			Help: "Duration of just the request for a fetch.",
		}, commonLabels),
		FetchSaveDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name: "fetch_save_duration_seconds",
			Help: "Duration of just the save for a fetch.",
		}, commonLabels),
	}
	m.registry.MustRegister(
		m.TaskSignals,
		m.FetchRequestDelay,
		m.FetchRequestDuration,
		m.FetchSaveDuration,
	)
	return m
}

// Signal increments the task-signal counter for one feed.
func (m *Metrics) Signal(labels map[string]string, signal string, err error) {
	m.TaskSignals.With(prometheus.Labels{
		"name":      labels["name"],
		"url":       labels["url"],
		"feed_type": labels["feed_type"],
		"signal":    signal,
		"exc_type":  excType(err),
	}).Inc()
}

// Handler returns the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr in a background goroutine.
func (m *Metrics) Serve(addr string, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		logger.Info("metrics.http.start", "addr", addr, "path", "/metrics")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics.http.error", "err", err)
		}
	}()
}

// excType renders the error's concrete type for the exc_type label; nil
// errors label as the empty string.
func excType(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%T", err)
}
