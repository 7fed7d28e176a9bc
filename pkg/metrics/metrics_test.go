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

package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

func TestSignalCounter(t *testing.T) {
	m := New()
	labels := map[string]string{
		"name":      "SEPTA Alerts",
		"url":       "https://example.com/alerts",
		"feed_type": "septa__alerts",
	}
	m.Signal(labels, "complete", nil)
	m.Signal(labels, "complete", nil)
	m.Signal(labels, "error", errors.New("boom"))

	body := scrape(t, m)
	assert.Contains(t, body, `huey_task_signals{exc_type="",feed_type="septa__alerts",name="SEPTA Alerts",signal="complete",url="https://example.com/alerts"} 2`)
	assert.Contains(t, body, `signal="error"`)
	assert.Contains(t, body, `exc_type="*errors.errorString"`)
}

func TestFetchSummaries(t *testing.T) {
	m := New()
	labels := map[string]string{"name": "f", "url": "http://h/f", "feed_type": "septa__alerts"}

	m.FetchRequestDelay.With(labels).Observe(0.25)
	m.FetchRequestDuration.With(labels).Observe(1.5)
	m.FetchSaveDuration.With(labels).Observe(0.1)

	body := scrape(t, m)
	for _, name := range []string{
		"fetch_request_delay_seconds",
		"fetch_request_duration_seconds",
		"fetch_save_duration_seconds",
	} {
		require.True(t, strings.Contains(body, name+"_count"), "missing %s", name)
		assert.Contains(t, body, name+"_sum")
	}
}

func TestConcurrentSignals(t *testing.T) {
	m := New()
	labels := map[string]string{"name": "f", "url": "http://h/f", "feed_type": "septa__alerts"}

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				m.Signal(labels, "executing", nil)
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	assert.Contains(t, scrape(t, m), `signal="executing"`)
}
