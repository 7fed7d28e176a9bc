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

package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/feedarch/pkg/feeds"
)

func testTask(t *testing.T) FetchTask {
	t.Helper()
	tick, err := feeds.ParseTime("2024-01-02T03:04:00+00:00")
	require.NoError(t, err)
	return FetchTask{
		Tick: tick,
		Config: feeds.FeedConfig{
			Name:     "x",
			URL:      "http://h/f",
			FeedType: feeds.FeedTypeGtfsRtVehiclePositions,
		},
		EnqueuedAt: tick,
		Expires:    5,
	}
}

func TestFetchTask_RoundTrip(t *testing.T) {
	task := testTask(t)
	task.Page = []feeds.KeyValue{{Key: "route", Value: "A"}}
	task.Dry = true

	data, err := json.Marshal(task)
	require.NoError(t, err)

	var back FetchTask
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, task.Config, back.Config)
	assert.Equal(t, task.Page, back.Page)
	assert.True(t, back.Dry)
	assert.True(t, task.Tick.Equal(back.Tick.Time))
	assert.Equal(t, task.Expires, back.Expires)
}

func TestFetchTask_ExpiredAt(t *testing.T) {
	task := testTask(t)
	enqueued := task.EnqueuedAt.Time

	assert.False(t, task.ExpiredAt(enqueued.Add(4*time.Second)))
	assert.True(t, task.ExpiredAt(enqueued.Add(6*time.Second)))

	// Zero expiry disables shedding entirely.
	task.Expires = 0
	assert.False(t, task.ExpiredAt(enqueued.Add(24*time.Hour)))
}

func TestFetchTask_TickIsScheduledTime(t *testing.T) {
	// The tick drives partitioning, so a late execution must still key the
	// artifact under the scheduled minute.
	task := testTask(t)
	data, err := json.Marshal(task)
	require.NoError(t, err)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(data, &envelope))
	assert.Equal(t, "2024-01-02T03:04:00+00:00", envelope["tick"])
}
