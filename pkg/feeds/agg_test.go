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

package feeds

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHourAggKey_FeedTypeTable(t *testing.T) {
	agg := HourAgg{
		Table:     string(FeedTypeSeptaTrainView),
		Base64URL: "aHR0cHM6Ly9leGFtcGxlLmNvbS90cmFpbnM=",
		Hour:      mustTime(t, "2023-07-07T01:00:00+00:00"),
	}
	assert.Equal(t,
		"septa__train_view/dt=2023-07-07/hour=2023-07-07T01:00:00+00:00/aHR0cHM6Ly9leGFtcGxlLmNvbS90cmFpbnM=.jsonl.gz",
		agg.GCSKey(),
	)
}

func TestHourAggKey_ScheduleFileTable(t *testing.T) {
	hour := mustTime(t, "2023-07-07T00:00:00+00:00")
	agency := HourAgg{Table: string(GtfsFileAgency), Base64URL: "Zm9v", Hour: hour}
	stops := HourAgg{Table: string(GtfsFileStops), Base64URL: "Zm9v", Hour: hour}

	assert.Equal(t, "gtfs_schedule__agency/dt=2023-07-07/hour=2023-07-07T00:00:00+00:00/Zm9v.jsonl.gz", agency.GCSKey())
	assert.Equal(t, "gtfs_schedule__stops", stops.PartitionTable())
	assert.Equal(t, "gtfs_schedule__stop_times", HourAgg{Table: string(GtfsFileStopTimes)}.PartitionTable())
}

func TestHourAggKey_MatchesPartitionPattern(t *testing.T) {
	// The aggregated layout contract: table/dt=…/hour=…/<b64>.jsonl.gz.
	// Fingerprints are padded url-safe base64, so '=' is legal in the name.
	pattern := regexp.MustCompile(`^[^/]+/dt=\d{4}-\d{2}-\d{2}/hour=\S+/[A-Za-z0-9_\-=]+\.jsonl\.gz$`)

	cfg := FeedConfig{Name: "f", URL: "https://example.com/trains", FeedType: FeedTypeSeptaTrainView}
	agg := HourAgg{
		Table:     string(cfg.FeedType),
		Base64URL: Fingerprint(cfg),
		Hour:      mustTime(t, "2024-03-01T12:00:00+00:00"),
	}
	assert.Regexp(t, pattern, agg.GCSKey())

	sched := HourAgg{Table: string(GtfsFileFeedInfo), Base64URL: Fingerprint(cfg), Hour: agg.Hour}
	assert.Regexp(t, pattern, sched.GCSKey())
}

func TestGtfsScheduleFileTypeSlug(t *testing.T) {
	assert.Equal(t, "agency", GtfsFileAgency.Slug())
	assert.Equal(t, "calendar_dates", GtfsFileCalendarDates.Slug())
	assert.Equal(t, "fare_transfer_rules", GtfsFileFareTransferRules.Slug())
}

func TestHourOutcomesKey(t *testing.T) {
	o := HourOutcomes{
		FeedType: FeedTypeGtfsRtVehiclePositions,
		Hour:     mustTime(t, "2023-07-07T01:00:00+00:00"),
	}
	assert.Equal(t,
		"gtfs_rt__vehicle_positions__parse_outcomes/dt=2023-07-07/2023-07-07T01:00:00+00:00.jsonl",
		o.GCSKey(),
	)
}

func TestParseGtfsScheduleFileType(t *testing.T) {
	ft, ok := ParseGtfsScheduleFileType("stops.txt")
	require.True(t, ok)
	assert.Equal(t, GtfsFileStops, ft)

	_, ok = ParseGtfsScheduleFileType("not_a_gtfs_file.txt")
	assert.False(t, ok)
}
