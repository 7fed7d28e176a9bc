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

// Package feeds defines the feed configuration model and the canonical
// object-store keying for raw and aggregated transit-feed artifacts.
package feeds

import (
	"fmt"
	"strings"
)

// FeedType identifies one logical feed. The set is closed; every FeedType
// must have a registered decoder before the process can start.
type FeedType string

const (
	// gtfs/other standards
	FeedTypeGtfsSchedule           FeedType = "gtfs_schedule"
	FeedTypeGtfsRtVehiclePositions FeedType = "gtfs_rt__vehicle_positions"
	FeedTypeGtfsRtTripUpdates      FeedType = "gtfs_rt__trip_updates"
	FeedTypeGtfsRtServiceAlerts    FeedType = "gtfs_rt__service_alerts"
	// agency/vendor-specific
	FeedTypeSeptaArrivals             FeedType = "septa__arrivals"
	FeedTypeSeptaTrainView            FeedType = "septa__train_view"
	FeedTypeSeptaTransitViewAll       FeedType = "septa__transit_view_all"
	FeedTypeSeptaBusDetours           FeedType = "septa__bus_detours"
	FeedTypeSeptaAlertsWithoutMessage FeedType = "septa__alerts_without_message"
	FeedTypeSeptaAlerts               FeedType = "septa__alerts"
	FeedTypeSeptaElevatorOutages      FeedType = "septa__elevator_outages"
)

// allFeedTypes is the canonical ordering used for exhaustiveness checks.
var allFeedTypes = []FeedType{
	FeedTypeGtfsSchedule,
	FeedTypeGtfsRtVehiclePositions,
	FeedTypeGtfsRtTripUpdates,
	FeedTypeGtfsRtServiceAlerts,
	FeedTypeSeptaArrivals,
	FeedTypeSeptaTrainView,
	FeedTypeSeptaTransitViewAll,
	FeedTypeSeptaBusDetours,
	FeedTypeSeptaAlertsWithoutMessage,
	FeedTypeSeptaAlerts,
	FeedTypeSeptaElevatorOutages,
}

// AllFeedTypes returns every known FeedType, in declaration order.
func AllFeedTypes() []FeedType {
	out := make([]FeedType, len(allFeedTypes))
	copy(out, allFeedTypes)
	return out
}

// MinutelyFeedTypes returns the feed types fetched on the minute tick,
// i.e. everything except the daily gtfs_schedule ZIP.
func MinutelyFeedTypes() []FeedType {
	var out []FeedType
	for _, ft := range allFeedTypes {
		if ft != FeedTypeGtfsSchedule {
			out = append(out, ft)
		}
	}
	return out
}

// ParseFeedType converts a string into a FeedType, rejecting unknown values.
func ParseFeedType(s string) (FeedType, error) {
	ft := FeedType(s)
	for _, known := range allFeedTypes {
		if ft == known {
			return ft, nil
		}
	}
	return "", fmt.Errorf("unknown feed type %q", s)
}

func (ft FeedType) String() string { return string(ft) }

// GtfsScheduleFileType enumerates the files inside a GTFS static ZIP that we
// know how to parse. Entries outside this set are skipped with a warning.
type GtfsScheduleFileType string

const (
	GtfsFileAgency            GtfsScheduleFileType = "agency.txt"
	GtfsFileStops             GtfsScheduleFileType = "stops.txt"
	GtfsFileRoutes            GtfsScheduleFileType = "routes.txt"
	GtfsFileTrips             GtfsScheduleFileType = "trips.txt"
	GtfsFileStopTimes         GtfsScheduleFileType = "stop_times.txt"
	GtfsFileCalendar          GtfsScheduleFileType = "calendar.txt"
	GtfsFileCalendarDates     GtfsScheduleFileType = "calendar_dates.txt"
	GtfsFileFareAttributes    GtfsScheduleFileType = "fare_attributes.txt"
	GtfsFileFareRules         GtfsScheduleFileType = "fare_rules.txt"
	GtfsFileFareMedia         GtfsScheduleFileType = "fare_media.txt"
	GtfsFileFareProducts      GtfsScheduleFileType = "fare_products.txt"
	GtfsFileFareLegRules      GtfsScheduleFileType = "fare_leg_rules.txt"
	GtfsFileFareTransferRules GtfsScheduleFileType = "fare_transfer_rules.txt"
	GtfsFileAreas             GtfsScheduleFileType = "areas.txt"
	GtfsFileStopAreas         GtfsScheduleFileType = "stop_areas.txt"
	GtfsFileShapes            GtfsScheduleFileType = "shapes.txt"
	GtfsFileFrequencies       GtfsScheduleFileType = "frequencies.txt"
	GtfsFileTransfers         GtfsScheduleFileType = "transfers.txt"
	GtfsFilePathways          GtfsScheduleFileType = "pathways.txt"
	GtfsFileLevels            GtfsScheduleFileType = "levels.txt"
	GtfsFileTranslations      GtfsScheduleFileType = "translations.txt"
	GtfsFileFeedInfo          GtfsScheduleFileType = "feed_info.txt"
	GtfsFileAttributions      GtfsScheduleFileType = "attributions.txt"
)

var allGtfsScheduleFileTypes = []GtfsScheduleFileType{
	GtfsFileAgency,
	GtfsFileStops,
	GtfsFileRoutes,
	GtfsFileTrips,
	GtfsFileStopTimes,
	GtfsFileCalendar,
	GtfsFileCalendarDates,
	GtfsFileFareAttributes,
	GtfsFileFareRules,
	GtfsFileFareMedia,
	GtfsFileFareProducts,
	GtfsFileFareLegRules,
	GtfsFileFareTransferRules,
	GtfsFileAreas,
	GtfsFileStopAreas,
	GtfsFileShapes,
	GtfsFileFrequencies,
	GtfsFileTransfers,
	GtfsFilePathways,
	GtfsFileLevels,
	GtfsFileTranslations,
	GtfsFileFeedInfo,
	GtfsFileAttributions,
}

// AllGtfsScheduleFileTypes returns every known schedule file type.
func AllGtfsScheduleFileTypes() []GtfsScheduleFileType {
	out := make([]GtfsScheduleFileType, len(allGtfsScheduleFileTypes))
	copy(out, allGtfsScheduleFileTypes)
	return out
}

// ParseGtfsScheduleFileType looks up a ZIP entry name. The second return is
// false when the entry is not one we enumerate.
func ParseGtfsScheduleFileType(name string) (GtfsScheduleFileType, bool) {
	ft := GtfsScheduleFileType(name)
	for _, known := range allGtfsScheduleFileTypes {
		if ft == known {
			return ft, true
		}
	}
	return "", false
}

func (ft GtfsScheduleFileType) String() string { return string(ft) }

// Slug returns the partition-safe form of the file name: the .txt suffix is
// dropped and each remaining non-alphanumeric character becomes an
// underscore (runs are not collapsed), so "agency.txt" partitions as
// "agency".
func (ft GtfsScheduleFileType) Slug() string {
	s := strings.TrimSuffix(string(ft), ".txt")
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
