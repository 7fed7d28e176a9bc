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

package decode

import (
	"encoding/json"
	"fmt"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/kraklabs/feedarch/pkg/feeds"
)

// GtfsRealtime decodes a GTFS-Realtime FeedMessage. Each entity becomes one
// record shaped {header, entity}, with field names in protojson camelCase.
type GtfsRealtime struct{}

func (GtfsRealtime) FeedTypes() []feeds.FeedType {
	return []feeds.FeedType{
		feeds.FeedTypeGtfsRtVehiclePositions,
		feeds.FeedTypeGtfsRtTripUpdates,
		feeds.FeedTypeGtfsRtServiceAlerts,
	}
}

func (GtfsRealtime) Decode(ft feeds.FeedType, contents []byte) ([]TableRecords, error) {
	var msg gtfs.FeedMessage
	if err := proto.Unmarshal(contents, &msg); err != nil {
		return nil, fmt.Errorf("parse gtfs-rt feed message: %w", err)
	}

	header, err := messageToRecord(msg.GetHeader())
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(msg.GetEntity()))
	for _, entity := range msg.GetEntity() {
		rec, err := messageToRecord(entity)
		if err != nil {
			return nil, err
		}
		records = append(records, Record{
			"header": header,
			"entity": rec,
		})
	}
	return []TableRecords{{
		Table:   string(ft),
		Records: records,
		Digest:  digest(contents),
	}}, nil
}

// messageToRecord renders a protobuf message as a plain JSON-value map.
func messageToRecord(m proto.Message) (Record, error) {
	data, err := protojson.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("render protobuf message: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("reshape protobuf message: %w", err)
	}
	return rec, nil
}
