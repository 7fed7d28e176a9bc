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
	"sort"

	"github.com/kraklabs/feedarch/pkg/feeds"
)

// ListOfDicts decodes a bare JSON array of objects, one record per element.
type ListOfDicts struct{}

func (ListOfDicts) FeedTypes() []feeds.FeedType {
	return []feeds.FeedType{
		feeds.FeedTypeSeptaTrainView,
		feeds.FeedTypeSeptaAlertsWithoutMessage,
		feeds.FeedTypeSeptaAlerts,
	}
}

func (ListOfDicts) Decode(ft feeds.FeedType, contents []byte) ([]TableRecords, error) {
	var records []Record
	if err := json.Unmarshal(contents, &records); err != nil {
		return nil, fmt.Errorf("parse %s array: %w", ft, err)
	}
	return []TableRecords{{
		Table:   string(ft),
		Records: records,
		Digest:  digest(contents),
	}}, nil
}

// SeptaArrivals decodes the arrivals shape
// {key: [ {direction: [update, ...]} ]}; each update becomes one record
// carrying its key and direction_key. At most one direction per group
// element. Top-level keys iterate in sorted order so output is stable.
type SeptaArrivals struct{}

func (SeptaArrivals) FeedTypes() []feeds.FeedType {
	return []feeds.FeedType{feeds.FeedTypeSeptaArrivals}
}

func (SeptaArrivals) Decode(ft feeds.FeedType, contents []byte) ([]TableRecords, error) {
	var payload map[string][]map[string][]Record
	if err := json.Unmarshal(contents, &payload); err != nil {
		return nil, fmt.Errorf("parse arrivals payload: %w", err)
	}

	keys := sortedKeys(payload)
	var records []Record
	for _, key := range keys {
		for _, directionGroup := range payload[key] {
			if len(directionGroup) > 1 {
				return nil, fmt.Errorf("arrivals group under %q has %d directions, want at most 1", key, len(directionGroup))
			}
			for _, direction := range sortedKeys(directionGroup) {
				for _, update := range directionGroup[direction] {
					rec := make(Record, len(update)+2)
					for k, v := range update {
						rec[k] = v
					}
					rec["key"] = key
					rec["direction_key"] = direction
					records = append(records, rec)
				}
			}
		}
	}
	return []TableRecords{{
		Table:   string(ft),
		Records: records,
		Digest:  digest(contents),
	}}, nil
}

// SeptaTransitViewAll decodes {routes: [ {route_id: [vehicle, ...]} ]} with
// exactly one routes element; each vehicle becomes one record. Route keys
// iterate in sorted order.
type SeptaTransitViewAll struct{}

func (SeptaTransitViewAll) FeedTypes() []feeds.FeedType {
	return []feeds.FeedType{feeds.FeedTypeSeptaTransitViewAll}
}

func (SeptaTransitViewAll) Decode(ft feeds.FeedType, contents []byte) ([]TableRecords, error) {
	var payload struct {
		Routes []map[string][]Record `json:"routes"`
	}
	if err := json.Unmarshal(contents, &payload); err != nil {
		return nil, fmt.Errorf("parse transit view payload: %w", err)
	}
	if len(payload.Routes) != 1 {
		return nil, fmt.Errorf("transit view payload has %d routes elements, want 1", len(payload.Routes))
	}

	var records []Record
	for _, route := range sortedKeys(payload.Routes[0]) {
		records = append(records, payload.Routes[0][route]...)
	}
	return []TableRecords{{
		Table:   string(ft),
		Records: records,
		Digest:  digest(contents),
	}}, nil
}

// SeptaBusDetours decodes [{route_id, route_info: [detour, ...]}]; each
// detour becomes one record carrying its route_id.
type SeptaBusDetours struct{}

func (SeptaBusDetours) FeedTypes() []feeds.FeedType {
	return []feeds.FeedType{feeds.FeedTypeSeptaBusDetours}
}

func (SeptaBusDetours) Decode(ft feeds.FeedType, contents []byte) ([]TableRecords, error) {
	var payload []struct {
		RouteID   string   `json:"route_id"`
		RouteInfo []Record `json:"route_info"`
	}
	if err := json.Unmarshal(contents, &payload); err != nil {
		return nil, fmt.Errorf("parse bus detours payload: %w", err)
	}

	var records []Record
	for _, route := range payload {
		for _, detour := range route.RouteInfo {
			rec := make(Record, len(detour)+1)
			for k, v := range detour {
				rec[k] = v
			}
			rec["route_id"] = route.RouteID
			records = append(records, rec)
		}
	}
	return []TableRecords{{
		Table:   string(ft),
		Records: records,
		Digest:  digest(contents),
	}}, nil
}

// SeptaElevatorOutages decodes {meta, results: [outage, ...]}; each outage
// becomes one record with the shared meta object attached.
type SeptaElevatorOutages struct{}

func (SeptaElevatorOutages) FeedTypes() []feeds.FeedType {
	return []feeds.FeedType{feeds.FeedTypeSeptaElevatorOutages}
}

func (SeptaElevatorOutages) Decode(ft feeds.FeedType, contents []byte) ([]TableRecords, error) {
	var payload struct {
		Meta    Record   `json:"meta"`
		Results []Record `json:"results"`
	}
	if err := json.Unmarshal(contents, &payload); err != nil {
		return nil, fmt.Errorf("parse elevator outages payload: %w", err)
	}

	var records []Record
	for _, outage := range payload.Results {
		rec := make(Record, len(outage)+1)
		for k, v := range outage {
			rec[k] = v
		}
		rec["meta"] = payload.Meta
		records = append(records, rec)
	}
	return []TableRecords{{
		Table:   string(ft),
		Records: records,
		Digest:  digest(contents),
	}}, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
