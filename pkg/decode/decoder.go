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

// Package decode maps feed types to format decoders that turn raw fetched
// bytes into normalized record streams. The registry is populated at package
// init and must cover every feed type; a gap is a programming error caught
// at startup.
package decode

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/kraklabs/feedarch/pkg/feeds"
)

// Record is one normalized row. Records are heterogeneous maps; the parsed
// store is schema-on-read.
type Record = map[string]any

// TableRecords is one decoder emission: the records destined for a single
// output table, plus the MD5 digest of the sub-input they were decoded from
// (the whole payload for single-table feeds, one ZIP entry for GTFS static).
type TableRecords struct {
	// Table is a feeds.FeedType value or a feeds.GtfsScheduleFileType value.
	Table   string
	Records []Record
	Digest  []byte
}

// Decoder turns one raw payload into table record streams. Emission order is
// fixed (ZIP archive order, protobuf entity order, input array order) so the
// combined digest is deterministic.
type Decoder interface {
	// FeedTypes lists the feed types this decoder services.
	FeedTypes() []feeds.FeedType
	// Decode parses contents fetched for ft and returns the emitted tables
	// in order. ft must be one of FeedTypes().
	Decode(ft feeds.FeedType, contents []byte) ([]TableRecords, error)
}

var registry = map[feeds.FeedType]Decoder{}

func register(d Decoder) {
	for _, ft := range d.FeedTypes() {
		if existing, ok := registry[ft]; ok {
			panic(fmt.Sprintf("decode: feed type %s claimed by both %T and %T", ft, existing, d))
		}
		registry[ft] = d
	}
}

func init() {
	register(&GtfsSchedule{})
	register(&GtfsRealtime{})
	register(&ListOfDicts{})
	register(&SeptaArrivals{})
	register(&SeptaTransitViewAll{})
	register(&SeptaBusDetours{})
	register(&SeptaElevatorOutages{})

	var missing []string
	for _, ft := range feeds.AllFeedTypes() {
		if _, ok := registry[ft]; !ok {
			missing = append(missing, string(ft))
		}
	}
	if len(missing) > 0 {
		panic(fmt.Sprintf("decode: missing decoders for %v", missing))
	}
}

// ForFeedType returns the decoder registered for ft.
func ForFeedType(ft feeds.FeedType) (Decoder, error) {
	d, ok := registry[ft]
	if !ok {
		return nil, fmt.Errorf("no decoder registered for feed type %s", ft)
	}
	return d, nil
}

// CombinedDigest returns the hex MD5 of the concatenated per-table digests
// in emission order. This is the hash recorded in a blob's parse outcome.
func CombinedDigest(tables []TableRecords) string {
	h := md5.New()
	for _, tr := range tables {
		h.Write(tr.Digest)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func digest(data []byte) []byte {
	sum := md5.Sum(data)
	return sum[:]
}
