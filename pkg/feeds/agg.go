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

import "fmt"

// HourAgg identifies one aggregated output object: all records of one
// logical feed (or one GTFS schedule sub-file) over one clock hour.
// Table holds either a FeedType value or a GtfsScheduleFileType value; the
// two namespaces do not collide.
type HourAgg struct {
	Table     string
	Base64URL string
	Hour      Time
}

// Dt returns the date partition value.
func (a HourAgg) Dt() string { return a.Hour.DateString() }

// Filename returns the terminal path segment of the aggregate key.
func (a HourAgg) Filename() string { return a.Base64URL + ".jsonl.gz" }

// PartitionTable returns the partition root: gtfs_schedule__<slug> when the
// table is a schedule sub-file, otherwise the feed type value itself.
func (a HourAgg) PartitionTable() string {
	if ft, ok := ParseGtfsScheduleFileType(a.Table); ok {
		return "gtfs_schedule__" + ft.Slug()
	}
	return a.Table
}

// GCSKey returns the full parsed-bucket key for this aggregate. Re-runs of
// the same (table, hour, fingerprint) overwrite it.
func (a HourAgg) GCSKey() string {
	return fmt.Sprintf("%s/dt=%s/hour=%s/%s",
		a.PartitionTable(), a.Dt(), a.Hour.ISO8601(), a.Filename())
}

// ParsedRecordMetadata carries per-record provenance.
type ParsedRecordMetadata struct {
	LineNumber int `json:"line_number"`
}

// ParsedRecord is one normalized record plus the envelope it came from.
// File is stored without its contents.
type ParsedRecord struct {
	File     RawFetchedFile       `json:"file"`
	Record   map[string]any       `json:"record"`
	Metadata ParsedRecordMetadata `json:"metadata"`
}

// ParseOutcomeMetadata carries the combined content digest for one blob.
type ParseOutcomeMetadata struct {
	Hash string `json:"hash"`
}

// ParseOutcome records whether one raw blob parsed, for the audit ledger.
type ParseOutcome struct {
	File      RawFetchedFile       `json:"file"`
	Metadata  ParseOutcomeMetadata `json:"metadata"`
	Success   bool                 `json:"success"`
	Exception string               `json:"exception,omitempty"`
}

// HourOutcomes identifies the outcomes ledger for one (feed_type, hour).
type HourOutcomes struct {
	FeedType FeedType
	Hour     Time
}

// Table returns the ledger's partition root.
func (o HourOutcomes) Table() string { return string(o.FeedType) + "__parse_outcomes" }

// Dt returns the date partition value.
func (o HourOutcomes) Dt() string { return o.Hour.DateString() }

// Filename names the ledger file after the hour it covers.
func (o HourOutcomes) Filename() string { return o.Hour.ISO8601() + ".jsonl" }

// GCSKey returns the full parsed-bucket key for the ledger.
func (o HourOutcomes) GCSKey() string {
	return fmt.Sprintf("%s/dt=%s/%s", o.Table(), o.Dt(), o.Filename())
}
