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
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/kraklabs/feedarch/pkg/feeds"
)

// GtfsSchedule decodes a GTFS static ZIP: each enumerated entry is parsed as
// header-rowed UTF-8 CSV and emitted as its own table, in archive order.
// Entries we don't enumerate are skipped with a warning rather than failing
// the whole archive.
type GtfsSchedule struct{}

func (GtfsSchedule) FeedTypes() []feeds.FeedType {
	return []feeds.FeedType{feeds.FeedTypeGtfsSchedule}
}

func (GtfsSchedule) Decode(_ feeds.FeedType, contents []byte) ([]TableRecords, error) {
	zr, err := zip.NewReader(bytes.NewReader(contents), int64(len(contents)))
	if err != nil {
		return nil, fmt.Errorf("open gtfs schedule zip: %w", err)
	}

	var tables []TableRecords
	for _, entry := range zr.File {
		fileType, ok := feeds.ParseGtfsScheduleFileType(entry.Name)
		if !ok {
			slog.Warn("decode.gtfs_schedule.unknown_entry", "entry", entry.Name)
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("open zip entry %s: %w", entry.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read zip entry %s: %w", entry.Name, err)
		}

		records, err := csvRecords(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", entry.Name, err)
		}
		tables = append(tables, TableRecords{
			Table:   string(fileType),
			Records: records,
			Digest:  digest(data),
		})
	}
	return tables, nil
}

// csvRecords parses header-rowed CSV into one map per data row. Short rows
// leave trailing columns absent; extra cells beyond the header are dropped.
func csvRecords(data []byte) ([]Record, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// Strip a UTF-8 BOM if the feed publisher included one.
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var records []Record
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rec := make(Record, len(header))
		for i, name := range header {
			if i < len(row) {
				rec[name] = row[i]
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
