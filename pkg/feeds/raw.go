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
	"encoding/base64"
	"fmt"
	"net/url"
	"time"
)

// isoLayout is RFC 3339 with a numeric offset, so UTC instants render with
// an explicit +00:00. Lexicographic ordering of rendered strings matches
// temporal ordering within a partition.
const isoLayout = "2006-01-02T15:04:05-07:00"

// dateLayout renders the dt= partition value.
const dateLayout = "2006-01-02"

// Time is a UTC wall-clock instant that serializes as RFC 3339 with a
// +00:00 offset. All partition keys are derived from it.
type Time struct {
	time.Time
}

// NewTime converts t to a whole-second UTC Time.
func NewTime(t time.Time) Time {
	return Time{t.UTC().Truncate(time.Second)}
}

// ParseTime parses an ISO-8601 timestamp as emitted by Time.ISO8601.
func ParseTime(s string) (Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return NewTime(t), nil
}

// ISO8601 renders the instant as e.g. 2024-01-02T03:04:00+00:00.
func (t Time) ISO8601() string { return t.UTC().Format(isoLayout) }

// DateString renders the date portion as YYYY-MM-DD.
func (t Time) DateString() string { return t.UTC().Format(dateLayout) }

// TruncateHour drops minutes and smaller units.
func (t Time) TruncateHour() Time { return Time{t.UTC().Truncate(time.Hour)} }

func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.ISO8601() + `"`), nil
}

func (t *Time) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("timestamp must be a JSON string, got %s", s)
	}
	parsed, err := ParseTime(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// requestURL builds the canonical request URL for config with the given
// extra page parameters. Secret-valued query entries are always excluded;
// they must never leak into a storage key. Parameters encode sorted by key,
// so the result is stable under permutation of config.Query.
func requestURL(c FeedConfig, page []KeyValue) string {
	u, err := url.Parse(c.URL)
	if err != nil {
		// Validate() rejects unparseable URLs before any key is derived.
		return c.URL
	}
	q := u.Query()
	for _, kv := range c.Query {
		if kv.Secret() {
			continue
		}
		q.Set(kv.Key, kv.Value)
	}
	for _, kv := range page {
		q.Set(kv.Key, kv.Value)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Fingerprint returns the url-safe base64 of the canonical request URL
// without secrets and without page parameters. It groups every fetch of a
// logical feed regardless of pagination.
func Fingerprint(c FeedConfig) string {
	return base64.URLEncoding.EncodeToString([]byte(requestURL(c, nil)))
}

// RawFilename returns the artifact file name: url-safe base64 of the
// request URL including page parameters (still excluding secrets), suffixed
// with .json.
func RawFilename(c FeedConfig, page []KeyValue) string {
	b64 := base64.URLEncoding.EncodeToString([]byte(requestURL(c, page)))
	return b64 + ".json"
}

// RawKey derives the Hive-partitioned object key for one raw fetch.
func RawKey(c FeedConfig, ts Time, page []KeyValue) string {
	return fmt.Sprintf("%s/dt=%s/hour=%s/ts=%s/base64url=%s/%s",
		c.FeedType,
		ts.DateString(),
		ts.TruncateHour().ISO8601(),
		ts.ISO8601(),
		Fingerprint(c),
		RawFilename(c, page),
	)
}

// RawFetchedFile is the envelope written to the raw bucket for every fetch.
// Exactly one of Contents and Exception is set. Envelopes are written once
// and never mutated; a duplicate delivery of the same task overwrites with
// an equivalent artifact because the key depends only on (config, ts, page).
type RawFetchedFile struct {
	TS              Time              `json:"ts"`
	Config          FeedConfig        `json:"config"`
	Page            []KeyValue        `json:"page"`
	ResponseCode    int               `json:"response_code"`
	ResponseHeaders map[string]string `json:"response_headers"`
	Contents        []byte            `json:"contents,omitempty"`
	Exception       string            `json:"exception,omitempty"`
}

// Validate enforces the contents/exception invariant.
func (r RawFetchedFile) Validate() error {
	if len(r.Contents) == 0 && r.Exception == "" {
		return fmt.Errorf("raw file for %q has neither contents nor exception", r.Config.Name)
	}
	if len(r.Contents) > 0 && r.Exception != "" {
		return fmt.Errorf("raw file for %q has both contents and exception", r.Config.Name)
	}
	return nil
}

// Dt returns the date partition value.
func (r RawFetchedFile) Dt() string { return r.TS.DateString() }

// Hour returns the fetch timestamp truncated to the hour.
func (r RawFetchedFile) Hour() Time { return r.TS.TruncateHour() }

// Base64URL returns the feed fingerprint for this file.
func (r RawFetchedFile) Base64URL() string { return Fingerprint(r.Config) }

// Filename returns the terminal path segment of the raw key.
func (r RawFetchedFile) Filename() string { return RawFilename(r.Config, r.Page) }

// Table returns the raw table (partition root) name.
func (r RawFetchedFile) Table() string { return string(r.Config.FeedType) }

// GCSKey returns the full raw object key for this file.
func (r RawFetchedFile) GCSKey() string { return RawKey(r.Config, r.TS, r.Page) }

// WithoutContents returns a copy safe to embed in parsed records and
// outcome ledgers: the payload bytes are dropped, everything else is kept.
func (r RawFetchedFile) WithoutContents() RawFetchedFile {
	r.Contents = nil
	return r
}
