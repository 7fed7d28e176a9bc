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

package main

import (
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/feedarch/internal/ui"
	"github.com/kraklabs/feedarch/pkg/aggregate"
	"github.com/kraklabs/feedarch/pkg/feeds"
	"github.com/kraklabs/feedarch/pkg/objstore"
)

// runParse dispatches the 'parse' subcommands.
func runParse(args []string, globals GlobalFlags) int {
	if len(args) == 0 {
		parseUsage()
		return 1
	}
	switch args[0] {
	case "day":
		return runParseDay(args[1:], globals)
	case "file":
		return runParseFile(args[1:], globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown parse subcommand: %s\n", args[0])
		parseUsage()
		return 1
	}
}

func parseUsage() {
	fmt.Fprintf(os.Stderr, `Usage: feedarch parse <day|file> [options]

Subcommands:
  day YYYY-MM-DD    Aggregate a day of raw files into hourly JSONL outputs
  file gs://...     Decode a single raw artifact and report its record count

`)
}

// runParseDay aggregates one day: every (feed_type, hour, fingerprint)
// group becomes one gzipped JSONL output, and every (feed_type, hour) gets
// an outcomes ledger. Decoder failures are collected and surface as a
// non-zero exit at the end of the run.
func runParseDay(args []string, globals GlobalFlags) int {
	fs := flag.NewFlagSet("parse day", flag.ExitOnError)
	include := fs.StringArray("include", nil, "Feed type to include (repeatable; default: all in feeds.yaml)")
	exclude := fs.StringArray("exclude", nil, "Feed type to exclude (repeatable)")
	bucket := fs.String("bucket", "", "Raw bucket to read from (default: RAW_BUCKET)")
	base64url := fs.String("base64url", "", "Only aggregate groups with this url fingerprint")
	workers := fs.Int("workers", 8, "Concurrent group workers")
	timeout := fs.Int("timeout", 60, "Per-blob and per-write timeout in seconds")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: feedarch parse day YYYY-MM-DD [options]

Description:
  List raw files for one day, group them by (feed type, hour, url
  fingerprint), decode each group, and write one gzipped JSONL aggregate
  per group plus one parse-outcomes ledger per (feed type, hour).

  E.g. gs://my-parsed-bucket/gtfs_rt__vehicle_positions/dt=2023-07-07/hour=2023-07-07T01:00:00+00:00/aHR0cHM6Ly8...=.jsonl.gz

Options:
  --include FT       Feed type to include (repeatable; default: all in feeds.yaml)
  --exclude FT       Feed type to exclude (repeatable)
  --bucket B         Raw bucket to read from (default: RAW_BUCKET)
  --base64url B      Only aggregate groups with this url fingerprint
  --workers N        Concurrent group workers (default 8)
  --timeout S        Per-blob and per-write timeout in seconds (default 60)

`)
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 1
	}
	date, err := time.Parse("2006-01-02", fs.Arg(0))
	if err != nil {
		ui.Errorf("invalid date %q: expected YYYY-MM-DD", fs.Arg(0))
		return 1
	}
	if len(*include) > 0 && len(*exclude) > 0 {
		ui.Errorf("cannot specify both --include and --exclude")
		return 1
	}

	logger := newLogger(globals)
	env := loadEnv()

	feedTypes, err := resolveFeedTypes(globals.ConfigPath, *include, *exclude)
	if err != nil {
		ui.Errorf("%v", err)
		return 1
	}

	rawBucket := *bucket
	if rawBucket == "" {
		if rawBucket, err = env.requireRawBucket(); err != nil {
			ui.Errorf("%v", err)
			return 1
		}
	}
	parsedBucket, err := env.requireParsedBucket()
	if err != nil {
		ui.Errorf("%v", err)
		return 1
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	rawStore, err := objstore.NewGCSStore(ctx, objstore.GCSConfig{Bucket: rawBucket}, logger)
	if err != nil {
		ui.Errorf("%v", err)
		return 1
	}
	defer rawStore.Close()

	parsedStore, err := objstore.NewGCSStore(ctx, objstore.GCSConfig{Bucket: parsedBucket}, logger)
	if err != nil {
		ui.Errorf("%v", err)
		return 1
	}
	defer parsedStore.Close()

	agg := aggregate.New(rawStore, parsedStore, logger, aggregate.Options{
		Workers:  *workers,
		Timeout:  time.Duration(*timeout) * time.Second,
		Progress: true,
	})

	ui.Infof("Aggregating %s for %d feed types...", date.Format("2006-01-02"), len(feedTypes))
	if err := agg.Day(ctx, date, feedTypes, *base64url); err != nil {
		ui.Errorf("parse day finished with failures:\n%v", err)
		return 1
	}
	ui.Successf("Aggregated %s.", date.Format("2006-01-02"))
	return 0
}

// runParseFile decodes a single raw artifact, as a debugging aid.
func runParseFile(args []string, globals GlobalFlags) int {
	fs := flag.NewFlagSet("parse file", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: feedarch parse file gs://bucket/key

Description:
  Download one raw artifact, run it through its feed's decoder, and
  report the record count.

`)
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 1
	}

	bucket, key, err := objstore.SplitURI(fs.Arg(0))
	if err != nil {
		ui.Errorf("%v", err)
		return 1
	}

	logger := newLogger(globals)
	ctx, cancel := signalContext(logger)
	defer cancel()

	store, err := objstore.NewGCSStore(ctx, objstore.GCSConfig{Bucket: bucket}, logger)
	if err != nil {
		ui.Errorf("%v", err)
		return 1
	}
	defer store.Close()

	agg := aggregate.New(store, objstore.NewMemStore(), logger, aggregate.Options{})
	count, err := agg.File(ctx, key)
	if err != nil {
		ui.Errorf("%v", err)
		return 1
	}
	ui.Printf("Found %d records in %s", count, key)
	return 0
}

// resolveFeedTypes picks the feed-type set for a day run: --include wins,
// otherwise the types present in feeds.yaml minus --exclude.
func resolveFeedTypes(configPath string, include, exclude []string) ([]feeds.FeedType, error) {
	if len(include) > 0 {
		var out []feeds.FeedType
		for _, s := range include {
			ft, err := feeds.ParseFeedType(s)
			if err != nil {
				return nil, err
			}
			out = append(out, ft)
		}
		return out, nil
	}

	configs, err := feeds.LoadConfigs(configPath)
	if err != nil {
		return nil, err
	}
	excluded := make(map[feeds.FeedType]bool, len(exclude))
	for _, s := range exclude {
		ft, err := feeds.ParseFeedType(s)
		if err != nil {
			return nil, err
		}
		excluded[ft] = true
	}

	var out []feeds.FeedType
	for _, ft := range feeds.FeedTypeSet(configs) {
		if !excluded[ft] {
			out = append(out, ft)
		}
	}
	return out, nil
}
