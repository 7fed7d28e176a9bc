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
	"crypto/md5"
	"encoding/hex"
	"testing"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"github.com/kraklabs/feedarch/pkg/feeds"
)

func TestRegistry_CoversEveryFeedType(t *testing.T) {
	for _, ft := range feeds.AllFeedTypes() {
		d, err := ForFeedType(ft)
		require.NoError(t, err, "feed type %s", ft)
		assert.Contains(t, d.FeedTypes(), ft)
	}
}

func buildScheduleZip(t *testing.T, entries map[string]string, order []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(entries[name]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestGtfsSchedule_Decode(t *testing.T) {
	agencyCSV := "agency_id,agency_name\nsepta,SEPTA\nnjt,NJ Transit\n"
	stopsCSV := "stop_id,stop_name\n1,A\n2,B\n3,C\n"
	contents := buildScheduleZip(t, map[string]string{
		"agency.txt": agencyCSV,
		"stops.txt":  stopsCSV,
	}, []string{"agency.txt", "stops.txt"})

	tables, err := GtfsSchedule{}.Decode(feeds.FeedTypeGtfsSchedule, contents)
	require.NoError(t, err)
	require.Len(t, tables, 2)

	assert.Equal(t, "agency.txt", tables[0].Table)
	require.Len(t, tables[0].Records, 2)
	assert.Equal(t, "septa", tables[0].Records[0]["agency_id"])
	assert.Equal(t, "SEPTA", tables[0].Records[0]["agency_name"])

	assert.Equal(t, "stops.txt", tables[1].Table)
	require.Len(t, tables[1].Records, 3)
	assert.Equal(t, "C", tables[1].Records[2]["stop_name"])

	// Per-entry digests feed the outcome hash in archive order.
	wantAgency := md5.Sum([]byte(agencyCSV))
	assert.Equal(t, wantAgency[:], tables[0].Digest)

	h := md5.New()
	h.Write(tables[0].Digest)
	h.Write(tables[1].Digest)
	assert.Equal(t, hex.EncodeToString(h.Sum(nil)), CombinedDigest(tables))
}

func TestGtfsSchedule_SkipsUnknownEntries(t *testing.T) {
	contents := buildScheduleZip(t, map[string]string{
		"agency.txt": "agency_id\nsepta\n",
		"README.md":  "not a gtfs file",
	}, []string{"agency.txt", "README.md"})

	tables, err := GtfsSchedule{}.Decode(feeds.FeedTypeGtfsSchedule, contents)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "agency.txt", tables[0].Table)
}

func TestGtfsSchedule_RejectsNonZip(t *testing.T) {
	_, err := GtfsSchedule{}.Decode(feeds.FeedTypeGtfsSchedule, []byte("not a zip"))
	assert.Error(t, err)
}

func buildFeedMessage(t *testing.T, entities int) []byte {
	t.Helper()
	msg := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(1704164640),
		},
	}
	for i := 0; i < entities; i++ {
		id := string(rune('a' + i))
		msg.Entity = append(msg.Entity, &gtfs.FeedEntity{
			Id: proto.String(id),
			Vehicle: &gtfs.VehiclePosition{
				Vehicle: &gtfs.VehicleDescriptor{Id: proto.String("veh-" + id)},
			},
		})
	}
	data, err := proto.Marshal(msg)
	require.NoError(t, err)
	return data
}

func TestGtfsRealtime_Decode(t *testing.T) {
	contents := buildFeedMessage(t, 5)

	tables, err := GtfsRealtime{}.Decode(feeds.FeedTypeGtfsRtVehiclePositions, contents)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "gtfs_rt__vehicle_positions", tables[0].Table)
	require.Len(t, tables[0].Records, 5)

	for i, rec := range tables[0].Records {
		header, ok := rec["header"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "2.0", header["gtfsRealtimeVersion"])

		entity, ok := rec["entity"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, string(rune('a'+i)), entity["id"])
	}

	want := md5.Sum(contents)
	assert.Equal(t, want[:], tables[0].Digest)
}

func TestGtfsRealtime_RejectsGarbage(t *testing.T) {
	_, err := GtfsRealtime{}.Decode(feeds.FeedTypeGtfsRtTripUpdates, []byte{0xde, 0xad, 0xbe, 0xef})
	assert.Error(t, err)
}

func TestListOfDicts_Decode(t *testing.T) {
	contents := []byte(`[{"train":"1","dest":"Airport"},{"train":"2","dest":"Doylestown"}]`)

	tables, err := ListOfDicts{}.Decode(feeds.FeedTypeSeptaTrainView, contents)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "septa__train_view", tables[0].Table)
	require.Len(t, tables[0].Records, 2)
	assert.Equal(t, "Airport", tables[0].Records[0]["dest"])
}

func TestSeptaArrivals_Decode(t *testing.T) {
	contents := []byte(`{
		"30th Street Station Departures: May 1, 2024": [
			{"Northbound": [
				{"train_id": "123", "status": "On Time"},
				{"train_id": "456", "status": "5 min"}
			]},
			{"Southbound": [
				{"train_id": "789", "status": "On Time"}
			]}
		]
	}`)

	tables, err := SeptaArrivals{}.Decode(feeds.FeedTypeSeptaArrivals, contents)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	require.Len(t, tables[0].Records, 3)

	first := tables[0].Records[0]
	assert.Equal(t, "30th Street Station Departures: May 1, 2024", first["key"])
	assert.Equal(t, "Northbound", first["direction_key"])
	assert.Equal(t, "123", first["train_id"])

	last := tables[0].Records[2]
	assert.Equal(t, "Southbound", last["direction_key"])
	assert.Equal(t, "789", last["train_id"])
}

func TestSeptaArrivals_RejectsMultiDirectionGroup(t *testing.T) {
	contents := []byte(`{"k": [{"N": [], "S": []}]}`)
	_, err := SeptaArrivals{}.Decode(feeds.FeedTypeSeptaArrivals, contents)
	assert.Error(t, err)
}

func TestSeptaTransitViewAll_Decode(t *testing.T) {
	contents := []byte(`{"routes": [{"17": [{"VehicleID": "1"}], "33": [{"VehicleID": "2"}, {"VehicleID": "3"}]}]}`)

	tables, err := SeptaTransitViewAll{}.Decode(feeds.FeedTypeSeptaTransitViewAll, contents)
	require.NoError(t, err)
	require.Len(t, tables[0].Records, 3)
	assert.Equal(t, "1", tables[0].Records[0]["VehicleID"])
}

func TestSeptaTransitViewAll_RejectsMultipleRouteElements(t *testing.T) {
	contents := []byte(`{"routes": [{"17": []}, {"33": []}]}`)
	_, err := SeptaTransitViewAll{}.Decode(feeds.FeedTypeSeptaTransitViewAll, contents)
	assert.Error(t, err)
}

func TestSeptaBusDetours_Decode(t *testing.T) {
	contents := []byte(`[
		{"route_id": "59", "route_info": [{"reason": "Construction"}, {"reason": "Parade"}]},
		{"route_id": "K", "route_info": [{"reason": "Water main"}]}
	]`)

	tables, err := SeptaBusDetours{}.Decode(feeds.FeedTypeSeptaBusDetours, contents)
	require.NoError(t, err)
	require.Len(t, tables[0].Records, 3)
	assert.Equal(t, "59", tables[0].Records[0]["route_id"])
	assert.Equal(t, "Parade", tables[0].Records[1]["reason"])
	assert.Equal(t, "K", tables[0].Records[2]["route_id"])
}

func TestSeptaElevatorOutages_Decode(t *testing.T) {
	contents := []byte(`{
		"meta": {"updated": "2024-05-01T00:00:00"},
		"results": [{"line": "MFL", "station": "69th"}, {"line": "BSL", "station": "Olney"}]
	}`)

	tables, err := SeptaElevatorOutages{}.Decode(feeds.FeedTypeSeptaElevatorOutages, contents)
	require.NoError(t, err)
	require.Len(t, tables[0].Records, 2)

	meta, ok := tables[0].Records[0]["meta"].(Record)
	require.True(t, ok)
	assert.Equal(t, "2024-05-01T00:00:00", meta["updated"])
	assert.Equal(t, "MFL", tables[0].Records[0]["line"])
}

func TestCombinedDigest_Deterministic(t *testing.T) {
	tables := []TableRecords{
		{Table: "a", Digest: digest([]byte("one"))},
		{Table: "b", Digest: digest([]byte("two"))},
	}
	assert.Equal(t, CombinedDigest(tables), CombinedDigest(tables))

	reordered := []TableRecords{tables[1], tables[0]}
	assert.NotEqual(t, CombinedDigest(tables), CombinedDigest(reordered))
}
