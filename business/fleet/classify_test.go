package fleet

import (
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/source-dews/fleettrack/business/data/history"
)

// pointsWithDisplacement builds an ascending history window whose oldest and
// newest points are approximately meters apart going north.
func pointsWithDisplacement(meters float64, now time.Time) []history.Point {
	const metersPerDegreeLat = 111194.9
	start := history.Point{
		DoorNumber: "A1",
		Latitude:   41.0,
		Longitude:  29.0,
		Timestamp:  now.Add(-4 * time.Minute).Unix(),
	}
	end := history.Point{
		DoorNumber: "A1",
		Latitude:   41.0 + meters/metersPerDegreeLat,
		Longitude:  29.0,
		Timestamp:  now.Add(-30 * time.Second).Unix(),
	}
	return []history.Point{start, end}
}

// liveRecord builds a snapshot record whose last update is age before now.
func liveRecord(now time.Time, age time.Duration, speed float64) VehicleRecord {
	lastUpdate := now.Add(-age)
	return VehicleRecord{
		"vehicleDoorCode":  "A1",
		"lastLocationDate": lastUpdate.Format("02-01-2006"),
		"lastLocationTime": lastUpdate.Format("15:04:05"),
		"speed":            speed,
	}
}

func TestClassifyGhostSpeedRule(t *testing.T) {
	now := time.Date(2025, 12, 14, 15, 0, 0, 0, LocalZone)

	tests := []struct {
		name         string
		speed        float64
		displacement float64
		wantStatus   string
		wantDetail   string
	}{
		{
			name:         "reported speed with real displacement is moving",
			speed:        25,
			displacement: 120,
			wantStatus:   StatusMoving,
			wantDetail:   "25 km/h",
		},
		{
			name:         "reported speed without displacement is GPS noise",
			speed:        25,
			displacement: 10,
			wantStatus:   StatusStopped,
			wantDetail:   "25 km/h (GPS Sapması)",
		},
		{
			name:         "zero speed with real displacement is stop-and-go",
			speed:        0,
			displacement: 80,
			wantStatus:   StatusStopAndGo,
		},
		{
			name:         "zero speed without displacement is stopped",
			speed:        0,
			displacement: 5,
			wantStatus:   StatusStopped,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			record := liveRecord(now, 2*time.Minute, tt.speed)
			recent := pointsWithDisplacement(tt.displacement, now)

			got := Classify(record, recent, now)

			is.Equal(got.VehicleStatus, tt.wantStatus)
			if tt.wantDetail != "" {
				is.Equal(got.Detail, tt.wantDetail)
			}
		})
	}
}

func TestClassifyNoLiveRecord(t *testing.T) {
	is := is.New(t)
	got := Classify(nil, nil, time.Now())
	is.Equal(got.VehicleStatus, StatusNoData)
}

func TestClassifySignalLost(t *testing.T) {
	is := is.New(t)
	now := time.Date(2025, 12, 14, 15, 0, 0, 0, LocalZone)
	record := liveRecord(now, 12*time.Minute, 40)

	got := Classify(record, nil, now)

	is.Equal(got.VehicleStatus, StatusSignalLost)
	is.Equal(got.Detail, "12 dk gecikme")
}

func TestClassifyMissingDateFields(t *testing.T) {
	is := is.New(t)
	record := VehicleRecord{
		"vehicleDoorCode":  "A1",
		"lastLocationDate": "",
		"lastLocationTime": "",
	}

	got := Classify(record, nil, time.Now())

	is.Equal(got.VehicleStatus, StatusDeviceOff)
	is.Equal(got.Detail, "Tarih/Saat Yok")
}

func TestClassifyUnreadableDate(t *testing.T) {
	is := is.New(t)
	record := VehicleRecord{
		"vehicleDoorCode":  "A1",
		"lastLocationDate": "not a date",
		"lastLocationTime": "not a time",
	}

	got := Classify(record, nil, time.Now())

	is.Equal(got.VehicleStatus, StatusDataError)
	is.Equal(got.Detail, "Tarih Okunamadı")
}

func TestClassifyClockSkewReadsAsFresh(t *testing.T) {
	is := is.New(t)
	now := time.Date(2025, 12, 14, 15, 0, 0, 0, LocalZone)
	// last update 30 seconds in the future relative to this host
	record := liveRecord(now, -30*time.Second, 0)

	got := Classify(record, nil, now)

	is.Equal(got.VehicleStatus, StatusStopped)
}

func TestClassifyEmptyHistoryMeansNoDisplacement(t *testing.T) {
	is := is.New(t)
	now := time.Date(2025, 12, 14, 15, 0, 0, 0, LocalZone)
	record := liveRecord(now, time.Minute, 50)

	got := Classify(record, nil, now)

	is.Equal(got.VehicleStatus, StatusStopped)
	is.Equal(got.Detail, "50 km/h (GPS Sapması)")
}

func TestParseLastUpdateFormats(t *testing.T) {
	tests := []struct {
		name      string
		dateField string
		timeField string
		want      time.Time
	}{
		{
			name:      "day first with dashes",
			dateField: "14-12-2025",
			timeField: "15:03:11",
			want:      time.Date(2025, 12, 14, 15, 3, 11, 0, LocalZone),
		},
		{
			name:      "day first with dots",
			dateField: "14.12.2025",
			timeField: "15:03:11",
			want:      time.Date(2025, 12, 14, 15, 3, 11, 0, LocalZone),
		},
		{
			name:      "year first",
			dateField: "2025-12-14",
			timeField: "15:03:11",
			want:      time.Date(2025, 12, 14, 15, 3, 11, 0, LocalZone),
		},
		{
			name:      "day first without seconds",
			dateField: "14-12-2025",
			timeField: "15:03",
			want:      time.Date(2025, 12, 14, 15, 3, 0, 0, LocalZone),
		},
		{
			name:      "feed pads the date to a full timestamp",
			dateField: "2025-12-14T00:00:00",
			timeField: "15:03:11",
			want:      time.Date(2025, 12, 14, 15, 3, 11, 0, LocalZone),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			got, parsed := parseLastUpdate(tt.dateField, tt.timeField)
			is.True(parsed)
			is.True(got.Equal(tt.want))
		})
	}
}

func TestHaversine(t *testing.T) {
	is := is.New(t)

	// same point
	is.Equal(Haversine(41.0, 29.0, 41.0, 29.0), 0.0)

	// one degree of latitude is roughly 111.2 km
	distance := Haversine(41.0, 29.0, 42.0, 29.0)
	if distance < 110000 || distance > 112000 {
		t.Fatalf("one degree of latitude measured %f meters", distance)
	}
}
