package fleet

import (
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestDoorIDResolution(t *testing.T) {
	tests := []struct {
		name   string
		record VehicleRecord
		want   string
	}{
		{
			name:   "primary field",
			record: VehicleRecord{"vehicleDoorCode": "a-123"},
			want:   "A-123",
		},
		{
			name:   "fallback field",
			record: VehicleRecord{"busDoorNumber": "b-77"},
			want:   "B-77",
		},
		{
			name:   "primary wins over fallback",
			record: VehicleRecord{"vehicleDoorCode": "a-123", "busDoorNumber": "b-77"},
			want:   "A-123",
		},
		{
			name:   "whitespace trimmed and uppercased",
			record: VehicleRecord{"vehicleDoorCode": "  ab12  "},
			want:   "AB12",
		},
		{
			name:   "no identifier",
			record: VehicleRecord{"latitude": 41.0},
			want:   "",
		},
		{
			name:   "nil field falls through",
			record: VehicleRecord{"vehicleDoorCode": nil, "busDoorNumber": "c1"},
			want:   "C1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			is.Equal(tt.record.DoorID(), tt.want)
		})
	}
}

func TestCoordinates(t *testing.T) {
	tests := []struct {
		name    string
		record  VehicleRecord
		wantLat float64
		wantLng float64
		wantOk  bool
	}{
		{
			name:    "numeric fields",
			record:  VehicleRecord{"latitude": 41.05, "longitude": 29.01},
			wantLat: 41.05,
			wantLng: 29.01,
			wantOk:  true,
		},
		{
			name:    "string fields parse",
			record:  VehicleRecord{"latitude": "41.05", "longitude": "29.01"},
			wantLat: 41.05,
			wantLng: 29.01,
			wantOk:  true,
		},
		{
			name:   "zero latitude is no fix",
			record: VehicleRecord{"latitude": 0.0, "longitude": 29.01},
			wantOk: false,
		},
		{
			name:   "missing longitude",
			record: VehicleRecord{"latitude": 41.05},
			wantOk: false,
		},
		{
			name:   "garbage strings",
			record: VehicleRecord{"latitude": "north", "longitude": "east"},
			wantOk: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			lat, lng, ok := tt.record.Coordinates()
			is.Equal(ok, tt.wantOk)
			if tt.wantOk {
				is.Equal(lat, tt.wantLat)
				is.Equal(lng, tt.wantLng)
			}
		})
	}
}

func TestSnapshotCacheLookupIsCaseAndWhitespaceInsensitive(t *testing.T) {
	is := is.New(t)
	cache := NewSnapshotCache()
	cache.Replace([]VehicleRecord{
		{"vehicleDoorCode": "ab12", "speed": 10.0},
	}, time.Now())

	for _, door := range []string{"ab12", "AB12 ", " ab12"} {
		record, found := cache.Lookup(door)
		is.True(found)
		is.Equal(record.Speed(), 10.0)
	}

	_, found := cache.Lookup("zz99")
	is.True(!found)
}

func TestSnapshotCacheIndexesBothDoorFields(t *testing.T) {
	is := is.New(t)
	cache := NewSnapshotCache()
	cache.Replace([]VehicleRecord{
		{"vehicleDoorCode": "a1", "busDoorNumber": "b1"},
	}, time.Now())

	_, foundPrimary := cache.Lookup("A1")
	is.True(foundPrimary)
	_, foundFallback := cache.Lookup("B1")
	is.True(foundFallback)
}

func TestSnapshotCacheReplaceSwapsWholesale(t *testing.T) {
	is := is.New(t)
	cache := NewSnapshotCache()
	cache.Replace([]VehicleRecord{{"vehicleDoorCode": "a1"}}, time.Now())
	cache.Replace([]VehicleRecord{{"vehicleDoorCode": "b2"}}, time.Now())

	is.Equal(len(cache.Records()), 1)
	_, foundOld := cache.Lookup("a1")
	is.True(!foundOld)
	_, foundNew := cache.Lookup("b2")
	is.True(foundNew)
}

func TestSnapshotCacheAge(t *testing.T) {
	is := is.New(t)
	cache := NewSnapshotCache()
	now := time.Now()

	// before any snapshot the cache reads as arbitrarily old
	is.True(cache.Age(now) > time.Hour)

	cache.Replace(nil, now.Add(-time.Second))
	is.Equal(cache.Age(now), time.Second)
}

func TestDeltaTracker(t *testing.T) {
	is := is.New(t)
	tracker := NewDeltaTracker()

	is.True(tracker.Changed("A1", 41.0, 29.0))  // first sighting
	is.True(!tracker.Changed("A1", 41.0, 29.0)) // unchanged
	is.True(!tracker.Changed("A1", 41.0, 29.0))
	is.True(tracker.Changed("A1", 41.0, 29.1)) // moved
	is.True(tracker.Changed("B2", 41.0, 29.0)) // other vehicle is independent
}
