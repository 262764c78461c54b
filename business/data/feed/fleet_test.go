package feed

import (
	"testing"

	"github.com/matryer/is"

	"github.com/source-dews/fleettrack/business/fleet"
)

func TestParseFleetListShapes(t *testing.T) {
	tests := []struct {
		name      string
		plaintext string
		wantCount int
		wantErr   bool
	}{
		{
			name:      "bare list",
			plaintext: `[{"vehicleDoorCode":"A1"},{"vehicleDoorCode":"B2"}]`,
			wantCount: 2,
		},
		{
			name:      "list under data key",
			plaintext: `{"data":[{"vehicleDoorCode":"A1"}]}`,
			wantCount: 1,
		},
		{
			name:      "list under buses key",
			plaintext: `{"buses":[{"vehicleDoorCode":"A1"}]}`,
			wantCount: 1,
		},
		{
			name:      "object with neither key is empty",
			plaintext: `{"status":"ok"}`,
			wantCount: 0,
		},
		{
			name:      "scalar is a data error",
			plaintext: `42`,
			wantErr:   true,
		},
		{
			name:      "invalid json is a data error",
			plaintext: `{{`,
			wantErr:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			records, err := parseFleetList([]byte(tt.plaintext))
			if tt.wantErr {
				is.True(err != nil)
				return
			}
			is.NoErr(err)
			is.Equal(len(records), tt.wantCount)
		})
	}
}

func TestNormalizeRecordTimeShiftsToLocal(t *testing.T) {
	is := is.New(t)

	record := fleet.VehicleRecord{
		"lastLocationDate": "2025-12-14T00:00:00",
		"lastLocationTime": "22:30:11",
	}
	normalizeRecordTime(record)

	// 22:30 UTC rolls into the next local day
	is.Equal(record["lastLocationDate"], "2025-12-15T00:00:00")
	is.Equal(record["lastLocationTime"], "01:30:11")
}

func TestNormalizeRecordTimeSameDay(t *testing.T) {
	is := is.New(t)

	record := fleet.VehicleRecord{
		"lastLocationDate": "2025-12-14T00:00:00",
		"lastLocationTime": "12:03:11",
	}
	normalizeRecordTime(record)

	is.Equal(record["lastLocationDate"], "2025-12-14T00:00:00")
	is.Equal(record["lastLocationTime"], "15:03:11")
}

func TestNormalizeRecordTimeLeavesUnparseableAlone(t *testing.T) {
	is := is.New(t)

	record := fleet.VehicleRecord{
		"lastLocationDate": "definitely-not-a-date",
		"lastLocationTime": "noon",
	}
	normalizeRecordTime(record)

	is.Equal(record["lastLocationDate"], "definitely-not-a-date")
	is.Equal(record["lastLocationTime"], "noon")
}
