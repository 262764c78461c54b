package fleet

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/source-dews/fleettrack/business/data/history"
)

// Task statuses reported alongside the vehicle status. The labels are the
// upstream operator's own and are shown verbatim in the monitoring UI.
const (
	TaskStatusAssigned = "VAR"
	TaskStatusNone     = "YOK"
)

// Vehicle movement statuses, again the operator's labels.
const (
	StatusNoData     = "PC KAPALI / VERİ YOK"
	StatusDeviceOff  = "PC KAPALI"
	StatusDataError  = "VERİ HATASI"
	StatusSignalLost = "SİNYAL KESİK"
	StatusMoving     = "HAREKETLİ"
	StatusStopAndGo  = "HAREKETLİ (Dur-Kalk)"
	StatusStopped    = "DURUYOR"
)

// Classification is the movement verdict for one vehicle.
type Classification struct {
	VehicleStatus string
	Detail        string
}

// Thresholds for the ghost-speed rule. Reported instantaneous speed is
// unreliable below a few km/h: GPS jitter registers nonzero speed on a parked
// vehicle and zero speed on one crawling through stop-and-go traffic. The
// classifier therefore corroborates speed with actual displacement over the
// recent history window before declaring movement either way.
const (
	signalLostAfterMinutes = 10
	ghostSpeedKmh          = 3
	displacementMeters     = 50
)

// lastUpdateFormats are the date+time layouts the feed has been seen to emit,
// tried in order. It is unclear whether all five still occur upstream; the
// list is kept intact until production data says otherwise.
var lastUpdateFormats = []string{
	"02-01-2006 15:04:05",
	"02.01.2006 15:04:05",
	"2006-01-02 15:04:05",
	"02-01-2006 15:04",
	"2006-01-02T15:04:05",
}

// Classify determines the movement status of one vehicle from its live
// snapshot record and its recent history points. recent must be ordered
// ascending by timestamp; the displacement is measured between its oldest
// and newest point.
func Classify(record VehicleRecord, recent []history.Point, now time.Time) Classification {
	if record == nil {
		return Classification{VehicleStatus: StatusNoData}
	}

	dateField := record.LastLocationDate()
	timeField := record.LastLocationTime()
	if dateField == "" || timeField == "" {
		return Classification{VehicleStatus: StatusDeviceOff, Detail: "Tarih/Saat Yok"}
	}

	lastUpdate, parsed := parseLastUpdate(dateField, timeField)
	if !parsed {
		return Classification{VehicleStatus: StatusDataError, Detail: "Tarih Okunamadı"}
	}

	diffMinutes := now.Sub(lastUpdate).Minutes()
	if diffMinutes < 0 {
		// small clock skew between the feed and this host reads as zero
		diffMinutes = 0
	}
	if diffMinutes > signalLostAfterMinutes {
		return Classification{
			VehicleStatus: StatusSignalLost,
			Detail:        fmt.Sprintf("%d dk gecikme", int(diffMinutes)),
		}
	}

	speed := record.Speed()
	displacement := 0.0
	if len(recent) > 0 {
		oldest := recent[0]
		newest := recent[len(recent)-1]
		displacement = Haversine(oldest.Latitude, oldest.Longitude, newest.Latitude, newest.Longitude)
	}

	if speed > ghostSpeedKmh {
		if displacement > displacementMeters {
			return Classification{
				VehicleStatus: StatusMoving,
				Detail:        fmt.Sprintf("%g km/h", speed),
			}
		}
		return Classification{
			VehicleStatus: StatusStopped,
			Detail:        fmt.Sprintf("%g km/h (GPS Sapması)", speed),
		}
	}
	if displacement > displacementMeters {
		return Classification{
			VehicleStatus: StatusStopAndGo,
			Detail:        fmt.Sprintf("%dm Yer Değ.", int(displacement)),
		}
	}
	return Classification{
		VehicleStatus: StatusStopped,
		Detail:        fmt.Sprintf("%dm Yer Değ.", int(displacement)),
	}
}

// parseLastUpdate combines the feed's split date and time fields and tries
// each known layout in order. The date half is truncated at the T separator
// first: the feed pads dates out to a full timestamp (2025-12-14T00:00:00)
// while the clock lives in the separate time field.
func parseLastUpdate(dateField, timeField string) (time.Time, bool) {
	if at := strings.IndexByte(dateField, 'T'); at >= 0 {
		dateField = dateField[:at]
	}
	combined := dateField + " " + timeField
	for _, format := range lastUpdateFormats {
		if parsed, err := time.ParseInLocation(format, combined, LocalZone); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// Haversine returns the great-circle distance in meters between two
// coordinates, using a mean Earth radius of 6,371,000 m.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusMeters = 6371000

	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	deltaPhi := (lat2 - lat1) * math.Pi / 180
	deltaLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}
