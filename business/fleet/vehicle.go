// Package fleet contains the domain model for live fleet vehicles: the
// snapshot of upstream records, door number resolution, position delta
// tracking and movement classification.
package fleet

import (
	"strconv"
	"strings"
	"time"
)

// LocalZone is the operating timezone of the fleet. The upstream feed reports
// UTC; everything user facing is presented shifted to UTC+3.
var LocalZone = time.FixedZone("TRT", 3*60*60)

// VehicleRecord holds one vehicle's fields exactly as published by the
// upstream feed. The field set is not under our control so records are kept
// as a map and served back out wholesale, with typed accessors for the
// handful of fields the engine interprets.
type VehicleRecord map[string]interface{}

// doorFields are the field names a vehicle identifier may appear under,
// checked in order.
var doorFields = []string{"vehicleDoorCode", "busDoorNumber"}

// NormalizeDoor canonicalizes a door number for comparison anywhere in the
// system: trimmed and uppercased.
func NormalizeDoor(door string) string {
	return strings.ToUpper(strings.TrimSpace(door))
}

// DoorID resolves the vehicle's door number from the primary field name,
// falling back to the alternate, normalized for comparison. Returns an empty
// string when neither field carries a value.
func (v VehicleRecord) DoorID() string {
	for _, field := range doorFields {
		if s := v.stringField(field); s != "" {
			return NormalizeDoor(s)
		}
	}
	return ""
}

// Coordinates returns the record's latitude and longitude. ok is false when
// either field is missing, non numeric, or zero; the feed publishes zero
// coordinates for vehicles without a GPS fix and those must never reach the
// history store.
func (v VehicleRecord) Coordinates() (lat float64, lng float64, ok bool) {
	lat, latOk := v.numericField("latitude")
	lng, lngOk := v.numericField("longitude")
	if !latOk || !lngOk || lat == 0 || lng == 0 {
		return 0, 0, false
	}
	return lat, lng, true
}

// Speed returns the reported instantaneous speed in km/h, zero when absent.
func (v VehicleRecord) Speed() float64 {
	speed, _ := v.numericField("speed")
	return speed
}

// LastLocationDate returns the feed's last location date field as a string.
func (v VehicleRecord) LastLocationDate() string {
	return strings.TrimSpace(v.stringField("lastLocationDate"))
}

// LastLocationTime returns the feed's last location time field as a string.
func (v VehicleRecord) LastLocationTime() string {
	return strings.TrimSpace(v.stringField("lastLocationTime"))
}

func (v VehicleRecord) stringField(field string) string {
	raw, present := v[field]
	if !present || raw == nil {
		return ""
	}
	if s, isString := raw.(string); isString {
		return s
	}
	return ""
}

func (v VehicleRecord) numericField(field string) (float64, bool) {
	raw, present := v[field]
	if !present || raw == nil {
		return 0, false
	}
	switch value := raw.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}
