package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/source-dews/fleettrack/business/fleet"
)

// feedTimeLayout is the layout the upstream emits for last location
// timestamps, after the date half is trimmed of its T00:00:00 padding.
const feedTimeLayout = "2006-01-02 15:04:05"

// FetchFleet retrieves the current snapshot of every vehicle in the fleet.
// The decrypted plaintext is either a bare JSON list or an object carrying
// the list under "data" or "buses"; any other shape is a data error. Record
// timestamps are normalized from UTC to the fleet's local UTC+3 before the
// snapshot is returned.
func (c *Client) FetchFleet(ctx context.Context) ([]fleet.VehicleRecord, error) {
	plaintext, err := c.SecureRequest(ctx, c.cfg.FleetURL, nil)
	if err != nil {
		return nil, err
	}
	return parseFleetList(plaintext)
}

// parseFleetList decodes the decrypted feed plaintext into normalized vehicle
// records.
func parseFleetList(plaintext []byte) ([]fleet.VehicleRecord, error) {
	var decoded interface{}
	if err := json.Unmarshal(plaintext, &decoded); err != nil {
		return nil, fmt.Errorf("decoding fleet plaintext: %w", err)
	}

	var rawList []interface{}
	switch shape := decoded.(type) {
	case []interface{}:
		rawList = shape
	case map[string]interface{}:
		if list, found := shape["data"].([]interface{}); found {
			rawList = list
		} else if list, found := shape["buses"].([]interface{}); found {
			rawList = list
		}
	default:
		return nil, fmt.Errorf("unexpected fleet plaintext shape %T", decoded)
	}

	records := make([]fleet.VehicleRecord, 0, len(rawList))
	for _, raw := range rawList {
		fields, isObject := raw.(map[string]interface{})
		if !isObject {
			continue
		}
		record := fleet.VehicleRecord(fields)
		normalizeRecordTime(record)
		records = append(records, record)
	}
	return records, nil
}

// normalizeRecordTime shifts a record's lastLocationDate and lastLocationTime
// from UTC to UTC+3 in place. The date field arrives padded to a full
// timestamp (2025-12-14T00:00:00) and is written back the same way.
// Unparseable fields are left untouched rather than dropped.
func normalizeRecordTime(record fleet.VehicleRecord) {
	dateField := record.LastLocationDate()
	timeField := record.LastLocationTime()
	if len(dateField) < 10 || timeField == "" {
		return
	}

	utcTime, err := time.Parse(feedTimeLayout, dateField[:10]+" "+timeField)
	if err != nil {
		return
	}
	localTime := utcTime.Add(3 * time.Hour)

	record["lastLocationDate"] = localTime.Format("2006-01-02") + "T00:00:00"
	record["lastLocationTime"] = localTime.Format("15:04:05")
}
