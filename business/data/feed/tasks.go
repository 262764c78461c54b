package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/source-dews/fleettrack/business/fleet"
)

// Task is the simplified view of one upstream scheduled task.
type Task struct {
	Code             string      `json:"code"`
	Dest             string      `json:"dest"`
	Time             string      `json:"time"`
	DriverRegisterNo interface{} `json:"driverRegisterNo"`
}

// taskTimeFields are the field names a task's time may appear under, in
// resolution priority order. Tasks carrying none of them are dropped.
var taskTimeFields = []string{
	"approximateStartTime",
	"updatedStartTime",
	"taskStartTime",
	"approximateEndTime",
	"plannedStartTime",
}

// GetTasks retrieves and simplifies the scheduled tasks for one vehicle. All
// tasks are returned regardless of date; the operator wants past tasks
// visible alongside upcoming ones.
func (c *Client) GetTasks(ctx context.Context, doorNumber string) ([]Task, error) {
	raw, err := c.fetchRawTasks(ctx, doorNumber)
	if err != nil {
		return nil, err
	}
	return SimplifyTasks(raw), nil
}

// fetchRawTasks performs the protocol round trip against the per-vehicle task
// endpoint. The decrypted plaintext must be a JSON list; any other shape
// yields no tasks.
func (c *Client) fetchRawTasks(ctx context.Context, doorNumber string) ([]map[string]interface{}, error) {
	endpoint := fmt.Sprintf(c.cfg.TaskURLTemplate, doorNumber)
	plaintext, err := c.SecureRequest(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var decoded interface{}
	if err = json.Unmarshal(plaintext, &decoded); err != nil {
		return nil, fmt.Errorf("decoding task plaintext: %w", err)
	}
	rawList, isList := decoded.([]interface{})
	if !isList {
		return nil, nil
	}

	tasks := make([]map[string]interface{}, 0, len(rawList))
	for _, raw := range rawList {
		if task, isObject := raw.(map[string]interface{}); isObject {
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

// SimplifyTasks reduces raw upstream tasks to line code, destination and a
// local HH:MM departure. Tasks are ordered ascending by their resolved time;
// tasks with no resolvable time sort first and are then dropped.
func SimplifyTasks(rawTasks []map[string]interface{}) []Task {
	sorted := make([]map[string]interface{}, len(rawTasks))
	copy(sorted, rawTasks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return resolveTaskTime(sorted[i]) < resolveTaskTime(sorted[j])
	})

	var simplified []Task
	for _, raw := range sorted {
		timestampMillis := resolveTaskTime(raw)
		if timestampMillis == 0 {
			continue
		}
		departure := time.UnixMilli(timestampMillis).In(fleet.LocalZone).Format("15:04")

		lineCode, _ := raw["lineCode"].(string)
		lineName, _ := raw["lineName"].(string)

		simplified = append(simplified, Task{
			Code:             strings.TrimSpace(lineCode),
			Dest:             destinationLabel(lineName, raw["routeDirection"]),
			Time:             departure,
			DriverRegisterNo: raw["driverRegisterNo"],
		})
	}
	return simplified
}

// resolveTaskTime returns the task's time in epoch milliseconds from the
// first time field carrying a nonzero value, or zero when none do.
func resolveTaskTime(rawTask map[string]interface{}) int64 {
	for _, field := range taskTimeFields {
		switch value := rawTask[field].(type) {
		case float64:
			if value != 0 {
				return int64(value)
			}
		case int64:
			if value != 0 {
				return value
			}
		}
	}
	return 0
}

// destinationLabel derives the departure point from a combined line label
// such as "15F - BEYKOZ / KADIKÖY". When the label splits on a hyphen into
// two or more parts, direction "1" selects the second part (return leg) and
// anything else, including a missing flag, selects the first. Labels without
// a hyphen pass through unmodified.
func destinationLabel(lineName string, direction interface{}) string {
	parts := strings.Split(lineName, "-")
	if len(parts) < 2 {
		return lineName
	}
	if fmt.Sprintf("%v", direction) == "1" {
		return strings.TrimSpace(parts[1])
	}
	return strings.TrimSpace(parts[0])
}
