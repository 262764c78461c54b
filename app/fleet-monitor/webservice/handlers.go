package webservice

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/source-dews/fleettrack/business/data/feed"
	"github.com/source-dews/fleettrack/business/fleet"
)

// classifierWindow is how far back the batch analyzer looks for history
// points when corroborating reported speed with real displacement.
const classifierWindow = 5 * time.Minute

// handleData serves the current fleet snapshot. When the cached snapshot is
// stale the handler fetches one itself; during an upstream outage the last
// good snapshot is served instead of an error. The response is explicitly
// non-cacheable end to end.
func (s *Service) handleData(w http.ResponseWriter, r *http.Request) {
	if s.cache.Age(time.Now()) > snapshotTTL {
		records, err := s.client.FetchFleet(r.Context())
		if err != nil {
			s.log.Printf("on-demand fleet fetch failed, serving cached snapshot: %v", err)
		} else if len(records) > 0 {
			s.cache.Replace(records, time.Now())
		}
	}

	records := s.cache.Records()
	if records == nil {
		records = []fleet.VehicleRecord{}
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate, max-age=0")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	s.writeJSON(w, records)
}

// handleTasks serves the simplified task list for one vehicle. Upstream
// failures surface as an empty list.
func (s *Service) handleTasks(w http.ResponseWriter, r *http.Request) {
	doorNumber := mux.Vars(r)["id"]
	tasks, err := s.client.GetTasks(r.Context(), doorNumber)
	if err != nil {
		s.log.Printf("task fetch for %s failed: %v", doorNumber, err)
	}
	if tasks == nil {
		tasks = []feed.Task{}
	}
	s.writeJSON(w, tasks)
}

// historyEntry is one history point as served, with a localized clock time.
type historyEntry struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Timestamp int64   `json:"timestamp"`
	Time      string  `json:"time"`
}

// handleHistory serves a vehicle's recent movement history. The minutes
// parameter is clamped to [1,240] and defaults to 15.
func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	doorNumber := fleet.NormalizeDoor(mux.Vars(r)["id"])

	minutes := 15
	if raw := r.URL.Query().Get("minutes"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			minutes = parsed
		}
	}
	if minutes < 1 {
		minutes = 1
	}
	if minutes > 240 {
		minutes = 240
	}

	since := time.Now().Add(-time.Duration(minutes) * time.Minute).Unix()
	points := s.store.QueryRange(doorNumber, since)

	entries := make([]historyEntry, 0, len(points))
	for _, point := range points {
		entries = append(entries, historyEntry{
			Lat:       point.Latitude,
			Lng:       point.Longitude,
			Timestamp: point.Timestamp,
			Time:      time.Unix(point.Timestamp, 0).In(fleet.LocalZone).Format("15:04:05"),
		})
	}
	s.writeJSON(w, entries)
}

// batchResult is the analysis verdict for one door number.
type batchResult struct {
	Door          string `json:"door"`
	TaskStatus    string `json:"task_status"`
	VehicleStatus string `json:"vehicle_status"`
	Detail        string `json:"detail"`
}

// handleBatchAnalyze classifies a list of vehicles: task assignment state
// from a live task fetch, movement state from the snapshot and recent
// history. Door numbers are analyzed sequentially and independently; one
// vehicle's failure never aborts its siblings.
func (s *Service) handleBatchAnalyze(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Doors []string `json:"doors"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("decoding request: %v", err))
		return
	}

	results := make([]batchResult, 0, len(request.Doors))
	for _, rawDoor := range request.Doors {
		door := fleet.NormalizeDoor(rawDoor)
		if door == "" {
			continue
		}

		taskStatus := fleet.TaskStatusNone
		tasks, err := s.client.GetTasks(r.Context(), door)
		if err != nil {
			s.log.Printf("batch analyze: task fetch for %s failed: %v", door, err)
		}
		if len(tasks) > 0 {
			taskStatus = fleet.TaskStatusAssigned
		}

		classification := s.classifyDoor(door)

		results = append(results, batchResult{
			Door:          door,
			TaskStatus:    taskStatus,
			VehicleStatus: classification.VehicleStatus,
			Detail:        classification.Detail,
		})
	}
	s.writeJSON(w, results)
}

// classifyDoor runs the movement classifier for one door number, isolating
// any failure to that vehicle's result.
func (s *Service) classifyDoor(door string) (classification fleet.Classification) {
	defer func() {
		if recovered := recover(); recovered != nil {
			s.log.Printf("batch analyze: analysis failed for %s: %v", door, recovered)
			classification = fleet.Classification{
				VehicleStatus: fleet.StatusDataError,
				Detail:        truncateDetail(fmt.Sprintf("%v", recovered), 20),
			}
		}
	}()

	record, _ := s.cache.Lookup(door)
	since := time.Now().Add(-classifierWindow).Unix()
	recent := s.store.QueryRange(door, since)
	return fleet.Classify(record, recent, time.Now())
}

// truncateDetail bounds an error detail for display.
func truncateDetail(detail string, limit int) string {
	runes := []rune(detail)
	if len(runes) <= limit {
		return detail
	}
	return string(runes[:limit])
}
