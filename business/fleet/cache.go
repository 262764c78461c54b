package fleet

import (
	"sync"
	"time"
)

// SnapshotCache holds the last successfully fetched fleet snapshot. The
// poller replaces the whole snapshot in one swap; request handlers read it
// concurrently and must always observe a fully formed snapshot, so the
// records slice and door index are rebuilt before the swap and never mutated
// afterwards.
type SnapshotCache struct {
	mu         sync.RWMutex
	records    []VehicleRecord
	byDoor     map[string]VehicleRecord
	lastUpdate time.Time
}

// NewSnapshotCache creates an empty SnapshotCache.
func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{
		byDoor: make(map[string]VehicleRecord),
	}
}

// Replace swaps in a new snapshot taken at the given time. A record is
// indexed under every door field it carries so lookups succeed whichever
// field name the upstream used for it.
func (c *SnapshotCache) Replace(records []VehicleRecord, at time.Time) {
	byDoor := make(map[string]VehicleRecord, len(records))
	for _, record := range records {
		for _, field := range doorFields {
			if door := NormalizeDoor(record.stringField(field)); door != "" {
				byDoor[door] = record
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = records
	c.byDoor = byDoor
	c.lastUpdate = at
}

// Records returns the current snapshot. The returned slice is the swapped-in
// snapshot itself; callers must treat it as read only.
func (c *SnapshotCache) Records() []VehicleRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.records
}

// Lookup finds the cached record for a door number. Matching is case and
// whitespace insensitive.
func (c *SnapshotCache) Lookup(door string) (VehicleRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	record, found := c.byDoor[NormalizeDoor(door)]
	return record, found
}

// Age reports how old the cached snapshot is. Before the first successful
// poll the age is effectively unbounded.
func (c *SnapshotCache) Age(now time.Time) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastUpdate.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(c.lastUpdate)
}

// DeltaTracker remembers the last coordinate written to the history store for
// each vehicle so repeated identical positions are written only once. It is
// owned by the poller alone and needs no locking; losing it on restart costs
// at most one duplicate history row per vehicle.
type DeltaTracker struct {
	last map[string][2]float64
}

// NewDeltaTracker creates an empty DeltaTracker.
func NewDeltaTracker() *DeltaTracker {
	return &DeltaTracker{last: make(map[string][2]float64)}
}

// Changed reports whether the coordinate differs from the last one recorded
// for the door, and records it when it does. First sightings count as
// changed.
func (t *DeltaTracker) Changed(door string, lat, lng float64) bool {
	previous, seen := t.last[door]
	if seen && previous[0] == lat && previous[1] == lng {
		return false
	}
	t.last[door] = [2]float64{lat, lng}
	return true
}
