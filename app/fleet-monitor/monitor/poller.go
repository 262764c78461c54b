// Package monitor runs the background loops of the fleet monitor: the feed
// poller that keeps the snapshot cache and history store current, and the
// reclaimer that holds the history store to its retention window.
package monitor

import (
	"context"
	"log"
	"time"

	"github.com/source-dews/fleettrack/business/data/feed"
	"github.com/source-dews/fleettrack/business/data/history"
	"github.com/source-dews/fleettrack/business/fleet"
)

// panicCooldown is how long the poller rests after an unexpected failure
// inside a cycle before trying again.
const panicCooldown = 10 * time.Second

// RunPollerLoop polls the fleet feed until the shutdown channel closes. Each
// successful cycle swaps the whole snapshot into the cache, then writes the
// position deltas to the history store and hands them to the publisher. Empty
// or failed cycles back off with a growing delay; nothing that happens inside
// a cycle ends the loop.
func RunPollerLoop(log *log.Logger,
	client *feed.Client,
	cache *fleet.SnapshotCache,
	store *history.Store,
	publisher *DeltaPublisher,
	pollInterval time.Duration,
	shutdownSignal <-chan struct{}) {

	tracker := fleet.NewDeltaTracker()
	errorCount := 0

	sleepChan := make(chan bool)
	sleep := time.Duration(0) //sleep for zero seconds the first time
	for {
		go func() {
			time.Sleep(sleep)
			sleepChan <- true
		}()

		select {
		case <-shutdownSignal:
			log.Printf("poller: exiting on shutdown signal")
			return
		case <-sleepChan:
		}

		sleep = runPollCycle(log, client, cache, store, publisher, tracker, &errorCount, pollInterval)
	}
}

// runPollCycle performs one poll and returns how long to sleep before the
// next one. A panic anywhere in the cycle is recovered here, at the loop
// boundary, and answered with a fixed cooldown.
func runPollCycle(log *log.Logger,
	client *feed.Client,
	cache *fleet.SnapshotCache,
	store *history.Store,
	publisher *DeltaPublisher,
	tracker *fleet.DeltaTracker,
	errorCount *int,
	pollInterval time.Duration) (sleep time.Duration) {

	defer func() {
		if recovered := recover(); recovered != nil {
			log.Printf("poller: recovered from cycle failure: %v", recovered)
			*errorCount++
			sleep = panicCooldown
		}
	}()

	records, err := client.FetchFleet(context.Background())
	if err != nil || len(records) == 0 {
		*errorCount++
		wait := BackoffDelay(*errorCount)
		if err != nil {
			log.Printf("poller: fetch failed (errors=%d), waiting %s: %v", *errorCount, wait, err)
		} else {
			log.Printf("poller: feed empty (errors=%d), waiting %s", *errorCount, wait)
		}
		return wait
	}

	now := time.Now()
	// the snapshot swap must land before any history write so readers never
	// see history ahead of the snapshot it came from
	cache.Replace(records, now)

	deltas := collectDeltas(tracker, records, now.Unix())
	if len(deltas) > 0 {
		if insertErr := store.InsertBatch(deltas); insertErr == nil {
			log.Printf("poller: recorded %d position deltas from %d vehicles", len(deltas), len(records))
		}
		publisher.Publish(deltas)
	}

	*errorCount = 0
	return pollInterval
}

// collectDeltas selects the history points to write for this cycle: records
// with a resolvable door number and a real coordinate whose position moved
// since the last write (or that were never written before).
func collectDeltas(tracker *fleet.DeltaTracker, records []fleet.VehicleRecord, timestamp int64) []history.Point {
	var deltas []history.Point
	for _, record := range records {
		door := record.DoorID()
		if door == "" {
			continue
		}
		lat, lng, ok := record.Coordinates()
		if !ok {
			continue
		}
		if !tracker.Changed(door, lat, lng) {
			continue
		}
		deltas = append(deltas, history.Point{
			DoorNumber: door,
			Latitude:   lat,
			Longitude:  lng,
			Timestamp:  timestamp,
		})
	}
	return deltas
}

// BackoffDelay returns the wait after errorCount consecutive empty or failed
// polls: 5 seconds plus 2 per failure, capped at 30.
func BackoffDelay(errorCount int) time.Duration {
	seconds := 5 + 2*errorCount
	if seconds > 30 {
		seconds = 30
	}
	return time.Duration(seconds) * time.Second
}
