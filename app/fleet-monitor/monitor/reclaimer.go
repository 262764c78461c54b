package monitor

import (
	"log"
	"time"

	"github.com/source-dews/fleettrack/business/data/history"
)

// errorSleep is how long the reclaimer rests after a failed cleanup cycle
// before resuming its normal cadence.
const errorSleep = 60 * time.Second

// RunReclaimerLoop deletes history older than the retention window on a fixed
// cadence until the shutdown channel closes. Retention is eventually
// consistent: between runs, points may briefly outlive the window. A failed
// cycle never stops future ones.
func RunReclaimerLoop(log *log.Logger,
	store *history.Store,
	runInterval time.Duration,
	retention time.Duration,
	shutdownSignal <-chan struct{}) {

	sleepChan := make(chan bool)
	sleep := runInterval
	for {
		go func() {
			time.Sleep(sleep)
			sleepChan <- true
		}()

		select {
		case <-shutdownSignal:
			log.Printf("reclaimer: exiting on shutdown signal")
			return
		case <-sleepChan:
		}

		cutoff := time.Now().Add(-retention).Unix()
		deleted, err := store.DeleteOlderThan(cutoff)
		if err != nil {
			log.Printf("reclaimer: cleanup failed: %v", err)
			sleep = errorSleep
			continue
		}
		if deleted > 0 {
			log.Printf("reclaimer: deleted %d history points older than %d", deleted, cutoff)
		}
		sleep = runInterval
	}
}
