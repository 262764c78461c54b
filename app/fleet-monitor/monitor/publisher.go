package monitor

import (
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/source-dews/fleettrack/business/data/history"
)

// deltaSubject is the NATS subject position deltas are published on.
const deltaSubject = "fleet.position-deltas"

// DeltaPublisher sends each poll cycle's newly written position deltas over
// NATS for downstream consumers. A publisher without a connection is a no-op,
// so the poller never has to care whether publishing is configured.
type DeltaPublisher struct {
	log            *log.Logger
	natsConnection *nats.Conn
}

// NewDeltaPublisher creates a DeltaPublisher. natsConnection may be nil to
// disable publishing.
func NewDeltaPublisher(log *log.Logger, natsConnection *nats.Conn) *DeltaPublisher {
	return &DeltaPublisher{
		log:            log,
		natsConnection: natsConnection,
	}
}

// deltaMessage is the wire format for one cycle's deltas.
type deltaMessage struct {
	Timestamp int64           `json:"timestamp"`
	Deltas    []positionDelta `json:"deltas"`
}

type positionDelta struct {
	Door      string  `json:"door"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Timestamp int64   `json:"timestamp"`
}

// Publish sends the cycle's deltas. Publish failures are logged and dropped;
// the history store already holds the points.
func (p *DeltaPublisher) Publish(points []history.Point) {
	if p.natsConnection == nil || len(points) == 0 {
		return
	}

	message := deltaMessage{
		Timestamp: time.Now().Unix(),
		Deltas:    make([]positionDelta, 0, len(points)),
	}
	for _, point := range points {
		message.Deltas = append(message.Deltas, positionDelta{
			Door:      point.DoorNumber,
			Lat:       point.Latitude,
			Lng:       point.Longitude,
			Timestamp: point.Timestamp,
		})
	}

	jsonData, err := json.Marshal(message)
	if err != nil {
		p.log.Printf("publisher: failed to marshal %d deltas: %v", len(points), err)
		return
	}
	if err = p.natsConnection.Publish(deltaSubject, jsonData); err != nil {
		p.log.Printf("publisher: failed to publish %d deltas: %v", len(points), err)
	}
}
