// Package history provides the durable short-window time series of vehicle
// positions. Rows are written only when a vehicle's coordinate changes and
// are reclaimed after a retention window, so the file stays a small rolling
// buffer rather than a system of record.
package history

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"

	"github.com/source-dews/fleettrack/foundation/database"
)

// Point is one durable position sample for a vehicle.
type Point struct {
	DoorNumber string  `db:"door_number" json:"-"`
	Latitude   float64 `db:"latitude" json:"lat"`
	Longitude  float64 `db:"longitude" json:"lng"`
	Timestamp  int64   `db:"timestamp" json:"timestamp"`
}

// vacuumThreshold is the number of deleted rows past which a reclaim run
// compacts the file to return the space to the filesystem.
const vacuumThreshold = 5000

// Store reads and writes the history table. Every operation opens and closes
// its own connection so the store survives the backing file being removed
// between calls on ephemeral filesystems; the schema is recreated on the next
// open.
type Store struct {
	log      *log.Logger
	filePath string
}

// NewStore creates a Store over the sqlite file at filePath.
func NewStore(log *log.Logger, filePath string) *Store {
	return &Store{
		log:      log,
		filePath: filePath,
	}
}

// open opens the history file and ensures the schema exists.
func (s *Store) open() (*sqlx.DB, error) {
	db, err := database.OpenHistoryFile(s.filePath)
	if err != nil {
		return nil, err
	}
	schemaStatements := []string{
		"create table if not exists history (" +
			"id integer primary key autoincrement, " +
			"door_number text, " +
			"latitude real, " +
			"longitude real, " +
			"timestamp integer)",
		"create index if not exists idx_door_time on history (door_number, timestamp)",
	}
	for _, statement := range schemaStatements {
		if _, err = db.Exec(statement); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensuring history schema: %w", err)
		}
	}
	return db, nil
}

// InsertBatch writes a batch of points in one transaction. The store enforces
// no uniqueness; deduplication against the previous position is the caller's
// responsibility. A failed write is logged and the batch dropped, it never
// propagates to the poll loop.
func (s *Store) InsertBatch(points []Point) error {
	if len(points) == 0 {
		return nil
	}
	db, err := s.open()
	if err != nil {
		s.log.Printf("history: dropping batch of %d points, open failed: %v", len(points), err)
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	tx, err := db.Beginx()
	if err != nil {
		s.log.Printf("history: dropping batch of %d points, begin failed: %v", len(points), err)
		return err
	}
	statementString := "insert into history " +
		"(door_number, latitude, longitude, timestamp) " +
		"values " +
		"(:door_number, :latitude, :longitude, :timestamp)"
	for _, point := range points {
		if _, err = tx.NamedExec(statementString, point); err != nil {
			_ = tx.Rollback()
			s.log.Printf("history: dropping batch of %d points, insert failed: %v", len(points), err)
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		s.log.Printf("history: dropping batch of %d points, commit failed: %v", len(points), err)
		return err
	}
	return nil
}

// QueryRange returns the points for one door number at or after the since
// timestamp, ascending by timestamp. Any failure yields an empty result: the
// history is advisory and callers treat no rows and unreadable rows the same
// way.
func (s *Store) QueryRange(doorNumber string, since int64) []Point {
	db, err := s.open()
	if err != nil {
		s.log.Printf("history: range query open failed: %v", err)
		return nil
	}
	defer func() {
		_ = db.Close()
	}()

	var points []Point
	err = db.Select(&points,
		"select door_number, latitude, longitude, timestamp from history "+
			"where door_number = ? and timestamp >= ? order by timestamp asc",
		doorNumber, since)
	if err != nil {
		s.log.Printf("history: range query for %s failed: %v", doorNumber, err)
		return nil
	}
	return points
}

// DeleteOlderThan removes every point with a timestamp before cutoff and
// returns the number of rows removed. When the delete volume crosses the
// compaction threshold the file is vacuumed immediately so reclaimed pages
// are returned to the filesystem.
func (s *Store) DeleteOlderThan(cutoff int64) (int64, error) {
	db, err := s.open()
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = db.Close()
	}()

	result, err := db.Exec("delete from history where timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting history before %d: %w", cutoff, err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading deleted history row count: %w", err)
	}
	if deleted > vacuumThreshold {
		if _, err = db.Exec("vacuum"); err != nil {
			return deleted, fmt.Errorf("compacting history after deleting %d rows: %w", deleted, err)
		}
	}
	return deleted, nil
}
