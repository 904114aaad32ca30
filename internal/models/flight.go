package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// FlightRef is a lightweight pointer to a trackable flight, produced by the
// list fetch. It is consumed once per cycle and never persisted.
type FlightRef struct {
	ID         string    `json:"id"`
	ObservedAt time.Time `json:"observed_at"`
}

// icao24Pattern matches a lowercase 6-digit hex transponder address.
var icao24Pattern = regexp.MustCompile(`^[0-9a-f]{6}$`)

// Validate checks that the ref carries a usable flight identifier.
// Identifiers come from an external source and are treated as untrusted.
func (r FlightRef) Validate() error {
	id := strings.TrimSpace(r.ID)
	if id == "" {
		return fmt.Errorf("flight ref has empty id")
	}
	if !icao24Pattern.MatchString(id) {
		return fmt.Errorf("flight ref id %q is not a valid icao24 address", r.ID)
	}
	return nil
}

// FlightStatus describes where a flight is in its lifecycle
type FlightStatus string

const (
	StatusScheduled FlightStatus = "scheduled"
	StatusAirborne  FlightStatus = "airborne"
	StatusLanded    FlightStatus = "landed"
	StatusUnknown   FlightStatus = "unknown"
)

// Position holds the flight's last known kinematic state.
// Altitude is meters, heading degrees true, speed meters per second.
type Position struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Altitude  float64 `json:"altitude"`
	Heading   float64 `json:"heading"`
	Speed     float64 `json:"speed"`
}

// FlightRecord is the canonical enriched flight entity written to the index.
// FlightID is the idempotency key; LastUpdated drives last-writer-wins
// conflict resolution at the store boundary.
type FlightRecord struct {
	FlightID      string       `json:"flight_id" db:"flight_id"`
	Callsign      string       `json:"callsign" db:"callsign"`
	Origin        string       `json:"origin" db:"origin"`
	Destination   string       `json:"destination" db:"destination"`
	Position      Position     `json:"position"`
	Status        FlightStatus `json:"status" db:"status"`
	LastUpdated   time.Time    `json:"last_updated" db:"last_updated"`
	SourceVersion int64        `json:"source_version" db:"source_version"`

	// TimestampInferred is set when the upstream omitted its own timestamp
	// and LastUpdated was filled from local processing time. Writers use it
	// to resolve same-second conflicts conservatively.
	TimestampInferred bool `json:"timestamp_inferred,omitempty" db:"timestamp_inferred"`
}

// ItemFailure records the terminal failure of one flight within a cycle
type ItemFailure struct {
	FlightID  string `json:"flight_id"`
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
}

// CycleResult summarizes one complete list-then-process-all run.
// Per-item failures are data here, never an error to the caller.
type CycleResult struct {
	CycleID   string        `json:"cycle_id"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Skipped   int           `json:"skipped"`
	Failed    []ItemFailure `json:"failed"`
	Duration  time.Duration `json:"duration"`
	StartedAt time.Time     `json:"started_at"`
}

// ListResult is the outcome of one list fetch. Warnings counts entries that
// were dropped because they individually failed to parse.
type ListResult struct {
	Refs      []FlightRef `json:"refs"`
	Warnings  int         `json:"warnings"`
	FetchedAt time.Time   `json:"fetched_at"`
}
