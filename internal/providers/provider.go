package providers

import (
	"context"

	"skywatch/indexer/internal/models"
)

// FlightListProvider retrieves the current roster of trackable flights
type FlightListProvider interface {
	// FetchFlightList fetches the full list of flight refs in one call.
	// Entries that individually fail to parse are dropped and counted in
	// ListResult.Warnings; a wholly unparsable payload is an error.
	FetchFlightList(ctx context.Context) (*models.ListResult, error)
}

// FlightDetailProvider retrieves per-flight detail by identifier
type FlightDetailProvider interface {
	// FetchFlightDetail fetches the raw upstream state for one flight.
	// Returns NOT_FOUND when the flight is no longer trackable.
	FetchFlightDetail(ctx context.Context, ref models.FlightRef) (*FlightState, error)
}

// FlightState is the raw per-flight detail as reported upstream, before
// normalization into the canonical record shape. Pointer fields are absent
// when the upstream omitted them.
type FlightState struct {
	ICAO24        string   `json:"icao24"`
	Callsign      string   `json:"callsign"`
	OriginCountry string   `json:"origin_country"`
	TimePosition  *int64   `json:"time_position"`
	LastContact   int64    `json:"last_contact"`
	Longitude     *float64 `json:"longitude"`
	Latitude      *float64 `json:"latitude"`
	BaroAltitude  *float64 `json:"baro_altitude_m"`
	OnGround      bool     `json:"on_ground"`
	Velocity      *float64 `json:"velocity_mps"`
	TrueTrack     *float64 `json:"true_track_deg"`
	VerticalRate  *float64 `json:"vertical_rate_mps"`
	GeoAltitude   *float64 `json:"geo_altitude_m"`
}
