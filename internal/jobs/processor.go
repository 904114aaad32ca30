package jobs

import (
	"context"
	"fmt"
	"time"

	"skywatch/indexer/internal/constants"
	"skywatch/indexer/internal/index"
	"skywatch/indexer/internal/models"
	"skywatch/indexer/internal/providers"
)

// FlightProcessor handles one flight end to end: fetch detail, normalize
// into the canonical record shape, and upsert into the index. It is the
// unit of fan-out and the unit of retry.
type FlightProcessor struct {
	detail providers.FlightDetailProvider
	writer index.Writer

	// now is swappable for tests
	now func() time.Time
}

// NewFlightProcessor creates a processor over the given detail provider and
// index writer
func NewFlightProcessor(detail providers.FlightDetailProvider, writer index.Writer) *FlightProcessor {
	return &FlightProcessor{
		detail: detail,
		writer: writer,
		now:    time.Now,
	}
}

// Process fetches, normalizes, and upserts one flight. NOT_FOUND and
// CONFLICT_REJECTED outcomes surface as benign errors the orchestrator
// counts as skips, never as failures.
func (p *FlightProcessor) Process(ctx context.Context, ref models.FlightRef) error {
	// Identifiers arrive from an external source; revalidate before use.
	if err := ref.Validate(); err != nil {
		return models.NewPipelineError(constants.ErrCodeValidationFailed, err)
	}

	state, err := p.detail.FetchFlightDetail(ctx, ref)
	if err != nil {
		return err
	}

	record, err := p.Normalize(state, ref)
	if err != nil {
		return err
	}

	return p.writer.Upsert(ctx, record)
}

// Normalize maps the raw upstream state into the canonical FlightRecord,
// converting heterogeneous fields and filling last_updated from the
// upstream's own timestamp when it has one.
func (p *FlightProcessor) Normalize(state *providers.FlightState, ref models.FlightRef) (*models.FlightRecord, error) {
	if state.ICAO24 == "" {
		return nil, models.NewPipelineError(constants.ErrCodeValidationFailed,
			fmt.Errorf("state for %s has no icao24", ref.ID))
	}

	record := &models.FlightRecord{
		FlightID: state.ICAO24,
		Callsign: state.Callsign,
		Origin:   state.OriginCountry,
	}

	if state.Latitude != nil {
		record.Position.Latitude = *state.Latitude
	}
	if state.Longitude != nil {
		record.Position.Longitude = *state.Longitude
	}
	if record.Position.Latitude < -90 || record.Position.Latitude > 90 ||
		record.Position.Longitude < -180 || record.Position.Longitude > 180 {
		return nil, models.NewPipelineError(constants.ErrCodeValidationFailed,
			fmt.Errorf("position %f,%f for %s is out of range",
				record.Position.Latitude, record.Position.Longitude, state.ICAO24))
	}

	// Prefer geometric altitude, fall back to barometric
	if state.GeoAltitude != nil {
		record.Position.Altitude = *state.GeoAltitude
	} else if state.BaroAltitude != nil {
		record.Position.Altitude = *state.BaroAltitude
	}
	if state.TrueTrack != nil {
		record.Position.Heading = *state.TrueTrack
	}
	if state.Velocity != nil {
		record.Position.Speed = *state.Velocity
	}

	record.Status = classifyStatus(state)

	// last_updated comes from the upstream's own clock when present; the
	// local fallback is marked so the writer resolves conflicts
	// conservatively.
	switch {
	case state.TimePosition != nil && *state.TimePosition > 0:
		record.LastUpdated = time.Unix(*state.TimePosition, 0).UTC()
	case state.LastContact > 0:
		record.LastUpdated = time.Unix(state.LastContact, 0).UTC()
	default:
		record.LastUpdated = p.now().UTC()
		record.TimestampInferred = true
	}

	record.SourceVersion = record.LastUpdated.Unix()

	return record, nil
}

// classifyStatus derives the lifecycle status from the raw state
func classifyStatus(state *providers.FlightState) models.FlightStatus {
	if state.OnGround {
		if state.Velocity != nil && *state.Velocity < 1 {
			return models.StatusLanded
		}
		// Taxiing or about to depart
		return models.StatusScheduled
	}
	if state.Latitude != nil && state.Longitude != nil {
		return models.StatusAirborne
	}
	return models.StatusUnknown
}
