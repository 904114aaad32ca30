package index

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"skywatch/indexer/internal/constants"
	"skywatch/indexer/internal/metrics"
	"skywatch/indexer/internal/models"
)

// PostgresWriter implements Writer on a Postgres table, for deployments
// that index into the relational store instead of a search cluster
type PostgresWriter struct {
	db *sqlx.DB

	// Metrics is optional; one-shot runs leave it nil
	Metrics *metrics.MetricsRegistry
}

var _ Writer = (*PostgresWriter)(nil)

// NewPostgresWriter creates a writer backed by the given sqlx handle
func NewPostgresWriter(db *sqlx.DB) *PostgresWriter {
	return &PostgresWriter{db: db}
}

const createFlightIndexTable = `
CREATE TABLE IF NOT EXISTS flight_index (
	flight_id          varchar(16) PRIMARY KEY,
	callsign           varchar(16) NOT NULL DEFAULT '',
	origin             varchar(64) NOT NULL DEFAULT '',
	destination        varchar(64) NOT NULL DEFAULT '',
	latitude           double precision NOT NULL DEFAULT 0,
	longitude          double precision NOT NULL DEFAULT 0,
	altitude_m         double precision NOT NULL DEFAULT 0,
	heading_deg        double precision NOT NULL DEFAULT 0,
	speed_mps          double precision NOT NULL DEFAULT 0,
	status             varchar(16) NOT NULL DEFAULT 'unknown',
	last_updated       timestamptz NOT NULL,
	source_version     bigint NOT NULL DEFAULT 0,
	timestamp_inferred boolean NOT NULL DEFAULT false
)`

// upsertFlight performs replace-if-newer in one atomic statement. An
// inferred timestamp never displaces a stored record with a real upstream
// timestamp at the same instant.
const upsertFlight = `
INSERT INTO flight_index (
	flight_id, callsign, origin, destination,
	latitude, longitude, altitude_m, heading_deg, speed_mps,
	status, last_updated, source_version, timestamp_inferred
) VALUES (
	:flight_id, :callsign, :origin, :destination,
	:latitude, :longitude, :altitude_m, :heading_deg, :speed_mps,
	:status, :last_updated, :source_version, :timestamp_inferred
)
ON CONFLICT (flight_id) DO UPDATE SET
	callsign           = EXCLUDED.callsign,
	origin             = EXCLUDED.origin,
	destination        = EXCLUDED.destination,
	latitude           = EXCLUDED.latitude,
	longitude          = EXCLUDED.longitude,
	altitude_m         = EXCLUDED.altitude_m,
	heading_deg        = EXCLUDED.heading_deg,
	speed_mps          = EXCLUDED.speed_mps,
	status             = EXCLUDED.status,
	last_updated       = EXCLUDED.last_updated,
	source_version     = EXCLUDED.source_version,
	timestamp_inferred = EXCLUDED.timestamp_inferred
WHERE EXCLUDED.last_updated > flight_index.last_updated
   OR (EXCLUDED.last_updated = flight_index.last_updated
       AND flight_index.timestamp_inferred AND NOT EXCLUDED.timestamp_inferred)`

// EnsureIndex creates the flight_index table if it does not exist
func (w *PostgresWriter) EnsureIndex(ctx context.Context) error {
	if _, err := w.db.ExecContext(ctx, createFlightIndexTable); err != nil {
		return models.NewPipelineError(constants.ErrCodeStoreUnavailable, err)
	}
	return nil
}

// Upsert writes the record, relying on the conditional ON CONFLICT clause
// for last-writer-wins. A rejected write is a benign no-op.
func (w *PostgresWriter) Upsert(ctx context.Context, record *models.FlightRecord) error {
	row := flightRow{
		FlightID:          record.FlightID,
		Callsign:          record.Callsign,
		Origin:            record.Origin,
		Destination:       record.Destination,
		Latitude:          record.Position.Latitude,
		Longitude:         record.Position.Longitude,
		AltitudeM:         record.Position.Altitude,
		HeadingDeg:        record.Position.Heading,
		SpeedMps:          record.Position.Speed,
		Status:            string(record.Status),
		LastUpdated:       record.LastUpdated,
		SourceVersion:     record.SourceVersion,
		TimestampInferred: record.TimestampInferred,
	}

	res, err := w.db.NamedExecContext(ctx, upsertFlight, row)
	if err != nil {
		w.countUpsert("error")
		return models.NewPipelineError(constants.ErrCodeStoreUnavailable, err)
	}

	// Zero affected rows means the conditional update rejected a stale write
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		w.countUpsert("conflict")
		if w.Metrics != nil {
			w.Metrics.UpsertConflicts.Inc()
		}
		return nil
	}

	w.countUpsert("written")
	return nil
}

func (w *PostgresWriter) countUpsert(result string) {
	if w.Metrics != nil {
		w.Metrics.UpsertsTotal.WithLabelValues(result).Inc()
	}
}

// Get reads a stored record back by flight id
func (w *PostgresWriter) Get(ctx context.Context, flightID string) (*models.FlightRecord, error) {
	var row flightRow
	err := w.db.GetContext(ctx, &row,
		`SELECT flight_id, callsign, origin, destination,
		        latitude, longitude, altitude_m, heading_deg, speed_mps,
		        status, last_updated, source_version, timestamp_inferred
		   FROM flight_index WHERE flight_id = $1`, flightID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewPipelineError(constants.ErrCodeStoreUnavailable, err)
	}

	return &models.FlightRecord{
		FlightID:    row.FlightID,
		Callsign:    row.Callsign,
		Origin:      row.Origin,
		Destination: row.Destination,
		Position: models.Position{
			Latitude:  row.Latitude,
			Longitude: row.Longitude,
			Altitude:  row.AltitudeM,
			Heading:   row.HeadingDeg,
			Speed:     row.SpeedMps,
		},
		Status:            models.FlightStatus(row.Status),
		LastUpdated:       row.LastUpdated,
		SourceVersion:     row.SourceVersion,
		TimestampInferred: row.TimestampInferred,
	}, nil
}

type flightRow struct {
	FlightID          string    `db:"flight_id"`
	Callsign          string    `db:"callsign"`
	Origin            string    `db:"origin"`
	Destination       string    `db:"destination"`
	Latitude          float64   `db:"latitude"`
	Longitude         float64   `db:"longitude"`
	AltitudeM         float64   `db:"altitude_m"`
	HeadingDeg        float64   `db:"heading_deg"`
	SpeedMps          float64   `db:"speed_mps"`
	Status            string    `db:"status"`
	LastUpdated       time.Time `db:"last_updated"`
	SourceVersion     int64     `db:"source_version"`
	TimestampInferred bool      `db:"timestamp_inferred"`
}
