package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"skywatch/indexer/internal/constants"
	"skywatch/indexer/internal/metrics"
	"skywatch/indexer/internal/models"
)

// flightMapping is the index mapping applied on first use. location is a
// geo_point built from the record position.
var flightMapping = map[string]interface{}{
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"flight_id":      map[string]string{"type": "keyword"},
			"callsign":       map[string]string{"type": "keyword"},
			"origin":         map[string]string{"type": "keyword"},
			"destination":    map[string]string{"type": "keyword"},
			"status":         map[string]string{"type": "keyword"},
			"altitude_m":     map[string]string{"type": "float"},
			"heading_deg":    map[string]string{"type": "float"},
			"speed_mps":      map[string]string{"type": "float"},
			"last_updated":   map[string]string{"type": "date"},
			"source_version": map[string]string{"type": "long"},
			"location":       map[string]string{"type": "geo_point"},
		},
	},
}

// ElasticWriter implements Writer against an Elasticsearch-compatible
// document store over HTTP
type ElasticWriter struct {
	Host     string
	Index    string
	Username string
	Password string
	Client   *http.Client

	// Metrics is optional; one-shot runs leave it nil
	Metrics *metrics.MetricsRegistry

	ensureMu sync.Mutex
	ensured  bool
}

var _ Writer = (*ElasticWriter)(nil)

// NewElasticWriter creates a writer for the given host and index name
func NewElasticWriter(host, index, username, password string) *ElasticWriter {
	return &ElasticWriter{
		Host:     strings.TrimRight(host, "/"),
		Index:    index,
		Username: username,
		Password: password,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type geoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// flightDoc is the indexed document shape
type flightDoc struct {
	FlightID      string    `json:"flight_id"`
	Callsign      string    `json:"callsign"`
	Origin        string    `json:"origin"`
	Destination   string    `json:"destination,omitempty"`
	Status        string    `json:"status"`
	AltitudeM     float64   `json:"altitude_m"`
	HeadingDeg    float64   `json:"heading_deg"`
	SpeedMps      float64   `json:"speed_mps"`
	Location      *geoPoint `json:"location,omitempty"`
	LastUpdated   time.Time `json:"last_updated"`
	SourceVersion int64     `json:"source_version"`
}

// EnsureIndex creates the index with its mapping if it does not exist.
// Success latches for the life of the process; a failed bootstrap (store
// still coming up) is retried on the next call, so upserts recover once
// the store is reachable. A pre-existing index is fine.
func (w *ElasticWriter) EnsureIndex(ctx context.Context) error {
	w.ensureMu.Lock()
	defer w.ensureMu.Unlock()

	if w.ensured {
		return nil
	}
	if err := w.createIndexIfMissing(ctx); err != nil {
		return err
	}
	w.ensured = true
	return nil
}

func (w *ElasticWriter) createIndexIfMissing(ctx context.Context) error {
	url := fmt.Sprintf("%s/%s", w.Host, w.Index)

	resp, err := w.do(ctx, http.MethodHead, url, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode != http.StatusNotFound:
		// An unhealthy store must not be mistaken for an existing index
		return &models.PipelineError{
			Code:    constants.ErrCodeStoreUnavailable,
			Message: fmt.Sprintf("index check failed: HTTP %d", resp.StatusCode),
		}
	}

	log.Printf("[ElasticWriter] Index %q not found, creating with mapping", w.Index)

	body, _ := json.Marshal(flightMapping)
	resp, err = w.do(ctx, http.MethodPut, url, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return &models.PipelineError{
			Code:    constants.ErrCodeStoreUnavailable,
			Message: fmt.Sprintf("creating index failed: HTTP %d", resp.StatusCode),
			Details: string(raw),
		}
	}

	log.Printf("[ElasticWriter] Created index %q", w.Index)
	return nil
}

// Upsert writes the record using external versioning so the store performs
// replace-if-newer as one atomic operation. A 409 means the store already
// holds a newer version and is surfaced as success.
func (w *ElasticWriter) Upsert(ctx context.Context, record *models.FlightRecord) error {
	if err := w.EnsureIndex(ctx); err != nil {
		return err
	}

	doc := flightDoc{
		FlightID:      record.FlightID,
		Callsign:      record.Callsign,
		Origin:        record.Origin,
		Destination:   record.Destination,
		Status:        string(record.Status),
		AltitudeM:     record.Position.Altitude,
		HeadingDeg:    record.Position.Heading,
		SpeedMps:      record.Position.Speed,
		LastUpdated:   record.LastUpdated.UTC(),
		SourceVersion: record.SourceVersion,
	}
	if record.Position.Latitude != 0 || record.Position.Longitude != 0 {
		doc.Location = &geoPoint{Lat: record.Position.Latitude, Lon: record.Position.Longitude}
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return models.NewPipelineError(constants.ErrCodeValidationFailed, err)
	}

	url := fmt.Sprintf("%s/%s/_doc/%s?version_type=external&version=%d",
		w.Host, w.Index, record.FlightID, externalVersion(record))

	resp, err := w.do(ctx, http.MethodPut, url, body)
	if err != nil {
		w.countUpsert("error")
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		// Store holds an equal or newer version. Last-writer-wins says
		// this write is a no-op, not a failure.
		w.countUpsert("conflict")
		if w.Metrics != nil {
			w.Metrics.UpsertConflicts.Inc()
		}
		return nil
	case resp.StatusCode >= 300:
		raw, _ := io.ReadAll(resp.Body)
		w.countUpsert("error")
		return &models.PipelineError{
			Code:    constants.ErrCodeStoreUnavailable,
			Message: fmt.Sprintf("upsert failed: HTTP %d", resp.StatusCode),
			Details: string(raw),
		}
	}

	w.countUpsert("written")
	return nil
}

func (w *ElasticWriter) countUpsert(result string) {
	if w.Metrics != nil {
		w.Metrics.UpsertsTotal.WithLabelValues(result).Inc()
	}
}

// Get reads a stored record back by flight id
func (w *ElasticWriter) Get(ctx context.Context, flightID string) (*models.FlightRecord, error) {
	url := fmt.Sprintf("%s/%s/_doc/%s", w.Host, w.Index, flightID)

	resp, err := w.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, &models.PipelineError{
			Code:    constants.ErrCodeStoreUnavailable,
			Message: fmt.Sprintf("get failed: HTTP %d", resp.StatusCode),
			Details: string(raw),
		}
	}

	var envelope struct {
		Source flightDoc `json:"_source"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, models.NewPipelineError(constants.ErrCodeStoreUnavailable, err)
	}

	src := envelope.Source
	record := &models.FlightRecord{
		FlightID:      src.FlightID,
		Callsign:      src.Callsign,
		Origin:        src.Origin,
		Destination:   src.Destination,
		Status:        models.FlightStatus(src.Status),
		LastUpdated:   src.LastUpdated,
		SourceVersion: src.SourceVersion,
		Position: models.Position{
			Altitude: src.AltitudeM,
			Heading:  src.HeadingDeg,
			Speed:    src.SpeedMps,
		},
	}
	if src.Location != nil {
		record.Position.Latitude = src.Location.Lat
		record.Position.Longitude = src.Location.Lon
	}
	return record, nil
}

func (w *ElasticWriter) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, models.NewPipelineError(constants.ErrCodeStoreUnavailable, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if w.Username != "" {
		req.SetBasicAuth(w.Username, w.Password)
	}

	resp, err := w.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, models.NewPipelineError(constants.ErrCodeTimeout, err)
		}
		return nil, models.NewPipelineError(constants.ErrCodeStoreUnavailable, err)
	}
	return resp, nil
}

// externalVersion derives the monotonic version the store compares on.
// Seconds are doubled so a record with a real upstream timestamp always
// beats one whose timestamp was inferred locally in the same second.
func externalVersion(record *models.FlightRecord) int64 {
	v := record.LastUpdated.Unix() * 2
	if !record.TimestampInferred {
		v++
	}
	return v
}
