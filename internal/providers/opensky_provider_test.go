package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"skywatch/indexer/internal/common"
	"skywatch/indexer/internal/constants"
	"skywatch/indexer/internal/models"
)

// stateVector builds a 17-element OpenSky state array for tests
func stateVector(icao24, callsign, country string, lon, lat, baroAlt, velocity, track float64) []interface{} {
	return []interface{}{
		icao24, callsign, country,
		float64(1700000100), // time_position
		float64(1700000110), // last_contact
		lon, lat, baroAlt,
		false, // on_ground
		velocity, track,
		2.5,        // vertical_rate
		nil,        // sensors
		baroAlt + 50, // geo_altitude
		"1000",     // squawk
		false,      // spi
		float64(0), // position_source
	}
}

func testProvider(url string) *OpenSkyProvider {
	p := NewOpenSkyProvider(url, "", "", nil)
	// No pacing in tests
	p.listLimiter = rate.NewLimiter(rate.Inf, 1)
	p.detailLimiter = rate.NewLimiter(rate.Inf, 1)
	return p
}

func TestFetchFlightList_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/states/all" {
			t.Errorf("Expected path /states/all, got %s", r.URL.Path)
		}
		resp := map[string]interface{}{
			"time": 1700000000,
			"states": [][]interface{}{
				stateVector("a1b2c3", "UAL123 ", "United States", -123.1, 49.2, 9144, 240, 180),
				stateVector("d4e5f6", "ACA456", "Canada", -122.8, 49.1, 10668, 250, 90),
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	result, err := testProvider(server.URL).FetchFlightList(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(result.Refs) != 2 {
		t.Fatalf("Expected 2 refs, got %d", len(result.Refs))
	}
	if result.Warnings != 0 {
		t.Errorf("Expected 0 warnings, got %d", result.Warnings)
	}
	if result.Refs[0].ID != "a1b2c3" {
		t.Errorf("Expected id a1b2c3, got %s", result.Refs[0].ID)
	}
	if got := result.Refs[0].ObservedAt.Unix(); got != 1700000000 {
		t.Errorf("Expected observed_at 1700000000, got %d", got)
	}
}

func TestFetchFlightList_DropsUnparsableEntries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"time": 1700000000,
			"states": [][]interface{}{
				stateVector("a1b2c3", "UAL123", "United States", -123.1, 49.2, 9144, 240, 180),
				{"too", "short"},
				stateVector("", "GHOST", "Nowhere", 0, 0, 0, 0, 0),
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	result, err := testProvider(server.URL).FetchFlightList(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(result.Refs) != 1 {
		t.Fatalf("Expected 1 ref, got %d", len(result.Refs))
	}
	if result.Warnings != 2 {
		t.Errorf("Expected 2 warnings, got %d", result.Warnings)
	}
}

func TestFetchFlightList_MalformedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	_, err := testProvider(server.URL).FetchFlightList(context.Background())
	if err == nil {
		t.Fatal("Expected error for malformed payload")
	}
	if code := models.ErrorCode(err); code != constants.ErrCodeUpstreamMalformed {
		t.Errorf("Expected UPSTREAM_MALFORMED, got %s", code)
	}
	if models.IsRetriable(err) {
		t.Error("Malformed payload should not be retriable")
	}
}

func TestFetchFlightList_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := testProvider(server.URL).FetchFlightList(context.Background())
	if err == nil {
		t.Fatal("Expected error for 502 response")
	}
	if code := models.ErrorCode(err); code != constants.ErrCodeUpstreamUnavailable {
		t.Errorf("Expected UPSTREAM_UNAVAILABLE, got %s", code)
	}
	if !models.IsRetriable(err) {
		t.Error("Upstream unavailability should be retriable")
	}
}

func TestFetchFlightList_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := testProvider(server.URL).FetchFlightList(context.Background())
	if err == nil {
		t.Fatal("Expected error for 429 response")
	}
	if code := models.ErrorCode(err); code != constants.ErrCodeUpstreamRateLimited {
		t.Errorf("Expected UPSTREAM_RATE_LIMITED, got %s", code)
	}
	if !models.IsRetriable(err) {
		t.Error("Rate limiting should be retriable")
	}
}

func TestFetchFlightDetail_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("icao24"); got != "a1b2c3" {
			t.Errorf("Expected icao24=a1b2c3, got %s", got)
		}
		resp := map[string]interface{}{
			"time": 1700000000,
			"states": [][]interface{}{
				stateVector("a1b2c3", "UAL123 ", "United States", -123.1, 49.2, 9144, 240, 180),
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	ref := models.FlightRef{ID: "a1b2c3", ObservedAt: time.Now()}
	state, err := testProvider(server.URL).FetchFlightDetail(context.Background(), ref)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if state.ICAO24 != "a1b2c3" {
		t.Errorf("Expected icao24 a1b2c3, got %s", state.ICAO24)
	}
	if state.Callsign != "UAL123" {
		t.Errorf("Expected trimmed callsign UAL123, got %q", state.Callsign)
	}
	if state.Velocity == nil || *state.Velocity != 240 {
		t.Errorf("Expected velocity 240, got %v", state.Velocity)
	}
	if state.TimePosition == nil || *state.TimePosition != 1700000100 {
		t.Errorf("Expected time_position 1700000100, got %v", state.TimePosition)
	}
}

func TestFetchFlightDetail_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"time":   1700000000,
			"states": nil,
		})
	}))
	defer server.Close()

	ref := models.FlightRef{ID: "a1b2c3"}
	_, err := testProvider(server.URL).FetchFlightDetail(context.Background(), ref)
	if err == nil {
		t.Fatal("Expected error for missing state")
	}
	if code := models.ErrorCode(err); code != constants.ErrCodeNotFound {
		t.Errorf("Expected NOT_FOUND, got %s", code)
	}
	if !models.IsBenign(err) {
		t.Error("NOT_FOUND should be benign")
	}
}

func TestFetchFlightDetail_UsesCache(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		resp := map[string]interface{}{
			"time": 1700000000,
			"states": [][]interface{}{
				stateVector("a1b2c3", "UAL123", "United States", -123.1, 49.2, 9144, 240, 180),
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := testProvider(server.URL)
	p.cache = common.NewCacheService(30, 60)

	ref := models.FlightRef{ID: "a1b2c3"}
	ctx := context.Background()

	if _, err := p.FetchFlightDetail(ctx, ref); err != nil {
		t.Fatalf("First fetch failed: %v", err)
	}
	state, err := p.FetchFlightDetail(ctx, ref)
	if err != nil {
		t.Fatalf("Second fetch failed: %v", err)
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("Expected 1 upstream call, got %d", got)
	}
	if state.ICAO24 != "a1b2c3" {
		t.Errorf("Expected cached state for a1b2c3, got %s", state.ICAO24)
	}
}
