package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"skywatch/indexer/internal/common"
	"skywatch/indexer/internal/constants"
	"skywatch/indexer/internal/models"
)

const (
	// OpenSky rate limits: authenticated accounts get 5s between
	// /states/all calls; per-aircraft queries are cheaper.
	defaultListInterval   = 5 * time.Second
	defaultDetailRate     = rate.Limit(10)
	defaultDetailBurst    = 20
	defaultDetailCacheTTL = 10 * time.Second
)

// OpenSkyProvider implements FlightListProvider and FlightDetailProvider
// against the OpenSky Network states API
type OpenSkyProvider struct {
	BaseURL  string
	Username string
	Password string
	// Token, when set, takes precedence over basic auth
	Token  string
	Client *http.Client

	listLimiter   *rate.Limiter
	detailLimiter *rate.Limiter
	cache         common.CacheInterface
}

var _ FlightListProvider = (*OpenSkyProvider)(nil)
var _ FlightDetailProvider = (*OpenSkyProvider)(nil)

// NewOpenSkyProvider creates a provider for the given base URL. cache may be
// nil to disable detail caching.
func NewOpenSkyProvider(baseURL, username, password string, cache common.CacheInterface) *OpenSkyProvider {
	return &OpenSkyProvider{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Username: username,
		Password: password,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
		listLimiter:   rate.NewLimiter(rate.Every(defaultListInterval), 1),
		detailLimiter: rate.NewLimiter(defaultDetailRate, defaultDetailBurst),
		cache:         cache,
	}
}

// openSkyResponse mirrors the JSON shape returned by /states/all.
// Each state is a positional array, not an object.
type openSkyResponse struct {
	Time   int64           `json:"time"`
	States [][]interface{} `json:"states"`
}

// FetchFlightList retrieves the current roster of trackable flights
func (p *OpenSkyProvider) FetchFlightList(ctx context.Context) (*models.ListResult, error) {
	if err := p.listLimiter.Wait(ctx); err != nil {
		return nil, models.NewPipelineError(constants.ErrCodeTimeout, err)
	}

	raw, err := p.doGET(ctx, "/states/all")
	if err != nil {
		return nil, err
	}

	observedAt := time.Unix(raw.Time, 0).UTC()
	if raw.Time == 0 {
		observedAt = time.Now().UTC()
	}

	result := &models.ListResult{
		Refs:      make([]models.FlightRef, 0, len(raw.States)),
		FetchedAt: time.Now().UTC(),
	}

	for _, s := range raw.States {
		id, ok := parseICAO24(s)
		if !ok {
			result.Warnings++
			continue
		}
		result.Refs = append(result.Refs, models.FlightRef{
			ID:         id,
			ObservedAt: observedAt,
		})
	}

	return result, nil
}

// FetchFlightDetail retrieves the raw state for one flight by icao24
func (p *OpenSkyProvider) FetchFlightDetail(ctx context.Context, ref models.FlightRef) (*FlightState, error) {
	cacheKey := "flight:detail:" + ref.ID

	if p.cache != nil {
		if cached, found := p.cache.Get(cacheKey); found {
			if state := decodeCachedState(cached); state != nil {
				return state, nil
			}
		}
	}

	if err := p.detailLimiter.Wait(ctx); err != nil {
		return nil, models.NewPipelineError(constants.ErrCodeTimeout, err)
	}

	raw, err := p.doGET(ctx, "/states/all?icao24="+ref.ID)
	if err != nil {
		return nil, err
	}

	if len(raw.States) == 0 {
		return nil, models.NewPipelineError(constants.ErrCodeNotFound,
			fmt.Errorf("no state vector for %s", ref.ID))
	}

	state, ok := parseState(raw.States[0], raw.Time)
	if !ok {
		return nil, models.NewPipelineError(constants.ErrCodeValidationFailed,
			fmt.Errorf("state vector for %s is malformed", ref.ID))
	}

	if p.cache != nil {
		if data, err := json.Marshal(state); err == nil {
			p.cache.Set(cacheKey, string(data), defaultDetailCacheTTL)
		}
	}

	return state, nil
}

// doGET performs a GET request against the upstream and decodes the
// states payload, classifying transport and payload failures
func (p *OpenSkyProvider) doGET(ctx context.Context, endpoint string) (*openSkyResponse, error) {
	url := p.BaseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, models.NewPipelineError(constants.ErrCodeUpstreamUnavailable, err)
	}

	if p.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.Token)
	} else if p.Username != "" && p.Password != "" {
		req.SetBasicAuth(p.Username, p.Password)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, models.NewPipelineError(constants.ErrCodeTimeout, err)
		}
		return nil, models.NewPipelineError(constants.ErrCodeUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if err := p.handleHTTPError(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewPipelineError(constants.ErrCodeUpstreamUnavailable, err)
	}

	var raw openSkyResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, models.NewPipelineError(constants.ErrCodeUpstreamMalformed, err)
	}

	return &raw, nil
}

// handleHTTPError converts HTTP status codes to pipeline errors
func (p *OpenSkyProvider) handleHTTPError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &models.PipelineError{
			Code:    constants.ErrCodeUpstreamRateLimited,
			Message: constants.GetErrorMessage(constants.ErrCodeUpstreamRateLimited),
			Details: string(body),
		}
	case resp.StatusCode == http.StatusNotFound:
		return &models.PipelineError{
			Code:    constants.ErrCodeNotFound,
			Message: constants.GetErrorMessage(constants.ErrCodeNotFound),
			Details: string(body),
		}
	default:
		return &models.PipelineError{
			Code:    constants.ErrCodeUpstreamUnavailable,
			Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)),
			Details: string(body),
		}
	}
}

// parseICAO24 extracts the icao24 identifier from a positional state vector
func parseICAO24(s []interface{}) (string, bool) {
	if len(s) < 17 {
		return "", false
	}
	id, ok := s[0].(string)
	if !ok {
		return "", false
	}
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return "", false
	}
	return id, true
}

// parseState maps a positional state vector into a FlightState.
// Index layout follows the OpenSky states API documentation.
func parseState(s []interface{}, payloadTime int64) (*FlightState, bool) {
	id, ok := parseICAO24(s)
	if !ok {
		return nil, false
	}

	state := &FlightState{
		ICAO24:        id,
		Callsign:      strings.TrimSpace(stringVal(s[1])),
		OriginCountry: stringVal(s[2]),
		OnGround:      boolVal(s[8]),
	}

	if v, ok := s[3].(float64); ok {
		tp := int64(v)
		state.TimePosition = &tp
	}
	if v, ok := s[4].(float64); ok {
		state.LastContact = int64(v)
	} else if payloadTime > 0 {
		state.LastContact = payloadTime
	}
	state.Longitude = floatPtr(s[5])
	state.Latitude = floatPtr(s[6])
	state.BaroAltitude = floatPtr(s[7])
	state.Velocity = floatPtr(s[9])
	state.TrueTrack = floatPtr(s[10])
	state.VerticalRate = floatPtr(s[11])
	state.GeoAltitude = floatPtr(s[13])

	return state, true
}

// decodeCachedState handles both the in-memory cache (string as stored) and
// the Redis cache (string after its own JSON round trip)
func decodeCachedState(cached interface{}) *FlightState {
	data, ok := cached.(string)
	if !ok {
		return nil
	}
	var state FlightState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil
	}
	if state.ICAO24 == "" {
		return nil
	}
	return &state
}

func stringVal(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func boolVal(v interface{}) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}

func floatPtr(v interface{}) *float64 {
	if f, ok := v.(float64); ok {
		return &f
	}
	return nil
}
