package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"skywatch/indexer/internal/constants"
	"skywatch/indexer/internal/models"
	"skywatch/indexer/internal/providers"
)

// fakeListProvider returns a fixed roster or a fixed error
type fakeListProvider struct {
	refs []models.FlightRef
	err  error
}

func (f *fakeListProvider) FetchFlightList(ctx context.Context) (*models.ListResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.ListResult{Refs: f.refs, FetchedAt: time.Now()}, nil
}

// fakeDetailProvider scripts per-flight behavior. failuresBefore is the
// number of retriable failures to serve before succeeding.
type fakeDetailProvider struct {
	mu             sync.Mutex
	attempts       map[string]int
	failuresBefore map[string]int
	errCode        map[string]string
	delay          time.Duration
	// blockingDelay ignores ctx, for simulating work that overruns its
	// attempt deadline
	blockingDelay time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeDetailProvider() *fakeDetailProvider {
	return &fakeDetailProvider{
		attempts:       make(map[string]int),
		failuresBefore: make(map[string]int),
		errCode:        make(map[string]string),
	}
}

func (f *fakeDetailProvider) FetchFlightDetail(ctx context.Context, ref models.FlightRef) (*providers.FlightState, error) {
	cur := f.inFlight.Add(1)
	for {
		max := f.maxInFlight.Load()
		if cur <= max || f.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}
	defer f.inFlight.Add(-1)

	// Count the attempt when it starts so attempts cancelled by ctx (per-item
	// timeout) are still recorded.
	f.mu.Lock()
	f.attempts[ref.ID]++
	attempt := f.attempts[ref.ID]
	remaining := f.failuresBefore[ref.ID]
	code, hasCode := f.errCode[ref.ID]
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.blockingDelay > 0 {
		time.Sleep(f.blockingDelay)
	}

	if hasCode {
		return nil, models.NewPipelineError(code, fmt.Errorf("scripted %s for %s", code, ref.ID))
	}
	if attempt <= remaining {
		return nil, models.NewPipelineError(constants.ErrCodeUpstreamUnavailable,
			fmt.Errorf("scripted outage for %s", ref.ID))
	}

	lastContact := int64(1700000000)
	lat, lon, vel := 49.2, -123.1, 240.0
	return &providers.FlightState{
		ICAO24:      ref.ID,
		Callsign:    "TST" + ref.ID[:3],
		LastContact: lastContact,
		Latitude:    &lat,
		Longitude:   &lon,
		Velocity:    &vel,
	}, nil
}

// memoryWriter is an in-memory Writer with last-writer-wins semantics
type memoryWriter struct {
	mu      sync.Mutex
	records map[string]*models.FlightRecord
	upserts int
	err     error
}

func newMemoryWriter() *memoryWriter {
	return &memoryWriter{records: make(map[string]*models.FlightRecord)}
}

func (w *memoryWriter) EnsureIndex(ctx context.Context) error { return nil }

func (w *memoryWriter) Upsert(ctx context.Context, record *models.FlightRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return w.err
	}

	w.upserts++
	existing, ok := w.records[record.FlightID]
	if ok && !existing.LastUpdated.Before(record.LastUpdated) {
		// Store already holds an equal or newer copy
		return nil
	}
	clone := *record
	w.records[record.FlightID] = &clone
	return nil
}

func (w *memoryWriter) Get(ctx context.Context, flightID string) (*models.FlightRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rec, ok := w.records[flightID]; ok {
		clone := *rec
		return &clone, nil
	}
	return nil, nil
}

func fastConfig() CycleConfig {
	return CycleConfig{
		MaxConcurrency: 4,
		PerItemTimeout: 2 * time.Second,
		MaxRetries:     2,
		Backoff: BackoffConfig{
			Base:       time.Millisecond,
			Multiplier: 2.0,
			Max:        5 * time.Millisecond,
		},
	}
}

func refsFor(ids ...string) []models.FlightRef {
	refs := make([]models.FlightRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, models.FlightRef{ID: id, ObservedAt: time.Now()})
	}
	return refs
}

func newTestJob(list *fakeListProvider, detail *fakeDetailProvider, writer *memoryWriter, cfg CycleConfig) *FlightSyncJob {
	processor := NewFlightProcessor(detail, writer)
	return NewFlightSyncJob(list, processor, nil, nil, cfg)
}

func TestRunCycle_AllSucceed(t *testing.T) {
	list := &fakeListProvider{refs: refsFor("a1b2c3", "d4e5f6")}
	detail := newFakeDetailProvider()
	writer := newMemoryWriter()

	job := newTestJob(list, detail, writer, fastConfig())
	result, err := job.RunCycle(context.Background(), fastConfig(), constants.TriggerManual)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if result.Total != 2 || result.Succeeded != 2 {
		t.Errorf("Expected 2/2 succeeded, got total=%d succeeded=%d", result.Total, result.Succeeded)
	}
	if len(result.Failed) != 0 {
		t.Errorf("Expected no failures, got %v", result.Failed)
	}
	if rec, _ := writer.Get(context.Background(), "a1b2c3"); rec == nil {
		t.Error("Expected a1b2c3 to be indexed")
	}
}

func TestRunCycle_EmptyList(t *testing.T) {
	job := newTestJob(&fakeListProvider{}, newFakeDetailProvider(), newMemoryWriter(), fastConfig())

	result, err := job.RunCycle(context.Background(), fastConfig(), constants.TriggerManual)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result.Total != 0 || result.Succeeded != 0 || len(result.Failed) != 0 {
		t.Errorf("Expected empty terminal result, got %+v", result)
	}
}

func TestRunCycle_ListFetchFails(t *testing.T) {
	list := &fakeListProvider{
		err: models.NewPipelineError(constants.ErrCodeUpstreamMalformed, fmt.Errorf("bad payload")),
	}
	job := newTestJob(list, newFakeDetailProvider(), newMemoryWriter(), fastConfig())

	result, err := job.RunCycle(context.Background(), fastConfig(), constants.TriggerManual)
	if err == nil {
		t.Fatal("Expected top-level error for list failure")
	}
	if result != nil {
		t.Errorf("Expected no result on list failure, got %+v", result)
	}
}

func TestRunCycle_RetryThenSucceed(t *testing.T) {
	list := &fakeListProvider{refs: refsFor("a1b2c3")}
	detail := newFakeDetailProvider()
	detail.failuresBefore["a1b2c3"] = 2 // fails twice, succeeds on third attempt
	writer := newMemoryWriter()

	job := newTestJob(list, detail, writer, fastConfig())
	result, err := job.RunCycle(context.Background(), fastConfig(), constants.TriggerManual)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if result.Succeeded != 1 || len(result.Failed) != 0 {
		t.Errorf("Expected succeeded=1 failed=0, got succeeded=%d failed=%v", result.Succeeded, result.Failed)
	}
	if detail.attempts["a1b2c3"] != 3 {
		t.Errorf("Expected 3 attempts, got %d", detail.attempts["a1b2c3"])
	}
}

func TestRunCycle_ExhaustedRetriesIsolated(t *testing.T) {
	list := &fakeListProvider{refs: refsFor("a1b2c3", "d4e5f6", "0a1b2c")}
	detail := newFakeDetailProvider()
	detail.failuresBefore["d4e5f6"] = 99 // never recovers
	writer := newMemoryWriter()

	cfg := fastConfig()
	job := newTestJob(list, detail, writer, cfg)
	result, err := job.RunCycle(context.Background(), cfg, constants.TriggerManual)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if result.Succeeded != 2 {
		t.Errorf("Expected succeeded=2, got %d", result.Succeeded)
	}
	if len(result.Failed) != 1 {
		t.Fatalf("Expected exactly 1 failure, got %v", result.Failed)
	}
	failure := result.Failed[0]
	if failure.FlightID != "d4e5f6" {
		t.Errorf("Expected failure for d4e5f6, got %s", failure.FlightID)
	}
	if failure.ErrorKind != constants.ErrCodeUpstreamUnavailable {
		t.Errorf("Expected UPSTREAM_UNAVAILABLE, got %s", failure.ErrorKind)
	}
	// Initial attempt plus MaxRetries re-attempts
	if detail.attempts["d4e5f6"] != cfg.MaxRetries+1 {
		t.Errorf("Expected %d attempts, got %d", cfg.MaxRetries+1, detail.attempts["d4e5f6"])
	}
}

func TestRunCycle_NotFoundIsSkip(t *testing.T) {
	list := &fakeListProvider{refs: refsFor("a1b2c3")}
	detail := newFakeDetailProvider()
	detail.errCode["a1b2c3"] = constants.ErrCodeNotFound
	writer := newMemoryWriter()

	job := newTestJob(list, detail, writer, fastConfig())
	result, err := job.RunCycle(context.Background(), fastConfig(), constants.TriggerManual)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if result.Skipped != 1 {
		t.Errorf("Expected skipped=1, got %d", result.Skipped)
	}
	if len(result.Failed) != 0 {
		t.Errorf("NOT_FOUND must never appear in failed, got %v", result.Failed)
	}
	if detail.attempts["a1b2c3"] != 1 {
		t.Errorf("NOT_FOUND must not be retried, got %d attempts", detail.attempts["a1b2c3"])
	}
}

func TestRunCycle_NonRetriableShortCircuits(t *testing.T) {
	list := &fakeListProvider{refs: refsFor("a1b2c3")}
	detail := newFakeDetailProvider()
	detail.errCode["a1b2c3"] = constants.ErrCodeValidationFailed
	writer := newMemoryWriter()

	job := newTestJob(list, detail, writer, fastConfig())
	result, err := job.RunCycle(context.Background(), fastConfig(), constants.TriggerManual)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(result.Failed) != 1 || result.Failed[0].ErrorKind != constants.ErrCodeValidationFailed {
		t.Fatalf("Expected one VALIDATION_FAILED failure, got %v", result.Failed)
	}
	if detail.attempts["a1b2c3"] != 1 {
		t.Errorf("Non-retriable errors must not be retried, got %d attempts", detail.attempts["a1b2c3"])
	}
}

func TestRunCycle_ConcurrencyBound(t *testing.T) {
	ids := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		ids = append(ids, fmt.Sprintf("%06x", i+1))
	}
	list := &fakeListProvider{refs: refsFor(ids...)}
	detail := newFakeDetailProvider()
	detail.delay = 20 * time.Millisecond
	writer := newMemoryWriter()

	cfg := fastConfig()
	cfg.MaxConcurrency = 3

	job := newTestJob(list, detail, writer, cfg)
	result, err := job.RunCycle(context.Background(), cfg, constants.TriggerManual)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if result.Succeeded != 20 {
		t.Errorf("Expected 20 succeeded, got %d", result.Succeeded)
	}
	if max := detail.maxInFlight.Load(); max > 3 {
		t.Errorf("Concurrency ceiling violated: observed %d simultaneous fetches", max)
	}
}

func TestRunCycle_DuplicatesProcessedIndependently(t *testing.T) {
	list := &fakeListProvider{refs: refsFor("a1b2c3", "a1b2c3")}
	detail := newFakeDetailProvider()
	writer := newMemoryWriter()

	job := newTestJob(list, detail, writer, fastConfig())
	result, err := job.RunCycle(context.Background(), fastConfig(), constants.TriggerManual)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if result.Total != 2 || result.Succeeded != 2 {
		t.Errorf("Expected both duplicates processed, got total=%d succeeded=%d", result.Total, result.Succeeded)
	}
	// The idempotent upsert keeps duplicates safe
	rec, _ := writer.Get(context.Background(), "a1b2c3")
	if rec == nil {
		t.Fatal("Expected a1b2c3 to be indexed once")
	}
}

func TestRunCycle_PerItemTimeout(t *testing.T) {
	list := &fakeListProvider{refs: refsFor("a1b2c3")}
	detail := newFakeDetailProvider()
	detail.delay = 200 * time.Millisecond
	writer := newMemoryWriter()

	cfg := fastConfig()
	cfg.PerItemTimeout = 10 * time.Millisecond
	cfg.MaxRetries = 1

	job := newTestJob(list, detail, writer, cfg)
	result, err := job.RunCycle(context.Background(), cfg, constants.TriggerManual)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(result.Failed) != 1 {
		t.Fatalf("Expected 1 failure, got %v", result.Failed)
	}
	if result.Failed[0].ErrorKind != constants.ErrCodeTimeout {
		t.Errorf("Expected TIMEOUT, got %s", result.Failed[0].ErrorKind)
	}
	if detail.attempts["a1b2c3"] != 2 {
		t.Errorf("Timeout should count toward retry budget: expected 2 attempts, got %d", detail.attempts["a1b2c3"])
	}
}

func TestRunCycle_CycleTimeoutReportsTimeouts(t *testing.T) {
	list := &fakeListProvider{refs: refsFor("a1b2c3", "d4e5f6", "0a1b2c", "3c4d5e")}
	detail := newFakeDetailProvider()
	detail.delay = 5 * time.Second
	writer := newMemoryWriter()

	cfg := fastConfig()
	cfg.MaxConcurrency = 2
	cfg.CycleTimeout = 50 * time.Millisecond

	job := newTestJob(list, detail, writer, cfg)

	start := time.Now()
	result, err := job.RunCycle(context.Background(), cfg, constants.TriggerManual)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	// The cycle must return promptly once its deadline fires, not wait out
	// the slow items
	if elapsed > 2*time.Second {
		t.Fatalf("Cycle did not honor its timeout, took %s", elapsed)
	}

	if result.Succeeded != 0 {
		t.Errorf("Expected no successes, got %d", result.Succeeded)
	}
	if len(result.Failed) != 4 {
		t.Fatalf("Expected all 4 items reported as failures, got %v", result.Failed)
	}
	for _, failure := range result.Failed {
		if failure.ErrorKind != constants.ErrCodeTimeout {
			t.Errorf("Expected TIMEOUT for %s, got %s", failure.FlightID, failure.ErrorKind)
		}
	}
}

func TestRunCycle_NonRetriableKeepsKindAtDeadline(t *testing.T) {
	list := &fakeListProvider{refs: refsFor("a1b2c3")}
	detail := newFakeDetailProvider()
	detail.blockingDelay = 50 * time.Millisecond
	detail.errCode["a1b2c3"] = constants.ErrCodeValidationFailed
	writer := newMemoryWriter()

	cfg := fastConfig()
	cfg.PerItemTimeout = 10 * time.Millisecond

	job := newTestJob(list, detail, writer, cfg)
	result, err := job.RunCycle(context.Background(), cfg, constants.TriggerManual)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// The validation error lands after the attempt deadline expired; it
	// must keep its own kind rather than be reclassified and retried
	if len(result.Failed) != 1 {
		t.Fatalf("Expected 1 failure, got %v", result.Failed)
	}
	if result.Failed[0].ErrorKind != constants.ErrCodeValidationFailed {
		t.Errorf("Expected VALIDATION_FAILED, got %s", result.Failed[0].ErrorKind)
	}
	if detail.attempts["a1b2c3"] != 1 {
		t.Errorf("Non-retriable errors must not be retried, got %d attempts", detail.attempts["a1b2c3"])
	}
}

// captureRecorder records the liveness of the context it is handed
type captureRecorder struct {
	mu       sync.Mutex
	calls    int
	ctxAlive bool
}

func (c *captureRecorder) RecordCycle(ctx context.Context, event, trigger string, result *models.CycleResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.ctxAlive = ctx.Err() == nil
	return nil
}

func TestRunCycle_HistoryRecordedAfterCycleTimeout(t *testing.T) {
	list := &fakeListProvider{refs: refsFor("a1b2c3")}
	detail := newFakeDetailProvider()
	detail.delay = 5 * time.Second
	writer := newMemoryWriter()
	recorder := &captureRecorder{}

	cfg := fastConfig()
	cfg.CycleTimeout = 50 * time.Millisecond

	processor := NewFlightProcessor(detail, writer)
	job := NewFlightSyncJob(list, processor, recorder, nil, cfg)

	if _, err := job.RunCycle(context.Background(), cfg, constants.TriggerManual); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if recorder.calls != 1 {
		t.Fatalf("Expected 1 history write, got %d", recorder.calls)
	}
	if !recorder.ctxAlive {
		t.Error("History write must not inherit the expired cycle context")
	}
}

func TestRunCycle_StoreFailureRetriable(t *testing.T) {
	list := &fakeListProvider{refs: refsFor("a1b2c3")}
	detail := newFakeDetailProvider()
	writer := newMemoryWriter()
	writer.err = models.NewPipelineError(constants.ErrCodeStoreUnavailable, fmt.Errorf("store down"))

	cfg := fastConfig()
	job := newTestJob(list, detail, writer, cfg)
	result, err := job.RunCycle(context.Background(), cfg, constants.TriggerManual)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(result.Failed) != 1 || result.Failed[0].ErrorKind != constants.ErrCodeStoreUnavailable {
		t.Fatalf("Expected one STORE_UNAVAILABLE failure, got %v", result.Failed)
	}
	if detail.attempts["a1b2c3"] != cfg.MaxRetries+1 {
		t.Errorf("Store failures should be retried: expected %d attempts, got %d",
			cfg.MaxRetries+1, detail.attempts["a1b2c3"])
	}
}
