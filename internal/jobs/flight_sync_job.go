package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"skywatch/indexer/internal/constants"
	"skywatch/indexer/internal/metrics"
	"skywatch/indexer/internal/models"
	"skywatch/indexer/internal/providers"
)

// CycleRecorder persists completed cycle summaries
type CycleRecorder interface {
	RecordCycle(ctx context.Context, event, trigger string, result *models.CycleResult) error
}

// BackoffConfig shapes the exponential backoff between retries of one item
type BackoffConfig struct {
	Base       time.Duration
	Multiplier float64
	Max        time.Duration
}

// CycleConfig enumerates the knobs for one ingestion cycle
type CycleConfig struct {
	// MaxConcurrency caps simultaneously-processing flights
	MaxConcurrency int
	// PerItemTimeout bounds each processing attempt; a timed-out attempt
	// counts toward the retry budget
	PerItemTimeout time.Duration
	// MaxRetries is the number of re-attempts after the first try,
	// applied to retriable failures only
	MaxRetries int
	Backoff    BackoffConfig
	// CycleTimeout bounds the whole cycle; zero disables it
	CycleTimeout time.Duration
}

// DefaultCycleConfig returns the defaults used by the scheduled job
func DefaultCycleConfig() CycleConfig {
	return CycleConfig{
		MaxConcurrency: 10,
		PerItemTimeout: 15 * time.Second,
		MaxRetries:     2,
		Backoff: BackoffConfig{
			Base:       500 * time.Millisecond,
			Multiplier: 2.0,
			Max:        10 * time.Second,
		},
		CycleTimeout: 10 * time.Minute,
	}
}

func (c CycleConfig) withDefaults() CycleConfig {
	def := DefaultCycleConfig()
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = def.MaxConcurrency
	}
	if c.PerItemTimeout <= 0 {
		c.PerItemTimeout = def.PerItemTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.Backoff.Base <= 0 {
		c.Backoff.Base = def.Backoff.Base
	}
	if c.Backoff.Multiplier < 1 {
		c.Backoff.Multiplier = def.Backoff.Multiplier
	}
	if c.Backoff.Max <= 0 {
		c.Backoff.Max = def.Backoff.Max
	}
	return c
}

// FlightSyncJob drives one list-then-process-all cycle: fetch the roster
// once, fan each flight out to FlightProcessor under a bounded worker pool,
// and aggregate per-item outcomes into a CycleResult. Failure of one item
// never aborts the others.
type FlightSyncJob struct {
	list        providers.FlightListProvider
	processor   *FlightProcessor
	historyRepo CycleRecorder
	metricsReg  *metrics.MetricsRegistry
	config      CycleConfig
}

// NewFlightSyncJob creates a sync job. historyRepo and metricsReg may be nil
// (one-shot runs without a cycle store).
func NewFlightSyncJob(
	list providers.FlightListProvider,
	processor *FlightProcessor,
	historyRepo CycleRecorder,
	metricsReg *metrics.MetricsRegistry,
	config CycleConfig,
) *FlightSyncJob {
	return &FlightSyncJob{
		list:        list,
		processor:   processor,
		historyRepo: historyRepo,
		metricsReg:  metricsReg,
		config:      config.withDefaults(),
	}
}

// itemOutcome classifies one flight's terminal state within a cycle
type itemOutcome int

const (
	outcomeSucceeded itemOutcome = iota
	outcomeSkipped
	outcomeFailed
)

// RunCycle executes one complete cycle with the given config. A list-level
// failure aborts the cycle and is returned as the single top-level error;
// per-item failures are recorded in the result, never raised.
func (j *FlightSyncJob) RunCycle(ctx context.Context, cfg CycleConfig, trigger string) (*models.CycleResult, error) {
	cfg = cfg.withDefaults()
	start := time.Now()
	cycleID := uuid.New().String()

	log.Printf("[FlightSyncJob] Starting cycle %s (trigger=%s, concurrency=%d)",
		cycleID, trigger, cfg.MaxConcurrency)

	if cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.CycleTimeout)
		defer cancel()
	}

	listRes, err := j.list.FetchFlightList(ctx)
	if err != nil {
		log.Printf("[FlightSyncJob] Cycle %s aborted: list fetch failed: %v", cycleID, err)
		if j.metricsReg != nil {
			j.metricsReg.CyclesTotal.WithLabelValues(trigger, "list_failed").Inc()
		}
		return nil, fmt.Errorf("list fetch failed: %w", err)
	}

	if listRes.Warnings > 0 {
		log.Printf("[FlightSyncJob] Cycle %s: %d list entries dropped as unparsable",
			cycleID, listRes.Warnings)
	}
	if j.metricsReg != nil {
		j.metricsReg.CycleListSize.Observe(float64(len(listRes.Refs)))
	}

	result := &models.CycleResult{
		CycleID:   cycleID,
		Total:     len(listRes.Refs),
		Failed:    []models.ItemFailure{},
		StartedAt: start.UTC(),
	}

	// Empty list is a valid terminal state, not an error
	if len(listRes.Refs) == 0 {
		result.Duration = time.Since(start)
		j.finishCycle(trigger, result)
		return result, nil
	}

	// Duplicate ids are processed independently; the idempotent upsert
	// makes that safe, if wasteful.
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.MaxConcurrency)

	for _, ref := range listRes.Refs {
		ref := ref
		g.Go(func() error {
			outcome, failure := j.processWithRetry(gctx, ref, cfg)

			mu.Lock()
			switch outcome {
			case outcomeSucceeded:
				result.Succeeded++
			case outcomeSkipped:
				result.Skipped++
			case outcomeFailed:
				result.Failed = append(result.Failed, failure)
			}
			mu.Unlock()

			// Item errors are data in the result, not group errors.
			return nil
		})
	}

	// Workers only return nil; Wait is the single join point.
	_ = g.Wait()

	result.Duration = time.Since(start)
	j.finishCycle(trigger, result)

	log.Printf("[FlightSyncJob] Cycle %s completed in %s. Total: %d, Succeeded: %d, Skipped: %d, Failed: %d",
		cycleID, result.Duration.Truncate(time.Millisecond),
		result.Total, result.Succeeded, result.Skipped, len(result.Failed))

	return result, nil
}

// processWithRetry runs one flight's attempt sequence: strictly sequential
// attempts, exponential backoff, retriable kinds only
func (j *FlightSyncJob) processWithRetry(ctx context.Context, ref models.FlightRef, cfg CycleConfig) (itemOutcome, models.ItemFailure) {
	if j.metricsReg != nil {
		j.metricsReg.ItemsInFlight.Inc()
		defer j.metricsReg.ItemsInFlight.Dec()

		itemStart := time.Now()
		defer func() {
			j.metricsReg.ItemDuration.Observe(time.Since(itemStart).Seconds())
		}()
	}

	backoff := cfg.Backoff.Base

	for attempt := 0; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.PerItemTimeout)
		err := j.processor.Process(attemptCtx, ref)
		cancel()

		if err == nil {
			j.countOutcome("succeeded")
			return outcomeSucceeded, models.ItemFailure{}
		}

		if models.IsBenign(err) {
			j.countOutcome("skipped")
			return outcomeSkipped, models.ItemFailure{}
		}

		// Reclassify as TIMEOUT only when the failure itself came from the
		// expired attempt deadline; an error that merely coincides with it
		// (a validation failure, say) keeps its own kind.
		code := models.ErrorCode(err)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			code = constants.ErrCodeTimeout
		}

		if !constants.IsRetriableCode(code) || attempt >= cfg.MaxRetries || ctx.Err() != nil {
			if ctx.Err() != nil {
				code = constants.ErrCodeTimeout
			}
			j.countOutcome("failed")
			return outcomeFailed, models.ItemFailure{
				FlightID:  ref.ID,
				ErrorKind: code,
				Message:   err.Error(),
			}
		}

		if j.metricsReg != nil {
			j.metricsReg.ItemRetriesTotal.Inc()
		}
		log.Printf("[FlightSyncJob] Flight %s attempt %d failed (%s), retrying in %s",
			ref.ID, attempt+1, code, backoff)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			j.countOutcome("failed")
			return outcomeFailed, models.ItemFailure{
				FlightID:  ref.ID,
				ErrorKind: constants.ErrCodeTimeout,
				Message:   ctx.Err().Error(),
			}
		}

		backoff = time.Duration(float64(backoff) * cfg.Backoff.Multiplier)
		if backoff > cfg.Backoff.Max {
			backoff = cfg.Backoff.Max
		}
	}
}

func (j *FlightSyncJob) countOutcome(outcome string) {
	if j.metricsReg != nil {
		j.metricsReg.ItemOutcomesTotal.WithLabelValues(outcome).Inc()
	}
}

// finishCycle records metrics and cycle history for a completed cycle
func (j *FlightSyncJob) finishCycle(trigger string, result *models.CycleResult) {
	if j.metricsReg != nil {
		j.metricsReg.CyclesTotal.WithLabelValues(trigger, "completed").Inc()
		j.metricsReg.CycleDuration.Observe(result.Duration.Seconds())
	}

	if j.historyRepo == nil {
		return
	}

	// The cycle ctx may already be expired (CycleTimeout), and a timed-out
	// cycle is exactly the one worth recording; use an independent context.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := j.historyRepo.RecordCycle(ctx, constants.CycleEventFlightIndex, trigger, result); err != nil {
		log.Printf("[FlightSyncJob] Warning - failed to record cycle history: %v", err)
	}
}

// Run executes one cycle with the job's configured defaults
func (j *FlightSyncJob) Run(ctx context.Context) error {
	_, err := j.RunCycle(ctx, j.config, constants.TriggerScheduled)
	return err
}

// RunScheduled runs the sync job on a fixed interval until ctx is done
func (j *FlightSyncJob) RunScheduled(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run immediately on start
	if err := j.Run(ctx); err != nil {
		log.Printf("[FlightSyncJob] Error in initial run: %v", err)
	}

	for {
		select {
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				log.Printf("[FlightSyncJob] Error in scheduled run: %v", err)
			}
		case <-ctx.Done():
			log.Printf("[FlightSyncJob] Shutting down scheduled sync")
			return
		}
	}
}
