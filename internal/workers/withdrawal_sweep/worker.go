package withdrawalsweep

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/vaultline/vault-service/internal/domain/entities"
	"github.com/vaultline/vault-service/pkg/logger"
	"github.com/vaultline/vault-service/pkg/metrics"
)

// WithdrawalAdvancer drives the two withdrawal sweeps
type WithdrawalAdvancer interface {
	PendingAddresses(ctx context.Context, limit int) ([]uuid.UUID, error)
	InProgress(ctx context.Context, limit int) ([]*entities.Withdrawal, error)
	AdvancePending(ctx context.Context, addressID uuid.UUID) error
	AdvanceInProgress(ctx context.Context, w *entities.Withdrawal) error
}

// Config tunes the sweep worker
type Config struct {
	SendInterval   time.Duration // send sweep period
	UpdateInterval time.Duration // update sweep period
	BatchLimit     int           // max rows pulled per sweep run
	Concurrency    int           // parallel addresses in the send sweep
	RunTimeout     time.Duration // hard bound on one sweep run
}

// Worker runs the periodic withdrawal sweeps. The send sweep attempts one
// withdrawal per backlogged address in parallel; the update sweep walks
// in-flight rows oldest first. Overlapping runs of the same sweep are
// skipped, never queued.
type Worker struct {
	advancer WithdrawalAdvancer
	cfg      Config
	cron     *cron.Cron
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

// New creates a sweep worker
func New(advancer WithdrawalAdvancer, cfg Config, m *metrics.Metrics, log *logger.Logger) *Worker {
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
		cron.Recover(cron.DiscardLogger),
	))

	return &Worker{
		advancer: advancer,
		cfg:      cfg,
		cron:     c,
		metrics:  m,
		logger:   log,
	}
}

// Start schedules both sweeps and begins running them
func (w *Worker) Start() {
	w.cron.Schedule(cron.Every(w.cfg.SendInterval), cron.FuncJob(w.sendSweep))
	w.cron.Schedule(cron.Every(w.cfg.UpdateInterval), cron.FuncJob(w.updateSweep))
	w.cron.Start()

	w.logger.Info("withdrawal sweep worker started",
		"send_interval", w.cfg.SendInterval,
		"update_interval", w.cfg.UpdateInterval,
		"concurrency", w.cfg.Concurrency)
}

// Stop halts scheduling and waits for running sweeps to finish
func (w *Worker) Stop() {
	<-w.cron.Stop().Done()
	w.logger.Info("withdrawal sweep worker stopped")
}

// sendSweep pushes PENDING withdrawals onto the chain, one attempt per
// address per run. Failures are isolated per address: one bad address never
// stalls the rest of the batch.
func (w *Worker) sendSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.RunTimeout)
	defer cancel()

	started := time.Now()
	w.metrics.SweepRuns.WithLabelValues("send").Inc()

	addressIDs, err := w.advancer.PendingAddresses(ctx, w.cfg.BatchLimit)
	if err != nil {
		w.metrics.SweepErrors.WithLabelValues("send").Inc()
		w.logger.Error("send sweep: listing pending addresses failed", "error", err)
		return
	}
	if len(addressIDs) == 0 {
		return
	}

	sem := make(chan struct{}, w.cfg.Concurrency)
	var wg sync.WaitGroup
	var failed, skipped int64
	var mu sync.Mutex

	for _, id := range addressIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func(addressID uuid.UUID) {
			defer wg.Done()
			defer func() { <-sem }()

			err := w.advancer.AdvancePending(ctx, addressID)
			if err == nil {
				return
			}

			mu.Lock()
			if errors.Is(err, entities.ErrAddressBusy) {
				skipped++
			} else {
				failed++
			}
			mu.Unlock()

			if !errors.Is(err, entities.ErrAddressBusy) {
				w.metrics.SweepErrors.WithLabelValues("send").Inc()
			}
		}(id)
	}
	wg.Wait()

	w.metrics.SweepDuration.WithLabelValues("send").Observe(time.Since(started).Seconds())
	w.logger.Info("send sweep finished",
		"addresses", len(addressIDs), "failed", failed, "skipped", skipped,
		"duration", time.Since(started))
}

// updateSweep finalizes IN_PROGRESS withdrawals from on-chain state
func (w *Worker) updateSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.RunTimeout)
	defer cancel()

	started := time.Now()
	w.metrics.SweepRuns.WithLabelValues("update").Inc()

	inflight, err := w.advancer.InProgress(ctx, w.cfg.BatchLimit)
	if err != nil {
		w.metrics.SweepErrors.WithLabelValues("update").Inc()
		w.logger.Error("update sweep: listing in-flight withdrawals failed", "error", err)
		return
	}

	var failed int
	for _, wd := range inflight {
		if err := w.advancer.AdvanceInProgress(ctx, wd); err != nil {
			failed++
			w.metrics.SweepErrors.WithLabelValues("update").Inc()
			w.logger.Error("update sweep: advancing withdrawal failed",
				"withdrawal_id", wd.ID, "error", err)
		}
	}

	w.metrics.SweepDuration.WithLabelValues("update").Observe(time.Since(started).Seconds())
	if len(inflight) > 0 {
		w.logger.Info("update sweep finished",
			"in_flight", len(inflight), "failed", failed, "duration", time.Since(started))
	}
}
