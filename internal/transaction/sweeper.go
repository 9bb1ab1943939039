package transaction

import (
	"context"
	"fmt"
	"time"
)

// Sweeper enforces deadline-based transitions independent of request
// traffic: transactions past their payment deadline with no proof become
// EXPIRED, stale confirmations become CANCELED. Each target is processed
// in its own atomic unit so one failure never blocks the rest, and the
// conditional status guards make racing with a live user action safe.
type Sweeper struct {
	Service   *Service
	Interval  time.Duration
	BatchSize int
}

func NewSweeper(service *Service, interval time.Duration, batchSize int) *Sweeper {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	return &Sweeper{Service: service, Interval: interval, BatchSize: batchSize}
}

// Run loops until ctx is done. Transactions must expire correctly even
// after a process restart, which is why this polls the store instead of
// holding in-process timers.
func (w *Sweeper) Run(ctx context.Context) {
	log := w.Service.Logger
	log.LogSweeper("START", fmt.Sprintf("interval=%s batch=%d", w.Interval, w.BatchSize))

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.LogSweeper("STOP", "context canceled")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs both passes once. Exposed for tests and for a run-once CLI
// invocation.
func (w *Sweeper) Sweep(ctx context.Context) {
	now := w.Service.Now()
	w.expireUnpaid(ctx, now)
	w.cancelStaleConfirmations(ctx, now)
}

func (w *Sweeper) expireUnpaid(ctx context.Context, now time.Time) {
	log := w.Service.Logger

	ids, err := w.Service.Store.ListExpiredUnpaid(ctx, now, w.BatchSize)
	if err != nil {
		log.Error("SWEEPER", fmt.Sprintf("expire scan failed: %v", err))
		return
	}

	expired := 0
	for _, id := range ids {
		applied, err := w.Service.expireOne(ctx, id, now)
		if err != nil {
			log.Error("SWEEPER", fmt.Sprintf("expire %s failed: %v", id, err))
			continue
		}
		if applied {
			expired++
		}
	}
	if len(ids) > 0 {
		log.LogSweeper("EXPIRE", fmt.Sprintf("candidates=%d expired=%d", len(ids), expired))
	}
}

func (w *Sweeper) cancelStaleConfirmations(ctx context.Context, now time.Time) {
	log := w.Service.Logger

	ids, err := w.Service.Store.ListStaleConfirmations(ctx, now, w.BatchSize)
	if err != nil {
		log.Error("SWEEPER", fmt.Sprintf("cancel scan failed: %v", err))
		return
	}

	canceled := 0
	for _, id := range ids {
		applied, err := w.Service.cancelOne(ctx, id, now)
		if err != nil {
			log.Error("SWEEPER", fmt.Sprintf("cancel %s failed: %v", id, err))
			continue
		}
		if applied {
			canceled++
		}
	}
	if len(ids) > 0 {
		log.LogSweeper("CANCEL", fmt.Sprintf("candidates=%d canceled=%d", len(ids), canceled))
	}
}
