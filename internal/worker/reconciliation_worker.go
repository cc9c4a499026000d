package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Reconciler applies entitlements that a verification left pending.
type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// ReconciliationWorker runs a Reconciler on a fixed interval.
type ReconciliationWorker struct {
	reconciler Reconciler
	interval   time.Duration
	logger     *zap.Logger
}

// NewReconciliationWorker constructs the worker.
func NewReconciliationWorker(reconciler Reconciler, interval time.Duration, logger *zap.Logger) *ReconciliationWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationWorker{reconciler: reconciler, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled, reconciling once per interval.
func (w *ReconciliationWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("reconciliation worker started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("reconciliation worker stopped")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *ReconciliationWorker) runOnce(ctx context.Context) {
	applied, err := w.reconciler.Reconcile(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		w.logger.Error("reconciliation pass failed", zap.Error(err))
		return
	}
	if applied > 0 {
		w.logger.Info("entitlements reconciled", zap.Int("count", applied))
	}
}
