package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ayo6706/anchor-platform/internal/observability"
	"github.com/ayo6706/anchor-platform/internal/service"
	"go.uber.org/zap"
)

const trustlineWorkerName = "trustline_check"

// TrustProcessor settles one batch of pending trusts.
type TrustProcessor interface {
	ProcessPendingTrusts(ctx context.Context, batchSize int32) (service.TrustlineResult, error)
}

// TrustlineWorker polls deposits waiting for a trustline.
// Concurrent instances are safe: each settlement holds the transaction lock.
type TrustlineWorker struct {
	processor    TrustProcessor
	pollInterval time.Duration
	batchSize    int32
	stopCh       chan struct{}
	stopOnce     sync.Once
}

func NewTrustlineWorker(processor TrustProcessor) *TrustlineWorker {
	return &TrustlineWorker{
		processor:    processor,
		pollInterval: time.Minute,
		batchSize:    50,
		stopCh:       make(chan struct{}),
	}
}

// WithPollInterval sets the poll interval for the worker.
func (w *TrustlineWorker) WithPollInterval(interval time.Duration) *TrustlineWorker {
	if interval > 0 {
		w.pollInterval = interval
	}
	return w
}

// WithBatchSize sets the number of rows checked per tick.
func (w *TrustlineWorker) WithBatchSize(size int32) *TrustlineWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// Start blocks until Stop is called or ctx is canceled.
func (w *TrustlineWorker) Start(ctx context.Context) {
	zap.L().Info("trustline worker starting",
		zap.Duration("interval", w.pollInterval),
		zap.Int32("batch_size", w.batchSize),
	)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("trustline worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("trustline worker stop signal received")
			return
		case <-ticker.C:
			w.processBatch(ctx)
		}
	}
}

// Stop signals the worker to stop. It is safe to call more than once.
func (w *TrustlineWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

func (w *TrustlineWorker) processBatch(ctx context.Context) {
	res, err := w.processor.ProcessPendingTrusts(ctx, w.batchSize)
	if err != nil {
		observability.IncrementWorkerRun(trustlineWorkerName, "failed")
		zap.L().Error("trustline check failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun(trustlineWorkerName, "success")
	if res.Settled > 0 || res.Dropped > 0 {
		zap.L().Info("trustline check completed",
			zap.Int("settled", res.Settled),
			zap.Int("dropped", res.Dropped),
			zap.Int("waiting", res.Waiting),
		)
	}
}

// ProcessOnce processes a single batch immediately.
func (w *TrustlineWorker) ProcessOnce(ctx context.Context) (service.TrustlineResult, error) {
	return w.processor.ProcessPendingTrusts(ctx, w.batchSize)
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *TrustlineWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *TrustlineWorker) String() string {
	return fmt.Sprintf("TrustlineWorker(interval=%v, batch=%d)", w.pollInterval, w.batchSize)
}
