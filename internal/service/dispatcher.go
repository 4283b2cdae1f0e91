package service

import (
	"context"
	"fmt"
	"time"

	"go-inventory-predict/internal/metrics"
	"go-inventory-predict/internal/model"
	"go-inventory-predict/internal/repository"
	"go-inventory-predict/internal/store"
	"go-inventory-predict/pkg/logger"
)

// PurchaseProcessor is the prediction pipeline as seen by the dispatcher.
type PurchaseProcessor interface {
	ProcessPurchases(ctx context.Context, partitionID int, records []model.PurchaseRecord) error
}

// PurchaseLogDispatcher periodically drains a partition's purchase log into
// the prediction pipeline. Delivery is at most once: the drained records are
// removed whether or not the pipeline accepted them.
type PurchaseLogDispatcher struct {
	partitionID  int
	store        *store.Store
	purchaseRepo repository.PurchaseLogRepository
	processor    PurchaseProcessor
	interval     time.Duration
}

func NewPurchaseLogDispatcher(partitionID int, s *store.Store, repo repository.PurchaseLogRepository, processor PurchaseProcessor, interval time.Duration) *PurchaseLogDispatcher {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &PurchaseLogDispatcher{
		partitionID:  partitionID,
		store:        s,
		purchaseRepo: repo,
		processor:    processor,
		interval:     interval,
	}
}

// Run flushes every interval until ctx is cancelled. A failing tick is
// logged and never stops the loop.
func (d *PurchaseLogDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.safeFlush(ctx); err != nil && ctx.Err() == nil {
				logger.Error("purchase log dispatch failed", "partition", d.partitionID, "error", err)
			}
		}
	}
}

func (d *PurchaseLogDispatcher) safeFlush(ctx context.Context) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during dispatch: %v", r)
		}
	}()
	return d.Flush(ctx)
}

// safeProcess turns a panicking pipeline into an error so the batch is still
// removed from the log.
func (d *PurchaseLogDispatcher) safeProcess(ctx context.Context, records []model.PurchaseRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()
	return d.processor.ProcessPurchases(ctx, d.partitionID, records)
}

// Flush hands every pending purchase to the pipeline and removes them from
// the log in the same transaction. It returns how many were drained.
func (d *PurchaseLogDispatcher) Flush(ctx context.Context) (int, error) {
	drained := 0
	label := metrics.Partition(d.partitionID)

	err := d.store.Update(ctx, func(tx *store.Tx) error {
		records, err := d.purchaseRepo.FindAll(tx)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}

		logger.Debug("dispatching purchases", "partition", d.partitionID, "count", len(records))

		if err := d.safeProcess(ctx, records); err != nil {
			metrics.DispatchErrors.WithLabelValues(label).Inc()
			logger.Error("prediction pipeline error", "partition", d.partitionID, "error", err)
		}

		for _, r := range records {
			if err := d.purchaseRepo.Delete(tx, r.PurchaseKey); err != nil {
				return err
			}
		}
		drained = len(records)
		return nil
	})
	if err != nil {
		return 0, err
	}

	metrics.DispatchedPurchases.WithLabelValues(label).Add(float64(drained))
	return drained, nil
}
