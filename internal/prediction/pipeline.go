// Package prediction turns a partition's purchase stream into per-product
// stock trends, scores them and pushes low-stock notifications.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go-inventory-predict/internal/model"
	"go-inventory-predict/internal/repository"
	"go-inventory-predict/pkg/logger"
)

var ErrPipelineStopped = errors.New("prediction pipeline stopped")

// Notifier delivers a batch of predictions to subscribers.
type Notifier interface {
	NotifyLowStockProducts(ctx context.Context, predictions []model.ProductStockPrediction) error
}

type Options struct {
	// Window is how much purchase history a trend keeps.
	Window               time.Duration
	TimerStartDelay      time.Duration
	TimerInterval        time.Duration
	NotificationAttempts int
	Now                  func() time.Time
}

func (o *Options) defaults() {
	if o.Window <= 0 {
		o.Window = 30 * 24 * time.Hour
	}
	if o.TimerInterval <= 0 {
		o.TimerInterval = 5 * time.Second
	}
	if o.TimerStartDelay < 0 {
		o.TimerStartDelay = 0
	}
	if o.NotificationAttempts < 0 {
		o.NotificationAttempts = 10
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
}

// Pipeline is the prediction state of one partition. All state is owned by
// the goroutine running Run; callers reach it through the inbox, so batches
// and notification ticks never interleave.
type Pipeline struct {
	partitionID int
	opts        Options
	scorer      Scorer
	notifier    Notifier
	trendRepo   repository.TrendRepository

	trends map[int]*model.ProductStockTrend

	inbox chan func()
	done  chan struct{}
}

func NewPipeline(partitionID int, trendRepo repository.TrendRepository, scorer Scorer, notifier Notifier, opts Options) *Pipeline {
	opts.defaults()
	return &Pipeline{
		partitionID: partitionID,
		opts:        opts,
		scorer:      scorer,
		notifier:    notifier,
		trendRepo:   trendRepo,
		trends:      make(map[int]*model.ProductStockTrend),
		inbox:       make(chan func()),
		done:        make(chan struct{}),
	}
}

// Load restores persisted trends. It must be called before Run.
func (p *Pipeline) Load(ctx context.Context) error {
	trends, err := p.trendRepo.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("load trends of partition %d: %w", p.partitionID, err)
	}
	for i := range trends {
		t := trends[i]
		p.trends[t.ProductID] = &t
	}
	return nil
}

// Run serves the inbox and the notification timer until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	defer close(p.done)

	start := time.NewTimer(p.opts.TimerStartDelay)
	defer start.Stop()
	var ticker *time.Ticker
	var tick <-chan time.Time
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.inbox:
			job()
		case <-start.C:
			ticker = time.NewTicker(p.opts.TimerInterval)
			tick = ticker.C
			p.safeNotify(ctx)
		case <-tick:
			p.safeNotify(ctx)
		}
	}
}

// Done is closed when Run returns.
func (p *Pipeline) Done() <-chan struct{} { return p.done }

// do runs fn on the owner goroutine and waits for its result.
func (p *Pipeline) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	job := func() {
		defer func() {
			if r := recover(); r != nil {
				errc <- fmt.Errorf("prediction pipeline %d panic: %v", p.partitionID, r)
			}
		}()
		errc <- fn()
	}

	select {
	case p.inbox <- job:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrPipelineStopped
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProcessPurchases folds a batch of purchases into the trends, scores every
// affected product and persists the result.
func (p *Pipeline) ProcessPurchases(ctx context.Context, records []model.PurchaseRecord) error {
	if len(records) == 0 {
		return nil
	}
	logger.Debug("processing purchases", "partition", p.partitionID, "count", len(records))

	return p.do(ctx, func() error {
		now := p.opts.Now()
		windowStart := now.Add(-p.opts.Window)

		seen := make(map[int]struct{})
		var affected []int
		for _, r := range records {
			t, ok := p.trends[r.ProductID]
			if !ok {
				t = &model.ProductStockTrend{ProductID: r.ProductID, ProductName: r.ProductName}
				p.trends[r.ProductID] = t
			}
			t.Reset(windowStart, now)
			t.AddOrder(r, p.opts.NotificationAttempts)

			if _, ok := seen[r.ProductID]; !ok {
				seen[r.ProductID] = struct{}{}
				affected = append(affected, r.ProductID)
			}
		}

		scoreErr := p.calculatePredictions(ctx, affected)
		saveErr := p.persist(ctx, affected)
		return errors.Join(scoreErr, saveErr)
	})
}

func (p *Pipeline) calculatePredictions(ctx context.Context, productIDs []int) error {
	batch := make([]model.ProductStockTrend, 0, len(productIDs))
	for _, id := range productIDs {
		batch = append(batch, p.trends[id].Clone())
	}

	lines, err := p.scorer.Score(ctx, batch)
	if err != nil {
		return fmt.Errorf("score partition %d: %w", p.partitionID, err)
	}

	for _, line := range lines {
		t, ok := p.trends[line.ProductID]
		if !ok {
			logger.Warn("scorer returned unknown product", "partition", p.partitionID, "productId", line.ProductID)
			continue
		}
		t.Probability = line.Probability
		t.Reorder = line.Reorder
	}
	return nil
}

func (p *Pipeline) persist(ctx context.Context, productIDs []int) error {
	out := make([]model.ProductStockTrend, 0, len(productIDs))
	for _, id := range productIDs {
		out = append(out, p.trends[id].Clone())
	}
	if err := p.trendRepo.SaveAll(ctx, out); err != nil {
		return fmt.Errorf("save trends of partition %d: %w", p.partitionID, err)
	}
	return nil
}

// RunNotification performs one notification tick on the owner goroutine.
func (p *Pipeline) RunNotification(ctx context.Context) error {
	return p.do(ctx, func() error { return p.notify(ctx) })
}

func (p *Pipeline) safeNotify(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("notification tick panic", "partition", p.partitionID, "panic", r)
		}
	}()
	if err := p.notify(ctx); err != nil && ctx.Err() == nil {
		logger.Error("notification tick failed", "partition", p.partitionID, "error", err)
	}
}

// notify sends every trend with attempts left and, once delivered, spends
// one attempt of each.
func (p *Pipeline) notify(ctx context.Context) error {
	var due []*model.ProductStockTrend
	for _, t := range p.trends {
		if t.NotificationCounter > 0 {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ProductID < due[j].ProductID })

	predictions := make([]model.ProductStockPrediction, 0, len(due))
	for _, t := range due {
		predictions = append(predictions, t.ToPrediction())
	}

	logger.Debug("notifying low stock", "partition", p.partitionID, "products", len(predictions))
	if err := p.notifier.NotifyLowStockProducts(ctx, predictions); err != nil {
		return err
	}

	ids := make([]int, 0, len(due))
	for _, t := range due {
		t.NotificationCounter--
		ids = append(ids, t.ProductID)
	}
	return p.persist(ctx, ids)
}

// Trends returns a copy of every trend, ordered by productId.
func (p *Pipeline) Trends(ctx context.Context) ([]model.ProductStockTrend, error) {
	var out []model.ProductStockTrend
	err := p.do(ctx, func() error {
		out = make([]model.ProductStockTrend, 0, len(p.trends))
		for _, t := range p.trends {
			out = append(out, t.Clone())
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
		return nil
	})
	return out, err
}
