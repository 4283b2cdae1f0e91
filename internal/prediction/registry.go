package prediction

import (
	"context"
	"sync"

	"go-inventory-predict/internal/model"
	"go-inventory-predict/pkg/logger"
)

// PipelineFactory builds the (not yet loaded) pipeline of a partition.
type PipelineFactory func(partitionID int) (*Pipeline, error)

// Registry activates one pipeline per partition on first use and keeps it
// running until Stop or Close.
type Registry struct {
	factory PipelineFactory

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	entries map[int]*entry
}

// entry is one partition's pipeline. ready is closed once activation ends,
// successfully or not.
type entry struct {
	ready  chan struct{}
	p      *Pipeline
	err    error
	cancel context.CancelFunc
}

// NewRegistry ties every activated pipeline to ctx.
func NewRegistry(ctx context.Context, factory PipelineFactory) *Registry {
	ctx, cancel := context.WithCancel(ctx)
	return &Registry{
		factory: factory,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[int]*entry),
	}
}

// Get returns the running pipeline of partitionID, activating it if needed.
// Building and loading happen outside the registry lock, so a slow partition
// only delays callers of that partition.
func (r *Registry) Get(ctx context.Context, partitionID int) (*Pipeline, error) {
	r.mu.Lock()
	if err := r.ctx.Err(); err != nil {
		r.mu.Unlock()
		return nil, ErrPipelineStopped
	}
	e, ok := r.entries[partitionID]
	if !ok {
		e = &entry{ready: make(chan struct{})}
		r.entries[partitionID] = e
	}
	r.mu.Unlock()

	if ok {
		select {
		case <-e.ready:
			return e.p, e.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p, err := r.activate(ctx, partitionID, e)

	r.mu.Lock()
	if err != nil && r.entries[partitionID] == e {
		delete(r.entries, partitionID)
	}
	e.p, e.err = p, err
	r.mu.Unlock()
	close(e.ready)
	return p, err
}

func (r *Registry) activate(ctx context.Context, partitionID int, e *entry) (*Pipeline, error) {
	p, err := r.factory(partitionID)
	if err != nil {
		return nil, err
	}
	if err := p.Load(ctx); err != nil {
		return nil, err
	}

	pctx, cancel := context.WithCancel(r.ctx)
	e.cancel = cancel
	loaded := len(p.trends)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		p.Run(pctx)
	}()
	logger.Info("prediction pipeline activated", "partition", partitionID, "trends", loaded)
	return p, nil
}

// ProcessPurchases forwards a batch to the pipeline of partitionID.
func (r *Registry) ProcessPurchases(ctx context.Context, partitionID int, records []model.PurchaseRecord) error {
	p, err := r.Get(ctx, partitionID)
	if err != nil {
		return err
	}
	return p.ProcessPurchases(ctx, records)
}

// Stop stops the pipeline of partitionID and waits for it to exit. A later
// Get activates it again.
func (r *Registry) Stop(partitionID int) {
	r.mu.Lock()
	e, ok := r.entries[partitionID]
	delete(r.entries, partitionID)
	r.mu.Unlock()
	if !ok {
		return
	}

	<-e.ready
	if e.err != nil {
		return
	}
	e.cancel()
	<-e.p.Done()
	logger.Debug("prediction pipeline stopped", "partition", partitionID)
}

// Close stops every pipeline and waits for them to exit.
func (r *Registry) Close() {
	r.cancel()
	r.wg.Wait()
}
