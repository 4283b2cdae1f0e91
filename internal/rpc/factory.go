package rpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go-inventory-predict/internal/metrics"
	"go-inventory-predict/pkg/logger"
)

// Resolver maps a partition to the websocket address serving it.
type Resolver interface {
	Resolve(ctx context.Context, partitionID int) (string, error)
}

// Factory hands out one client per partition and owns the retry loop.
type Factory struct {
	resolver Resolver
	policy   Policy
	dial     func(ctx context.Context, addr string) (*Client, error)

	mu    sync.Mutex
	slots map[int]*slot
}

// slot is the cached endpoint of one partition. sem serializes resolving
// and dialing for that partition only.
type slot struct {
	sem    chan struct{}
	addr   string
	client *Client
}

func NewFactory(resolver Resolver, policy Policy) *Factory {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return &Factory{
		resolver: resolver,
		policy:   policy,
		dial:     Dial,
		slots:    make(map[int]*slot),
	}
}

func (f *Factory) slot(partitionID int) *slot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[partitionID]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		f.slots[partitionID] = s
	}
	return s
}

// GetClient returns a connected client for partitionID. With resolve set
// the endpoint is looked up again instead of taken from the cache. A cached
// client that is closed or bound to another address is replaced. Waiting
// for another caller of the same partition honours ctx.
func (f *Factory) GetClient(ctx context.Context, partitionID int, resolve bool) (*Client, error) {
	s := f.slot(partitionID)
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.sem }()

	if resolve || s.addr == "" {
		addr, err := f.resolver.Resolve(ctx, partitionID)
		if err != nil {
			return nil, fmt.Errorf("resolve partition %d: %w", partitionID, err)
		}
		s.addr = addr
	}

	if c := s.client; c != nil {
		if c.Valid(s.addr) {
			return c, nil
		}
		logger.Debug("discarding rpc client", "partition", partitionID, "addr", c.Addr(), "want", s.addr)
		_ = c.Close()
		s.client = nil
	}

	c, err := f.dial(ctx, s.addr)
	if err != nil {
		return nil, err
	}
	s.client = c
	return c, nil
}

// Invoke sends req to partitionID and returns the raw response, retrying
// failures as the policy decides.
func (f *Factory) Invoke(ctx context.Context, partitionID int, req []byte) ([]byte, error) {
	resolve := false
	for attempt := 0; ; attempt++ {
		resp, err := f.call(ctx, partitionID, req, resolve)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}

		d := f.policy.Classify(err)
		if attempt >= f.policy.MaxRetries {
			return nil, fmt.Errorf("partition %d after %d retries: %w", partitionID, attempt, err)
		}
		metrics.RPCRetries.WithLabelValues(d.Kind.String()).Inc()
		logger.Warn("rpc call failed, retrying",
			"partition", partitionID, "attempt", attempt+1, "kind", d.Kind.String(),
			"transient", d.Transient, "resolve", d.Resolve, "error", err)

		resolve = d.Resolve
		if err := sleep(ctx, d.Delay); err != nil {
			return nil, err
		}
	}
}

func (f *Factory) call(ctx context.Context, partitionID int, req []byte, resolve bool) ([]byte, error) {
	c, err := f.GetClient(ctx, partitionID, resolve)
	if err != nil {
		return nil, err
	}
	return c.SendReceive(ctx, req)
}

// Close disconnects every cached client. It waits for dials in progress.
func (f *Factory) Close() {
	f.mu.Lock()
	slots := make([]*slot, 0, len(f.slots))
	for _, s := range f.slots {
		slots = append(slots, s)
	}
	f.mu.Unlock()

	for _, s := range slots {
		s.sem <- struct{}{}
		if s.client != nil {
			_ = s.client.Close()
			s.client = nil
		}
		<-s.sem
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
