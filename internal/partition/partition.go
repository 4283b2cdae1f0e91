package partition

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go-inventory-predict/internal/model"
	"go-inventory-predict/internal/repository"
	"go-inventory-predict/internal/service"
	"go-inventory-predict/internal/store"
	"go-inventory-predict/pkg/logger"
)

// Partition is one shard of the inventory. Its store is never shared.
type Partition struct {
	rng   Range
	store *store.Store

	products  repository.ProductRepository
	purchases repository.PurchaseLogRepository
	trends    repository.TrendRepository

	Reservations service.ReservationService
}

func (p *Partition) ID() int { return p.rng.ID }

func (p *Partition) Range() Range { return p.rng }

func (p *Partition) Bounds() (low, high int) { return p.rng.Low, p.rng.High }

func (p *Partition) Store() *store.Store { return p.store }

// Trends is the repository the partition's prediction pipeline persists to.
func (p *Partition) Trends() repository.TrendRepository { return p.trends }

func (p *Partition) Products(ctx context.Context) ([]model.Product, error) {
	return p.products.FindAll(ctx)
}

func (p *Partition) PendingPurchases(ctx context.Context) (int, error) {
	n := 0
	err := p.store.View(ctx, func(tx *store.Tx) error {
		var err error
		n, err = p.purchases.Count(tx)
		return err
	})
	return n, err
}

type Options struct {
	Ranges []Range
	// Journal mirrors every partition durably; nil keeps state in memory.
	Journal          store.Journal
	LockTimeout      time.Duration
	DispatchInterval time.Duration
	// Events receives committed stock changes; may be nil.
	Events service.StockPublisher
	// Seed imports catalog products into empty partitions.
	Seed bool
	Rand *rand.Rand
}

// Manager owns every partition hosted by this process.
type Manager struct {
	opts       Options
	partitions []*Partition

	mu      sync.Mutex
	cancels []context.CancelFunc
	wg      sync.WaitGroup
}

// Open opens (and replays) the store of every range and seeds empty
// partitions from the catalog.
func Open(ctx context.Context, opts Options) (*Manager, error) {
	if len(opts.Ranges) == 0 {
		return nil, fmt.Errorf("no partitions configured")
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	m := &Manager{opts: opts}
	for _, rng := range opts.Ranges {
		s, err := store.Open(ctx, rng.ID, store.Options{LockTimeout: opts.LockTimeout, Journal: opts.Journal})
		if err != nil {
			return nil, err
		}
		p := &Partition{
			rng:       rng,
			store:     s,
			products:  repository.NewProductRepo(s),
			purchases: repository.NewPurchaseLogRepo(s),
			trends:    repository.NewTrendRepo(s),
		}
		p.Reservations = service.NewReservationService(rng.ID, s, p.products, p.purchases, opts.Events)

		if opts.Seed {
			if err := m.seed(ctx, p); err != nil {
				return nil, err
			}
		}
		m.partitions = append(m.partitions, p)
	}
	return m, nil
}

func (m *Manager) seed(ctx context.Context, p *Partition) error {
	products, err := ReadProducts(p.rng.Low, p.rng.High, m.opts.Rand)
	if err != nil {
		return err
	}
	added, err := p.Reservations.SeedProducts(ctx, products)
	if err != nil {
		return fmt.Errorf("seed partition %d: %w", p.ID(), err)
	}
	if added > 0 {
		logger.Info("partition seeded", "partition", p.ID(), "products", added)
	}
	return nil
}

// PipelineStopper is implemented by processors that hold per-partition
// state, such as the prediction registry.
type PipelineStopper interface {
	Stop(partitionID int)
}

// Start runs the purchase log dispatcher of every partition, each under its
// own cancellable context derived from ctx. When a partition's context ends
// its dispatcher exits first, then its pipeline is stopped if processor is a
// PipelineStopper.
func (m *Manager) Start(ctx context.Context, processor service.PurchaseProcessor) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.partitions {
		pctx, cancel := context.WithCancel(ctx)
		m.cancels = append(m.cancels, cancel)

		d := service.NewPurchaseLogDispatcher(p.ID(), p.store, p.purchases, processor, m.opts.DispatchInterval)
		m.wg.Add(1)
		go func(id int) {
			defer m.wg.Done()
			d.Run(pctx)
			logger.Debug("dispatcher stopped", "partition", id)
			if s, ok := processor.(PipelineStopper); ok {
				s.Stop(id)
			}
		}(p.ID())
	}
	logger.Info("partitions started", "count", len(m.partitions))
}

// Stop cancels every partition loop and waits for them.
func (m *Manager) Stop() {
	m.mu.Lock()
	for _, cancel := range m.cancels {
		cancel()
	}
	m.cancels = nil
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) Get(id int) (*Partition, error) {
	for _, p := range m.partitions {
		if p.ID() == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unknown partition %d", id)
}

// ForProduct returns the partition owning productID.
func (m *Manager) ForProduct(productID int) (*Partition, error) {
	r, err := Lookup(m.opts.Ranges, productID)
	if err != nil {
		return nil, err
	}
	return m.Get(r.ID)
}

func (m *Manager) Partitions() []*Partition { return m.partitions }

func (m *Manager) Ranges() []Range { return m.opts.Ranges }

// IDs lists the hosted partition ids in order.
func (m *Manager) IDs() []int {
	ids := make([]int, 0, len(m.partitions))
	for _, p := range m.partitions {
		ids = append(ids, p.ID())
	}
	return ids
}

func (m *Manager) Views() []service.PartitionView {
	out := make([]service.PartitionView, 0, len(m.partitions))
	for _, p := range m.partitions {
		out = append(out, p)
	}
	return out
}

// Reservations returns the reservation service of the partition owning
// productID.
func (m *Manager) Reservations(productID int) (service.ReservationService, error) {
	p, err := m.ForProduct(productID)
	if err != nil {
		return nil, err
	}
	return p.Reservations, nil
}
