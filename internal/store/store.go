// Package store is the transactional key-value state of one partition.
//
// Every partition owns one Store holding named collections of
// key -> JSON value. All access goes through a Tx. Writes are buffered in the
// transaction and become visible atomically on Commit. Writes and
// GetForUpdate take a per-key update lock that is held until the transaction
// ends, so two transactions updating the same key serialize while
// transactions on disjoint keys run in parallel. Plain Get never blocks.
//
// When a Journal is configured every commit is written to it before it is
// applied in memory, and Open replays it.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrNotFound    = errors.New("store: key not found")
	ErrKeyExists   = errors.New("store: key already exists")
	ErrTxDone      = errors.New("store: transaction already committed or aborted")
	ErrLockTimeout = errors.New("store: timed out waiting for update lock")
)

const DefaultLockTimeout = 4 * time.Second

type Options struct {
	// LockTimeout bounds how long a transaction waits for an update lock.
	// Zero means DefaultLockTimeout.
	LockTimeout time.Duration
	// Journal persists commits. Nil keeps the store in memory only.
	Journal Journal
}

type entry struct {
	value []byte
	seq   uint64
}

type Store struct {
	partition   int
	journal     Journal
	lockTimeout time.Duration
	locks       *lockTable

	// commitMu keeps journal order identical to apply order.
	commitMu sync.Mutex

	mu   sync.RWMutex
	data map[string]map[string]entry
	seq  uint64
}

// KV is one element returned by ScanAll.
type KV struct {
	Key   string
	Value []byte
}

// Open creates the store of a partition and replays its journal, if any.
func Open(ctx context.Context, partition int, opts Options) (*Store, error) {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	s := &Store{
		partition:   partition,
		journal:     opts.Journal,
		lockTimeout: opts.LockTimeout,
		locks:       newLockTable(),
		data:        make(map[string]map[string]entry),
	}

	if s.journal != nil {
		records, err := s.journal.Load(ctx, partition)
		if err != nil {
			return nil, fmt.Errorf("replay partition %d: %w", partition, err)
		}
		for _, r := range records {
			s.collection(r.Collection)[r.Key] = entry{value: r.Value, seq: r.Seq}
			if r.Seq > s.seq {
				s.seq = r.Seq
			}
		}
	}
	return s, nil
}

func (s *Store) Partition() int { return s.partition }

// Begin starts a transaction. ctx bounds lock waits and the journal write.
func (s *Store) Begin(ctx context.Context) *Tx {
	return &Tx{
		s:      s,
		ctx:    ctx,
		writes: make(map[string]map[string]*pending),
		locked: make(map[string]struct{}),
	}
}

// Update runs fn inside a transaction, committing when fn returns nil and
// aborting otherwise. A panic in fn aborts and is re-raised.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	tx := s.Begin(ctx)
	defer func() {
		if r := recover(); r != nil {
			tx.Abort()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Abort()
		return err
	}
	return tx.Commit()
}

// View runs fn inside a transaction that is always aborted.
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	tx := s.Begin(ctx)
	defer tx.Abort()
	return fn(tx)
}

// collection must be called with mu held for writing (or before the store
// is shared).
func (s *Store) collection(name string) map[string]entry {
	c, ok := s.data[name]
	if !ok {
		c = make(map[string]entry)
		s.data[name] = c
	}
	return c
}

func (s *Store) committed(coll, key string) (entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[coll][key]
	return e, ok
}

func (s *Store) apply(muts []Mutation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range muts {
		c := s.collection(m.Collection)
		if m.Deleted {
			delete(c, m.Key)
			continue
		}
		c[m.Key] = entry{value: m.Value, seq: m.Seq}
	}
}

// commit assigns sequence numbers, journals and applies muts.
func (s *Store) commit(ctx context.Context, muts []Mutation) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	next := s.seq
	for i := range muts {
		m := &muts[i]
		if m.Deleted {
			continue
		}
		if e, ok := s.committed(m.Collection, m.Key); ok {
			m.Seq = e.seq
			continue
		}
		next++
		m.Seq = next
	}

	if s.journal != nil {
		if err := s.journal.Apply(ctx, s.partition, muts); err != nil {
			return fmt.Errorf("journal partition %d: %w", s.partition, err)
		}
	}

	s.apply(muts)
	s.seq = next
	return nil
}

func (s *Store) scanCommitted(coll string) []KV {
	s.mu.RLock()
	type seqKV struct {
		kv  KV
		seq uint64
	}
	items := make([]seqKV, 0, len(s.data[coll]))
	for k, e := range s.data[coll] {
		items = append(items, seqKV{kv: KV{Key: k, Value: e.value}, seq: e.seq})
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool { return items[i].seq < items[j].seq })

	out := make([]KV, len(items))
	for i, it := range items {
		out[i] = it.kv
	}
	return out
}

func (s *Store) countCommitted(coll string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[coll])
}
